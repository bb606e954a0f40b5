package acl

import (
	mgo "gopkg.in/mgo.v2"
	bson "gopkg.in/mgo.v2/bson"
)

type grantKey struct {
	Entity    string `bson:"e"`
	Principal string `bson:"p"`
}

type grantDoc struct {
	Id        grantKey `bson:"_id"`
	Level     int      `bson:"l"`
	Recursive bool     `bson:"r"`
}

// `Mongo` is a `Manager` backed by a MongoDB collection `<ns>.grants`.
type Mongo struct {
	grants *mgo.Collection
}

func NewMongo(conn *mgo.Session, ns string) *Mongo {
	return &Mongo{
		grants: conn.DB("").C(ns + ".grants"),
	}
}

func (m *Mongo) Grant(
	entity, principal string, level Level, recursive bool,
) error {
	_, err := m.grants.Upsert(bson.M{
		"_id": grantKey{Entity: entity, Principal: principal},
	}, bson.M{
		"$set": bson.M{"l": int(level), "r": recursive},
	})
	if err != nil {
		return &DBError{
			Op:  OpUpsertGrant,
			Err: err,
		}
	}
	return nil
}

func (m *Mongo) Revoke(entity, principal string, recursive bool) error {
	err := m.grants.Remove(bson.M{
		"_id": grantKey{Entity: entity, Principal: principal},
	})
	switch {
	case err == mgo.ErrNotFound:
		return nil
	case err != nil:
		return &DBError{
			Op:  OpRemoveGrant,
			Err: err,
		}
	}
	return nil
}

func (m *Mongo) LevelOf(entity, principal string) (Level, error) {
	var d grantDoc
	err := m.grants.Find(bson.M{
		"_id": grantKey{Entity: entity, Principal: principal},
	}).One(&d)
	switch {
	case err == mgo.ErrNotFound:
		return LevelNull, nil
	case err != nil:
		return LevelNull, &DBError{
			Op:  OpFindGrant,
			Err: err,
		}
	}
	return Level(d.Level), nil
}

func (m *Mongo) List(entity string) ([]Grant, error) {
	it := m.grants.Find(bson.M{
		"_id.e": entity,
	}).Sort("_id.p").Iter()
	var gs []Grant
	var d grantDoc
	for it.Next(&d) {
		gs = append(gs, Grant{
			Principal: d.Id.Principal,
			Level:     Level(d.Level),
			Recursive: d.Recursive,
		})
	}
	if err := it.Close(); err != nil {
		return nil, &DBError{
			Op:  OpScanGrants,
			Err: err,
		}
	}
	return gs, nil
}
