package provenance

import (
	"time"

	"github.com/rdvproject/rdv/backend/pkg/ulid"
	mgo "gopkg.in/mgo.v2"
	bson "gopkg.in/mgo.v2/bson"
)

// `KeyX` is the Mongo field name for the Go field `X`.
const (
	KeyId     = "_id"
	KeyEntity = "e"
	KeyActor  = "u"
	KeyAction = "a"
	KeyTime   = "ts"
)

type recordDoc struct {
	Id     ulid.I    `bson:"_id"`
	Entity string    `bson:"e"`
	Actor  string    `bson:"u"`
	Action string    `bson:"a"`
	Time   time.Time `bson:"ts"`
}

// `Mongo` is a `Log` backed by a MongoDB collection `<ns>.provenance`.
type Mongo struct {
	records *mgo.Collection
}

func NewMongo(conn *mgo.Session, ns string) *Mongo {
	return &Mongo{
		records: conn.DB("").C(ns + ".provenance"),
	}
}

func (l *Mongo) Append(entity, actor, action string, t time.Time) error {
	id, err := ulid.New()
	if err != nil {
		return &DBError{
			Op:  OpNewId,
			Err: err,
		}
	}
	err = l.records.Insert(recordDoc{
		Id:     id,
		Entity: entity,
		Actor:  actor,
		Action: action,
		Time:   t,
	})
	if err != nil {
		return &DBError{
			Op:  OpInsertRecord,
			Err: err,
		}
	}
	return nil
}

func (l *Mongo) List(entity string) ([]Record, error) {
	it := l.records.Find(bson.M{
		KeyEntity: entity,
	}).Sort("-" + KeyId).Iter()
	var rs []Record
	var d recordDoc
	for it.Next(&d) {
		rs = append(rs, Record(d))
	}
	if err := it.Close(); err != nil {
		return nil, &DBError{
			Op:  OpScanRecords,
			Err: err,
		}
	}
	return rs, nil
}

func (l *Mongo) Head(entity string) (Record, bool, error) {
	var d recordDoc
	err := l.records.Find(bson.M{
		KeyEntity: entity,
	}).Sort("-" + KeyId).One(&d)
	switch {
	case err == mgo.ErrNotFound:
		return Record{}, false, nil
	case err != nil:
		return Record{}, false, &DBError{
			Op:  OpScanRecords,
			Err: err,
		}
	}
	return Record(d), true, nil
}

func (l *Mongo) Clear(entity string) error {
	_, err := l.records.RemoveAll(bson.M{
		KeyEntity: entity,
	})
	if err != nil {
		return &DBError{
			Op:  OpRemoveAll,
			Err: err,
		}
	}
	return nil
}

func (l *Mongo) Copy(src, dst string) error {
	it := l.records.Find(bson.M{
		KeyEntity: src,
	}).Sort(KeyId).Iter()
	var d recordDoc
	for it.Next(&d) {
		id, err := ulid.New()
		if err != nil {
			_ = it.Close()
			return &DBError{
				Op:  OpNewId,
				Err: err,
			}
		}
		d.Id = id
		d.Entity = dst
		if err := l.records.Insert(d); err != nil {
			_ = it.Close()
			return &DBError{
				Op:  OpInsertRecord,
				Err: err,
			}
		}
	}
	if err := it.Close(); err != nil {
		return &DBError{
			Op:  OpScanRecords,
			Err: err,
		}
	}
	return nil
}
