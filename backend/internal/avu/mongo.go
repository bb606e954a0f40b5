package avu

import (
	"regexp"

	mgo "gopkg.in/mgo.v2"
	bson "gopkg.in/mgo.v2/bson"
)

// `KeyX` is the Mongo field name for the Go field `X`.
const (
	KeyId     = "_id"
	KeyEntity = "_id.e"
	KeyAttr   = "_id.a"
	KeyValue  = "v"
)

type attrKey struct {
	Entity string `bson:"e"`
	Attr   string `bson:"a"`
}

type attrDoc struct {
	Id    attrKey `bson:"_id"`
	Value string  `bson:"v"`
}

// `Mongo` is a `Store` backed by a MongoDB collection `<ns>.attrs`.
type Mongo struct {
	attrs *mgo.Collection
}

func NewMongo(conn *mgo.Session, ns string) *Mongo {
	return &Mongo{
		attrs: conn.DB("").C(ns + ".attrs"),
	}
}

func (s *Mongo) Get(entity, attr string) (string, bool, error) {
	var d attrDoc
	err := s.attrs.Find(bson.M{
		KeyId: attrKey{Entity: entity, Attr: attr},
	}).One(&d)
	switch {
	case err == mgo.ErrNotFound:
		return "", false, nil
	case err != nil:
		return "", false, &DBError{
			Op:  OpFindAttr,
			Err: err,
		}
	}
	return d.Value, true, nil
}

func (s *Mongo) Set(entity, attr, value string) error {
	_, err := s.attrs.Upsert(bson.M{
		KeyId: attrKey{Entity: entity, Attr: attr},
	}, bson.M{
		"$set": bson.M{KeyValue: value},
	})
	if err != nil {
		return &DBError{
			Op:  OpUpsertAttr,
			Err: err,
		}
	}
	return nil
}

func (s *Mongo) SetCAS(entity, attr, value, expectedPrev string) error {
	if expectedPrev == "" {
		return s.setCASInsert(entity, attr, value)
	}
	return s.setCASUpdate(entity, attr, value, expectedPrev)
}

func (s *Mongo) setCASInsert(entity, attr, value string) error {
	err := s.attrs.Insert(attrDoc{
		Id:    attrKey{Entity: entity, Attr: attr},
		Value: value,
	})
	if err == nil {
		return nil
	}
	if !mgo.IsDup(err) {
		return &DBError{
			Op:  OpInsertAttr,
			Err: err,
		}
	}
	// Double check the stored value to distinguish an idempotent retry
	// from a real conflict.
	stored, ok, err2 := s.Get(entity, attr)
	switch {
	case err2 != nil:
		return err2 // `err2` is a `DBError`.
	case !ok:
		// The duplicate vanished concurrently.  Report a conflict; the
		// caller re-reads and decides.
		return &ConflictError{
			Entity: entity, Attr: attr,
			Stored: "", Expected: "",
		}
	case stored == value:
		return nil // idempotent
	default:
		return &ConflictError{
			Entity: entity, Attr: attr,
			Stored: stored, Expected: "",
		}
	}
}

func (s *Mongo) setCASUpdate(entity, attr, value, expectedPrev string) error {
	err := s.attrs.Update(bson.M{
		KeyId:    attrKey{Entity: entity, Attr: attr},
		KeyValue: expectedPrev,
	}, bson.M{
		"$set": bson.M{KeyValue: value},
	})
	switch {
	case err == mgo.ErrNotFound:
		stored, ok, err2 := s.Get(entity, attr)
		switch {
		case err2 != nil:
			return err2 // `err2` is a `DBError`.
		case ok && stored == value:
			return nil // idempotent
		case !ok:
			return &ConflictError{
				Entity: entity, Attr: attr,
				Stored: "", Expected: expectedPrev,
			}
		default:
			return &ConflictError{
				Entity: entity, Attr: attr,
				Stored: stored, Expected: expectedPrev,
			}
		}
	case err != nil:
		return &DBError{
			Op:  OpUpdateAttr,
			Err: err,
		}
	}
	return nil
}

func (s *Mongo) Remove(entity, attr string) error {
	err := s.attrs.Remove(bson.M{
		KeyId: attrKey{Entity: entity, Attr: attr},
	})
	switch {
	case err == mgo.ErrNotFound:
		return nil
	case err != nil:
		return &DBError{
			Op:  OpRemoveAttr,
			Err: err,
		}
	}
	return nil
}

func (s *Mongo) RemovePrefix(entity, prefix string) error {
	_, err := s.attrs.RemoveAll(bson.M{
		KeyEntity: entity,
		KeyAttr:   prefixRegex(prefix),
	})
	if err != nil {
		return &DBError{
			Op:  OpRemoveAttr,
			Err: err,
		}
	}
	return nil
}

func (s *Mongo) QueryPrefix(entity, prefix string) ([]Entry, error) {
	it := s.attrs.Find(bson.M{
		KeyEntity: entity,
		KeyAttr:   prefixRegex(prefix),
	}).Sort(KeyAttr).Iter()
	var es []Entry
	var d attrDoc
	for it.Next(&d) {
		es = append(es, Entry{Attr: d.Id.Attr, Value: d.Value})
	}
	if err := it.Close(); err != nil {
		return nil, &DBError{
			Op:  OpScanAttrs,
			Err: err,
		}
	}
	return es, nil
}

func (s *Mongo) FindEntitiesByAttr(
	attr string, values ...string,
) ([]string, error) {
	it := s.attrs.Find(bson.M{
		KeyAttr:  attr,
		KeyValue: bson.M{"$in": values},
	}).Sort(KeyEntity).Iter()
	var ents []string
	var d attrDoc
	for it.Next(&d) {
		ents = append(ents, d.Id.Entity)
	}
	if err := it.Close(); err != nil {
		return nil, &DBError{
			Op:  OpFindEntities,
			Err: err,
		}
	}
	return ents, nil
}

func (s *Mongo) RemoveEntity(entity string) error {
	_, err := s.attrs.RemoveAll(bson.M{
		KeyEntity: entity,
	})
	if err != nil {
		return &DBError{
			Op:  OpRemoveAttr,
			Err: err,
		}
	}
	return nil
}

func prefixRegex(prefix string) bson.RegEx {
	return bson.RegEx{Pattern: "^" + regexp.QuoteMeta(prefix)}
}
