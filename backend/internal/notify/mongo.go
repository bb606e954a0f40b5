package notify

import (
	"time"

	"github.com/rdvproject/rdv/backend/pkg/ulid"
	mgo "gopkg.in/mgo.v2"
	bson "gopkg.in/mgo.v2/bson"
)

type notificationDoc struct {
	Id        ulid.I    `bson:"_id"`
	Actor     string    `bson:"u"`
	Recipient string    `bson:"r"`
	TargetRef string    `bson:"t"`
	Message   string    `bson:"m"`
	Time      time.Time `bson:"ts"`
}

// `Mongo` is a `Sink` backed by a MongoDB collection `<ns>.notifications`.
// A separate mailer drains the collection; delivery to an inbox is all this
// package guarantees.
type Mongo struct {
	notifications *mgo.Collection
}

func NewMongo(conn *mgo.Session, ns string) *Mongo {
	return &Mongo{
		notifications: conn.DB("").C(ns + ".notifications"),
	}
}

func (s *Mongo) Notify(actor, recipient, targetRef, message string) error {
	id, err := ulid.New()
	if err != nil {
		return &DBError{
			Op:  OpNewId,
			Err: err,
		}
	}
	err = s.notifications.Insert(notificationDoc{
		Id:        id,
		Actor:     actor,
		Recipient: recipient,
		TargetRef: targetRef,
		Message:   message,
		Time:      time.Now(),
	})
	if err != nil {
		return &DBError{
			Op:  OpInsertNotification,
			Err: err,
		}
	}
	return nil
}

// `ListFor()` returns the notifications for `recipient`, newest first.
func (s *Mongo) ListFor(recipient string) ([]Notification, error) {
	it := s.notifications.Find(bson.M{
		"r": recipient,
	}).Sort("-_id").Iter()
	var ns []Notification
	var d notificationDoc
	for it.Next(&d) {
		ns = append(ns, Notification(d))
	}
	if err := it.Close(); err != nil {
		return nil, &DBError{
			Op:  OpScanNotifications,
			Err: err,
		}
	}
	return ns, nil
}
