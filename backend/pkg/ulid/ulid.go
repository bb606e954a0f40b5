package ulid

import (
	crand "crypto/rand"
	"time"

	"github.com/oklog/ulid"
)

// `I` is an `oklog/ulid.ULID`.  We use ULIDs where records need a unique ID
// whose lexicographic order is also a time order, such as provenance and
// notification records.
type I = ulid.ULID

// `Nil` is the all-zero null value.
var Nil I

// funcs
var Parse = ulid.Parse

func New() (I, error) {
	return ulid.New(ulid.Now(), crand.Reader)
}

func ParseBytes(data []byte) (I, error) {
	var id I
	if data == nil {
		return id, nil
	}
	err := id.UnmarshalBinary(data)
	return id, err
}

func Time(id I) time.Time {
	ms := id.Time()
	s := ms / 1000
	ns := (ms % 1000) * 1000 * 1000
	return time.Unix(int64(s), int64(ns))
}

const RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"

func TimeString(id I) string {
	return Time(id).Format(RFC3339Milli)
}
