/*

Package `provenance` implements the per-collection action log.  Every
successful status transition appends a record; the secure workflow copies a
folder's log to its vault package.  Records carry ULID ids, so their
lexicographic order is also their time order and `List()` can return newest
first without a separate timestamp index.

*/
package provenance

import (
	"time"

	"github.com/rdvproject/rdv/backend/pkg/ulid"
)

// `ActionX` are the provenance action strings.  They are stored verbatim and
// shown to end users.
const (
	ActionLocked      = "locked"
	ActionUnlocked    = "unlocked"
	ActionSubmitted   = "submitted for vault"
	ActionUnsubmitted = "unsubmitted for vault"
	ActionAccepted    = "accepted for vault"
	ActionRejected    = "rejected for vault"
	ActionSecured     = "secured in vault"

	ActionSubmittedForPublication = "submitted for publication"
	ActionCanceledPublication     = "canceled publication"
	ActionApprovedForPublication  = "approved for publication"
	ActionPublished               = "published"
	ActionPendingDepublication    = "requested depublication"
	ActionDepublished             = "depublished"
	ActionPendingRepublication    = "requested republication"
)

type Record struct {
	Id     ulid.I
	Entity string
	Actor  string
	Action string
	Time   time.Time
}

type Log interface {
	Append(entity, actor, action string, t time.Time) error

	// `List()` returns records newest first.
	List(entity string) ([]Record, error)

	// `Head()` returns the most recent record, if any.
	Head(entity string) (Record, bool, error)

	// `Clear()` drops the whole log of an entity.  Only used when leaving
	// the legacy SECURED state.
	Clear(entity string) error

	// `Copy()` appends all records of `src` to `dst`, preserving actor,
	// action, and time.
	Copy(src, dst string) error
}
