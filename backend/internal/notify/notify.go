/*

Package `notify` delivers short human-readable messages to users.  The state
machines and the secure workflow send them as post-transition side effects;
delivery failures are logged and never block or roll back a transition.

*/
package notify

import (
	"time"

	"github.com/rdvproject/rdv/backend/pkg/ulid"
)

// `MsgX` are the literal notification messages.
const (
	MsgSubmitted = "Data package submitted for the vault"
	MsgAccepted  = "Data package accepted for vault"
	MsgRejected  = "Data package rejected for vault"
	MsgSecured   = "Data package secured in vault"

	MsgSubmittedForPublication = "Data package submitted for publication"
	MsgApprovedForPublication  = "Data package approved for publication"
	MsgPublished               = "Data package published"
	MsgDepublished             = "Data package depublished"
	MsgRepublished             = "Data package republished"

	MsgCopyToVaultFailed = "Data package failed to copy to vault " +
		"after maximum retries"
	MsgRetryStateFailed = "Failed to set retry state"
)

type Notification struct {
	Id        ulid.I
	Actor     string
	Recipient string
	// `TargetRef` is the collection the message is about.  For secured
	// packages this is the vault package path, not the source folder.
	TargetRef string
	Message   string
	Time      time.Time
}

type Sink interface {
	Notify(actor, recipient, targetRef, message string) error
}
