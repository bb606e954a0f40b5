/*

Package `vaults` implements the vault-package publication lifecycle.  A vault
package is created at INCOMPLETE by the secure workflow, becomes UNPUBLISHED
once the copy has fully succeeded, and from there moves through submission,
approval, and publication driven by researchers, datamanagers, and the
publication pipeline.

Possible status paths:

    INCOMPLETE -> UNPUBLISHED
    UNPUBLISHED -> SUBMITTED_FOR_PUBLICATION -> UNPUBLISHED   (cancel)
    SUBMITTED_FOR_PUBLICATION -> APPROVED_FOR_PUBLICATION -> PUBLISHED
    PUBLISHED -> PENDING_DEPUBLICATION -> DEPUBLISHED
    DEPUBLISHED -> PENDING_REPUBLICATION -> PUBLISHED

*/
package vaults

// `Status` is the vault-package status.  `StatusEmpty` is the default for a
// collection that carries no vault status attribute.
type Status int

const (
	StatusEmpty Status = iota
	StatusIncomplete
	StatusUnpublished
	StatusSubmittedForPublication
	StatusApprovedForPublication
	StatusPublished
	StatusPendingDepublication
	StatusDepublished
	StatusPendingRepublication
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "EMPTY"
	case StatusIncomplete:
		return "INCOMPLETE"
	case StatusUnpublished:
		return "UNPUBLISHED"
	case StatusSubmittedForPublication:
		return "SUBMITTED_FOR_PUBLICATION"
	case StatusApprovedForPublication:
		return "APPROVED_FOR_PUBLICATION"
	case StatusPublished:
		return "PUBLISHED"
	case StatusPendingDepublication:
		return "PENDING_DEPUBLICATION"
	case StatusDepublished:
		return "DEPUBLISHED"
	case StatusPendingRepublication:
		return "PENDING_REPUBLICATION"
	default:
		return "INVALID"
	}
}

// `Value()` is the stored attribute value.  `StatusEmpty` stores nothing.
func (s Status) Value() string {
	if s == StatusEmpty {
		return ""
	}
	return s.String()
}

func ParseStatus(v string) (Status, error) {
	switch v {
	case "":
		return StatusEmpty, nil
	case "INCOMPLETE":
		return StatusIncomplete, nil
	case "UNPUBLISHED":
		return StatusUnpublished, nil
	case "SUBMITTED_FOR_PUBLICATION":
		return StatusSubmittedForPublication, nil
	case "APPROVED_FOR_PUBLICATION":
		return StatusApprovedForPublication, nil
	case "PUBLISHED":
		return StatusPublished, nil
	case "PENDING_DEPUBLICATION":
		return StatusPendingDepublication, nil
	case "DEPUBLISHED":
		return StatusDepublished, nil
	case "PENDING_REPUBLICATION":
		return StatusPendingRepublication, nil
	default:
		return StatusEmpty, &InvalidStatusError{Value: v}
	}
}
