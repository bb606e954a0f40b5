/*

Package `folders` implements the research-folder lifecycle: the status enum,
the transition policy, and the state machine that commits transitions and
runs their side effects.

See package doc of `secure` for how an accepted folder is copied into the
vault.

Possible status paths:

    FOLDER -> LOCKED -> FOLDER
    FOLDER|LOCKED -> SUBMITTED -> FOLDER          (unsubmit)
    SUBMITTED -> REJECTED -> FOLDER
    SUBMITTED -> ACCEPTED -> FOLDER               (vault copy completed)
    ACCEPTED -> SECURED -> FOLDER|LOCKED|SUBMITTED  (legacy)

*/
package folders

// `Status` is the research-folder status.  `StatusFolder` is the default; it
// is represented by an absent status attribute.
type Status int

const (
	StatusFolder Status = iota
	StatusLocked
	StatusSubmitted
	StatusAccepted
	StatusRejected
	StatusSecured
)

func (s Status) String() string {
	switch s {
	case StatusFolder:
		return "FOLDER"
	case StatusLocked:
		return "LOCKED"
	case StatusSubmitted:
		return "SUBMITTED"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusRejected:
		return "REJECTED"
	case StatusSecured:
		return "SECURED"
	default:
		return "INVALID"
	}
}

// `Value()` is the stored attribute value.  `StatusFolder` stores nothing.
func (s Status) Value() string {
	if s == StatusFolder {
		return ""
	}
	return s.String()
}

func ParseStatus(v string) (Status, error) {
	switch v {
	case "":
		return StatusFolder, nil
	case "LOCKED":
		return StatusLocked, nil
	case "SUBMITTED":
		return StatusSubmitted, nil
	case "ACCEPTED":
		return StatusAccepted, nil
	case "REJECTED":
		return StatusRejected, nil
	case "SECURED":
		return StatusSecured, nil
	default:
		return StatusFolder, &InvalidStatusError{Value: v}
	}
}
