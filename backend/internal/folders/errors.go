package folders

import "fmt"

// The `ReasonX` strings are shown verbatim to end users.
const (
	ReasonIllegalTransition = "Illegal status transition"
	ReasonMetadataMissing   = "Metadata missing, unable to submit " +
		"this folder."
	ReasonMetadataInvalid = "Metadata is invalid, unable to submit " +
		"this folder."
	ReasonNotDatamanager = "Only a datamanager can accept or reject " +
		"a folder."
	ReasonNotAdmin       = "Only an administrator can secure a folder."
	ReasonCouldNotLock   = "Could not lock folder"
	ReasonCouldNotUnlock = "Could not unlock folder"
)

func IsPackageError(err error) bool {
	switch err.(type) {
	case *DeniedError:
		return true
	case *InvalidStatusError:
		return true
	default:
		return false
	}
}

// `DeniedError` is a policy denial.  It is user-facing and never retried.
type DeniedError struct {
	Reason string
}

func (err *DeniedError) Error() string {
	return err.Reason
}

func IsDeniedError(err error) bool {
	_, ok := err.(*DeniedError)
	return ok
}

type InvalidStatusError struct {
	Value string
}

func (err *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid folder status `%s`", err.Value)
}
