package vaults

import "fmt"

// The `ReasonX` strings are shown verbatim to end users.
const (
	ReasonIllegalTransition = "Illegal status transition"
	ReasonMetadataMissing   = "Metadata missing, unable to submit " +
		"this data package for publication."
	ReasonMetadataInvalid = "Metadata is invalid, unable to submit " +
		"this data package for publication."
	ReasonNotDatamanager = "Only a datamanager can approve or cancel " +
		"a publication."
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
	return fmt.Sprintf("invalid vault package status `%s`", err.Value)
}
