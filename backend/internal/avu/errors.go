package avu

import (
	"fmt"
)

type Op string

// `OpX` are operation codes for errors.  The `OpX` strings are chosen such
// that `${OpX} failed: ...` is valid English.
const (
	OpFindAttr      Op = "finding attribute"
	OpInsertAttr       = "inserting attribute"
	OpUpdateAttr       = "updating attribute"
	OpUpsertAttr       = "upserting attribute"
	OpRemoveAttr       = "removing attribute"
	OpScanAttrs        = "scanning attributes"
	OpFindEntities     = "finding entities by attribute"
	OpFindDuplicate    = "finding duplicate attribute"
)

type DBError struct {
	Op  Op
	Err error
}

func (err *DBError) Error() string {
	return "attr db: " + string(err.Op) + " failed: " + err.Err.Error()
}
func (err *DBError) Unwrap() error { return err.Err }

// `ConflictError` reports a failed compare-and-swap.  `Stored == ""` means
// the attribute was absent.
type ConflictError struct {
	Entity   string
	Attr     string
	Stored   string
	Expected string
}

func (err *ConflictError) Error() string {
	return fmt.Sprintf(
		"attribute conflict on `%s` `%s`: stored `%s` != expected `%s`",
		err.Entity, err.Attr, err.Stored, err.Expected,
	)
}

func IsConflictError(err error) bool {
	_, ok := err.(*ConflictError)
	return ok
}
