package tree

import "fmt"

type Op string

const (
	OpInsertCollection Op = "inserting collection"
	OpFindCollection      = "finding collection"
	OpScanCollections     = "scanning collections"
	OpRemoveCollection    = "removing collections"
	OpCreateObject        = "creating object"
	OpOpenObject          = "opening object"
	OpFindObject          = "finding object"
	OpScanObjects         = "scanning objects"
	OpRemoveObject        = "removing objects"
)

type DBError struct {
	Op  Op
	Err error
}

func (err *DBError) Error() string {
	return "tree db: " + string(err.Op) + " failed: " + err.Err.Error()
}
func (err *DBError) Unwrap() error { return err.Err }

type NotFoundError struct {
	Path string
}

func (err *NotFoundError) Error() string {
	return fmt.Sprintf("not found: `%s`", err.Path)
}

func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
