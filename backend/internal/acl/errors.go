package acl

type Op string

const (
	OpUpsertGrant Op = "upserting grant"
	OpRemoveGrant    = "removing grant"
	OpFindGrant      = "finding grant"
	OpScanGrants     = "scanning grants"
)

type DBError struct {
	Op  Op
	Err error
}

func (err *DBError) Error() string {
	return "acl db: " + string(err.Op) + " failed: " + err.Err.Error()
}
func (err *DBError) Unwrap() error { return err.Err }
