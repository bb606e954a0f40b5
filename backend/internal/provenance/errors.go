package provenance

type Op string

const (
	OpNewId        Op = "creating record id"
	OpInsertRecord    = "inserting provenance record"
	OpScanRecords     = "scanning provenance records"
	OpRemoveAll       = "removing provenance records"
)

type DBError struct {
	Op  Op
	Err error
}

func (err *DBError) Error() string {
	return "provenance db: " + string(err.Op) + " failed: " +
		err.Err.Error()
}
func (err *DBError) Unwrap() error { return err.Err }
