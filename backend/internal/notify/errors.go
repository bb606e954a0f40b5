package notify

type Op string

const (
	OpNewId              Op = "creating notification id"
	OpInsertNotification    = "inserting notification"
	OpScanNotifications     = "scanning notifications"
)

type DBError struct {
	Op  Op
	Err error
}

func (err *DBError) Error() string {
	return "notify db: " + string(err.Op) + " failed: " + err.Err.Error()
}
func (err *DBError) Unwrap() error { return err.Err }
