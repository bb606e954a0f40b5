package pid

import "fmt"

const (
	OpLookup = "lookup handle"
	OpCreate = "create handle"
)

// `ServiceError` reports a failed handle service call, either a transport
// error or an unexpected HTTP status.  The secure workflow treats it as
// retryable.
type ServiceError struct {
	Op         string
	StatusCode int
	Err        error
}

func (err *ServiceError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("%s failed: %v", err.Op, err.Err)
	}
	return fmt.Sprintf(
		"%s failed: unexpected status %d", err.Op, err.StatusCode,
	)
}

func (err *ServiceError) Unwrap() error {
	return err.Err
}

func IsServiceError(err error) bool {
	_, ok := err.(*ServiceError)
	return ok
}
