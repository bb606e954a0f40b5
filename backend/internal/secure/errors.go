package secure

import "fmt"

// Step names, used in logs and retryable errors.
const (
	StepAcl         = "acquire folder access"
	StepTarget      = "allocate vault target"
	StepCopy        = "copy tree"
	StepReference   = "stamp data package reference"
	StepMetadata    = "copy metadata"
	StepSearchIndex = "enable search index"
	StepProvenance  = "copy action log"
	StepPid         = "register persistent identifier"
	StepVaultAcl    = "set vault permissions"
	StepVaultStatus = "set vault status"
	StepBackRef     = "record vault package"
	StepFinalize    = "finalize folder"
)

// `PrecheckError` reports that a run did not start: wrong actor, wrong
// cronjob state, or backoff not elapsed.  Prechecks never count toward the
// retry budget.
type PrecheckError struct {
	Reason string
}

func (err *PrecheckError) Error() string {
	return "precheck failed: " + err.Reason
}

func IsPrecheckError(err error) bool {
	_, ok := err.(*PrecheckError)
	return ok
}

// `RetryableError` reports a failed run whose retry state has been recorded
// for the next sweep.
type RetryableError struct {
	Step string
	Err  error
}

func (err *RetryableError) Error() string {
	return fmt.Sprintf("%s failed: %v", err.Step, err.Err)
}

func (err *RetryableError) Unwrap() error {
	return err.Err
}

func IsRetryableError(err error) bool {
	_, ok := err.(*RetryableError)
	return ok
}

// `UnrecoverableError` reports that the retry budget is exhausted.  The
// folder requires administrative intervention.
type UnrecoverableError struct {
	Retries int
}

func (err *UnrecoverableError) Error() string {
	return fmt.Sprintf(
		"copy to vault failed after %d retries", err.Retries,
	)
}

func IsUnrecoverableError(err error) bool {
	_, ok := err.(*UnrecoverableError)
	return ok
}
