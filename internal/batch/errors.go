package batch

import (
	"errors"
	"fmt"
)

// Error is a batch-level failure. Batch-level failures abort before any job
// runs and leave no checkpoint behind.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes batch-level errors.
type ErrorCode string

const (
	// ErrCodePrecondition indicates a missing required part, music track or hook.
	ErrCodePrecondition ErrorCode = "PRECONDITION"

	// ErrCodeNoCombinations indicates planning produced zero jobs.
	ErrCodeNoCombinations ErrorCode = "NO_COMBINATIONS"

	// ErrCodeOverflow indicates exhaustive enumeration was refused because the
	// combination count exceeds the configured ceiling.
	ErrCodeOverflow ErrorCode = "COMBINATION_OVERFLOW"

	// ErrCodeNotResumable indicates there is no checkpoint to resume.
	ErrCodeNotResumable ErrorCode = "NOT_RESUMABLE"

	// ErrCodeAlreadyRunning indicates a batch is already executing.
	ErrCodeAlreadyRunning ErrorCode = "ALREADY_RUNNING"
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsPrecondition returns true if err is a precondition violation.
// Uses errors.As to handle wrapped errors.
func IsPrecondition(err error) bool { return hasCode(err, ErrCodePrecondition) }

// IsNoCombinations returns true if planning produced no jobs.
func IsNoCombinations(err error) bool { return hasCode(err, ErrCodeNoCombinations) }

// IsOverflow returns true if enumeration was refused by the overflow guard.
func IsOverflow(err error) bool { return hasCode(err, ErrCodeOverflow) }

// IsNotResumable returns true if there was nothing to resume.
func IsNotResumable(err error) bool { return hasCode(err, ErrCodeNotResumable) }

// IsAlreadyRunning returns true if a batch was already executing.
func IsAlreadyRunning(err error) bool { return hasCode(err, ErrCodeAlreadyRunning) }

// Stage names the step of a job that failed.
type Stage string

const (
	StagePrepare Stage = "prepare"
	StageRender  Stage = "render"
)

// JobError is a per-job failure. It is reported and recorded but never
// returned from Run: one job failing never aborts the batch.
type JobError struct {
	Index int
	Total int
	Stage Stage
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %d of %d failed during %s: %v", e.Index+1, e.Total, e.Stage, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}
