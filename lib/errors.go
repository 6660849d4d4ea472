package lib

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when the remote service has no record of the requested entity.
	ErrNotFound = errors.New("not found")

	// ErrAuth is returned when the remote service rejects the configured credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrJobFailed is matched by every *JobError.
	ErrJobFailed = errors.New("job failed")

	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("job timed out")

	// ErrRetriesExhausted is matched by every *RetryError.
	ErrRetriesExhausted = errors.New("status query retries exhausted")

	// ErrCancelled is returned when a wait is abandoned because its context was cancelled.
	ErrCancelled = errors.New("wait cancelled")
)

// TransportError is a network level failure talking to the remote service.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the remote service answered but signalled an
// unsuccessful response, either through the HTTP status or the response
// envelope.
type ProtocolError struct {
	Op string
	// StatusCode is the HTTP status of the response, zero when the failure
	// was reported inside a successful envelope.
	StatusCode int
	Message    string
}

func (e *ProtocolError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status code: %d. error: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// IsRetryable reports whether err is a transport or protocol failure that a
// polling loop may retry.
func IsRetryable(err error) bool {
	var te *TransportError
	var pe *ProtocolError
	return errors.As(err, &te) || errors.As(err, &pe)
}

// JobError is raised when the remote job itself reaches a failed terminal state.
type JobError struct {
	Job    Job
	Status string
	Reason string
}

func (e *JobError) Error() string {
	msg := fmt.Sprintf("%s cannot be completed: status [%s]", e.Job, e.Status)
	if e.Reason != "" {
		msg += fmt.Sprintf(", message [%s]", e.Reason)
	}
	return msg
}

func (e *JobError) Is(target error) bool { return target == ErrJobFailed }

// TimeoutError is raised when the configured deadline passes without the job
// reaching a terminal state.
type TimeoutError struct {
	Job     Job
	Timeout int64
	Unit    time.Duration
	// LastStatus is the name of the last observed status, empty if no status
	// query ever succeeded.
	LastStatus string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s has reached the time limit (%d %s)", e.Job, e.Timeout, UnitName(e.Unit))
	if e.LastStatus != "" {
		msg += fmt.Sprintf(", last status [%s]", e.LastStatus)
	}
	return msg
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// RetryError is raised when consecutive status queries fail more often than
// the retry budget allows.
type RetryError struct {
	Job      Job
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("failed to get status of %s after %d attempts: %v", e.Job, e.Attempts, e.Err)
}

func (e *RetryError) Is(target error) bool { return target == ErrRetriesExhausted }

func (e *RetryError) Unwrap() error { return e.Err }

// UnitName returns the plural name used for a timeout unit in messages.
func UnitName(unit time.Duration) string {
	switch unit {
	case time.Minute:
		return "minutes"
	case time.Second:
		return "seconds"
	case time.Hour:
		return "hours"
	case time.Millisecond:
		return "milliseconds"
	default:
		return "x " + unit.String()
	}
}
