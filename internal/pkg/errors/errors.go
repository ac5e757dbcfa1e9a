package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ValidationError reports rejected caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// StateConflictError is a lost race on a guarded status transition. The
// losing writer aborts; a concurrent writer already advanced the record.
type StateConflictError struct {
	Entity   string
	Expected string
	Next     string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict on %s: expected %q, wanted %q", e.Entity, e.Expected, e.Next)
}

// VisionServiceError classifies vision provider failures. Retryable
// instances (timeouts, malformed output, 5xx) are retried by the job
// runner; non-retryable ones (hard rejections) fail the job immediately.
type VisionServiceError struct {
	Retryable bool
	Reason    string
	Err       error
}

func (e *VisionServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vision service: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("vision service: %s", e.Reason)
}

func (e *VisionServiceError) Unwrap() error { return e.Err }

// PersistenceError wraps a storage-layer failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsRetryable reports whether err should be retried by the background job
// runner. Only retryable vision failures qualify.
func IsRetryable(err error) bool {
	var ve *VisionServiceError
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return false
}

func IsStateConflict(err error) bool {
	var sc *StateConflictError
	return errors.As(err, &sc)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
