package domain

import (
	"errors"
	"fmt"
)

// Outcomes of a conditional ledger write. None of them is fatal to a workflow run:
// the engines turn them into skips or bounded retries.
var (
	ErrNotFound            = errors.New("not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCapReached          = errors.New("open position cap reached")
	ErrDuplicateOpen       = errors.New("market already has an open position")
	ErrPositionClosed      = errors.New("position already closed")
)

// ValidationError reports malformed configuration or input. Fatal to the invocation.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExternalServiceError wraps a failure of a collaborator (market listing, ranking
// service, price feed): unreachable, timed out, or a response of the wrong shape.
// Retryable only at the scheduler's invocation granularity.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Retryable is always true: the scheduler may re-invoke the workflow.
func (e *ExternalServiceError) Retryable() bool { return true }

// PersistenceError means the ledger store is unreachable or failed a statement.
// Fatal to the whole invocation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persistence: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Retryable is always true: a later invocation may find the store healthy again.
func (e *PersistenceError) Retryable() bool { return true }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsExternal reports whether err carries an ExternalServiceError.
func IsExternal(err error) bool {
	var ee *ExternalServiceError
	return errors.As(err, &ee)
}

// IsPersistence reports whether err carries a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsRetryable reports whether a scheduler should re-deliver the trigger.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}
