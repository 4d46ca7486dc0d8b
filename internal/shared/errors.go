package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input rejected before any state change.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition indicates an illegal order state-machine move.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrInsufficientStock indicates an outbound movement exceeding available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNegativeStock indicates a ledger write that would drive stock below zero.
	ErrNegativeStock = errors.New("negative stock not allowed")
	// ErrLockTimeout indicates a lock could not be acquired within the bounded wait.
	ErrLockTimeout = errors.New("lock wait timeout")
	// ErrConflict indicates the request conflicts with existing state.
	ErrConflict = errors.New("conflict")
)

// ValidationError describes a single rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsTransient reports whether the caller may retry the same request later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
