package store

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by SessionStore implementations. Callers test for
// them with errors.Is.
var (
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate reports a unique constraint violation.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity reports a row the database refused, such as a session
	// status outside the allowed set.
	ErrInvalidEntity = errors.New("invalid entity")

	ErrTransactionFailed = errors.New("transaction failed")

	// ErrSessionNotFound indicates that no archived session has the requested ID.
	ErrSessionNotFound = fmt.Errorf("%w: session", ErrNotFound)
)

// IsNotFoundError reports whether err wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError adds the entity and operation to an archive failure.
type StoreError struct {
	Entity    string
	Operation string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Operation, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError returns a StoreError wrapping err, which may be nil.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Message: message, Err: err}
}
