package service

import (
	"errors"
	"fmt"
)

// Common service errors - sentinel errors used across service implementations.
// The API layer maps them to HTTP status codes.
var (
	// ErrInvalidRequest indicates the submission failed validation.
	// API layer should map this to HTTP 400 Bad Request.
	ErrInvalidRequest = errors.New("invalid batch request")

	// ErrSessionNotFound indicates no live or archived session has the ID.
	// API layer should map this to HTTP 404 Not Found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoImages indicates the session has nothing to download, either
	// because it has not completed or because every prompt failed.
	// API layer should map this to HTTP 404 Not Found.
	ErrNoImages = errors.New("no images found")

	// ErrShuttingDown is returned for submissions after Shutdown began.
	// API layer should map this to HTTP 503 Service Unavailable.
	ErrShuttingDown = errors.New("service is shutting down")
)

// BatchServiceError wraps errors from the batch service with context.
type BatchServiceError struct {
	// Operation is the operation that failed (e.g., "submit", "export")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface
func (e *BatchServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("batch service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("batch service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error
func (e *BatchServiceError) Unwrap() error {
	return e.Err
}

// NewBatchServiceError creates a new BatchServiceError
func NewBatchServiceError(operation, message string, err error) *BatchServiceError {
	return &BatchServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
