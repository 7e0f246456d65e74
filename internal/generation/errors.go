package generation

import "errors"

// Common errors returned by generation backends
var (
	// ErrStepFailed is returned when a workspace step fails for any general reason
	ErrStepFailed = errors.New("generation step failed")

	// ErrNoImage is returned when a finished generation carries no image asset
	ErrNoImage = errors.New("no image in generation result")

	// ErrContentBlocked is returned when the backend blocks the prompt due to safety filters
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrInvalidConfig is returned when the backend configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrEngineClosed is returned when a workspace is requested from a closed engine
	ErrEngineClosed = errors.New("generation engine is closed")
)
