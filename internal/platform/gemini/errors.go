package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrEmptyPrompt is returned when a blank prompt is submitted.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrNoCandidates is returned when the API answers without any candidate.
	ErrNoCandidates = errors.New("response contains no candidates")

	// ErrDownloadFailed is returned when a file-backed image cannot be retrieved.
	ErrDownloadFailed = errors.New("image download failed")
)
