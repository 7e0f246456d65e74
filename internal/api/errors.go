package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/imagebatch/internal/api/shared"
	"github.com/phrazzld/imagebatch/internal/service"
	"github.com/phrazzld/imagebatch/internal/session"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, service.ErrNoImages):
		return http.StatusNotFound

	case errors.Is(err, service.ErrShuttingDown):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		// The service phrases its validation failures for clients.
		msg := strings.TrimPrefix(err.Error(), service.ErrInvalidRequest.Error()+": ")
		return "Invalid request: " + msg

	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionNotFound):
		return "Session not found"

	case errors.Is(err, service.ErrNoImages):
		return "No images found"

	case errors.Is(err, service.ErrShuttingDown):
		return "Server is shutting down"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator failures into a short message that
// names the offending field without echoing its value.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", fieldName(fe), getValidationTagMessage(fe.Tag()))
}

// fieldName renders a namespace such as "ProcessBatchRequest.Prompts[2]" as
// "prompts[2]".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	if ns == "" {
		return "field"
	}
	return strings.ToLower(ns[:1]) + ns[1:]
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too small"
	case "max":
		return "too large"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the error response for err. The status code and
// message come from the error's type; message overrides the latter when set.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), message, err)
}
