package shared

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is the type of request-scoped values set by this package.
type ContextKey string

// TraceIDKey is the context key for the request trace ID.
const TraceIDKey ContextKey = "traceID"

// WithTraceID stores traceID in ctx. An empty traceID gets a fresh random one.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// NewTraceID returns a random 32 character hex identifier.
func NewTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
