package api

import (
	"github.com/google/uuid"
	"github.com/phrazzld/imagebatch/internal/session"
)

// ProcessBatchRequest defines the payload for the batch submission endpoint.
type ProcessBatchRequest struct {
	Prompts []string `json:"prompts"   validate:"required,min=1,dive,required"`
	// BatchSize is optional; when absent the server default applies.
	BatchSize *int `json:"batchSize" validate:"omitempty,min=1"`
}

// ProcessBatchResponse is returned when a batch was accepted.
type ProcessBatchResponse struct {
	SessionID uuid.UUID `json:"sessionId"`
	Message   string    `json:"message"`
}

// StatusResponse is the session snapshot as served to clients.
type StatusResponse = session.Snapshot

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
