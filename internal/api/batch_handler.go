package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/imagebatch/internal/api/shared"
	"github.com/phrazzld/imagebatch/internal/platform/logger"
	"github.com/phrazzld/imagebatch/internal/service"
)

// BatchHandler handles batch submission, status and download requests.
type BatchHandler struct {
	batchService service.BatchService
	logger       *slog.Logger
	now          func() time.Time
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(batchService service.BatchService, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{
		batchService: batchService,
		logger:       logger.With("component", "batch_handler"),
		now:          time.Now,
	}
}

// ProcessBatch handles POST /api/process-batch requests
func (h *BatchHandler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	var req ProcessBatchRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	batchSize := 0
	if req.BatchSize != nil {
		batchSize = *req.BatchSize
	}

	snap, err := h.batchService.Submit(r.Context(), req.Prompts, batchSize)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, ProcessBatchResponse{
		SessionID: snap.ID,
		Message:   "Batch processing started",
	})
}

// GetStatus handles GET /api/status/{sessionId} requests
func (h *BatchHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	snap, err := h.batchService.Status(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse(snap))
}

// Download handles GET /api/download/{sessionId} requests. Unknown sessions
// and sessions without images are both reported as "No images found".
func (h *BatchHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		HandleAPIError(w, r, service.ErrNoImages, "")
		return
	}

	zw := &attachmentWriter{w: w, filename: fmt.Sprintf("ai-images-%s.zip", id)}
	err = h.batchService.Export(r.Context(), id, zw)
	switch {
	case err == nil:
		return
	case zw.started:
		// Headers are gone; all we can do is log.
		logger.FromContext(r.Context()).Error("download interrupted",
			"session_id", id, "error", err)
	case errors.Is(err, service.ErrSessionNotFound):
		HandleAPIError(w, r, service.ErrNoImages, "")
	default:
		HandleAPIError(w, r, err, "")
	}
}

// Health handles GET /api/health requests
func (h *BatchHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// attachmentWriter defers the zip response headers until the first byte, so
// a failed export can still answer with a JSON error.
type attachmentWriter struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (a *attachmentWriter) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		h := a.w.Header()
		h.Set("Content-Type", "application/zip")
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.filename))
		a.w.WriteHeader(http.StatusOK)
	}
	return a.w.Write(p)
}
