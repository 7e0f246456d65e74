package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/imagebatch/internal/service"
)

// sessionIDParam extracts the sessionId path parameter. Session IDs are
// UUIDs, so anything else cannot name a session and is reported as
// service.ErrSessionNotFound.
func sessionIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		return uuid.Nil, service.ErrSessionNotFound
	}
	return id, nil
}
