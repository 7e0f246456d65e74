package shared

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phrazzld/imagebatch/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	generated := GetTraceID(WithTraceID(ctx, ""))
	assert.Len(t, generated, 32)
	_, err := hex.DecodeString(generated)
	assert.NoError(t, err)

	assert.Equal(t, "abc", GetTraceID(WithTraceID(ctx, "abc")))

	wrongType := context.WithValue(ctx, TraceIDKey, 123)
	assert.Empty(t, GetTraceID(wrongType))
}

func TestNewTraceID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := NewTraceID()
		require.False(t, seen[id], "duplicate trace ID %s", id)
		seen[id] = true
	}
}

type sampleRequest struct {
	Name  string `json:"name"  validate:"required"`
	Count int    `json:"count" validate:"min=1"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"x","count":2}`, false},
		{"malformed", `{"name":`, true},
		{"trailing data", `{"name":"x"} {"name":"y"}`, true},
		{"empty", ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var got sampleRequest
			err := DecodeJSON(httptest.NewRecorder(), r, &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, sampleRequest{Name: "x", Count: 2}, got)
		})
	}
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	body := `{"name":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var got sampleRequest
	assert.Error(t, DecodeJSON(httptest.NewRecorder(), r, &got))
}

type selfValidating struct{ ok bool }

func (s selfValidating) Validate() error {
	if !s.ok {
		return errors.New("not ok")
	}
	return nil
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(sampleRequest{Name: "x", Count: 1}))
	assert.Error(t, ValidateRequest(sampleRequest{Count: 1}))
	assert.Error(t, ValidateRequest(sampleRequest{Name: "x"}))

	assert.NoError(t, ValidateRequest(selfValidating{ok: true}))
	assert.EqualError(t, ValidateRequest(selfValidating{}), "not ok")
}

func TestRespondWithJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	RespondWithJSON(w, r, http.StatusAccepted, map[string]any{"sessionId": "s1"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"sessionId":"s1"}`, w.Body.String())
}

func TestRespondWithErrorAndLog(t *testing.T) {
	log, logs := logger.NewCapture()
	r := httptest.NewRequest(http.MethodGet, "/api/status/x", nil)
	r = r.WithContext(logger.WithContext(WithTraceID(r.Context(), "trace-1"), log))
	w := httptest.NewRecorder()

	RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Internal server error",
		errors.New("dial tcp: password=hunter2"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ErrorResponse{Error: "Internal server error", TraceID: "trace-1"}, body)
	assert.NotContains(t, w.Body.String(), "hunter2")

	entries, err := logs.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR", entries[0]["level"])
	assert.Equal(t, "trace-1", entries[0]["trace_id"])
	assert.Equal(t, "dial tcp: password=[REDACTED]", entries[0]["error"])
}

func TestRespondWithError_NoTrace(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	RespondWithError(w, r, http.StatusNotFound, "Session not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Session not found"}`, w.Body.String())
}
