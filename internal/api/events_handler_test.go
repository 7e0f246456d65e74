package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/phrazzld/imagebatch/internal/events"
	"github.com/phrazzld/imagebatch/internal/platform/logger"
	"github.com/phrazzld/imagebatch/internal/service"
	"github.com/phrazzld/imagebatch/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialEvents(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + id + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func processingService(status *atomic.Value) *MockBatchService {
	return &MockBatchService{
		StatusFn: func(ctx context.Context, id uuid.UUID) (session.Snapshot, error) {
			if id != testSession {
				return session.Snapshot{}, service.ErrSessionNotFound
			}
			return session.Snapshot{ID: id, Status: status.Load().(session.Status), Prompts: []string{"a"}}, nil
		},
	}
}

func TestEventsHandler_StreamsUntilTerminal(t *testing.T) {
	var status atomic.Value
	status.Store(session.StatusProcessing)
	broker := events.NewBroker(logger.Discard())
	srv := httptest.NewServer(newTestRouter(processingService(&status), broker))
	defer srv.Close()

	conn := dialEvents(t, srv, testSessionID)

	var snap session.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, testSession, snap.ID)
	assert.Equal(t, session.StatusProcessing, snap.Status)

	idx := 0
	broker.Publish(events.ProgressEvent{SessionID: testSession, Kind: events.KindProgress, PromptIndex: &idx, TaskState: "preparing"})
	broker.Publish(events.ProgressEvent{SessionID: uuid.New(), Kind: events.KindBatch, CurrentBatch: 9})
	broker.Publish(events.ProgressEvent{SessionID: testSession, Kind: events.KindStatus, Status: "complete"})

	var ev events.ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.KindProgress, ev.Kind)
	require.NotNil(t, ev.PromptIndex)
	assert.Equal(t, 0, *ev.PromptIndex)
	assert.Equal(t, "preparing", ev.TaskState)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.True(t, ev.Terminal())

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)

	assert.Eventually(t, func() bool { return broker.Subscribers(testSession) == 0 }, time.Second, 10*time.Millisecond)
}

func TestEventsHandler_FinishedSessionClosesAfterSnapshot(t *testing.T) {
	var status atomic.Value
	status.Store(session.StatusComplete)
	srv := httptest.NewServer(newTestRouter(processingService(&status), events.NewBroker(logger.Discard())))
	defer srv.Close()

	conn := dialEvents(t, srv, testSessionID)

	var snap session.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, session.StatusComplete, snap.Status)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}

func TestEventsHandler_RecoversMissedTerminalEvent(t *testing.T) {
	var status atomic.Value
	status.Store(session.StatusProcessing)
	svc := processingService(&status)
	broker := events.NewBroker(logger.Discard())

	eh := NewEventsHandler(svc, broker, logger.Discard())
	eh.pingPeriod = 20 * time.Millisecond
	r := chi.NewRouter()
	r.Get("/api/sessions/{sessionId}/events", eh.Stream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialEvents(t, srv, testSessionID)
	var snap session.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))

	// The session finishes without the stream ever seeing the status event.
	status.Store(session.StatusError)

	var ev events.ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.KindStatus, ev.Kind)
	assert.Equal(t, "error", ev.Status)
}

func TestEventsHandler_UnknownSession(t *testing.T) {
	var status atomic.Value
	status.Store(session.StatusProcessing)
	broker := events.NewBroker(logger.Discard())
	router := newTestRouter(processingService(&status), broker)

	w := do(t, router, http.MethodGet, "/api/sessions/6f1c1d9e-0000-4d7c-9a36-2b8e0c4f5a11/events", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Session not found", errorBody(t, w))
	assert.Equal(t, 0, broker.Subscribers(uuid.MustParse("6f1c1d9e-0000-4d7c-9a36-2b8e0c4f5a11")))
}
