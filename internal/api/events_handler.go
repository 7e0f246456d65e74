package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/phrazzld/imagebatch/internal/events"
	"github.com/phrazzld/imagebatch/internal/platform/logger"
	"github.com/phrazzld/imagebatch/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Subscriber registers interest in one session's events. *events.Broker
// satisfies it.
type Subscriber interface {
	Subscribe(sessionID uuid.UUID, buffer int) (<-chan events.ProgressEvent, func())
}

// EventsHandler streams session progress over websockets.
type EventsHandler struct {
	batchService service.BatchService
	subscriber   Subscriber
	upgrader     websocket.Upgrader
	pingPeriod   time.Duration
	logger       *slog.Logger
}

// NewEventsHandler creates a new EventsHandler
func NewEventsHandler(batchService service.BatchService, subscriber Subscriber, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		batchService: batchService,
		subscriber:   subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Same policy as the CORS middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingPeriod: pingPeriod,
		logger:     logger.With("component", "events_handler"),
	}
}

// Stream handles GET /api/sessions/{sessionId}/events. The first message is
// the session snapshot, each following one a ProgressEvent. The connection is
// closed after the event that ends the session.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	// Subscribe before reading the snapshot so no mutation falls in between.
	ch, cancel := h.subscriber.Subscribe(id, events.DefaultBuffer)
	defer cancel()

	snap, err := h.batchService.Status(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		logger.FromContext(r.Context()).Debug("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	log := logger.FromContext(r.Context()).With("session_id", id)
	log.Debug("progress stream opened")

	if err := h.write(conn, snap); err != nil {
		log.Debug("failed to send snapshot", "error", err)
		return
	}
	if snap.Status.Terminal() {
		h.closeNormal(conn)
		return
	}

	gone := h.readPump(conn)
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				h.closeNormal(conn)
				return
			}
			if err := h.write(conn, ev); err != nil {
				log.Debug("failed to send event", "error", err)
				return
			}
			if ev.Terminal() {
				h.closeNormal(conn)
				log.Debug("progress stream finished")
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			// The terminal event may have been dropped for a slow reader.
			if done, ok := h.finishedStatus(r, id); ok {
				if err := h.write(conn, done); err == nil {
					h.closeNormal(conn)
				}
				return
			}

		case <-gone:
			log.Debug("client closed progress stream")
			return

		case <-r.Context().Done():
			return
		}
	}
}

// readPump drains client frames so control messages are processed. The
// returned channel closes when the client goes away.
func (h *EventsHandler) readPump(conn *websocket.Conn) <-chan struct{} {
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return gone
}

func (h *EventsHandler) finishedStatus(r *http.Request, id uuid.UUID) (events.ProgressEvent, bool) {
	snap, err := h.batchService.Status(r.Context(), id)
	if err != nil || !snap.Status.Terminal() {
		return events.ProgressEvent{}, false
	}
	return events.ProgressEvent{
		SessionID: id,
		Kind:      events.KindStatus,
		Status:    string(snap.Status),
		Error:     snap.Error,
		At:        snap.UpdatedAt,
	}, true
}

func (h *EventsHandler) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (h *EventsHandler) closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
