package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber channel capacity used when Subscribe is
// given a non-positive size.
const DefaultBuffer = 256

type subscriber struct {
	ch chan ProgressEvent
}

// Broker is an in-memory, per-session fan-out of progress events. Publishers
// never block: a subscriber whose buffer is full misses the event.
type Broker struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]map[*subscriber]struct{}
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewBroker creates a new instance of Broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		subs:   make(map[uuid.UUID]map[*subscriber]struct{}),
		logger: logger.With("component", "event_broker"),
	}
}

// Subscribe registers interest in a session's events. The returned cancel
// function unregisters and closes the channel; it is safe to call twice.
func (b *Broker) Subscribe(sessionID uuid.UUID, buffer int) (<-chan ProgressEvent, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &subscriber{ch: make(chan ProgressEvent, buffer)}

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*subscriber]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}
	count := len(b.subs[sessionID])
	b.mu.Unlock()

	b.logger.Debug("subscriber registered", "session_id", sessionID, "subscriber_count", count)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[sessionID], sub)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			close(sub.ch)
			b.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Publish implements Publisher
func (b *Broker) Publish(event ProgressEvent) {
	// The read lock is held while sending so cancel cannot close a channel
	// mid-send; sends never block.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[event.SessionID] {
		select {
		case sub.ch <- event:
		default:
			n := b.dropped.Add(1)
			b.logger.Debug("dropped event for slow subscriber",
				"session_id", event.SessionID,
				"kind", event.Kind,
				"dropped_total", n)
		}
	}
}

// Dropped returns how many events were discarded because of full buffers.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

// Subscribers returns the number of subscribers of a session.
func (b *Broker) Subscribers(sessionID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
