package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imagebatch/internal/events"
	"github.com/phrazzld/imagebatch/internal/imagestore"
	"github.com/phrazzld/imagebatch/internal/redact"
	"github.com/phrazzld/imagebatch/internal/task"
)

// Archiver persists finished sessions before the registry forgets them.
type Archiver interface {
	Save(ctx context.Context, snapshot Snapshot) error
}

// entry pairs a session with the mutex that guards it, so writers of
// different sessions never contend.
type entry struct {
	mu sync.Mutex
	s  *session
}

// Registry is the in-memory store of live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry

	publisher events.Publisher
	archiver  Archiver
	images    imagestore.Store
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithPublisher sends every session mutation to p.
func WithPublisher(p events.Publisher) Option {
	return func(r *Registry) { r.publisher = p }
}

// WithArchiver saves sessions before they are evicted.
func WithArchiver(a Archiver) Option {
	return func(r *Registry) { r.archiver = a }
}

// WithImageStore lets eviction release the images of a session when the
// store does not outlive the process.
func WithImageStore(s imagestore.Store) Option {
	return func(r *Registry) { r.images = s }
}

// WithTTL sets how long finished sessions are retained. Zero keeps them
// forever.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a new Registry
func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		sessions:  make(map[uuid.UUID]*entry),
		publisher: events.Nop{},
		now:       time.Now,
		logger:    logger.With("component", "session_registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new session in the starting status.
func (r *Registry) Create(prompts []string, batchSize int) (Snapshot, error) {
	if len(prompts) == 0 {
		return Snapshot{}, ErrEmptyPrompts
	}

	now := r.now().UTC()
	s := &session{
		id:        uuid.New(),
		status:    StatusStarting,
		prompts:   append([]string(nil), prompts...),
		batchSize: batchSize,
		progress:  make(map[int]Progress, len(prompts)),
		seen:      make(map[int]struct{}, len(prompts)),
		createdAt: now,
		updatedAt: now,
	}

	r.mu.Lock()
	r.sessions[s.id] = &entry{s: s}
	r.mu.Unlock()

	r.logger.Info("session created",
		"session_id", s.id,
		"prompt_count", len(prompts),
		"batch_size", batchSize)

	r.publisher.Publish(events.ProgressEvent{
		SessionID: s.id,
		Kind:      events.KindStatus,
		Status:    string(StatusStarting),
		At:        now,
	})

	return s.snapshot(), nil
}

// Get returns a snapshot of the session.
func (r *Registry) Get(id uuid.UUID) (Snapshot, error) {
	e, ok := r.lookup(id)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.snapshot(), nil
}

// Len returns the number of sessions currently held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// MarkProcessing moves a starting session to processing.
func (r *Registry) MarkProcessing(id uuid.UUID) error {
	return r.mutate(id, func(s *session, now time.Time) (*events.ProgressEvent, error) {
		if err := transition(s, StatusProcessing, now); err != nil {
			return nil, err
		}
		return &events.ProgressEvent{Kind: events.KindStatus, Status: string(s.status)}, nil
	})
}

// SetBatch records the batch that is about to run.
func (r *Registry) SetBatch(id uuid.UUID, current, total int) error {
	return r.mutate(id, func(s *session, now time.Time) (*events.ProgressEvent, error) {
		s.currentBatch = current
		s.totalBatches = total
		return &events.ProgressEvent{
			Kind:         events.KindBatch,
			CurrentBatch: current,
			TotalBatches: total,
		}, nil
	})
}

// UpdateProgress records the latest task state of one prompt.
func (r *Registry) UpdateProgress(id uuid.UUID, promptIndex int, state task.State, retryCount int) error {
	return r.mutate(id, func(s *session, now time.Time) (*events.ProgressEvent, error) {
		if promptIndex < 0 || promptIndex >= len(s.prompts) {
			return nil, fmt.Errorf("%w: %d", ErrPromptIndexOutOfRange, promptIndex)
		}
		s.progress[promptIndex] = Progress{Status: state, RetryCount: retryCount}
		idx := promptIndex
		return &events.ProgressEvent{
			Kind:        events.KindProgress,
			PromptIndex: &idx,
			TaskState:   string(state),
			RetryCount:  retryCount,
		}, nil
	})
}

// AppendResults adds task results in the given order. A result for a prompt
// that already has one is dropped. If any index is out of range nothing is
// appended.
func (r *Registry) AppendResults(id uuid.UUID, results []task.Result) error {
	e, ok := r.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.s
	for _, res := range results {
		if res.PromptIndex < 0 || res.PromptIndex >= len(s.prompts) {
			return fmt.Errorf("%w: %d", ErrPromptIndexOutOfRange, res.PromptIndex)
		}
	}

	now := r.now().UTC()
	for _, res := range results {
		if _, dup := s.seen[res.PromptIndex]; dup {
			r.logger.Warn("ignoring duplicate task result",
				"session_id", id,
				"prompt_index", res.PromptIndex)
			continue
		}
		s.seen[res.PromptIndex] = struct{}{}
		if res.Image != nil {
			ref := *res.Image
			res.Image = &ref
		}
		s.results = append(s.results, res)
		s.updatedAt = now

		idx, success := res.PromptIndex, res.Success
		r.publisher.Publish(events.ProgressEvent{
			SessionID:   id,
			Kind:        events.KindResult,
			PromptIndex: &idx,
			Success:     &success,
			RetryCount:  s.progress[idx].RetryCount,
			At:          now,
		})
	}
	return nil
}

// Complete marks the session finished. The successful results at this point
// form the session's image set.
func (r *Registry) Complete(id uuid.UUID) error {
	return r.mutate(id, func(s *session, now time.Time) (*events.ProgressEvent, error) {
		if err := transition(s, StatusComplete, now); err != nil {
			return nil, err
		}
		ok, failed := s.snapshot().Counts()
		r.logger.Info("session complete",
			"session_id", id,
			"succeeded", ok,
			"failed", failed)
		return &events.ProgressEvent{Kind: events.KindStatus, Status: string(s.status)}, nil
	})
}

// Fail marks the session as failed with a message. Secrets in the message are
// redacted before it is stored.
func (r *Registry) Fail(id uuid.UUID, message string) error {
	return r.mutate(id, func(s *session, now time.Time) (*events.ProgressEvent, error) {
		if err := transition(s, StatusError, now); err != nil {
			return nil, err
		}
		s.err = redact.String(message)
		r.logger.Error("session failed", "session_id", id, "error", s.err)
		return &events.ProgressEvent{
			Kind:   events.KindStatus,
			Status: string(s.status),
			Error:  s.err,
		}, nil
	})
}

// Sweep evicts finished sessions whose retention has lapsed at now and
// returns how many were removed. Each session is archived first when an
// Archiver is configured; a session that fails to archive is kept for the
// next sweep.
func (r *Registry) Sweep(ctx context.Context, now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}

	var expired []uuid.UUID
	r.mu.RLock()
	for id, e := range r.sessions {
		e.mu.Lock()
		if e.s.status.Terminal() && e.s.finishedAt != nil && !now.Before(e.s.finishedAt.Add(r.ttl)) {
			expired = append(expired, id)
		}
		e.mu.Unlock()
	}
	r.mu.RUnlock()

	evicted := 0
	for _, id := range expired {
		snap, err := r.Get(id)
		if err != nil {
			continue
		}

		if r.archiver != nil {
			if err := r.archiver.Save(ctx, snap); err != nil {
				r.logger.Error("failed to archive session, keeping it",
					"session_id", id,
					"error", redact.Error(err))
				continue
			}
		}

		if r.images != nil && !r.images.Durable() {
			if err := r.images.DeletePrefix(ctx, imagestore.SessionPrefix(id)); err != nil {
				r.logger.Warn("failed to release session images",
					"session_id", id,
					"error", redact.Error(err))
			}
		}

		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		evicted++

		r.logger.Debug("session evicted", "session_id", id, "status", snap.Status)
	}
	return evicted
}

func (r *Registry) lookup(id uuid.UUID) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

// mutate applies fn under the session's lock and publishes the event it
// returns. Publishing under the lock keeps each session's events in
// mutation order.
func (r *Registry) mutate(id uuid.UUID, fn func(s *session, now time.Time) (*events.ProgressEvent, error)) error {
	e, ok := r.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := r.now().UTC()
	ev, err := fn(e.s, now)
	if err != nil {
		return err
	}
	e.s.updatedAt = now

	if ev != nil {
		ev.SessionID = id
		ev.At = now
		r.publisher.Publish(*ev)
	}
	return nil
}

func transition(s *session, to Status, now time.Time) error {
	if !canTransition(s.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.status, to)
	}
	s.status = to
	if to.Terminal() {
		at := now
		s.finishedAt = &at
	}
	return nil
}
