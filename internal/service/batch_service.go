package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/imagebatch/internal/config"
	"github.com/phrazzld/imagebatch/internal/export"
	"github.com/phrazzld/imagebatch/internal/imagestore"
	"github.com/phrazzld/imagebatch/internal/session"
	"github.com/phrazzld/imagebatch/internal/store"
)

// Scheduler runs a session to completion. *batch.Scheduler satisfies it.
type Scheduler interface {
	Run(ctx context.Context, sessionID uuid.UUID, prompts []string, batchSize int) error
}

// BatchService provides batch submission, status and download operations
type BatchService interface {
	// Submit validates the prompts, registers a session and starts processing
	// it in the background. A batchSize of zero selects the default.
	Submit(ctx context.Context, prompts []string, batchSize int) (session.Snapshot, error)

	// Status returns the current snapshot of a live or archived session.
	Status(ctx context.Context, sessionID uuid.UUID) (session.Snapshot, error)

	// Export writes the zip bundle of a completed session to w. Nothing is
	// written when it fails.
	Export(ctx context.Context, sessionID uuid.UUID, w io.Writer) error

	// Shutdown cancels running sessions and waits for them to settle or ctx
	// to end.
	Shutdown(ctx context.Context) error
}

// Limits bounds what a submission may ask for.
type Limits struct {
	DefaultBatchSize int
	MaxBatchSize     int
	MaxPrompts       int
}

// LimitsFrom converts the loaded batch configuration.
func LimitsFrom(cfg config.BatchConfig) Limits {
	return Limits{
		DefaultBatchSize: cfg.DefaultSize,
		MaxBatchSize:     cfg.MaxSize,
		MaxPrompts:       cfg.MaxPrompts,
	}
}

// batchServiceImpl implements the BatchService interface
type batchServiceImpl struct {
	registry  *session.Registry
	scheduler Scheduler
	archive   store.SessionStore
	images    imagestore.Store
	limits    Limits
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closing bool
}

// NewBatchService creates a new BatchService. archive may be nil, in which
// case sessions are forgotten once the registry evicts them.
func NewBatchService(
	registry *session.Registry,
	scheduler Scheduler,
	archive store.SessionStore,
	images imagestore.Store,
	limits Limits,
	logger *slog.Logger,
) BatchService {
	if limits.DefaultBatchSize <= 0 {
		limits.DefaultBatchSize = 30
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &batchServiceImpl{
		registry:  registry,
		scheduler: scheduler,
		archive:   archive,
		images:    images,
		limits:    limits,
		logger:    logger.With("component", "batch_service"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit implements BatchService
func (s *batchServiceImpl) Submit(ctx context.Context, prompts []string, batchSize int) (session.Snapshot, error) {
	if err := s.validate(prompts, batchSize); err != nil {
		return session.Snapshot{}, err
	}
	if batchSize == 0 {
		batchSize = s.limits.DefaultBatchSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return session.Snapshot{}, ErrShuttingDown
	}

	snap, err := s.registry.Create(prompts, batchSize)
	if err != nil {
		return session.Snapshot{}, NewBatchServiceError("submit", "failed to create session", err)
	}

	s.wg.Add(1)
	go s.run(snap.ID, snap.Prompts, batchSize)

	s.logger.InfoContext(ctx, "batch submitted",
		"session_id", snap.ID,
		"prompt_count", len(prompts),
		"batch_size", batchSize)
	return snap, nil
}

func (s *batchServiceImpl) validate(prompts []string, batchSize int) error {
	if len(prompts) == 0 {
		return invalidRequest("prompts must not be empty")
	}
	if s.limits.MaxPrompts > 0 && len(prompts) > s.limits.MaxPrompts {
		return invalidRequest("at most %d prompts are accepted, got %d", s.limits.MaxPrompts, len(prompts))
	}
	for i, p := range prompts {
		if strings.TrimSpace(p) == "" {
			return invalidRequest("prompt %d is blank", i)
		}
	}
	if batchSize < 0 {
		return invalidRequest("batch size must be at least 1")
	}
	if s.limits.MaxBatchSize > 0 && batchSize > s.limits.MaxBatchSize {
		return invalidRequest("batch size must be at most %d", s.limits.MaxBatchSize)
	}
	return nil
}

// run drives one session in the background under the service lifetime.
func (s *batchServiceImpl) run(id uuid.UUID, prompts []string, batchSize int) {
	defer s.wg.Done()

	if err := s.scheduler.Run(s.ctx, id, prompts, batchSize); err != nil {
		s.logger.Error("session run ended with error", "session_id", id, "error", err)
	}

	if s.archive == nil {
		return
	}
	snap, err := s.registry.Get(id)
	if err != nil {
		return
	}
	// The lifetime context may already be cancelled during shutdown.
	if err := s.archive.Save(context.WithoutCancel(s.ctx), snap); err != nil {
		s.logger.Warn("failed to archive finished session", "session_id", id, "error", err)
	}
}

// Status implements BatchService
func (s *batchServiceImpl) Status(ctx context.Context, sessionID uuid.UUID) (session.Snapshot, error) {
	snap, err := s.registry.Get(sessionID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, session.ErrSessionNotFound) {
		return session.Snapshot{}, err
	}

	if s.archive == nil {
		return session.Snapshot{}, ErrSessionNotFound
	}
	snap, err = s.archive.Load(ctx, sessionID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return session.Snapshot{}, ErrSessionNotFound
		}
		return session.Snapshot{}, NewBatchServiceError("status", "failed to load archived session", err)
	}
	return snap, nil
}

// Export implements BatchService
func (s *batchServiceImpl) Export(ctx context.Context, sessionID uuid.UUID, w io.Writer) error {
	snap, err := s.Status(ctx, sessionID)
	if err != nil {
		return err
	}

	err = export.Export(ctx, w, snap, s.images)
	switch {
	case err == nil:
		succeeded, _ := snap.Counts()
		s.logger.InfoContext(ctx, "session exported", "session_id", sessionID, "image_count", succeeded)
		return nil
	case errors.Is(err, export.ErrNoResults), errors.Is(err, imagestore.ErrImageNotFound):
		return ErrNoImages
	default:
		return NewBatchServiceError("export", "failed to build archive", err)
	}
}

// Shutdown implements BatchService
func (s *batchServiceImpl) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all sessions settled")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
