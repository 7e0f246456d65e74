package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imagebatch/internal/config"
	"github.com/phrazzld/imagebatch/internal/generation"
	"github.com/phrazzld/imagebatch/internal/task"
	"golang.org/x/sync/errgroup"
)

// ErrNilEngine is returned when a backend launches without error but yields
// no engine.
var ErrNilEngine = errors.New("backend returned no engine")

// TaskRunner executes one prompt to a terminal result.
type TaskRunner interface {
	Run(ctx context.Context, engine generation.Engine, spec task.Spec, progress task.ProgressFunc) task.Result
}

// Tracker receives the lifecycle of a session. *session.Registry satisfies it.
type Tracker interface {
	MarkProcessing(id uuid.UUID) error
	SetBatch(id uuid.UUID, current, total int) error
	UpdateProgress(id uuid.UUID, promptIndex int, state task.State, retryCount int) error
	AppendResults(id uuid.UUID, results []task.Result) error
	Complete(id uuid.UUID) error
	Fail(id uuid.UUID, message string) error
}

// Config controls pacing of a Scheduler.
type Config struct {
	// Pause separates consecutive batches. It is skipped after the last one.
	Pause time.Duration

	// MaxParallel caps concurrent tasks within a batch. Zero means one
	// goroutine per prompt.
	MaxParallel int
}

// ConfigFrom converts the loaded batch configuration.
func ConfigFrom(cfg config.BatchConfig) Config {
	return Config{Pause: cfg.Pause, MaxParallel: cfg.MaxParallel}
}

// Scheduler runs a session's prompts batch by batch against one shared
// engine.
type Scheduler struct {
	backend generation.Backend
	runner  TaskRunner
	tracker Tracker
	config  Config
	logger  *slog.Logger
}

// NewScheduler creates a new Scheduler
func NewScheduler(
	backend generation.Backend,
	runner TaskRunner,
	tracker Tracker,
	config Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		backend: backend,
		runner:  runner,
		tracker: tracker,
		config:  config,
		logger:  logger.With("component", "batch_scheduler"),
	}
}

// Run processes every prompt of the session and settles its status: complete
// when the batches ran (whatever the individual outcomes), error when the
// engine could not be launched or the run panicked. The engine is closed
// before the final status is recorded.
func (s *Scheduler) Run(ctx context.Context, sessionID uuid.UUID, prompts []string, batchSize int) error {
	log := s.logger.With("session_id", sessionID)

	if err := s.process(ctx, log, sessionID, prompts, batchSize); err != nil {
		log.Error("batch run failed", "error", err)
		if failErr := s.tracker.Fail(sessionID, err.Error()); failErr != nil {
			log.Error("failed to record session failure", "error", failErr)
		}
		return err
	}

	if err := s.tracker.Complete(sessionID); err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	return nil
}

func (s *Scheduler) process(
	ctx context.Context,
	log *slog.Logger,
	sessionID uuid.UUID,
	prompts []string,
	batchSize int,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch run panicked: %v", r)
		}
	}()

	spans, err := Plan(len(prompts), batchSize)
	if err != nil {
		return err
	}

	engine, err := s.backend.Launch(ctx)
	if err != nil {
		return fmt.Errorf("failed to launch generation engine: %w", err)
	}
	if engine == nil {
		return ErrNilEngine
	}
	defer func() {
		if closeErr := engine.Close(); closeErr != nil {
			log.Warn("failed to close generation engine", "error", closeErr)
		}
	}()

	if err := s.tracker.MarkProcessing(sessionID); err != nil {
		return err
	}

	log.Info("starting batch run",
		"prompt_count", len(prompts),
		"batch_size", batchSize,
		"total_batches", len(spans))

	for i, span := range spans {
		if err := s.tracker.SetBatch(sessionID, span.Number, len(spans)); err != nil {
			return err
		}

		start := time.Now()
		results, err := s.runBatch(ctx, engine, sessionID, prompts, span)
		if err != nil {
			return err
		}
		if err := s.tracker.AppendResults(sessionID, results); err != nil {
			return err
		}

		succeeded := 0
		for _, r := range results {
			if r.Success {
				succeeded++
			}
		}
		log.Info("batch finished",
			"batch", span.Number,
			"total_batches", len(spans),
			"succeeded", succeeded,
			"failed", len(results)-succeeded,
			"duration", time.Since(start))

		if i < len(spans)-1 {
			s.pause(ctx)
		}
	}
	return nil
}

// runBatch fans the span out to one task per prompt and waits for all of
// them. Results are returned in prompt order.
func (s *Scheduler) runBatch(
	ctx context.Context,
	engine generation.Engine,
	sessionID uuid.UUID,
	prompts []string,
	span Span,
) ([]task.Result, error) {
	results := make([]task.Result, span.Len())
	progress := func(promptIndex int, state task.State, retryCount int) {
		if err := s.tracker.UpdateProgress(sessionID, promptIndex, state, retryCount); err != nil {
			s.logger.Warn("failed to record task progress",
				"session_id", sessionID,
				"prompt_index", promptIndex,
				"error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.config.MaxParallel > 0 {
		g.SetLimit(s.config.MaxParallel)
	}
	for idx := span.Start; idx < span.End; idx++ {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task %d panicked: %v", idx, r)
				}
			}()
			spec := task.Spec{SessionID: sessionID, PromptIndex: idx, Prompt: prompts[idx]}
			results[idx-span.Start] = s.runner.Run(gctx, engine, spec, progress)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// pause waits between batches. Cancellation cuts it short; the remaining
// batches then settle immediately as dismissed.
func (s *Scheduler) pause(ctx context.Context) {
	if s.config.Pause <= 0 {
		return
	}
	timer := time.NewTimer(s.config.Pause)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
