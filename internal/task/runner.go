package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/imagebatch/internal/config"
	"github.com/phrazzld/imagebatch/internal/generation"
	"github.com/phrazzld/imagebatch/internal/imagestore"
	"github.com/phrazzld/imagebatch/internal/redact"
	"github.com/sethvargo/go-retry"
)

// RunnerConfig holds the retry policy and step deadlines of a Runner
type RunnerConfig struct {
	// MaxAttempts bounds how many times a prompt is tried
	MaxAttempts int

	// Cooldown is the fixed pause between a failed attempt and the next one
	Cooldown time.Duration

	// Per-step deadlines. Exceeding one fails the attempt, not the session.
	PrepareTimeout  time.Duration
	SubmitTimeout   time.Duration
	AwaitTimeout    time.Duration
	DownloadTimeout time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxAttempts:     5,
		Cooldown:        3 * time.Second,
		PrepareTimeout:  60 * time.Second,
		SubmitTimeout:   60 * time.Second,
		AwaitTimeout:    5 * time.Minute,
		DownloadTimeout: 60 * time.Second,
	}
}

// RunnerConfigFrom converts the loaded task configuration.
func RunnerConfigFrom(cfg config.TaskConfig) RunnerConfig {
	return RunnerConfig{
		MaxAttempts:     cfg.MaxAttempts,
		Cooldown:        cfg.Cooldown,
		PrepareTimeout:  cfg.PrepareTimeout,
		SubmitTimeout:   cfg.SubmitTimeout,
		AwaitTimeout:    cfg.AwaitTimeout,
		DownloadTimeout: cfg.DownloadTimeout,
	}
}

// Runner drives single prompts through the attempt state machine and applies
// the retry policy. A Runner is stateless between calls and safe for
// concurrent use.
type Runner struct {
	config RunnerConfig
	images imagestore.Store
	logger *slog.Logger
}

// NewRunner creates a new Runner
func NewRunner(config RunnerConfig, images imagestore.Store, logger *slog.Logger) (*Runner, error) {
	if images == nil {
		return nil, ErrNilImageStore
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	if config.MaxAttempts <= 0 {
		logger.Warn("invalid max attempts specified, using default",
			"specified", config.MaxAttempts,
			"default", 5)
		config.MaxAttempts = 5
	}

	return &Runner{
		config: config,
		images: images,
		logger: logger.With("component", "task_runner"),
	}, nil
}

// MaxAttempts returns the configured attempt budget.
func (r *Runner) MaxAttempts() int {
	return r.config.MaxAttempts
}

// Run attempts spec until an image is stored or the attempt budget is spent.
// Step failures never escape: an exhausted task is reported as a failed
// Result, and progress is told about every transition. Each attempt opens a
// fresh workspace from engine and closes it before returning.
func (r *Runner) Run(ctx context.Context, engine generation.Engine, spec Spec, progress ProgressFunc) Result {
	logger := r.logger.With(
		"session_id", spec.SessionID,
		"prompt_index", spec.PromptIndex,
	)

	failures := 0
	report := func(state State) {
		if progress != nil {
			progress(spec.PromptIndex, state, failures)
		}
	}

	var (
		ref     imagestore.Ref
		lastErr error
	)

	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		got, err := r.attempt(ctx, engine, spec, report)
		if err == nil {
			ref = got
			return nil
		}

		failures++
		lastErr = err
		logger.Warn("attempt failed",
			"attempt", failures,
			"max_attempts", r.config.MaxAttempts,
			"error", redact.Error(err))

		if ctx.Err() != nil {
			return err
		}
		if failures < r.config.MaxAttempts {
			report(StateRetrying)
			return retry.RetryableError(err)
		}
		return err
	})

	result := Result{
		PromptIndex: spec.PromptIndex,
		Prompt:      spec.Prompt,
	}

	if err == nil {
		result.Success = true
		result.Image = &ref
		result.Attempts = failures + 1
		report(StateSucceeded)
		logger.Info("task succeeded", "attempts", result.Attempts, "image_key", ref.Key)
		return result
	}

	if lastErr == nil {
		// Cancelled before the first attempt began.
		lastErr = err
	}
	result.Attempts = failures
	result.Error = redact.Error(lastErr)
	report(StateDismissed)
	logger.Warn("task dismissed", "attempts", failures, "error", result.Error)
	return result
}

func (r *Runner) backoff() retry.Backoff {
	var b retry.Backoff
	if r.config.Cooldown > 0 {
		b = retry.NewConstant(r.config.Cooldown)
	} else {
		b = retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	return retry.WithMaxRetries(uint64(r.config.MaxAttempts-1), b)
}

// attempt makes one full pass through the states with a fresh workspace.
func (r *Runner) attempt(
	ctx context.Context,
	engine generation.Engine,
	spec Spec,
	report func(State),
) (imagestore.Ref, error) {
	if engine == nil {
		return imagestore.Ref{}, ErrNilEngine
	}

	report(StatePending)

	ws, err := runStep(ctx, r.config.PrepareTimeout, "open workspace", engine.NewWorkspace,
		func(late generation.Workspace) { _ = late.Close() })
	if err != nil {
		return imagestore.Ref{}, err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			r.logger.Debug("failed to close workspace",
				"session_id", spec.SessionID,
				"prompt_index", spec.PromptIndex,
				"error", cerr)
		}
	}()

	report(StatePreparing)
	if _, err := runStep(ctx, r.config.PrepareTimeout, "prepare", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, ws.Prepare(ctx)
	}, nil); err != nil {
		return imagestore.Ref{}, err
	}

	report(StateSubmittingPrompt)
	job, err := runStep(ctx, r.config.SubmitTimeout, "submit prompt", func(ctx context.Context) (generation.Job, error) {
		return ws.Submit(ctx, spec.Prompt)
	}, nil)
	if err != nil {
		return imagestore.Ref{}, err
	}

	report(StateAwaitingResult)
	asset, err := runStep(ctx, r.config.AwaitTimeout, "await result", func(ctx context.Context) (generation.Asset, error) {
		return ws.Await(ctx, job)
	}, nil)
	if err != nil {
		return imagestore.Ref{}, err
	}
	if len(asset.Inline) == 0 && asset.URI == "" {
		return imagestore.Ref{}, fmt.Errorf("await result: %w", generation.ErrNoImage)
	}

	report(StateDownloadingResult)
	return runStep(ctx, r.config.DownloadTimeout, "download result", func(ctx context.Context) (imagestore.Ref, error) {
		img, err := ws.Fetch(ctx, asset)
		if err != nil {
			return imagestore.Ref{}, err
		}
		if len(img.Data) == 0 {
			return imagestore.Ref{}, generation.ErrNoImage
		}
		if img.MIMEType == "" {
			img.MIMEType = "image/png"
		}
		return r.images.Put(ctx, imagestore.Key(spec.SessionID, spec.PromptIndex), img.Data, img.MIMEType)
	}, nil)
}

// runStep runs fn under its own deadline. The deadline holds even if fn
// ignores its context, and a panic inside fn becomes an error. If the deadline
// wins and fn later succeeds, its value is handed to discard.
func runStep[T any](
	ctx context.Context,
	timeout time.Duration,
	name string,
	fn func(context.Context) (T, error),
	discard func(T),
) (T, error) {
	var zero T

	stepCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("%w: panic: %v", generation.ErrStepFailed, p)}
			}
		}()
		v, err := fn(stepCtx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return zero, fmt.Errorf("%s: %w", name, out.err)
		}
		return out.value, nil
	case <-stepCtx.Done():
		if discard != nil {
			go func() {
				if out := <-done; out.err == nil {
					discard(out.value)
				}
			}()
		}
		err := stepCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("%s: timed out after %s: %w", name, timeout, err)
		}
		return zero, fmt.Errorf("%s: %w", name, err)
	}
}
