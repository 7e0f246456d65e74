// Package generationtest provides scriptable fakes of the generation port for
// tests of the task runner, the batch scheduler and the HTTP layer.
package generationtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/phrazzld/imagebatch/internal/generation"
)

// PNG is a tiny payload used as fake image data.
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

// Backend is a fake generation.Backend. LaunchFn overrides the default, which
// returns Engine.
type Backend struct {
	LaunchFn func(ctx context.Context) (generation.Engine, error)
	Engine   *Engine

	launches atomic.Int32
}

// Launch implements generation.Backend
func (b *Backend) Launch(ctx context.Context) (generation.Engine, error) {
	b.launches.Add(1)
	if b.LaunchFn != nil {
		return b.LaunchFn(ctx)
	}
	return b.Engine, nil
}

// Launches reports how many times Launch was called.
func (b *Backend) Launches() int {
	return int(b.launches.Load())
}

// Engine is a fake generation.Engine whose workspaces are built by
// WorkspaceFn. With no WorkspaceFn every workspace succeeds.
type Engine struct {
	WorkspaceFn func(ctx context.Context) (generation.Workspace, error)

	mu         sync.Mutex
	opened     int
	closed     int
	closeCalls int
}

// NewWorkspace implements generation.Engine
func (e *Engine) NewWorkspace(ctx context.Context) (generation.Workspace, error) {
	e.mu.Lock()
	if e.closeCalls > 0 {
		e.mu.Unlock()
		return nil, generation.ErrEngineClosed
	}
	e.opened++
	e.mu.Unlock()

	var (
		ws  generation.Workspace
		err error
	)
	if e.WorkspaceFn != nil {
		ws, err = e.WorkspaceFn(ctx)
	} else {
		ws = &Workspace{}
	}
	if err != nil {
		return nil, err
	}
	return &trackedWorkspace{Workspace: ws, engine: e}, nil
}

// Close implements io.Closer
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeCalls++
	return nil
}

// Stats returns the number of workspaces opened and closed and how often the
// engine itself was closed.
func (e *Engine) Stats() (opened, closed, engineCloses int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened, e.closed, e.closeCalls
}

type trackedWorkspace struct {
	generation.Workspace
	engine *Engine
}

func (w *trackedWorkspace) Close() error {
	w.engine.mu.Lock()
	w.engine.closed++
	w.engine.mu.Unlock()
	return w.Workspace.Close()
}

// Workspace is a fake generation.Workspace. Nil function fields succeed with
// PNG as the image.
type Workspace struct {
	PrepareFn func(ctx context.Context) error
	SubmitFn  func(ctx context.Context, prompt string) (generation.Job, error)
	AwaitFn   func(ctx context.Context, job generation.Job) (generation.Asset, error)
	FetchFn   func(ctx context.Context, asset generation.Asset) (generation.Image, error)
}

// Prepare implements generation.Workspace
func (w *Workspace) Prepare(ctx context.Context) error {
	if w.PrepareFn != nil {
		return w.PrepareFn(ctx)
	}
	return nil
}

// Submit implements generation.Workspace
func (w *Workspace) Submit(ctx context.Context, prompt string) (generation.Job, error) {
	if w.SubmitFn != nil {
		return w.SubmitFn(ctx, prompt)
	}
	return generation.Job{ID: "job-" + prompt, Prompt: prompt}, nil
}

// Await implements generation.Workspace
func (w *Workspace) Await(ctx context.Context, job generation.Job) (generation.Asset, error) {
	if w.AwaitFn != nil {
		return w.AwaitFn(ctx, job)
	}
	return generation.Asset{Inline: PNG, MIMEType: "image/png"}, nil
}

// Fetch implements generation.Workspace
func (w *Workspace) Fetch(ctx context.Context, asset generation.Asset) (generation.Image, error) {
	if w.FetchFn != nil {
		return w.FetchFn(ctx, asset)
	}
	if asset.Inline == nil {
		return generation.Image{}, fmt.Errorf("%w: fake workspace cannot fetch %q", generation.ErrStepFailed, asset.URI)
	}
	return generation.Image{Data: asset.Inline, MIMEType: asset.MIMEType}, nil
}

// Close implements io.Closer
func (w *Workspace) Close() error {
	return nil
}

// TimeoutWorkspace returns a workspace whose Await blocks until its deadline,
// simulating a backend that never produces a result.
func TimeoutWorkspace() *Workspace {
	return &Workspace{
		AwaitFn: func(ctx context.Context, job generation.Job) (generation.Asset, error) {
			<-ctx.Done()
			return generation.Asset{}, ctx.Err()
		},
	}
}

// FailingPrompts builds an engine whose workspaces fail at Await for every
// prompt in fail and succeed otherwise.
func FailingPrompts(fail ...string) *Engine {
	set := make(map[string]bool, len(fail))
	for _, p := range fail {
		set[p] = true
	}
	return &Engine{
		WorkspaceFn: func(ctx context.Context) (generation.Workspace, error) {
			return &Workspace{
				AwaitFn: func(ctx context.Context, job generation.Job) (generation.Asset, error) {
					if set[job.Prompt] {
						return generation.Asset{}, errors.New("scripted failure")
					}
					return generation.Asset{Inline: PNG, MIMEType: "image/png"}, nil
				},
			}, nil
		},
	}
}
