package generation

import (
	"context"
	"io"
)

// Backend launches the shared generation engine for one session. It is the
// boundary between the batch orchestrator and an external image service.
type Backend interface {
	// Launch starts an engine. A launch failure is fatal to the session that
	// requested it.
	Launch(ctx context.Context) (Engine, error)
}

// Engine is shared read-only by every task of a session. Its only job is to
// hand out isolated workspaces.
type Engine interface {
	// NewWorkspace opens an isolated sub-context for a single attempt. Two
	// workspaces never observe each other's state.
	NewWorkspace(ctx context.Context) (Workspace, error)

	io.Closer
}

// Workspace carries one attempt through its steps. Every method runs under a
// step-specific deadline set by the caller; exceeding it is an ordinary
// attempt failure.
type Workspace interface {
	// Prepare readies the workspace before a prompt is submitted.
	Prepare(ctx context.Context) error

	// Submit hands the prompt to the backend and returns a handle to the
	// pending generation.
	Submit(ctx context.Context, prompt string) (Job, error)

	// Await blocks until the job has produced an image asset.
	Await(ctx context.Context, job Job) (Asset, error)

	// Fetch materializes the asset into bytes owned by the caller.
	Fetch(ctx context.Context, asset Asset) (Image, error)

	io.Closer
}

// Job identifies a submitted generation inside a workspace.
type Job struct {
	ID     string
	Prompt string
}

// Asset is a located but not yet materialized image. Exactly one of Inline or
// URI is set.
type Asset struct {
	Inline   []byte
	URI      string
	MIMEType string
}

// Image is a materialized image.
type Image struct {
	Data     []byte
	MIMEType string
}
