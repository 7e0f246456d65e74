package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/imagebatch/internal/session"
)

// SessionStore persists finished session snapshots beyond the lifetime of the
// in-memory registry.
type SessionStore interface {
	// Save inserts or replaces the snapshot and its per-prompt results.
	Save(ctx context.Context, snap session.Snapshot) error

	// Load returns the archived snapshot, or an error wrapping ErrNotFound.
	Load(ctx context.Context, id uuid.UUID) (session.Snapshot, error)
}
