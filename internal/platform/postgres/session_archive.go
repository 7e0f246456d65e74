package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/imagebatch/internal/platform/logger"
	"github.com/phrazzld/imagebatch/internal/session"
	"github.com/phrazzld/imagebatch/internal/store"
)

// SessionArchive implements store.SessionStore on PostgreSQL. The snapshot is
// stored whole as JSONB; per-prompt outcomes are also written to
// batch_results for querying.
type SessionArchive struct {
	db *sql.DB
}

var _ store.SessionStore = (*SessionArchive)(nil)

// NewSessionArchive creates a new SessionArchive
func NewSessionArchive(db *sql.DB) *SessionArchive {
	return &SessionArchive{db: db}
}

// Save upserts the snapshot and replaces its result rows atomically.
func (a *SessionArchive) Save(ctx context.Context, snap session.Snapshot) error {
	log := logger.FromContext(ctx)

	payload, err := json.Marshal(snap)
	if err != nil {
		return store.NewStoreError("session", "save", "failed to encode snapshot", err)
	}

	err = store.RunInTransaction(ctx, a.db, func(ctx context.Context, tx store.DBTX) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO batch_sessions (id, status, prompt_count, snapshot, created_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				snapshot = EXCLUDED.snapshot,
				finished_at = EXCLUDED.finished_at,
				archived_at = NOW()
		`,
			snap.ID,
			string(snap.Status),
			len(snap.Prompts),
			payload,
			snap.CreatedAt,
			snap.FinishedAt,
		)
		if err != nil {
			return MapError(err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM batch_results WHERE session_id = $1`, snap.ID); err != nil {
			return MapError(err)
		}

		for _, r := range snap.Results {
			var imageKey sql.NullString
			if r.Image != nil {
				imageKey = sql.NullString{String: r.Image.Key, Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO batch_results (session_id, prompt_index, prompt, success, attempts, image_key, error)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`,
				snap.ID,
				r.PromptIndex,
				r.Prompt,
				r.Success,
				r.Attempts,
				imageKey,
				sql.NullString{String: r.Error, Valid: r.Error != ""},
			)
			if err != nil {
				return MapError(err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to archive session", "session_id", snap.ID, "error", err)
		return store.NewStoreError("session", "save", "failed to archive session", err)
	}

	log.Debug("session archived", "session_id", snap.ID, "result_count", len(snap.Results))
	return nil
}

// Load returns an archived snapshot. An unknown ID yields an error wrapping
// store.ErrSessionNotFound.
func (a *SessionArchive) Load(ctx context.Context, id uuid.UUID) (session.Snapshot, error) {
	var payload []byte
	err := a.db.QueryRowContext(ctx, `SELECT snapshot FROM batch_sessions WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		mapped := MapError(err)
		if errors.Is(mapped, store.ErrNotFound) {
			return session.Snapshot{}, fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
		}
		return session.Snapshot{}, store.NewStoreError("session", "load", "query failed", mapped)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return session.Snapshot{}, store.NewStoreError("session", "load", "failed to decode snapshot", err)
	}
	return snap, nil
}
