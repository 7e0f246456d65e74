//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/imagebatch/internal/platform/logger"
	"github.com/phrazzld/imagebatch/internal/session"
	"github.com/phrazzld/imagebatch/internal/store"
	"github.com/phrazzld/imagebatch/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionArchive_Postgres(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)

	require.NoError(t, Migrate(ctx, db, logger.Discard()))
	// Migrating twice is a no-op.
	require.NoError(t, Migrate(ctx, db, logger.Discard()))

	archive := NewSessionArchive(db)
	snap := sampleSnapshot()
	snap.ID = uuid.New()
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, "DELETE FROM batch_sessions WHERE id = $1", snap.ID)
	})

	require.NoError(t, archive.Save(ctx, snap))

	got, err := archive.Load(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Prompts, got.Prompts)
	assert.Equal(t, snap.Results, got.Results)

	// Saving again replaces the archived copy.
	snap.Status = session.StatusError
	snap.Error = "engine crashed"
	snap.Results = snap.Results[:1]
	require.NoError(t, archive.Save(ctx, snap))

	got, err = archive.Load(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusError, got.Status)
	assert.Len(t, got.Results, 1)

	var rows int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM batch_results WHERE session_id = $1", snap.ID).Scan(&rows))
	assert.Equal(t, 1, rows)

	_, err = archive.Load(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
