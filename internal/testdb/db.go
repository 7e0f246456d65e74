//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/imagebatch/internal/ciutil"
	"github.com/phrazzld/imagebatch/internal/redact"
)

// Open connects to the test database and closes it when the test ends.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	url := ciutil.DatabaseURL(nil)
	if url == "" {
		if ciutil.IsCI() {
			t.Fatalf("no test database configured; set %s", ciutil.EnvDatabaseURL)
		}
		t.Skipf("%s not set", ciutil.EnvDatabaseURL)
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		t.Fatalf("failed to open test database %s: %v", redact.String(url), err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to reach test database %s: %v", redact.String(url), err)
	}
	return db
}
