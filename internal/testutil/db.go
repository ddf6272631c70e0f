package testutil

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/joestump/joe-stats/internal/db"
	_ "modernc.org/sqlite"
)

// NewTestDB opens an in-memory SQLite DB and runs all goose migrations.
func NewTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	// Each test gets a uniquely named in-memory database. Shared-cache SQLite
	// answers concurrent writers with SQLITE_LOCKED instead of waiting on the busy
	// timeout, so the pool is pinned to one connection; goroutines in concurrency
	// tests queue on the pool rather than failing.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	if err := db.Migrate(conn, "sqlite3"); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return conn
}

// NewFileTestDB opens a file-backed SQLite DB in t.TempDir() through db.New, so it
// gets the production settings (WAL, busy timeout, immediate transactions) and an
// unpinned connection pool. Use it where statements must really run concurrently.
func NewFileTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conn, err := db.New("sqlite3", "file:"+filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("open file sqlite: %v", err)
	}
	conn.SetMaxOpenConns(8)
	t.Cleanup(func() { _ = conn.Close() })

	if err := db.Migrate(conn, "sqlite3"); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return conn
}
