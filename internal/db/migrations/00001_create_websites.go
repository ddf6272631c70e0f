package migrations

// websites rows are provisioned outside the ingest path; ingestion only increments
// visitors and sessions on an existing (id, user_id) pair.

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateWebsites, downCreateWebsites)
}

func upCreateWebsites(ctx context.Context, tx *sql.Tx) error {
	var ddl string
	switch dialect {
	case "postgres":
		ddl = `CREATE TABLE IF NOT EXISTS websites (
    id         BIGINT PRIMARY KEY,
    user_id    BIGINT NOT NULL,
    hostname   TEXT NOT NULL DEFAULT '',
    visitors   BIGINT NOT NULL DEFAULT 0,
    sessions   BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL
)`
	case "mysql":
		ddl = `CREATE TABLE IF NOT EXISTS websites (
    id         BIGINT PRIMARY KEY,
    user_id    BIGINT NOT NULL,
    hostname   VARCHAR(255) NOT NULL DEFAULT '',
    visitors   BIGINT UNSIGNED NOT NULL DEFAULT 0,
    sessions   BIGINT UNSIGNED NOT NULL DEFAULT 0,
    created_at TIMESTAMP(6) NOT NULL
)`
	default: // sqlite3
		ddl = `CREATE TABLE IF NOT EXISTS websites (
    id         INTEGER PRIMARY KEY,
    user_id    INTEGER NOT NULL,
    hostname   TEXT NOT NULL DEFAULT '',
    visitors   INTEGER NOT NULL DEFAULT 0,
    sessions   INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
)`
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create websites table: %w", err)
	}
	_, err := tx.ExecContext(ctx, `CREATE INDEX idx_websites_user_id ON websites (user_id)`)
	return err
}

func downCreateWebsites(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS websites`)
	return err
}
