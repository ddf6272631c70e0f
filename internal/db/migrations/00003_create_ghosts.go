package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateGhosts, downCreateGhosts)
}

func upCreateGhosts(ctx context.Context, tx *sql.Tx) error {
	var ddl string
	switch dialect {
	case "postgres":
		ddl = `CREATE TABLE IF NOT EXISTS ghosts (
    id             TEXT PRIMARY KEY,
    user_id        BIGINT NOT NULL,
    website_id     BIGINT NOT NULL,
    is_new_session BOOLEAN NOT NULL,
    pathname       TEXT NOT NULL,
    hostname       TEXT NOT NULL,
    referrer       TEXT,
    created_at     TIMESTAMPTZ NOT NULL
)`
	case "mysql":
		ddl = `CREATE TABLE IF NOT EXISTS ghosts (
    id             VARCHAR(36) PRIMARY KEY,
    user_id        BIGINT NOT NULL,
    website_id     BIGINT NOT NULL,
    is_new_session BOOLEAN NOT NULL,
    pathname       TEXT NOT NULL,
    hostname       VARCHAR(255) NOT NULL,
    referrer       VARCHAR(2048),
    created_at     TIMESTAMP(6) NOT NULL
)`
	default: // sqlite3
		ddl = `CREATE TABLE IF NOT EXISTS ghosts (
    id             TEXT PRIMARY KEY,
    user_id        INTEGER NOT NULL,
    website_id     INTEGER NOT NULL,
    is_new_session BOOLEAN NOT NULL,
    pathname       TEXT NOT NULL,
    hostname       TEXT NOT NULL,
    referrer       TEXT,
    created_at     DATETIME NOT NULL
)`
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create ghosts table: %w", err)
	}
	_, err := tx.ExecContext(ctx, `CREATE INDEX idx_ghosts_website_created ON ghosts (website_id, created_at)`)
	return err
}

func downCreateGhosts(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS ghosts`)
	return err
}
