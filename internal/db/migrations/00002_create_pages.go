package migrations

// pages are unique on pathname_hash (hex SHA-256 of pathname) across the whole table,
// not per website. The first website to report a path owns the row; later events for
// the same path from other websites increment it without changing website_id.
// Pathname itself is unbounded TEXT; MySQL cannot put a unique index on it.

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreatePages, downCreatePages)
}

func upCreatePages(ctx context.Context, tx *sql.Tx) error {
	var ddl string
	switch dialect {
	case "postgres":
		ddl = `CREATE TABLE IF NOT EXISTS pages (
    id            TEXT PRIMARY KEY,
    website_id    BIGINT NOT NULL,
    pathname      TEXT NOT NULL,
    pathname_hash CHAR(64) NOT NULL,
    visitors      BIGINT NOT NULL DEFAULT 0,
    sessions      BIGINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
)`
	case "mysql":
		ddl = `CREATE TABLE IF NOT EXISTS pages (
    id            VARCHAR(36) PRIMARY KEY,
    website_id    BIGINT NOT NULL,
    pathname      TEXT NOT NULL,
    pathname_hash CHAR(64) NOT NULL,
    visitors      BIGINT UNSIGNED NOT NULL DEFAULT 0,
    sessions      BIGINT UNSIGNED NOT NULL DEFAULT 0,
    created_at    TIMESTAMP(6) NOT NULL,
    updated_at    TIMESTAMP(6) NOT NULL
)`
	default: // sqlite3
		ddl = `CREATE TABLE IF NOT EXISTS pages (
    id            TEXT PRIMARY KEY,
    website_id    INTEGER NOT NULL,
    pathname      TEXT NOT NULL,
    pathname_hash TEXT NOT NULL,
    visitors      INTEGER NOT NULL DEFAULT 0,
    sessions      INTEGER NOT NULL DEFAULT 0,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL
)`
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create pages table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX idx_pages_pathname_hash ON pages (pathname_hash)`); err != nil {
		return fmt.Errorf("create pages pathname_hash index: %w", err)
	}
	_, err := tx.ExecContext(ctx, `CREATE INDEX idx_pages_website_id ON pages (website_id)`)
	return err
}

func downCreatePages(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS pages`)
	return err
}
