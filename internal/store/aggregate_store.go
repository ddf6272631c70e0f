package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SQLAggregateStore is the sqlx-backed AggregateStore for sqlite3, postgres and mysql.
type SQLAggregateStore struct {
	db *sqlx.DB
}

// NewSQLAggregateStore creates a new SQLAggregateStore.
func NewSQLAggregateStore(db *sqlx.DB) *SQLAggregateStore {
	return &SQLAggregateStore{db: db}
}

// q rebinds ? placeholders to the driver's native format.
func (s *SQLAggregateStore) q(query string) string { return s.db.Rebind(query) }

// IncrementWebsite bumps the counters of the website matching websiteID and userID.
// The UPDATE is the atomic step; the SELECT runs in the same transaction so it reads
// the row as this update left it.
func (s *SQLAggregateStore) IncrementWebsite(ctx context.Context, websiteID, userID int64, newSession bool) (*Website, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE websites
		SET visitors = visitors + 1, sessions = sessions + ?
		WHERE id = ? AND user_id = ?
	`), sessionDelta(newSession), websiteID, userID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	var w Website
	if err := tx.GetContext(ctx, &w, s.q(`SELECT * FROM websites WHERE id = ?`), websiteID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &w, nil
}

// UpsertPage inserts or increments the page keyed by pathname in one statement.
// The conflict target is the pathname hash alone, so website_id is only written on insert.
func (s *SQLAggregateStore) UpsertPage(ctx context.Context, websiteID int64, pathname string, newSession bool) (*Page, error) {
	id := uuid.New().String()
	hash := pathnameHash(pathname)
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.q(s.upsertPageQuery()),
		id, websiteID, pathname, hash, sessionDelta(newSession), now, now)
	if err != nil {
		return nil, err
	}

	var p Page
	if err := tx.GetContext(ctx, &p, s.q(`SELECT * FROM pages WHERE pathname_hash = ?`), hash); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLAggregateStore) upsertPageQuery() string {
	if s.db.DriverName() == "mysql" {
		return `
		INSERT INTO pages (id, website_id, pathname, pathname_hash, visitors, sessions, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			visitors = visitors + 1,
			sessions = sessions + VALUES(sessions),
			updated_at = VALUES(updated_at)
	`
	}
	return `
		INSERT INTO pages (id, website_id, pathname, pathname_hash, visitors, sessions, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (pathname_hash) DO UPDATE SET
			visitors = pages.visitors + 1,
			sessions = pages.sessions + excluded.sessions,
			updated_at = excluded.updated_at
	`
}

// CreateWebsite provisions a website row with zeroed counters.
// Returns ErrWebsiteExists if id is already taken.
func (s *SQLAggregateStore) CreateWebsite(ctx context.Context, id, userID int64, hostname string) (*Website, error) {
	if err := validateNewWebsite(id, userID, hostname); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO websites (id, user_id, hostname, visitors, sessions, created_at)
		VALUES (?, ?, ?, 0, 0, ?)
	`), id, userID, hostname, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrWebsiteExists
		}
		return nil, err
	}
	return s.GetWebsite(ctx, id)
}

// GetWebsite returns the website matching id, or ErrNotFound.
func (s *SQLAggregateStore) GetWebsite(ctx context.Context, id int64) (*Website, error) {
	var w Website
	err := s.db.GetContext(ctx, &w, s.q(`SELECT * FROM websites WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetPage returns the page matching pathname, or ErrNotFound.
func (s *SQLAggregateStore) GetPage(ctx context.Context, pathname string) (*Page, error) {
	var p Page
	err := s.db.GetContext(ctx, &p, s.q(`SELECT * FROM pages WHERE pathname_hash = ?`), pathnameHash(pathname))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
