package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SQLEventLog is the sqlx-backed EventLog writing to the ghosts table.
type SQLEventLog struct {
	db *sqlx.DB
}

// NewSQLEventLog creates a new SQLEventLog.
func NewSQLEventLog(db *sqlx.DB) *SQLEventLog {
	return &SQLEventLog{db: db}
}

// q rebinds ? placeholders to the driver's native format.
func (s *SQLEventLog) q(query string) string { return s.db.Rebind(query) }

// Append inserts one ghost row. ID and CreatedAt are filled in when unset.
func (s *SQLEventLog) Append(ctx context.Context, g Ghost) error {
	g = prepareGhost(g)
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO ghosts (id, user_id, website_id, is_new_session, pathname, hostname, referrer, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), g.ID, g.UserID, g.WebsiteID, g.IsNewSession, g.Pathname, g.Hostname, g.Referrer, g.CreatedAt)
	return err
}

// ListByWebsite returns the most recent ghosts for a website, newest first.
func (s *SQLEventLog) ListByWebsite(ctx context.Context, websiteID int64, limit int) ([]Ghost, error) {
	var ghosts []Ghost
	err := s.db.SelectContext(ctx, &ghosts, s.q(`
		SELECT * FROM ghosts
		WHERE website_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`), websiteID, limit)
	if err != nil {
		return nil, err
	}
	return ghosts, nil
}

// prepareGhost assigns an id and timestamp and truncates hostname to 255 bytes and
// referrer to 2048 bytes on a character boundary. Pathname is stored as given.
func prepareGhost(g Ghost) Ghost {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	g.Hostname = truncate(g.Hostname, maxHostnameLen)
	if g.Referrer != nil {
		ref := truncate(*g.Referrer, maxReferrerLen)
		g.Referrer = &ref
	}
	return g
}
