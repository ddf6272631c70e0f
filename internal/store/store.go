package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrNotFound is returned when a requested entity does not exist. For
	// IncrementWebsite it is an expected outcome: no (website_id, user_id) row matched.
	ErrNotFound = errors.New("not found")

	// ErrWebsiteExists is returned when provisioning a website id that is already taken.
	ErrWebsiteExists = errors.New("website already exists")
)

// Website represents a row in the websites table.
type Website struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Hostname  string    `db:"hostname"`
	Visitors  uint64    `db:"visitors"`
	Sessions  uint64    `db:"sessions"`
	CreatedAt time.Time `db:"created_at"`
}

// Page represents a row in the pages table. Pathname is unique across all websites;
// WebsiteID records whichever website reported the path first.
type Page struct {
	ID           string    `db:"id"`
	WebsiteID    int64     `db:"website_id"`
	Pathname     string    `db:"pathname"`
	PathnameHash string    `db:"pathname_hash" json:"-"`
	Visitors     uint64    `db:"visitors"`
	Sessions     uint64    `db:"sessions"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Ghost is one immutable raw record of an ingested visit.
type Ghost struct {
	ID           string    `db:"id"`
	UserID       int64     `db:"user_id"`
	WebsiteID    int64     `db:"website_id"`
	IsNewSession bool      `db:"is_new_session"`
	Pathname     string    `db:"pathname"`
	Hostname     string    `db:"hostname"`
	Referrer     *string   `db:"referrer"` // nil when the visit had no referrer
	CreatedAt    time.Time `db:"created_at"`
}

// AggregateStore holds the website and page counters.
// Both operations are a single atomic read-modify-write per key; concurrent callers
// never lose increments.
type AggregateStore interface {
	// IncrementWebsite adds one visitor, and one session when newSession is set, to the
	// website matching both ids and returns the updated row. It returns ErrNotFound
	// when no such row exists and never creates one.
	IncrementWebsite(ctx context.Context, websiteID, userID int64, newSession bool) (*Website, error)

	// UpsertPage creates the page for pathname with one visitor (and one session when
	// newSession is set), or increments the existing page by the same amounts. An
	// existing page keeps its original website_id.
	UpsertPage(ctx context.Context, websiteID int64, pathname string, newSession bool) (*Page, error)
}

// WebsiteProvisioner creates and inspects aggregate rows outside the ingest path.
type WebsiteProvisioner interface {
	CreateWebsite(ctx context.Context, id, userID int64, hostname string) (*Website, error)
	GetWebsite(ctx context.Context, id int64) (*Website, error)
	GetPage(ctx context.Context, pathname string) (*Page, error)
}

// EventLog is the append-only ghost log. It lives in its own table or database so
// appends never contend with counter updates.
type EventLog interface {
	Append(ctx context.Context, g Ghost) error
}

// Byte limits for ghost columns. Pathname is never cut so ghosts join to pages.
const (
	maxHostnameLen = 255
	maxReferrerLen = 2048
)

// sessionDelta is the amount a visit adds to a sessions counter.
func sessionDelta(newSession bool) int64 {
	if newSession {
		return 1
	}
	return 0
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// pathnameHash is the fixed-width page key: hex SHA-256 of the pathname.
func pathnameHash(pathname string) string {
	h := sha256.Sum256([]byte(pathname))
	return fmt.Sprintf("%x", h)
}

// isUniqueConstraintError checks whether err indicates a unique constraint violation.
// Works across SQLite, PostgreSQL, and MySQL.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || // SQLite & PostgreSQL
		strings.Contains(msg, "duplicate key") || // PostgreSQL
		strings.Contains(msg, "duplicate entry") // MySQL
}
