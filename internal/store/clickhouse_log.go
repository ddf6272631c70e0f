package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/joestump/joe-stats/internal/build"
)

// ClickHouseOptions are the connection settings for OpenClickHouse.
type ClickHouseOptions struct {
	Addr     string
	Database string
	Username string
	Password string
}

// OpenClickHouse connects over the native protocol and verifies the connection with a ping.
func OpenClickHouse(ctx context.Context, opts ClickHouseOptions) (clickhouse.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "joe-stats", Version: build.Version}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return conn, nil
}

// clickHouseExecer is the subset of clickhouse.Conn used by ClickHouseEventLog.
type clickHouseExecer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ClickHouseEventLog is an EventLog writing ghosts to a ClickHouse MergeTree table.
type ClickHouseEventLog struct {
	conn clickHouseExecer
}

// NewClickHouseEventLog creates a ClickHouseEventLog on an open connection.
func NewClickHouseEventLog(conn clickHouseExecer) *ClickHouseEventLog {
	return &ClickHouseEventLog{conn: conn}
}

// EnsureSchema creates the ghosts table if it does not exist.
func (l *ClickHouseEventLog) EnsureSchema(ctx context.Context) error {
	err := l.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ghosts (
			id             String,
			user_id        Int64,
			website_id     Int64,
			is_new_session Bool,
			pathname       String,
			hostname       String,
			referrer       Nullable(String),
			created_at     DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		ORDER BY (website_id, created_at)
	`)
	if err != nil {
		return fmt.Errorf("create clickhouse ghosts table: %w", err)
	}
	return nil
}

// Append inserts one ghost row as an async insert and waits for the server to flush it.
func (l *ClickHouseEventLog) Append(ctx context.Context, g Ghost) error {
	g = prepareGhost(g)
	ctx = clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"async_insert":          1,
		"wait_for_async_insert": 1,
	}))
	err := l.conn.Exec(ctx, `
		INSERT INTO ghosts (id, user_id, website_id, is_new_session, pathname, hostname, referrer, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.UserID, g.WebsiteID, g.IsNewSession, g.Pathname, g.Hostname, g.Referrer, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ghost to clickhouse: %w", err)
	}
	return nil
}
