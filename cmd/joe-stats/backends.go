package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/joestump/joe-stats/internal/config"
	"github.com/joestump/joe-stats/internal/db"
	"github.com/joestump/joe-stats/internal/logger"
	"github.com/joestump/joe-stats/internal/store"
)

// aggregateBackend is what every aggregate store offers: the atomic counters used by
// ingest plus the provisioning used by the websites command.
type aggregateBackend interface {
	store.AggregateStore
	store.WebsiteProvisioner
}

// backends bundles the configured stores and the connections behind them.
type backends struct {
	db         *sqlx.DB
	aggregates aggregateBackend
	ghosts     store.EventLog
	// sqlGhosts is set only when ghosts are kept in the SQL database.
	sqlGhosts *store.SQLEventLog
	closers   []func() error
	checks    []func(ctx context.Context) error
}

// Ready pings every connection the configured backends depend on and returns the
// first failure.
func (b *backends) Ready(ctx context.Context) error {
	for _, check := range b.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

// openBackends opens the SQL database, runs migrations, and connects whichever
// aggregate and ghost backends cfg selects.
func openBackends(ctx context.Context, cfg *config.Config, log *logger.Logger) (*backends, error) {
	database, err := db.New(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	b := &backends{db: database}
	b.closers = append(b.closers, database.Close)
	b.checks = append(b.checks, func(ctx context.Context) error {
		if err := database.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		return nil
	})

	if err := db.Migrate(database, cfg.DB.Driver); err != nil {
		b.Close()
		return nil, err
	}

	switch cfg.Aggregate.Backend {
	case config.BackendRedis:
		rdb, err := store.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, rdb.Close)
		b.checks = append(b.checks, func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		})
		b.aggregates = store.NewRedisAggregateStore(rdb, "")
		log.Info("aggregate backend ready", "backend", config.BackendRedis, "addr", cfg.Redis.Addr)
	default:
		b.aggregates = store.NewSQLAggregateStore(database)
		log.Info("aggregate backend ready", "backend", config.BackendSQL, "driver", cfg.DB.Driver)
	}

	switch cfg.Ghosts.Backend {
	case config.BackendClickHouse:
		conn, err := store.OpenClickHouse(ctx, store.ClickHouseOptions{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, conn.Close)
		b.checks = append(b.checks, func(ctx context.Context) error {
			if err := conn.Ping(ctx); err != nil {
				return fmt.Errorf("clickhouse: %w", err)
			}
			return nil
		})
		chLog := store.NewClickHouseEventLog(conn)
		if err := chLog.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.ghosts = chLog
		log.Info("ghost backend ready", "backend", config.BackendClickHouse, "addr", cfg.ClickHouse.Addr)
	default:
		b.sqlGhosts = store.NewSQLEventLog(database)
		b.ghosts = b.sqlGhosts
		log.Info("ghost backend ready", "backend", config.BackendSQL, "driver", cfg.DB.Driver)
	}

	return b, nil
}

// loadAndOpen is the shared prologue of every command that touches storage.
func loadAndOpen(ctx context.Context) (*config.Config, *logger.Logger, *backends, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, nil, err
	}
	return cfg, log, b, nil
}
