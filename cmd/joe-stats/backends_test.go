package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/joestump/joe-stats/internal/config"
	"github.com/joestump/joe-stats/internal/handler"
	"github.com/joestump/joe-stats/internal/ingest"
	"github.com/joestump/joe-stats/internal/logger"
)

func redisBackedConfig(t *testing.T, redisAddr string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.DB.Driver = "sqlite3"
	cfg.DB.DSN = "file:" + filepath.Join(t.TempDir(), "stats.db")
	cfg.Aggregate.Backend = config.BackendRedis
	cfg.Redis.Addr = redisAddr
	cfg.Ghosts.Backend = config.BackendSQL
	return cfg
}

func TestBackendsReady_ReportsRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	b, err := openBackends(ctx, redisBackedConfig(t, mr.Addr()), logger.Nop())
	if err != nil {
		t.Fatalf("openBackends: %v", err)
	}
	defer b.Close()

	if err := b.Ready(ctx); err != nil {
		t.Fatalf("Ready with redis up: %v", err)
	}

	mr.Close()
	if err := b.Ready(ctx); err == nil {
		t.Fatal("Ready with redis down = nil, want error")
	}
}

func TestHealthz_UsesBackendReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	b, err := openBackends(ctx, redisBackedConfig(t, mr.Addr()), logger.Nop())
	if err != nil {
		t.Fatalf("openBackends: %v", err)
	}
	defer b.Close()

	pool := ingest.NewPool(ingest.NewCoordinator(b.aggregates, b.ghosts, logger.Nop()), 1, 1, logger.Nop())
	defer pool.Close()
	router := handler.NewRouter(handler.Deps{Ingest: pool, Log: logger.Nop(), Ready: b.Ready})

	get := func() int {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		return w.Code
	}

	if code := get(); code != http.StatusOK {
		t.Fatalf("healthz with redis up = %d, want 200", code)
	}
	mr.Close()
	if code := get(); code != http.StatusServiceUnavailable {
		t.Errorf("healthz with redis down = %d, want 503", code)
	}
}

func TestBackends_SQLOnlyHasSQLGhostLog(t *testing.T) {
	cfg := &config.Config{}
	cfg.DB.Driver = "sqlite3"
	cfg.DB.DSN = "file:" + filepath.Join(t.TempDir(), "stats.db")
	cfg.Aggregate.Backend = config.BackendSQL
	cfg.Ghosts.Backend = config.BackendSQL

	b, err := openBackends(context.Background(), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("openBackends: %v", err)
	}
	defer b.Close()

	if b.sqlGhosts == nil {
		t.Error("sqlGhosts = nil, want the SQL ghost log")
	}
	if len(b.checks) != 1 {
		t.Errorf("readiness checks = %d, want 1 (database only)", len(b.checks))
	}
}
