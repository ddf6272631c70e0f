package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joestump/joe-stats/internal/logger"
)

// Deps holds all dependencies required to build the HTTP router.
type Deps struct {
	Ingest Submitter
	Log    *logger.Logger
	// Ready reports whether backing storage is reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter assembles the chi router with all middleware and routes.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	collect := NewCollectHandler(deps.Ingest, deps.Log)
	r.Get("/collect", collect.Get)
	r.Post("/collect", collect.Post)

	r.Get("/healthz", healthz(deps.Ready))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func healthz(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "storage unavailable", "UNAVAILABLE")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
