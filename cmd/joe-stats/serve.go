package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joestump/joe-stats/internal/build"
	"github.com/joestump/joe-stats/internal/handler"
	"github.com/joestump/joe-stats/internal/ingest"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, log, b, err := loadAndOpen(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer b.Close()

			log.Info("starting", "build", build.String())

			coord := ingest.NewCoordinator(b.aggregates, b.ghosts, log)
			pool := ingest.NewPool(coord, cfg.Ingest.Workers, cfg.Ingest.Queue, log)

			srv := &http.Server{
				Addr: cfg.HTTP.Addr,
				Handler: handler.NewRouter(handler.Deps{
					Ingest: pool,
					Log:    log,
					Ready:  b.Ready,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("listening", "addr", cfg.HTTP.Addr)
				errCh <- srv.ListenAndServe()
			}()

			var serveErr error
			select {
			case <-ctx.Done():
				log.Info("shutting down")
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					serveErr = err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("http shutdown", "error", err)
			}
			// In-flight handlers are done; finish whatever is still queued.
			if err := pool.Close(); err != nil {
				log.Error("ingest pool close", "error", err)
			}
			return serveErr
		},
	}
}
