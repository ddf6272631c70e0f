package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joestump/joe-stats/internal/logger"
	"github.com/joestump/joe-stats/internal/metrics"
	"github.com/joestump/joe-stats/internal/store"
)

// ErrInternal is the single failure signal callers of Ingest see. Every returned
// error wraps it; the transport maps it to a generic server error.
var ErrInternal = errors.New("internal error")

// Steps of an ingest, in the order they run.
const (
	StepWebsite = "website"
	StepPage    = "page"
	StepGhost   = "ghost"
)

// StepError reports which step failed and why. It matches both ErrInternal and the
// underlying cause under errors.Is, so store.ErrNotFound stays detectable.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{ErrInternal, e.Err}
}

// Coordinator applies one event as three ordered writes: website counters, page
// counters, ghost record. The writes are independent; a failure stops the sequence
// and earlier writes stay committed. Nothing is retried or rolled back.
type Coordinator struct {
	aggregates store.AggregateStore
	ghosts     store.EventLog
	log        *logger.Logger
}

// NewCoordinator creates a Coordinator over the given stores.
func NewCoordinator(aggregates store.AggregateStore, ghosts store.EventLog, log *logger.Logger) *Coordinator {
	return &Coordinator{
		aggregates: aggregates,
		ghosts:     ghosts,
		log:        log.With("component", "ingest"),
	}
}

// Ingest applies req. A request without an event returns nil with no side effects.
//
// Storage calls are detached from ctx cancellation: once the website update is
// issued the sequence runs to completion even if the caller goes away.
func (c *Coordinator) Ingest(ctx context.Context, req Request) error {
	e, ok := req.Event()
	if !ok {
		metrics.EventsTotal.WithLabelValues(metrics.OutcomeNoEvent).Inc()
		return nil
	}

	start := time.Now()
	err := c.apply(context.WithoutCancel(ctx), e)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.EventsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	case errors.Is(err, store.ErrNotFound):
		metrics.EventsTotal.WithLabelValues(metrics.OutcomeWebsiteNotFound).Inc()
	default:
		metrics.EventsTotal.WithLabelValues(metrics.OutcomeError).Inc()
	}
	return err
}

func (c *Coordinator) apply(ctx context.Context, e Event) error {
	website, err := c.aggregates.IncrementWebsite(ctx, e.WebsiteID, e.UserID, e.IsNewSession)
	if err != nil {
		return c.fail(StepWebsite, e, err)
	}

	// The stored website identity, not the client-supplied one, keys the remaining writes.
	if _, err := c.aggregates.UpsertPage(ctx, website.ID, e.Pathname, e.IsNewSession); err != nil {
		return c.fail(StepPage, e, err)
	}

	err = c.ghosts.Append(ctx, store.Ghost{
		UserID:       website.UserID,
		WebsiteID:    website.ID,
		IsNewSession: e.IsNewSession,
		Pathname:     e.Pathname,
		Hostname:     e.Hostname,
		Referrer:     referrerOrNil(e.Referrer),
	})
	if err != nil {
		return c.fail(StepGhost, e, err)
	}
	return nil
}

func (c *Coordinator) fail(step string, e Event, err error) error {
	metrics.IngestStepErrorsTotal.WithLabelValues(step).Inc()
	kv := []interface{}{"step", step, "website_id", e.WebsiteID, "user_id", e.UserID, "pathname", e.Pathname, "error", err}
	if step == StepWebsite && errors.Is(err, store.ErrNotFound) {
		c.log.Warn("event for unknown website dropped", kv...)
	} else {
		c.log.Error("ingest step failed", kv...)
	}
	return &StepError{Step: step, Err: err}
}
