package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest outcomes used as the "outcome" label of EventsTotal.
const (
	OutcomeOK              = "ok"
	OutcomeNoEvent         = "no_event"
	OutcomeWebsiteNotFound = "website_not_found"
	OutcomeError           = "error"
)

var (
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "joestats_events_total",
		Help: "Ingest requests by outcome.",
	}, []string{"outcome"})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "joestats_ingest_duration_seconds",
		Help:    "Time to apply one event to the aggregate store and ghost log.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	IngestStepErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "joestats_ingest_step_errors_total",
		Help: "Ingest failures by the step that failed (website, page, ghost).",
	}, []string{"step"})

	IngestQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "joestats_ingest_queue_depth",
		Help: "Events waiting for an ingest worker.",
	})
)
