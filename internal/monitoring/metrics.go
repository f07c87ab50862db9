package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for batch attribution runs. Registered on the
// default registry; the serve command exposes them at /metrics.
var (
	BatchJourneysProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_batch_journeys_processed_total",
		Help: "Journeys processed by batch attribution runs.",
	}, []string{"model"})

	BatchJourneyErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attribution_batch_journey_errors_total",
		Help: "Journeys that failed during batch attribution runs.",
	}, []string{"model"})

	BatchRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attribution_batch_run_duration_seconds",
		Help:    "Wall-clock duration of batch attribution runs.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"model"})

	DLQDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attribution_dlq_depth",
		Help: "Current number of dead-lettered chunks awaiting replay.",
	})
)
