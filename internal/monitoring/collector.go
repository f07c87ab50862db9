// Package monitoring gathers batch-run health metrics and delivers
// threshold alerts via webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-cli/internal/model"
	"github.com/sells-group/attribution-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of batch attribution health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int `json:"runs_total"`
	RunsFinished int `json:"runs_finished"`
	RunsRunning  int `json:"runs_running"`

	JourneysProcessed int     `json:"journeys_processed"`
	JourneyErrors     int     `json:"journey_errors"`
	ErrorRate         float64 `json:"error_rate"`

	AvgRunSeconds float64 `json:"avg_run_seconds"`

	// DLQ depth.
	DLQDepth int `json:"dlq_depth"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of batch attribution metrics over the given
// lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListBatchRuns(ctx, cutoff, 10000)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list batch runs")
	}

	snap.RunsTotal = len(runs)
	var totalDuration time.Duration
	var finishedRuns int

	for _, r := range runs {
		switch r.Status {
		case model.BatchRunFinished:
			snap.RunsFinished++
		case model.BatchRunRunning:
			snap.RunsRunning++
		}
		snap.JourneysProcessed += r.TotalProcessed
		snap.JourneyErrors += r.TotalErrors
		if r.FinishedAt != nil {
			totalDuration += r.Duration()
			finishedRuns++
		}
	}

	if snap.JourneysProcessed > 0 {
		snap.ErrorRate = float64(snap.JourneyErrors) / float64(snap.JourneysProcessed)
	}
	if finishedRuns > 0 {
		snap.AvgRunSeconds = totalDuration.Seconds() / float64(finishedRuns)
	}

	dlqCount, err := c.store.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = dlqCount
	DLQDepth.Set(float64(dlqCount))

	return snap, nil
}
