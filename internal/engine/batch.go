package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-cli/internal/model"
	"github.com/sells-group/attribution-cli/internal/monitoring"
	"github.com/sells-group/attribution-cli/internal/store"
)

// DefaultChunkSize is the number of journeys processed per chunk. It matches
// the platform's bulk persistence limit of 200 records per call.
const DefaultChunkSize = 200

// RunnerConfig controls a batch attribution run.
type RunnerConfig struct {
	// ChunkSize overrides DefaultChunkSize when positive.
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size"`

	// Enabled gates batch attribution. Read once at run start; flipping it
	// mid-run has no effect.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// EmergencyStop is the operator kill switch. It wins over Enabled.
	EmergencyStop bool `yaml:"emergency_stop" mapstructure:"emergency_stop"`

	// Filter selects which journeys the run covers.
	Filter store.JourneyFilter `yaml:"filter" mapstructure:"filter"`
}

// RunNotifier receives the finished run for threshold evaluation and
// alert delivery.
type RunNotifier interface {
	NotifyRun(ctx context.Context, run model.BatchRun)
}

// BatchRunner executes chunked attribution runs. A failed chunk is counted,
// dead-lettered, and skipped; it never aborts the run.
type BatchRunner struct {
	store    store.Store
	engine   *Engine
	cfg      RunnerConfig
	notifier RunNotifier
}

// NewBatchRunner creates a runner. notifier may be nil.
func NewBatchRunner(st store.Store, eng *Engine, cfg RunnerConfig, notifier RunNotifier) *BatchRunner {
	return &BatchRunner{store: st, engine: eng, cfg: cfg, notifier: notifier}
}

// Run executes one full batch run for the given model kind and returns the
// finished run record. Only context cancellation or a store failure on the
// run record itself aborts early.
func (r *BatchRunner) Run(ctx context.Context, kind model.ModelKind) (*model.BatchRun, error) {
	if r.cfg.EmergencyStop {
		return nil, eris.Wrap(ErrEmergencyStop, "batch")
	}
	if !r.cfg.Enabled {
		return nil, eris.Wrap(ErrRunnerDisabled, "batch")
	}

	chunkSize := r.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	ids, err := r.store.ListJourneyIDs(ctx, r.cfg.Filter)
	if err != nil {
		return nil, eris.Wrap(err, "batch: list journeys")
	}

	run := &model.BatchRun{
		Model:     kind,
		Status:    model.BatchRunCreated,
		ChunkSize: chunkSize,
		StartedAt: time.Now().UTC(),
	}
	if err := r.store.CreateBatchRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "batch: create run")
	}

	run.Status = model.BatchRunRunning
	if err := r.store.UpdateBatchRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "batch: mark running")
	}

	zap.L().Info("batch attribution started",
		zap.String("run_id", run.ID),
		zap.String("model", string(kind)),
		zap.Int("journeys", len(ids)),
		zap.Int("chunk_size", chunkSize),
	)

	for start := 0; start < len(ids); start += chunkSize {
		if ctx.Err() != nil {
			break
		}
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		r.processChunk(ctx, run, ids[start:end], kind)
	}

	now := time.Now().UTC()
	run.Status = model.BatchRunFinished
	run.FinishedAt = &now
	if err := r.store.UpdateBatchRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "batch: mark finished")
	}

	label := string(kind)
	monitoring.BatchJourneysProcessed.WithLabelValues(label).Add(float64(run.TotalProcessed))
	monitoring.BatchJourneyErrors.WithLabelValues(label).Add(float64(run.TotalErrors))
	monitoring.BatchRunDuration.WithLabelValues(label).Observe(run.Duration().Seconds())
	if depth, err := r.store.CountDLQ(ctx); err == nil {
		monitoring.DLQDepth.Set(float64(depth))
	}

	zap.L().Info("batch attribution finished",
		zap.String("run_id", run.ID),
		zap.Int("processed", run.TotalProcessed),
		zap.Int("errors", run.TotalErrors),
		zap.Float64("error_rate", run.ErrorRate()),
		zap.Duration("duration", run.Duration()),
	)

	if r.notifier != nil {
		r.notifier.NotifyRun(ctx, *run)
	}
	return run, nil
}

// processChunk computes, validates, and persists one chunk, accumulating
// counters on run. A chunk-level failure counts every journey in the chunk
// as errored and dead-letters the chunk for replay.
func (r *BatchRunner) processChunk(ctx context.Context, run *model.BatchRun, chunk []string, kind model.ModelKind) {
	run.TotalProcessed += len(chunk)

	outcomes, err := r.engine.TriggerAttributionCalculation(ctx, chunk, kind)
	if err != nil {
		run.TotalErrors += len(chunk)
		msg := fmt.Sprintf("chunk of %d journeys failed: %v", len(chunk), err)
		run.ErrorMessages = append(run.ErrorMessages, msg)

		zap.L().Error("batch chunk failed",
			zap.String("run_id", run.ID),
			zap.Int("chunk_len", len(chunk)),
			zap.Error(err),
		)

		if dlqErr := r.store.EnqueueDLQ(ctx, store.DLQEntry{
			RunID:      run.ID,
			Model:      kind,
			JourneyIDs: chunk,
			Error:      err.Error(),
		}); dlqErr != nil {
			zap.L().Error("batch: dlq enqueue failed", zap.String("run_id", run.ID), zap.Error(dlqErr))
		}
		return
	}

	if failed := FailedJourneys(outcomes); len(failed) > 0 {
		run.TotalErrors += len(failed)
		run.ErrorMessages = append(run.ErrorMessages,
			fmt.Sprintf("%d of %d journeys failed to persist", len(failed), len(chunk)))
	}
}

// ReplayDLQ re-runs dead-lettered chunks. Entries that succeed are removed;
// failures stay queued for the next replay. Returns the number of entries
// replayed successfully.
func (r *BatchRunner) ReplayDLQ(ctx context.Context, limit int) (int, error) {
	entries, err := r.store.ListDLQ(ctx, limit)
	if err != nil {
		return 0, eris.Wrap(err, "batch: list dlq")
	}

	replayed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		outcomes, err := r.engine.TriggerAttributionCalculation(ctx, e.JourneyIDs, e.Model)
		if err != nil {
			zap.L().Warn("dlq replay failed",
				zap.String("dlq_id", e.ID),
				zap.String("model", string(e.Model)),
				zap.Error(err),
			)
			continue
		}
		if failed := FailedJourneys(outcomes); len(failed) > 0 {
			zap.L().Warn("dlq replay left failed journeys",
				zap.String("dlq_id", e.ID),
				zap.Strings("journey_ids", failed),
			)
			continue
		}
		if err := r.store.DeleteDLQ(ctx, e.ID); err != nil {
			zap.L().Error("dlq delete failed", zap.String("dlq_id", e.ID), zap.Error(err))
			continue
		}
		replayed++
	}

	if depth, err := r.store.CountDLQ(ctx); err == nil {
		monitoring.DLQDepth.Set(float64(depth))
	}
	return replayed, nil
}
