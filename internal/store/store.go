package store

import (
	"context"
	"time"

	"github.com/sells-group/attribution-cli/internal/model"
)

// JourneyFilter narrows journey-id selection for batch runs.
type JourneyFilter struct {
	ConvertedOnly bool    `json:"converted_only,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
	Limit         int     `json:"limit,omitempty"`
	Offset        int     `json:"offset,omitempty"`
}

// RowOutcome is the per-row result of a bulk insert. Bulk inserts may
// partially succeed; callers must inspect these rather than assume
// all-or-nothing.
type RowOutcome struct {
	JourneyID string `json:"journey_id"`
	Channel   string `json:"channel"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// DLQEntry records a failed batch chunk for operator-triggered replay.
type DLQEntry struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	Model      model.ModelKind `json:"model"`
	JourneyIDs []string        `json:"journey_ids"`
	Error      string          `json:"error"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Store defines the persistence interface for the attribution engine.
type Store interface {
	// Journey / touchpoint reads. Touchpoints come back ordered by journey
	// id then timestamp ascending.
	GetJourneysByIDs(ctx context.Context, ids []string) ([]model.CustomerJourney, error)
	GetTouchpointsByJourneyIDs(ctx context.Context, ids []string) ([]model.Touchpoint, error)
	ListJourneyIDs(ctx context.Context, filter JourneyFilter) ([]string, error)

	// Ingestion (used by the importer; the engine itself never writes these).
	InsertJourney(ctx context.Context, j model.CustomerJourney, tps []model.Touchpoint) error

	// Attribution results.
	GetAttributionResults(ctx context.Context, ids []string, kind model.ModelKind) ([]model.AttributionResult, error)
	GetAttributionResultsByModels(ctx context.Context, kinds []model.ModelKind) ([]model.AttributionResult, error)
	DeleteAttributionResults(ctx context.Context, ids []string, kind model.ModelKind) (int, error)
	BulkInsertAttributionResults(ctx context.Context, results []model.AttributionResult) ([]RowOutcome, error)
	// ReplaceAttributionResults runs delete-then-insert for (ids × kind) in
	// a single transaction, closing the visibility window the two-step form
	// leaves open.
	ReplaceAttributionResults(ctx context.Context, ids []string, kind model.ModelKind, results []model.AttributionResult) ([]RowOutcome, error)

	// Batch runs.
	CreateBatchRun(ctx context.Context, run *model.BatchRun) error
	UpdateBatchRun(ctx context.Context, run *model.BatchRun) error
	ListBatchRuns(ctx context.Context, since time.Time, limit int) ([]model.BatchRun, error)

	// Dead-letter queue for failed chunks.
	EnqueueDLQ(ctx context.Context, entry DLQEntry) error
	ListDLQ(ctx context.Context, limit int) ([]DLQEntry, error)
	CountDLQ(ctx context.Context) (int, error)
	DeleteDLQ(ctx context.Context, id string) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
