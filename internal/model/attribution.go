package model

import "time"

// ModelKind identifies one attribution model in the registry.
type ModelKind string

const (
	ModelLastTouch     ModelKind = "last_touch"
	ModelFirstTouch    ModelKind = "first_touch"
	ModelLinear        ModelKind = "linear"
	ModelTimeDecay     ModelKind = "time_decay"
	ModelPositionBased ModelKind = "position_based"

	// ModelMarkov is reserved for the transition-probability model. It is
	// registered as a kind so stored rows referencing it stay addressable,
	// but no heuristic implementation exists in this engine and UI-facing
	// listings exclude it.
	ModelMarkov ModelKind = "markov_chain"
)

// HeuristicKinds lists the models this engine can compute, in registry order.
func HeuristicKinds() []ModelKind {
	return []ModelKind{
		ModelLastTouch,
		ModelFirstTouch,
		ModelLinear,
		ModelTimeDecay,
		ModelPositionBased,
	}
}

// AttributionResult is one (journey, model, channel) credit assignment.
// For a fixed journey and model the weights across all channel rows sum to
// 1.0 within tolerance, unless the journey had zero touchpoints (no rows).
type AttributionResult struct {
	JourneyID string    `json:"journey_id"`
	Model     ModelKind `json:"attribution_model"`
	Channel   string    `json:"channel"`
	Weight    float64   `json:"attribution_weight"`
	Value     float64   `json:"attribution_value"`
}

// BatchRunStatus tracks a chunked batch run through its lifecycle.
type BatchRunStatus string

const (
	BatchRunCreated  BatchRunStatus = "created"
	BatchRunRunning  BatchRunStatus = "running"
	BatchRunFinished BatchRunStatus = "finished"
)

// BatchRun records one chunked attribution run and its accumulated counters.
type BatchRun struct {
	ID             string         `json:"id"`
	Model          ModelKind      `json:"model"`
	Status         BatchRunStatus `json:"status"`
	ChunkSize      int            `json:"chunk_size"`
	TotalProcessed int            `json:"total_processed"`
	TotalErrors    int            `json:"total_errors"`
	ErrorMessages  []string       `json:"error_messages,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}

// ErrorRate is the fraction of processed journeys that failed.
func (b BatchRun) ErrorRate() float64 {
	if b.TotalProcessed == 0 {
		return 0
	}
	return float64(b.TotalErrors) / float64(b.TotalProcessed)
}

// Duration is the wall-clock run time, zero while the run is in flight.
func (b BatchRun) Duration() time.Duration {
	if b.FinishedAt == nil {
		return 0
	}
	return b.FinishedAt.Sub(b.StartedAt)
}
