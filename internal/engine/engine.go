// Package engine computes and persists multi-touch attribution for
// customer journeys. It glues the model registry to the store: single and
// batch calculation, delete-then-insert persistence, and weight-sum
// validation.
package engine

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-cli/internal/attribution"
	"github.com/sells-group/attribution-cli/internal/model"
	"github.com/sells-group/attribution-cli/internal/store"
)

// Engine orchestrates attribution calculation against a store.
type Engine struct {
	store    store.Store
	registry *attribution.Registry
	cfg      attribution.Config
}

// New creates an Engine over the given store and model registry.
func New(st store.Store, registry *attribution.Registry, cfg attribution.Config) *Engine {
	return &Engine{store: st, registry: registry, cfg: cfg}
}

// CalculateAttribution computes results for a single journey without
// persisting them.
func (e *Engine) CalculateAttribution(ctx context.Context, journeyID string, kind model.ModelKind) ([]model.AttributionResult, error) {
	if journeyID == "" {
		return nil, eris.Wrap(ErrInvalidArgument, "engine: journey id required")
	}

	results, err := e.CalculateAttributionBatch(ctx, []string{journeyID}, kind)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		// Distinguish a missing journey from one with zero touchpoints.
		journeys, err := e.store.GetJourneysByIDs(ctx, []string{journeyID})
		if err != nil {
			return nil, eris.Wrap(err, "engine: load journey")
		}
		if len(journeys) == 0 {
			return nil, eris.Wrapf(ErrJourneyNotFound, "engine: %s", journeyID)
		}
	}
	return results, nil
}

// CalculateAttributionBatch computes results for many journeys in two bulk
// loads. Journeys absent from the store or without touchpoints contribute
// no rows. The result is never nil.
func (e *Engine) CalculateAttributionBatch(ctx context.Context, journeyIDs []string, kind model.ModelKind) ([]model.AttributionResult, error) {
	m, ok := e.registry.Get(kind)
	if !ok {
		return nil, eris.Wrapf(ErrInvalidArgument, "engine: unknown model kind %q", kind)
	}
	if len(journeyIDs) == 0 {
		return []model.AttributionResult{}, nil
	}

	journeys, err := e.store.GetJourneysByIDs(ctx, journeyIDs)
	if err != nil {
		return nil, eris.Wrap(err, "engine: load journeys")
	}
	touchpoints, err := e.store.GetTouchpointsByJourneyIDs(ctx, journeyIDs)
	if err != nil {
		return nil, eris.Wrap(err, "engine: load touchpoints")
	}

	byJourney := make(map[string][]model.Touchpoint, len(journeys))
	for _, tp := range touchpoints {
		byJourney[tp.JourneyID] = append(byJourney[tp.JourneyID], tp)
	}

	journeyByID := make(map[string]model.CustomerJourney, len(journeys))
	for _, j := range journeys {
		journeyByID[j.ID] = j
	}

	results := make([]model.AttributionResult, 0, len(touchpoints))
	for _, id := range journeyIDs {
		j, ok := journeyByID[id]
		if !ok {
			continue
		}
		tps := byJourney[id]
		if len(tps) == 0 {
			continue
		}
		model.SortTouchpoints(tps)

		weights := m.Compute(j, tps)
		results = append(results, attribution.ToResults(j, kind, weights)...)
	}
	return results, nil
}

// TriggerAttributionCalculation computes and persists results for the given
// journeys, replacing any prior rows for the same model in one transaction.
// Persistence is row-tolerant: the returned outcomes report per-row success
// and must be inspected by the caller.
func (e *Engine) TriggerAttributionCalculation(ctx context.Context, journeyIDs []string, kind model.ModelKind) ([]store.RowOutcome, error) {
	results, err := e.CalculateAttributionBatch(ctx, journeyIDs, kind)
	if err != nil {
		return nil, err
	}
	if !e.ValidateAttributionResults(results) {
		return nil, eris.Errorf("engine: %s weights failed validation for %d journeys", kind, len(journeyIDs))
	}

	outcomes, err := e.store.ReplaceAttributionResults(ctx, journeyIDs, kind, results)
	if err != nil {
		return nil, eris.Wrap(err, "engine: replace results")
	}

	for _, o := range outcomes {
		if !o.Success {
			zap.L().Warn("attribution row failed to persist",
				zap.String("journey_id", o.JourneyID),
				zap.String("channel", o.Channel),
				zap.String("model", string(kind)),
				zap.String("error", o.Error),
			)
		}
	}
	return outcomes, nil
}

// ValidateAttributionResults reports whether every journey's weights sum to
// 1.0 within the configured tolerance.
func (e *Engine) ValidateAttributionResults(results []model.AttributionResult) bool {
	return attribution.ValidateResults(results, e.cfg.Tolerance)
}

// FailedJourneys returns the distinct journey ids with at least one failed
// row, in first-seen order.
func FailedJourneys(outcomes []store.RowOutcome) []string {
	seen := make(map[string]bool)
	var failed []string
	for _, o := range outcomes {
		if !o.Success && !seen[o.JourneyID] {
			seen[o.JourneyID] = true
			failed = append(failed, o.JourneyID)
		}
	}
	return failed
}
