// Package attribution implements the heuristic multi-touch attribution
// models and the descriptive statistics computed over their output.
//
// Every model obeys the same contract: given a journey and its touchpoints
// ordered by timestamp ascending, it returns a per-channel weight map whose
// values sum to 1.0, or an empty map when the journey has no touchpoints.
package attribution

import (
	"math"
	"sort"

	"github.com/sells-group/attribution-cli/internal/model"
)

// Model computes per-channel credit weights for one journey.
type Model interface {
	Kind() model.ModelKind
	// Compute expects tps sorted by timestamp ascending (the canonical
	// touch order). It never mutates its inputs.
	Compute(j model.CustomerJourney, tps []model.Touchpoint) map[string]float64
}

// Registry holds the constructed models keyed by kind. The Markov model is a
// known kind but is never registered here; callers listing kinds for UI
// pickers get only the heuristic set.
type Registry struct {
	models map[model.ModelKind]Model
	order  []model.ModelKind
}

// NewRegistry builds all heuristic models from cfg.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{models: make(map[model.ModelKind]Model)}
	for _, m := range []Model{
		LastTouch{},
		FirstTouch{},
		Linear{},
		TimeDecay{Factors: cfg.Decay},
		PositionBased{Shares: cfg.Position},
	} {
		r.models[m.Kind()] = m
		r.order = append(r.order, m.Kind())
	}
	return r
}

// Get returns the model for kind, or false if the kind is unknown or not
// computable by this engine (e.g. markov_chain).
func (r *Registry) Get(kind model.ModelKind) (Model, bool) {
	m, ok := r.models[kind]
	return m, ok
}

// Kinds returns the computable model kinds in registry order.
func (r *Registry) Kinds() []model.ModelKind {
	out := make([]model.ModelKind, len(r.order))
	copy(out, r.order)
	return out
}

// ToResults converts a weight map into attribution rows for the journey,
// multiplying each weight by the journey's conversion value. Rows come back
// sorted by channel so output is deterministic. Weights and values are
// rounded only here, after all model math has run in float64.
func ToResults(j model.CustomerJourney, kind model.ModelKind, weights map[string]float64) []model.AttributionResult {
	if len(weights) == 0 {
		return nil
	}

	channels := make([]string, 0, len(weights))
	for ch := range weights {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	results := make([]model.AttributionResult, 0, len(channels))
	for _, ch := range channels {
		w := weights[ch]
		results = append(results, model.AttributionResult{
			JourneyID: j.ID,
			Model:     kind,
			Channel:   ch,
			Weight:    round6(w),
			Value:     round6(j.ConversionValue * w),
		})
	}
	return results
}

// round6 rounds to 6 decimal places, the precision of the stored decimal.
func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
