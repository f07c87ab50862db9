package attribution

import (
	"math"

	"github.com/sells-group/attribution-cli/internal/model"
)

// ValidateResults checks the weight-sum invariant: grouped by journey, the
// attribution weights must total 1.0 within tolerance. Empty input is
// vacuously valid. Callers pass the output of a single model run; mixing
// models for one journey in the same slice will (correctly) fail.
func ValidateResults(results []model.AttributionResult, tolerance float64) bool {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	sums := make(map[string]float64)
	for _, r := range results {
		sums[r.JourneyID] += r.Weight
	}

	for _, sum := range sums {
		if math.Abs(sum-1.0) > tolerance {
			return false
		}
	}
	return true
}
