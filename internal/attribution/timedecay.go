package attribution

import (
	"math"

	"github.com/sells-group/attribution-cli/internal/model"
)

// TimeDecay weights touchpoints by recency relative to the journey end.
// Raw weight = factor^(days before journey end), summed per channel and
// normalized so the channel weights total 1.0. The factor comes from the
// customer-type policy (B2B gentle, B2C moderate) unless overridden.
type TimeDecay struct {
	Factors DecayConfig
}

func (TimeDecay) Kind() model.ModelKind { return model.ModelTimeDecay }

func (m TimeDecay) Compute(j model.CustomerJourney, tps []model.Touchpoint) map[string]float64 {
	if len(tps) == 0 {
		return map[string]float64{}
	}

	factor := m.Factors.FactorFor(j.CustomerType)

	// All math stays in float64; rounding happens once, in ToResults.
	raw := make(map[string]float64)
	var total float64
	for _, tp := range tps {
		days := j.EndDate.Sub(tp.Timestamp).Hours() / 24
		if days < 0 {
			days = 0
		}
		w := math.Pow(factor, days)
		raw[tp.Channel] += w
		total += w
	}

	weights := make(map[string]float64, len(raw))
	if total <= 0 {
		// Degenerate input (factor 0 with distant touchpoints underflows to
		// zero). Fall back to equal weight per distinct channel.
		equal := 1.0 / float64(len(raw))
		for ch := range raw {
			weights[ch] = equal
		}
		return weights
	}

	for ch, w := range raw {
		weights[ch] = w / total
	}
	return weights
}
