package attribution

import "github.com/sells-group/attribution-cli/internal/model"

// PositionBased gives fixed shares to the first and last touchpoint and
// spreads the middle share evenly across everything in between.
//
// Boundary behavior:
//   - 1 touchpoint: that channel gets 1.0.
//   - 2 touchpoints: first and last shares only, normalized (defaults
//     0.4/0.4 → 0.5/0.5).
//   - N ≥ 3: first, last, and middle/(N-2) per middle touchpoint, normalized
//     in case the configured shares do not sum to 1.
type PositionBased struct {
	Shares PositionConfig
}

func (PositionBased) Kind() model.ModelKind { return model.ModelPositionBased }

func (m PositionBased) Compute(_ model.CustomerJourney, tps []model.Touchpoint) map[string]float64 {
	n := len(tps)
	if n == 0 {
		return map[string]float64{}
	}

	weights := make(map[string]float64)

	switch n {
	case 1:
		weights[tps[0].Channel] = 1.0
		return weights
	case 2:
		weights[tps[0].Channel] += m.Shares.First
		weights[tps[1].Channel] += m.Shares.Last
	default:
		middle := m.Shares.Middle / float64(n-2)
		weights[tps[0].Channel] += m.Shares.First
		for _, tp := range tps[1 : n-1] {
			weights[tp.Channel] += middle
		}
		weights[tps[n-1].Channel] += m.Shares.Last
	}

	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		equal := 1.0 / float64(len(weights))
		for ch := range weights {
			weights[ch] = equal
		}
		return weights
	}
	for ch, w := range weights {
		weights[ch] = w / total
	}
	return weights
}
