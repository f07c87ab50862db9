package attribution

import "github.com/sells-group/attribution-cli/internal/model"

// LastTouch assigns all credit to the channel of the latest touchpoint.
// Every other channel present in the journey still gets a zero-weight row,
// so the result set covers the full channel footprint and the weights sum
// to exactly 1.0.
type LastTouch struct{}

func (LastTouch) Kind() model.ModelKind { return model.ModelLastTouch }

func (LastTouch) Compute(_ model.CustomerJourney, tps []model.Touchpoint) map[string]float64 {
	if len(tps) == 0 {
		return map[string]float64{}
	}

	// Strict > means the first-encountered maximum wins a timestamp tie.
	winner := tps[0]
	for _, tp := range tps[1:] {
		if tp.Timestamp.After(winner.Timestamp) {
			winner = tp
		}
	}

	weights := make(map[string]float64)
	for _, tp := range tps {
		weights[tp.Channel] = 0
	}
	weights[winner.Channel] = 1.0
	return weights
}
