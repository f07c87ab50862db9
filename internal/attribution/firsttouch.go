package attribution

import "github.com/sells-group/attribution-cli/internal/model"

// FirstTouch assigns all credit to the channel of the earliest touchpoint,
// with zero-weight rows for the journey's other channels.
type FirstTouch struct{}

func (FirstTouch) Kind() model.ModelKind { return model.ModelFirstTouch }

func (FirstTouch) Compute(_ model.CustomerJourney, tps []model.Touchpoint) map[string]float64 {
	if len(tps) == 0 {
		return map[string]float64{}
	}

	// Strict < means the first-encountered minimum wins a timestamp tie.
	winner := tps[0]
	for _, tp := range tps[1:] {
		if tp.Timestamp.Before(winner.Timestamp) {
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
