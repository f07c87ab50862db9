package attribution

import "github.com/sells-group/attribution-cli/internal/model"

// Linear gives every touchpoint an equal 1/N share. A channel touched k
// times accumulates k/N, so repetition is rewarded proportionally.
type Linear struct{}

func (Linear) Kind() model.ModelKind { return model.ModelLinear }

func (Linear) Compute(_ model.CustomerJourney, tps []model.Touchpoint) map[string]float64 {
	if len(tps) == 0 {
		return map[string]float64{}
	}

	share := 1.0 / float64(len(tps))
	weights := make(map[string]float64)
	for _, tp := range tps {
		weights[tp.Channel] += share
	}
	return weights
}
