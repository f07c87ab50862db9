package attribution

import (
	"math"
	"sort"

	"github.com/sells-group/attribution-cli/internal/model"
)

// ModelWeights is the average channel weight per model, the common shape the
// comparison functions consume. Channels absent from a model's map are
// treated as weight 0 when vectors are aligned.
type ModelWeights map[model.ModelKind]map[string]float64

// AverageChannelWeights reduces attribution rows to per-model average channel
// weights. The average is over the journeys a channel appears in for that
// model, so zero-weight rows (last/first touch losers) pull the mean down
// exactly as they do in the source reports.
func AverageChannelWeights(results []model.AttributionResult) ModelWeights {
	type acc struct {
		sum float64
		n   int
	}
	accs := make(map[model.ModelKind]map[string]*acc)

	for _, r := range results {
		byChannel, ok := accs[r.Model]
		if !ok {
			byChannel = make(map[string]*acc)
			accs[r.Model] = byChannel
		}
		a, ok := byChannel[r.Channel]
		if !ok {
			a = &acc{}
			byChannel[r.Channel] = a
		}
		a.sum += r.Weight
		a.n++
	}

	out := make(ModelWeights, len(accs))
	for kind, byChannel := range accs {
		weights := make(map[string]float64, len(byChannel))
		for ch, a := range byChannel {
			weights[ch] = a.sum / float64(a.n)
		}
		out[kind] = weights
	}
	return out
}

// ChannelSpread summarizes how much the models disagree about one channel.
type ChannelSpread struct {
	Channel  string  `json:"channel"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Range    float64 `json:"range"`
	Variance float64 `json:"variance"`
}

// CompareChannels computes per-channel min/max/mean/range of average weight
// across the given models. Channels missing from a model count as 0 there.
// Results come back sorted by channel.
func CompareChannels(mw ModelWeights, kinds []model.ModelKind) []ChannelSpread {
	if len(kinds) == 0 {
		return nil
	}

	channels := unionChannels(mw, kinds)
	spreads := make([]ChannelSpread, 0, len(channels))
	for _, ch := range channels {
		s := ChannelSpread{Channel: ch, Min: math.Inf(1), Max: math.Inf(-1)}
		var sum float64
		for _, kind := range kinds {
			w := mw[kind][ch]
			sum += w
			if w < s.Min {
				s.Min = w
			}
			if w > s.Max {
				s.Max = w
			}
		}
		s.Mean = sum / float64(len(kinds))
		s.Range = s.Max - s.Min
		for _, kind := range kinds {
			d := mw[kind][ch] - s.Mean
			s.Variance += d * d
		}
		s.Variance /= float64(len(kinds))
		spreads = append(spreads, s)
	}
	return spreads
}

// CorrelationMatrix is a symmetric model×model Pearson correlation matrix
// over channel-aligned average-weight vectors.
type CorrelationMatrix struct {
	Kinds  []model.ModelKind `json:"models"`
	Values [][]float64       `json:"values"`
}

// Correlate builds the Pearson matrix for the given model kinds. The diagonal
// is 1 by definition; a pair where either vector is constant yields 0.
func Correlate(mw ModelWeights, kinds []model.ModelKind) CorrelationMatrix {
	channels := unionChannels(mw, kinds)

	vectors := make([][]float64, len(kinds))
	for i, kind := range kinds {
		vec := make([]float64, len(channels))
		for k, ch := range channels {
			vec[k] = mw[kind][ch]
		}
		vectors[i] = vec
	}

	values := make([][]float64, len(kinds))
	for i := range kinds {
		values[i] = make([]float64, len(kinds))
		values[i][i] = 1
		for k := 0; k < i; k++ {
			r := pearson(vectors[i], vectors[k])
			values[i][k] = r
			values[k][i] = r
		}
	}
	return CorrelationMatrix{Kinds: kinds, Values: values}
}

// RankShift reports how a channel's ranking moves between two models.
// Rank 1 is the highest-weighted channel; positive Shift means the channel
// ranks better (closer to 1) under the second model.
type RankShift struct {
	Channel  string `json:"channel"`
	RankFrom int    `json:"rank_from"`
	RankTo   int    `json:"rank_to"`
	Shift    int    `json:"shift"`
}

// RankMovement compares channel rankings between two models, sorted by the
// magnitude of movement descending, then channel.
func RankMovement(mw ModelWeights, from, to model.ModelKind) []RankShift {
	channels := unionChannels(mw, []model.ModelKind{from, to})
	if len(channels) == 0 {
		return nil
	}

	fromRanks := rankChannels(mw[from], channels)
	toRanks := rankChannels(mw[to], channels)

	shifts := make([]RankShift, 0, len(channels))
	for _, ch := range channels {
		shifts = append(shifts, RankShift{
			Channel:  ch,
			RankFrom: fromRanks[ch],
			RankTo:   toRanks[ch],
			Shift:    fromRanks[ch] - toRanks[ch],
		})
	}
	sort.Slice(shifts, func(i, j int) bool {
		ai, aj := abs(shifts[i].Shift), abs(shifts[j].Shift)
		if ai != aj {
			return ai > aj
		}
		return shifts[i].Channel < shifts[j].Channel
	})
	return shifts
}

// rankChannels assigns dense 1-based ranks by descending weight, ties broken
// by channel name for determinism.
func rankChannels(weights map[string]float64, channels []string) map[string]int {
	ordered := make([]string, len(channels))
	copy(ordered, channels)
	sort.Slice(ordered, func(i, j int) bool {
		wi, wj := weights[ordered[i]], weights[ordered[j]]
		if wi != wj {
			return wi > wj
		}
		return ordered[i] < ordered[j]
	})

	ranks := make(map[string]int, len(ordered))
	for i, ch := range ordered {
		ranks[ch] = i + 1
	}
	return ranks
}

// unionChannels returns the sorted union of channels across the given models.
func unionChannels(mw ModelWeights, kinds []model.ModelKind) []string {
	seen := make(map[string]struct{})
	for _, kind := range kinds {
		for ch := range mw[kind] {
			seen[ch] = struct{}{}
		}
	}
	channels := make([]string, 0, len(seen))
	for ch := range seen {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

// pearson computes the Pearson correlation coefficient of two equal-length
// vectors. Returns 0 when either vector has zero variance.
func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}

	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range x {
		dx, dy := x[i]-meanX, y[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
