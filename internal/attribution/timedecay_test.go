package attribution

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-cli/internal/model"
)

func decayModel() TimeDecay {
	return TimeDecay{Factors: DefaultConfig().Decay}
}

func TestTimeDecay_RecentOutweighsOld(t *testing.T) {
	// B2C journey, touchpoints 5 and 2 days before journey end: the 2-day
	// touchpoint must carry more weight under factor 0.7.
	j := journey(100, 10)
	tps := []model.Touchpoint{
		tp(model.ChannelEmail, 5),      // 5 days before end
		tp(model.ChannelGoogleAds, 8), // 2 days before end
	}

	weights := decayModel().Compute(j, tps)

	assert.Greater(t, weights[model.ChannelGoogleAds], weights[model.ChannelEmail])
	assert.InDelta(t, 1.0, weightSum(weights), DefaultTolerance)
}

func TestTimeDecay_ExactRatios(t *testing.T) {
	j := journey(100, 10)
	tps := []model.Touchpoint{
		tp(model.ChannelEmail, 5),
		tp(model.ChannelGoogleAds, 8),
	}

	weights := decayModel().Compute(j, tps)

	// Raw weights: 0.7^5 and 0.7^2, then normalized.
	rawEmail := math.Pow(DecayModerate, 5)
	rawAds := math.Pow(DecayModerate, 2)
	total := rawEmail + rawAds
	assert.InDelta(t, rawEmail/total, weights[model.ChannelEmail], 1e-9)
	assert.InDelta(t, rawAds/total, weights[model.ChannelGoogleAds], 1e-9)
}

func TestTimeDecay_B2BUsesGentleFactor(t *testing.T) {
	j := journey(100, 10)
	j.CustomerType = model.CustomerTypeB2B
	tps := []model.Touchpoint{
		tp(model.ChannelEmail, 0),
		tp(model.ChannelGoogleAds, 10),
	}

	weights := decayModel().Compute(j, tps)

	// 0.9^10 vs 0.9^0, normalized.
	rawEmail := math.Pow(DecayGentle, 10)
	assert.InDelta(t, rawEmail/(rawEmail+1), weights[model.ChannelEmail], 1e-9)
}

func TestTimeDecay_OverrideBeatsTypePolicy(t *testing.T) {
	m := TimeDecay{Factors: DecayConfig{B2B: DecayGentle, B2C: DecayModerate, Override: DecayAggressive}}
	j := journey(100, 10)
	tps := []model.Touchpoint{
		tp(model.ChannelEmail, 9),  // 1 day before end
		tp(model.ChannelEvents, 7), // 3 days before end
	}

	weights := m.Compute(j, tps)

	rawEmail := math.Pow(DecayAggressive, 1)
	rawEvents := math.Pow(DecayAggressive, 3)
	total := rawEmail + rawEvents
	assert.InDelta(t, rawEmail/total, weights[model.ChannelEmail], 1e-9)
}

func TestTimeDecay_FractionalDaysDecayContinuously(t *testing.T) {
	// Elapsed time is not truncated to whole days: touchpoints 12 hours
	// apart within the same day still decay differently.
	j := journey(100, 10)
	tps := []model.Touchpoint{
		tp(model.ChannelEmail, 9.0),      // 1.0 days before end
		tp(model.ChannelGoogleAds, 9.5), // 0.5 days before end
	}

	weights := decayModel().Compute(j, tps)

	rawEmail := math.Pow(DecayModerate, 1.0)
	rawAds := math.Pow(DecayModerate, 0.5)
	total := rawEmail + rawAds
	assert.InDelta(t, rawEmail/total, weights[model.ChannelEmail], 1e-9)
	assert.InDelta(t, rawAds/total, weights[model.ChannelGoogleAds], 1e-9)
	assert.Greater(t, weights[model.ChannelGoogleAds], weights[model.ChannelEmail])
}

func TestTimeDecay_TouchpointAfterJourneyEndClampedToZeroDays(t *testing.T) {
	j := journey(100, 5)
	tps := []model.Touchpoint{
		tp(model.ChannelEmail, 6), // past the end date
		tp(model.ChannelGoogleAds, 5),
	}

	weights := decayModel().Compute(j, tps)

	// Both clamp to 0 days elapsed, so they split evenly.
	assert.InDelta(t, 0.5, weights[model.ChannelEmail], 1e-9)
	assert.InDelta(t, 0.5, weights[model.ChannelGoogleAds], 1e-9)
}

func TestTimeDecay_RepeatedChannelAccumulatesBeforeNormalizing(t *testing.T) {
	j := journey(100, 10)
	tps := []model.Touchpoint{
		tp(model.ChannelEmail, 8),
		tp(model.ChannelEmail, 9),
		tp(model.ChannelGoogleAds, 9),
	}

	weights := decayModel().Compute(j, tps)

	rawEmail := math.Pow(DecayModerate, 2) + math.Pow(DecayModerate, 1)
	rawAds := math.Pow(DecayModerate, 1)
	total := rawEmail + rawAds
	assert.InDelta(t, rawEmail/total, weights[model.ChannelEmail], 1e-9)
	assert.InDelta(t, 1.0, weightSum(weights), DefaultTolerance)
}

func TestTimeDecay_ZeroTotalFallsBackToEqualSplit(t *testing.T) {
	// Distant enough touchpoints underflow factor^days to zero.
	m := TimeDecay{Factors: DecayConfig{B2B: DecayGentle, B2C: 1e-300}}
	j := journey(100, 4000)
	tps := []model.Touchpoint{
		tp(model.ChannelEmail, 0),
		tp(model.ChannelGoogleAds, 1),
	}

	weights := m.Compute(j, tps)

	require.Len(t, weights, 2)
	assert.InDelta(t, 0.5, weights[model.ChannelEmail], 1e-9)
	assert.InDelta(t, 0.5, weights[model.ChannelGoogleAds], 1e-9)
}

func TestTimeDecay_Empty(t *testing.T) {
	assert.Empty(t, decayModel().Compute(journey(100, 1), nil))
}
