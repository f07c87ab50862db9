package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-cli/internal/model"
)

func TestLastTouch_LatestWins(t *testing.T) {
	j := journey(100, 10)
	tps := []model.Touchpoint{
		tp(model.ChannelGoogleAds, 1),
		tp(model.ChannelEmail, 4),
		tp(model.ChannelFacebookAds, 8),
	}

	weights := LastTouch{}.Compute(j, tps)

	assert.Equal(t, 1.0, weights[model.ChannelFacebookAds])
	assert.Equal(t, 0.0, weights[model.ChannelGoogleAds])
	assert.Equal(t, 0.0, weights[model.ChannelEmail])
}

func TestLastTouch_RepeatedChannelWinsByLastEvent(t *testing.T) {
	// [A@t1, B@t2, A@t3]: A wins with 1.0, B gets an explicit zero row.
	j := journey(100, 10)
	tps := []model.Touchpoint{
		tp(model.ChannelGoogleAds, 1),
		tp(model.ChannelEmail, 2),
		tp(model.ChannelGoogleAds, 3),
	}

	weights := LastTouch{}.Compute(j, tps)

	require.Len(t, weights, 2)
	assert.Equal(t, 1.0, weights[model.ChannelGoogleAds])
	assert.Equal(t, 0.0, weights[model.ChannelEmail])
	assert.InDelta(t, 1.0, weightSum(weights), DefaultTolerance)
}

func TestLastTouch_TimestampTie_FirstEncounteredWins(t *testing.T) {
	j := journey(100, 10)
	tps := []model.Touchpoint{
		tp(model.ChannelEmail, 5),
		tp(model.ChannelGoogleAds, 5),
	}

	weights := LastTouch{}.Compute(j, tps)

	assert.Equal(t, 1.0, weights[model.ChannelEmail])
	assert.Equal(t, 0.0, weights[model.ChannelGoogleAds])
}

func TestLastTouch_ZeroWeightRowsCoverAllChannels(t *testing.T) {
	j := journey(100, 10)
	tps := []model.Touchpoint{
		tp(model.ChannelGoogleAds, 1),
		tp(model.ChannelEmail, 2),
		tp(model.ChannelEvents, 3),
		tp(model.ChannelAppStore, 4),
	}

	weights := LastTouch{}.Compute(j, tps)

	require.Len(t, weights, 4)
	results := ToResults(j, model.ModelLastTouch, weights)
	assert.Len(t, results, 4)
}

func TestLastTouch_Empty(t *testing.T) {
	assert.Empty(t, LastTouch{}.Compute(journey(100, 1), nil))
}
