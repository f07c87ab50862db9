package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/attribution-cli/internal/model"
)

func TestGetChannelStatistics(t *testing.T) {
	tps := []model.Touchpoint{
		tp(model.ChannelGoogleAds, 0),
		tp(model.ChannelEmail, 1),
		tp(model.ChannelGoogleAds, 2),
		tp(model.ChannelEvents, 3),
	}

	stats := GetChannelStatistics(tps)

	assert.Equal(t, 4, stats.TotalTouchpoints)
	assert.Equal(t, 3, stats.UniqueChannels)
	assert.Equal(t, 2, stats.ChannelCounts[model.ChannelGoogleAds])
	assert.Equal(t, 1, stats.ChannelCounts[model.ChannelEmail])
	assert.Equal(t, 1, stats.ChannelCounts[model.ChannelEvents])
	assert.InDelta(t, 0.25, stats.AttributionPerTouchpoint, 1e-9)
}

func TestGetChannelStatistics_Empty(t *testing.T) {
	stats := GetChannelStatistics(nil)

	assert.Equal(t, 0, stats.TotalTouchpoints)
	assert.Equal(t, 0, stats.UniqueChannels)
	assert.Empty(t, stats.ChannelCounts)
	assert.Equal(t, 0.0, stats.AttributionPerTouchpoint)
}

func TestGetChannelStatistics_SingleChannel(t *testing.T) {
	tps := []model.Touchpoint{
		tp(model.ChannelEmail, 0),
		tp(model.ChannelEmail, 1),
	}

	stats := GetChannelStatistics(tps)

	assert.Equal(t, 1, stats.UniqueChannels)
	assert.Equal(t, 2, stats.ChannelCounts[model.ChannelEmail])
	assert.InDelta(t, 0.5, stats.AttributionPerTouchpoint, 1e-9)
}
