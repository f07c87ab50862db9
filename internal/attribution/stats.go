package attribution

import "github.com/sells-group/attribution-cli/internal/model"

// ChannelStatistics is a descriptive summary of a set of touchpoints, used
// for per-model reporting and as input to cross-model comparison.
type ChannelStatistics struct {
	TotalTouchpoints         int            `json:"total_touchpoints"`
	UniqueChannels           int            `json:"unique_channels"`
	ChannelCounts            map[string]int `json:"channel_counts"`
	AttributionPerTouchpoint float64        `json:"attribution_per_touchpoint"`
}

// GetChannelStatistics aggregates touchpoint counts per channel.
func GetChannelStatistics(tps []model.Touchpoint) ChannelStatistics {
	stats := ChannelStatistics{
		ChannelCounts: make(map[string]int),
	}

	for _, tp := range tps {
		stats.ChannelCounts[tp.Channel]++
	}
	stats.TotalTouchpoints = len(tps)
	stats.UniqueChannels = len(stats.ChannelCounts)
	if stats.TotalTouchpoints > 0 {
		stats.AttributionPerTouchpoint = 1.0 / float64(stats.TotalTouchpoints)
	}
	return stats
}
