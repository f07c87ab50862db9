package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/attribution-cli/internal/model"
)

func result(journeyID, channel string, weight float64) model.AttributionResult {
	return model.AttributionResult{
		JourneyID: journeyID,
		Model:     model.ModelLinear,
		Channel:   channel,
		Weight:    weight,
	}
}

func TestValidateResults_Valid(t *testing.T) {
	results := []model.AttributionResult{
		result("j1", model.ChannelGoogleAds, 0.6),
		result("j1", model.ChannelEmail, 0.4),
		result("j2", model.ChannelEvents, 1.0),
	}

	assert.True(t, ValidateResults(results, DefaultTolerance))
}

func TestValidateResults_WithinTolerance(t *testing.T) {
	results := []model.AttributionResult{
		result("j1", model.ChannelGoogleAds, 0.3334),
		result("j1", model.ChannelEmail, 0.3333),
		result("j1", model.ChannelEvents, 0.3333),
	}

	assert.True(t, ValidateResults(results, DefaultTolerance))
}

func TestValidateResults_SumTooLow(t *testing.T) {
	results := []model.AttributionResult{
		result("j1", model.ChannelGoogleAds, 0.5),
		result("j1", model.ChannelEmail, 0.4),
	}

	assert.False(t, ValidateResults(results, DefaultTolerance))
}

func TestValidateResults_SumTooHigh(t *testing.T) {
	results := []model.AttributionResult{
		result("j1", model.ChannelGoogleAds, 0.7),
		result("j1", model.ChannelEmail, 0.5),
	}

	assert.False(t, ValidateResults(results, DefaultTolerance))
}

func TestValidateResults_OneBadJourneyFailsTheSet(t *testing.T) {
	results := []model.AttributionResult{
		result("j1", model.ChannelGoogleAds, 1.0),
		result("j2", model.ChannelEmail, 0.8),
	}

	assert.False(t, ValidateResults(results, DefaultTolerance))
}

func TestValidateResults_EmptyIsVacuouslyTrue(t *testing.T) {
	assert.True(t, ValidateResults(nil, DefaultTolerance))
}

func TestValidateResults_ZeroToleranceFallsBackToDefault(t *testing.T) {
	results := []model.AttributionResult{
		result("j1", model.ChannelGoogleAds, 0.9999),
	}

	assert.True(t, ValidateResults(results, 0))
}
