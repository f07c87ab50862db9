package importer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/attribution-cli/internal/model"
)

const sampleCSV = `journey_id,customer_id,customer_type,converted,conversion_value,start_timestamp,end_timestamp,confidence_score,confidence_level,touchpoint_id,channel,timestamp,campaign_id
j1,c1,B2C,true,1200,2025-06-01T00:00:00Z,2025-06-10T00:00:00Z,0.92,HIGH,t1,google_ads,2025-06-01T08:00:00Z,camp-1
j1,c1,B2C,true,1200,2025-06-01T00:00:00Z,2025-06-10T00:00:00Z,0.92,HIGH,t2,email_marketing,2025-06-03T08:00:00Z,
j2,c2,B2B,false,0,2025-06-02T00:00:00Z,2025-06-05T00:00:00Z,0.40,LOW,t3,events,2025-06-02T12:00:00Z,
`

func TestParseJourneysCSV(t *testing.T) {
	docs, skipped, err := ParseJourneysCSV(context.Background(), strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, docs, 2)

	j1 := docs[0]
	assert.Equal(t, "j1", j1.ID)
	assert.Equal(t, "c1", j1.CustomerID)
	assert.Equal(t, model.CustomerTypeB2C, j1.CustomerType)
	assert.True(t, j1.Converted)
	assert.Equal(t, 1200.0, j1.ConversionValue)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), j1.StartDate)
	assert.Equal(t, 0.92, j1.ConfidenceScore)
	assert.Equal(t, model.ConfidenceHigh, j1.ConfidenceLevel)
	assert.Equal(t, 2, j1.TotalTouchpoints)
	require.Len(t, j1.Touchpoints, 2)
	assert.Equal(t, "google_ads", j1.Touchpoints[0].Channel)
	assert.Equal(t, "camp-1", j1.Touchpoints[0].CampaignID)
	assert.Equal(t, "j1", j1.Touchpoints[0].JourneyID)

	j2 := docs[1]
	assert.Equal(t, model.CustomerTypeB2B, j2.CustomerType)
	assert.False(t, j2.Converted)
	assert.Equal(t, model.ConfidenceLow, j2.ConfidenceLevel)
	require.Len(t, j2.Touchpoints, 1)
}

func TestParseJourneysCSV_SkipsMalformedRows(t *testing.T) {
	input := sampleCSV +
		",c9,B2C,true,10,2025-06-01T00:00:00Z,2025-06-02T00:00:00Z,0.5,low,t9,google_ads,2025-06-01T09:00:00Z,\n" +
		"j9,c9,B2C,true,10,2025-06-01T00:00:00Z,2025-06-02T00:00:00Z,0.5,low,t9,google_ads,not-a-timestamp,\n"

	docs, skipped, err := ParseJourneysCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, 2, skipped)
}

func TestParseJourneysCSV_MissingJourneyColumn(t *testing.T) {
	_, _, err := ParseJourneysCSV(context.Background(), strings.NewReader("customer_id,channel\nc1,email\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journey_id")
}

func TestParseJourneysCSV_Windows1252Fallback(t *testing.T) {
	// "Café" encoded as windows-1252 is invalid UTF-8 (lone 0xE9 byte).
	raw := strings.Replace(sampleCSV, "c1", "Café", 2)
	encoded, err := charmap.Windows1252.NewEncoder().String(raw)
	require.NoError(t, err)

	docs, _, err := ParseJourneysCSV(context.Background(), strings.NewReader(encoded))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Café", docs[0].CustomerID)
}

func TestParseJourneysCSV_AlternateTimestampLayouts(t *testing.T) {
	input := "journey_id,customer_id,customer_type,converted,conversion_value,start_timestamp,end_timestamp,touchpoint_id,channel,timestamp\n" +
		"j1,c1,B2C,1,100,2025-06-01,2025-06-03,t1,email_marketing,2025-06-02 14:30:00\n"

	docs, skipped, err := ParseJourneysCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, docs, 1)
	assert.True(t, docs[0].Converted)
	assert.Equal(t, time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC), docs[0].Touchpoints[0].Timestamp)
}

func TestParseJourneysCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := ParseJourneysCSV(ctx, strings.NewReader(sampleCSV))
	require.Error(t, err)
}
