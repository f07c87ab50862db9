package model

import (
	"sort"
	"time"
)

// CustomerType distinguishes the two decay policies the business runs.
type CustomerType string

const (
	CustomerTypeB2B CustomerType = "B2B"
	CustomerTypeB2C CustomerType = "B2C"
)

// ConfidenceLevel buckets the identity-resolution confidence the journey
// assembler attaches to each journey.
type ConfidenceLevel string

const (
	ConfidenceHigh      ConfidenceLevel = "high"
	ConfidenceMedium    ConfidenceLevel = "medium"
	ConfidenceLow       ConfidenceLevel = "low"
	ConfidenceUnmatched ConfidenceLevel = "unmatched"
)

// Well-known channel identifiers produced by the channel generators.
// Channel is an open vocabulary; these are the eight the platform emits today.
const (
	ChannelGoogleAds     = "google_ads"
	ChannelFacebookAds   = "facebook_ads"
	ChannelEmail         = "email_marketing"
	ChannelLinkedInAds   = "linkedin_ads"
	ChannelEvents        = "events"
	ChannelContentSEO    = "content_website_seo"
	ChannelAppStore      = "app_store"
	ChannelOrganicSocial = "organic_social"
)

// CustomerJourney is one customer's path to (non-)conversion. Journeys are
// assembled upstream and are read-only to the attribution engine.
type CustomerJourney struct {
	ID               string          `json:"journey_id"`
	CustomerID       string          `json:"customer_id"`
	CustomerType     CustomerType    `json:"customer_type"`
	Converted        bool            `json:"converted"`
	ConversionValue  float64         `json:"conversion_value"`
	StartDate        time.Time       `json:"start_timestamp"`
	EndDate          time.Time       `json:"end_timestamp"`
	TotalTouchpoints int             `json:"total_touchpoints"`
	ConfidenceScore  float64         `json:"confidence_score,omitempty"`
	ConfidenceLevel  ConfidenceLevel `json:"confidence_level,omitempty"`
}

// DurationDays is the journey span in whole days, never negative.
func (j CustomerJourney) DurationDays() int {
	d := j.EndDate.Sub(j.StartDate)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// Touchpoint is one interaction event within a journey. Timestamp is the sole
// ordering key; touchpoints of one journey sorted by timestamp ascending form
// the canonical touch order every model consumes.
type Touchpoint struct {
	ID         string    `json:"touchpoint_id"`
	JourneyID  string    `json:"journey_id"`
	Channel    string    `json:"channel"`
	Timestamp  time.Time `json:"timestamp"`
	CampaignID string    `json:"campaign_id,omitempty"`
}

// SortTouchpoints orders tps by timestamp ascending in place, keeping the
// original order for equal timestamps so first/last-touch tie-breaks stay
// stable across loads.
func SortTouchpoints(tps []Touchpoint) {
	sort.SliceStable(tps, func(i, j int) bool {
		return tps[i].Timestamp.Before(tps[j].Timestamp)
	})
}
