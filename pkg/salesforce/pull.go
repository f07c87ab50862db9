package salesforce

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-cli/internal/model"
	"github.com/sells-group/attribution-cli/internal/resilience"
)

// journeyRecord is a Customer_Journey__c row as SOQL returns it.
type journeyRecord struct {
	JourneyID        string  `json:"Journey_ID__c"`
	CustomerID       string  `json:"Customer_ID__c"`
	CustomerType     string  `json:"Customer_Type__c"`
	Converted        bool    `json:"Converted__c"`
	ConversionValue  float64 `json:"Conversion_Value__c"`
	StartTimestamp   string  `json:"Start_Timestamp__c"`
	EndTimestamp     string  `json:"End_Timestamp__c"`
	TotalTouchpoints int     `json:"Total_Touchpoints__c"`
	ConfidenceScore  float64 `json:"Confidence_Score__c"`
	ConfidenceLevel  string  `json:"Confidence_Level__c"`
}

// touchpointRecord is a Touchpoint__c row as SOQL returns it.
type touchpointRecord struct {
	TouchpointID string `json:"Touchpoint_ID__c"`
	JourneyID    string `json:"Journey_ID__c"`
	Channel      string `json:"Channel__c"`
	Timestamp    string `json:"Timestamp__c"`
	CampaignID   string `json:"Campaign_ID__c"`
}

// PullJourneys reads journeys modified since the given time, with their
// touchpoints, from the CRM. A zero since pulls everything.
func (s *Syncer) PullJourneys(ctx context.Context, since time.Time) ([]model.CustomerJourney, []model.Touchpoint, error) {
	where := ""
	if !since.IsZero() {
		where = " WHERE LastModifiedDate >= " + since.UTC().Format(time.RFC3339)
	}

	journeySOQL := fmt.Sprintf(
		"SELECT Journey_ID__c, Customer_ID__c, Customer_Type__c, Converted__c, Conversion_Value__c,"+
			" Start_Timestamp__c, End_Timestamp__c, Total_Touchpoints__c, Confidence_Score__c, Confidence_Level__c"+
			" FROM %s%s", ObjectCustomerJourney, where,
	)
	jRows, err := queryWithResilience[journeyRecord](ctx, s, journeySOQL)
	if err != nil {
		return nil, nil, eris.Wrap(err, "sf: pull journeys")
	}

	touchSOQL := fmt.Sprintf(
		"SELECT Touchpoint_ID__c, Journey_ID__c, Channel__c, Timestamp__c, Campaign_ID__c FROM %s%s",
		ObjectTouchpoint, where,
	)
	tRows, err := queryWithResilience[touchpointRecord](ctx, s, touchSOQL)
	if err != nil {
		return nil, nil, eris.Wrap(err, "sf: pull touchpoints")
	}

	journeys := make([]model.CustomerJourney, 0, len(jRows))
	for _, row := range jRows {
		j, err := row.toJourney()
		if err != nil {
			return nil, nil, err
		}
		journeys = append(journeys, j)
	}

	touchpoints := make([]model.Touchpoint, 0, len(tRows))
	for _, row := range tRows {
		tp, err := row.toTouchpoint()
		if err != nil {
			return nil, nil, err
		}
		touchpoints = append(touchpoints, tp)
	}

	return journeys, touchpoints, nil
}

func queryWithResilience[T any](ctx context.Context, s *Syncer, soql string) ([]T, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]T, error) {
		return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) ([]T, error) {
			var rows []T
			if err := s.client.Query(ctx, soql, &rows); err != nil {
				return nil, err
			}
			return rows, nil
		})
	})
}

func (r journeyRecord) toJourney() (model.CustomerJourney, error) {
	start, err := parseSFTime(r.StartTimestamp)
	if err != nil {
		return model.CustomerJourney{}, eris.Wrapf(err, "sf: journey %s start", r.JourneyID)
	}
	end, err := parseSFTime(r.EndTimestamp)
	if err != nil {
		return model.CustomerJourney{}, eris.Wrapf(err, "sf: journey %s end", r.JourneyID)
	}
	return model.CustomerJourney{
		ID:               r.JourneyID,
		CustomerID:       r.CustomerID,
		CustomerType:     model.CustomerType(r.CustomerType),
		Converted:        r.Converted,
		ConversionValue:  r.ConversionValue,
		StartDate:        start,
		EndDate:          end,
		TotalTouchpoints: r.TotalTouchpoints,
		ConfidenceScore:  r.ConfidenceScore,
		ConfidenceLevel:  model.ConfidenceLevel(r.ConfidenceLevel),
	}, nil
}

func (r touchpointRecord) toTouchpoint() (model.Touchpoint, error) {
	ts, err := parseSFTime(r.Timestamp)
	if err != nil {
		return model.Touchpoint{}, eris.Wrapf(err, "sf: touchpoint %s", r.TouchpointID)
	}
	return model.Touchpoint{
		ID:         r.TouchpointID,
		JourneyID:  r.JourneyID,
		Channel:    r.Channel,
		Timestamp:  ts,
		CampaignID: r.CampaignID,
	}, nil
}

// parseSFTime accepts the two datetime renderings the REST API emits.
func parseSFTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000-0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("sf: unparseable datetime %q", s)
}
