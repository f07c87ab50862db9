package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-cli/internal/model"
)

// Custom object API names for the attribution data model.
const (
	ObjectCustomerJourney   = "Customer_Journey__c"
	ObjectTouchpoint        = "Touchpoint__c"
	ObjectAttributionResult = "Attribution_Result__c"
)

// AttributionResultRecord is a stored Attribution_Result__c row.
type AttributionResultRecord struct {
	ID        string  `json:"Id" salesforce:"Id"`
	JourneyID string  `json:"Journey_ID__c" salesforce:"Journey_ID__c"`
	Model     string  `json:"Attribution_Model__c" salesforce:"Attribution_Model__c"`
	Channel   string  `json:"Channel__c" salesforce:"Channel__c"`
	Weight    float64 `json:"Attribution_Weight__c" salesforce:"Attribution_Weight__c"`
	Value     float64 `json:"Attribution_Value__c" salesforce:"Attribution_Value__c"`
}

// resultFields converts a computed result into Attribution_Result__c fields.
func resultFields(r model.AttributionResult) map[string]any {
	return map[string]any{
		"Journey_ID__c":         r.JourneyID,
		"Attribution_Model__c":  string(r.Model),
		"Channel__c":            r.Channel,
		"Attribution_Weight__c": r.Weight,
		"Attribution_Value__c":  r.Value,
	}
}

// FindResultIDs queries the ids of existing Attribution_Result__c rows for
// the given journeys and model, so a sync can replace them.
func FindResultIDs(ctx context.Context, c Client, journeyIDs []string, kind model.ModelKind) ([]string, error) {
	rows, err := findResultRows(ctx, c, journeyIDs, kind)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

// findResultRows returns the stored Attribution_Result__c rows for the given
// journeys and model, keyed fields included so an update sync can match rows
// by journey and channel.
func findResultRows(ctx context.Context, c Client, journeyIDs []string, kind model.ModelKind) ([]AttributionResultRecord, error) {
	if len(journeyIDs) == 0 {
		return nil, nil
	}

	quoted := make([]string, len(journeyIDs))
	for i, id := range journeyIDs {
		quoted[i] = "'" + escapeSoql(id) + "'"
	}
	soql := fmt.Sprintf(
		"SELECT Id, Journey_ID__c, Channel__c FROM %s WHERE Attribution_Model__c = '%s' AND Journey_ID__c IN (%s)",
		ObjectAttributionResult, escapeSoql(string(kind)), strings.Join(quoted, ", "),
	)

	var rows []AttributionResultRecord
	if err := c.Query(ctx, soql, &rows); err != nil {
		return nil, eris.Wrap(err, "sf: find result rows")
	}
	return rows, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
