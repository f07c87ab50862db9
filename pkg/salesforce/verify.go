package salesforce

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-cli/internal/resilience"
)

// syncedObjectFields lists the custom fields each synced object must expose.
// A sync against an org missing any of these would fail row by row, so a
// verification pass checks the schema up front.
var syncedObjectFields = map[string][]string{
	ObjectCustomerJourney: {
		"Journey_ID__c", "Customer_ID__c", "Customer_Type__c", "Converted__c",
		"Conversion_Value__c", "Start_Timestamp__c", "End_Timestamp__c",
		"Total_Touchpoints__c", "Confidence_Score__c", "Confidence_Level__c",
	},
	ObjectTouchpoint: {
		"Touchpoint_ID__c", "Journey_ID__c", "Channel__c", "Timestamp__c",
		"Campaign_ID__c",
	},
	ObjectAttributionResult: {
		"Journey_ID__c", "Attribution_Model__c", "Channel__c",
		"Attribution_Weight__c", "Attribution_Value__c",
	},
}

// VerifyObjects describes each synced custom object and checks that every
// required field exists. Returns an error naming the missing fields, if any.
func (s *Syncer) VerifyObjects(ctx context.Context) error {
	objects := make([]string, 0, len(syncedObjectFields))
	for name := range syncedObjectFields {
		objects = append(objects, name)
	}
	sort.Strings(objects)

	for _, object := range objects {
		desc, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*SObjectDescription, error) {
			return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (*SObjectDescription, error) {
				return s.client.DescribeSObject(ctx, object)
			})
		})
		if err != nil {
			return eris.Wrapf(err, "sf: verify %s", object)
		}

		present := make(map[string]bool, len(desc.Fields))
		for _, f := range desc.Fields {
			present[f.Name] = true
		}

		var missing []string
		for _, field := range syncedObjectFields[object] {
			if !present[field] {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			return eris.Errorf("sf: object %s missing fields: %s", object, strings.Join(missing, ", "))
		}

		zap.L().Debug("salesforce object verified",
			zap.String("object", object),
			zap.Int("fields", len(desc.Fields)),
		)
	}
	return nil
}
