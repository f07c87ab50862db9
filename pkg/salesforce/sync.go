package salesforce

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-cli/internal/model"
	"github.com/sells-group/attribution-cli/internal/resilience"
)

// SyncReport summarizes a push of attribution results to Salesforce.
type SyncReport struct {
	Pushed  int      `json:"pushed"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Deleted int      `json:"deleted"`
	Errors  []string `json:"errors,omitempty"`
}

// Syncer pushes computed attribution results into Attribution_Result__c.
// Salesforce calls go through a retry policy for transient failures and a
// circuit breaker so a degraded org does not absorb a whole batch run.
type Syncer struct {
	client  Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewSyncer wires a Syncer with the default retry policy and breaker.
func NewSyncer(client Client) *Syncer {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("salesforce", "sync")
	return &Syncer{
		client: client,
		retry:  retry,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("salesforce circuit state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
}

// PushResults inserts results in collection batches. Per-row failures are
// accumulated into the report rather than aborting remaining batches.
func (s *Syncer) PushResults(ctx context.Context, results []model.AttributionResult) (SyncReport, error) {
	var report SyncReport
	for start := 0; start < len(results); start += maxBatchSize {
		end := min(start+maxBatchSize, len(results))
		batch := results[start:end]

		records := make([]map[string]any, len(batch))
		for i, r := range batch {
			records[i] = resultFields(r)
		}

		outcomes, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]CollectionResult, error) {
			return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) ([]CollectionResult, error) {
				return s.client.InsertCollection(ctx, ObjectAttributionResult, records)
			})
		})
		if err != nil {
			return report, eris.Wrapf(err, "sf: push results batch %d-%d", start, end)
		}

		for _, oc := range outcomes {
			if oc.Success {
				report.Pushed++
				continue
			}
			report.Failed++
			report.Errors = append(report.Errors, oc.Errors...)
		}
	}
	return report, nil
}

// ReplaceResults deletes existing Attribution_Result__c rows for the model
// and journeys covered by results, then pushes the new rows. Mirrors the
// replace semantics of the local store so reruns stay idempotent.
func (s *Syncer) ReplaceResults(ctx context.Context, kind model.ModelKind, results []model.AttributionResult) (SyncReport, error) {
	journeyIDs := distinctJourneyIDs(results)

	existing, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]string, error) {
		return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) ([]string, error) {
			return FindResultIDs(ctx, s.client, journeyIDs, kind)
		})
	})
	if err != nil {
		return SyncReport{}, eris.Wrap(err, "sf: replace results")
	}

	deleted := 0
	for start := 0; start < len(existing); start += maxBatchSize {
		end := min(start+maxBatchSize, len(existing))
		ids := existing[start:end]

		outcomes, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]CollectionResult, error) {
			return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) ([]CollectionResult, error) {
				return s.client.DeleteCollection(ctx, ObjectAttributionResult, ids)
			})
		})
		if err != nil {
			return SyncReport{}, eris.Wrap(err, "sf: delete stale results")
		}
		for _, oc := range outcomes {
			if !oc.Success {
				return SyncReport{}, eris.Errorf("sf: delete stale result %s failed: %v", oc.ID, oc.Errors)
			}
			deleted++
		}
	}

	report, err := s.PushResults(ctx, results)
	report.Deleted = deleted
	return report, err
}

// UpdateResults patches existing Attribution_Result__c rows in place and
// inserts only the rows with no CRM counterpart. Unlike ReplaceResults it
// leaves no window where a journey has no rows in the CRM, at the cost of
// not clearing rows for channels that dropped out of the computation.
func (s *Syncer) UpdateResults(ctx context.Context, kind model.ModelKind, results []model.AttributionResult) (SyncReport, error) {
	journeyIDs := distinctJourneyIDs(results)

	existing, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]AttributionResultRecord, error) {
		return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) ([]AttributionResultRecord, error) {
			return findResultRows(ctx, s.client, journeyIDs, kind)
		})
	})
	if err != nil {
		return SyncReport{}, eris.Wrap(err, "sf: update results")
	}

	byKey := make(map[string]string, len(existing))
	for _, row := range existing {
		key := row.JourneyID + "\x00" + row.Channel
		if _, ok := byKey[key]; !ok {
			byKey[key] = row.ID
		}
	}

	var updates []CollectionRecord
	var inserts []model.AttributionResult
	for _, r := range results {
		id, ok := byKey[r.JourneyID+"\x00"+r.Channel]
		if !ok {
			inserts = append(inserts, r)
			continue
		}
		updates = append(updates, CollectionRecord{
			ID: id,
			Fields: map[string]any{
				"Attribution_Weight__c": r.Weight,
				"Attribution_Value__c":  r.Value,
			},
		})
	}

	var report SyncReport
	for start := 0; start < len(updates); start += maxBatchSize {
		end := min(start+maxBatchSize, len(updates))
		batch := updates[start:end]

		outcomes, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]CollectionResult, error) {
			return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) ([]CollectionResult, error) {
				return s.client.UpdateCollection(ctx, ObjectAttributionResult, batch)
			})
		})
		if err != nil {
			return report, eris.Wrapf(err, "sf: update results batch %d-%d", start, end)
		}

		for _, oc := range outcomes {
			if oc.Success {
				report.Updated++
				continue
			}
			report.Failed++
			report.Errors = append(report.Errors, oc.Errors...)
		}
	}

	pushReport, err := s.PushResults(ctx, inserts)
	report.Pushed = pushReport.Pushed
	report.Failed += pushReport.Failed
	report.Errors = append(report.Errors, pushReport.Errors...)
	return report, err
}

func distinctJourneyIDs(results []model.AttributionResult) []string {
	seen := make(map[string]struct{}, len(results))
	var ids []string
	for _, r := range results {
		if _, ok := seen[r.JourneyID]; ok {
			continue
		}
		seen[r.JourneyID] = struct{}{}
		ids = append(ids, r.JourneyID)
	}
	return ids
}
