package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sells-group/attribution-cli/internal/model"
	"github.com/sells-group/attribution-cli/internal/store"
)

// mockStore is an in-memory Store with injectable failures for exercising
// the partial-failure paths of the engine and batch runner.
type mockStore struct {
	journeys    map[string]model.CustomerJourney
	touchpoints map[string][]model.Touchpoint
	results     []model.AttributionResult
	runs        map[string]*model.BatchRun
	dlq         []store.DLQEntry

	// failReplaceFor makes ReplaceAttributionResults fail wholesale for any
	// chunk containing one of these journey ids.
	failReplaceFor map[string]bool
	// failRowsFor marks individual rows as failed without failing the call.
	failRowsFor map[string]bool

	replaceCalls int
	nextID       int
}

func newMockStore() *mockStore {
	return &mockStore{
		journeys:       make(map[string]model.CustomerJourney),
		touchpoints:    make(map[string][]model.Touchpoint),
		runs:           make(map[string]*model.BatchRun),
		failReplaceFor: make(map[string]bool),
		failRowsFor:    make(map[string]bool),
	}
}

func (m *mockStore) addJourney(j model.CustomerJourney, tps ...model.Touchpoint) {
	m.journeys[j.ID] = j
	m.touchpoints[j.ID] = tps
}

func (m *mockStore) GetJourneysByIDs(_ context.Context, ids []string) ([]model.CustomerJourney, error) {
	var out []model.CustomerJourney
	for _, id := range ids {
		if j, ok := m.journeys[id]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *mockStore) GetTouchpointsByJourneyIDs(_ context.Context, ids []string) ([]model.Touchpoint, error) {
	var out []model.Touchpoint
	for _, id := range ids {
		out = append(out, m.touchpoints[id]...)
	}
	return out, nil
}

func (m *mockStore) ListJourneyIDs(_ context.Context, filter store.JourneyFilter) ([]string, error) {
	var ids []string
	for _, j := range m.journeys {
		if filter.ConvertedOnly && !j.Converted {
			continue
		}
		ids = append(ids, j.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockStore) InsertJourney(_ context.Context, j model.CustomerJourney, tps []model.Touchpoint) error {
	m.addJourney(j, tps...)
	return nil
}

func (m *mockStore) GetAttributionResults(_ context.Context, ids []string, kind model.ModelKind) ([]model.AttributionResult, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.AttributionResult
	for _, r := range m.results {
		if r.Model == kind && want[r.JourneyID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) GetAttributionResultsByModels(_ context.Context, kinds []model.ModelKind) ([]model.AttributionResult, error) {
	want := make(map[model.ModelKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []model.AttributionResult
	for _, r := range m.results {
		if want[r.Model] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteAttributionResults(_ context.Context, ids []string, kind model.ModelKind) (int, error) {
	return m.deleteLocked(ids, kind), nil
}

func (m *mockStore) deleteLocked(ids []string, kind model.ModelKind) int {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	kept := m.results[:0]
	deleted := 0
	for _, r := range m.results {
		if r.Model == kind && want[r.JourneyID] {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.results = kept
	return deleted
}

func (m *mockStore) BulkInsertAttributionResults(_ context.Context, results []model.AttributionResult) ([]store.RowOutcome, error) {
	return m.insertLocked(results), nil
}

func (m *mockStore) insertLocked(results []model.AttributionResult) []store.RowOutcome {
	outcomes := make([]store.RowOutcome, 0, len(results))
	for _, r := range results {
		if m.failRowsFor[r.JourneyID] {
			outcomes = append(outcomes, store.RowOutcome{
				JourneyID: r.JourneyID, Channel: r.Channel, Success: false, Error: "row rejected",
			})
			continue
		}
		m.results = append(m.results, r)
		outcomes = append(outcomes, store.RowOutcome{JourneyID: r.JourneyID, Channel: r.Channel, Success: true})
	}
	return outcomes
}

func (m *mockStore) ReplaceAttributionResults(_ context.Context, ids []string, kind model.ModelKind, results []model.AttributionResult) ([]store.RowOutcome, error) {
	m.replaceCalls++
	for _, id := range ids {
		if m.failReplaceFor[id] {
			return nil, fmt.Errorf("replace failed for chunk containing %s", id)
		}
	}
	m.deleteLocked(ids, kind)
	return m.insertLocked(results), nil
}

func (m *mockStore) CreateBatchRun(_ context.Context, run *model.BatchRun) error {
	if run.ID == "" {
		m.nextID++
		run.ID = fmt.Sprintf("run-%d", m.nextID)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockStore) UpdateBatchRun(_ context.Context, run *model.BatchRun) error {
	if _, ok := m.runs[run.ID]; !ok {
		return fmt.Errorf("batch run not found: %s", run.ID)
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockStore) ListBatchRuns(_ context.Context, since time.Time, limit int) ([]model.BatchRun, error) {
	var out []model.BatchRun
	for _, r := range m.runs {
		if r.StartedAt.Before(since) {
			continue
		}
		out = append(out, *r)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) EnqueueDLQ(_ context.Context, entry store.DLQEntry) error {
	if entry.ID == "" {
		m.nextID++
		entry.ID = fmt.Sprintf("dlq-%d", m.nextID)
	}
	entry.CreatedAt = time.Now().UTC()
	m.dlq = append(m.dlq, entry)
	return nil
}

func (m *mockStore) ListDLQ(_ context.Context, limit int) ([]store.DLQEntry, error) {
	out := append([]store.DLQEntry(nil), m.dlq...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) CountDLQ(_ context.Context) (int, error) {
	return len(m.dlq), nil
}

func (m *mockStore) DeleteDLQ(_ context.Context, id string) error {
	for i, e := range m.dlq {
		if e.ID == id {
			m.dlq = append(m.dlq[:i], m.dlq[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("dlq entry not found: %s", id)
}

func (m *mockStore) Migrate(context.Context) error { return nil }
func (m *mockStore) Close() error                  { return nil }
