package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetJourneysByIDs_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	journeys, err := s.GetJourneysByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, journeys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJourneysByIDs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, customer_id, customer_type, converted, conversion_value`).
		WithArgs([]string{"j1"}).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "customer_id", "customer_type", "converted", "conversion_value",
			"start_date", "end_date", "total_touchpoints", "confidence_score", "confidence_level",
		}).AddRow("j1", "c1", model.CustomerTypeB2B, true, 1200.0,
			start, start.AddDate(0, 0, 7), 3, 0.85, model.ConfidenceMedium))

	journeys, err := s.GetJourneysByIDs(context.Background(), []string{"j1"})
	require.NoError(t, err)
	require.Len(t, journeys, 1)
	assert.Equal(t, model.CustomerTypeB2B, journeys[0].CustomerType)
	assert.True(t, journeys[0].Converted)
	assert.Equal(t, 1200.0, journeys[0].ConversionValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetTouchpointsByJourneyIDs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	ts := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, journey_id, channel, ts, COALESCE\(campaign_id, ''\) FROM touchpoints`).
		WithArgs([]string{"j1"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "journey_id", "channel", "ts", "coalesce"}).
			AddRow("tp1", "j1", model.ChannelGoogleAds, ts, "camp-9"))

	tps, err := s.GetTouchpointsByJourneyIDs(context.Background(), []string{"j1"})
	require.NoError(t, err)
	require.Len(t, tps, 1)
	assert.Equal(t, model.ChannelGoogleAds, tps[0].Channel)
	assert.Equal(t, "camp-9", tps[0].CampaignID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJourneyIDs_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM journeys WHERE 1=1 AND converted AND confidence_score >= \$1 ORDER BY id LIMIT \$2`).
		WithArgs(0.8, 200).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("j1").AddRow("j2"))

	ids, err := s.ListJourneyIDs(context.Background(), JourneyFilter{ConvertedOnly: true, MinConfidence: 0.8, Limit: 200})
	require.NoError(t, err)
	assert.Equal(t, []string{"j1", "j2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteAttributionResults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM attribution_results WHERE model = \$1 AND journey_id = ANY\(\$2\)`).
		WithArgs("linear", []string{"j1", "j2"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.DeleteAttributionResults(context.Background(), []string{"j1", "j2"}, model.ModelLinear)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteAttributionResults_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.DeleteAttributionResults(context.Background(), nil, model.ModelLinear)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceAttributionResults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM attribution_results WHERE model = \$1 AND journey_id = ANY\(\$2\)`).
		WithArgs("linear", []string{"j1"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectBegin() // per-row savepoint
	mock.ExpectExec(`INSERT INTO attribution_results`).
		WithArgs("j1", "linear", model.ChannelEmail, 1.0, 500.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectCommit()

	outcomes, err := s.ReplaceAttributionResults(context.Background(), []string{"j1"}, model.ModelLinear,
		[]model.AttributionResult{
			{JourneyID: "j1", Model: model.ModelLinear, Channel: model.ChannelEmail, Weight: 1.0, Value: 500.0},
		})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateBatchRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE batch_runs SET`).
		WithArgs("finished", 0, 0, pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateBatchRun(context.Background(), &model.BatchRun{ID: "missing", Status: model.BatchRunFinished})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListBatchRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	msgs, _ := json.Marshal([]string{"chunk 3 failed"})

	mock.ExpectQuery(`SELECT id, model, status, chunk_size, total_processed, total_errors, error_messages, started_at, finished_at`).
		WithArgs(started.Add(-time.Hour), 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "model", "status", "chunk_size", "total_processed", "total_errors",
			"error_messages", "started_at", "finished_at",
		}).AddRow("run-1", model.ModelTimeDecay, model.BatchRunFinished, 200, 600, 200, msgs, started, &finished))

	runs, err := s.ListBatchRuns(context.Background(), started.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"chunk 3 failed"}, runs[0].ErrorMessages)
	assert.InDelta(t, 1.0/3.0, runs[0].ErrorRate(), 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountDLQ(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM attribution_dlq`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountDLQ(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteDLQ_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM attribution_dlq WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteDLQ(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dlq entry not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
