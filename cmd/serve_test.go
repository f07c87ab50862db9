package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-cli/internal/attribution"
	"github.com/sells-group/attribution-cli/internal/config"
	"github.com/sells-group/attribution-cli/internal/engine"
	"github.com/sells-group/attribution-cli/internal/model"
	"github.com/sells-group/attribution-cli/internal/monitoring"
	"github.com/sells-group/attribution-cli/internal/store"
)

func newTestAPI(t *testing.T) (*apiServer, http.Handler) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	journey := model.CustomerJourney{
		ID:               "j1",
		CustomerID:       "c1",
		CustomerType:     model.CustomerTypeB2C,
		Converted:        true,
		ConversionValue:  900,
		StartDate:        start,
		EndDate:          start.AddDate(0, 0, 5),
		TotalTouchpoints: 2,
		ConfidenceScore:  0.9,
		ConfidenceLevel:  model.ConfidenceHigh,
	}
	tps := []model.Touchpoint{
		{ID: "t1", JourneyID: "j1", Channel: model.ChannelGoogleAds, Timestamp: start.Add(2 * time.Hour)},
		{ID: "t2", JourneyID: "j1", Channel: model.ChannelEmail, Timestamp: start.Add(26 * time.Hour)},
	}
	require.NoError(t, st.InsertJourney(context.Background(), journey, tps))

	modelCfg := attribution.DefaultConfig()
	eng := engine.New(st, attribution.NewRegistry(modelCfg), modelCfg)

	cfg = &config.Config{
		Batch: config.BatchConfig{Enabled: true, ChunkSize: 200},
	}

	api := &apiServer{
		engine:  eng,
		store:   st,
		alerter: monitoring.NewAlerter(config.MonitoringConfig{}),
	}
	return api, api.routes([]string{"*"})
}

func TestServe_Health(t *testing.T) {
	_, h := newTestAPI(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}

func TestServe_JourneyAttribution(t *testing.T) {
	_, h := newTestAPI(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/journeys/j1/attribution?model=linear", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var results []model.AttributionResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, model.ChannelEmail, results[0].Channel)
	assert.InDelta(t, 0.5, results[0].Weight, 1e-9)
	assert.InDelta(t, 450, results[0].Value, 1e-9)
}

func TestServe_JourneyAttribution_NotFound(t *testing.T) {
	_, h := newTestAPI(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/journeys/nope/attribution", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServe_JourneyAttribution_UnknownModel(t *testing.T) {
	_, h := newTestAPI(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/journeys/j1/attribution?model=markov_chain", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_RunBatch(t *testing.T) {
	_, h := newTestAPI(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/attribution/run", strings.NewReader(`{"model":"linear"}`))
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var run model.BatchRun
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, model.BatchRunFinished, run.Status)
	assert.Equal(t, 1, run.TotalProcessed)
	assert.Zero(t, run.TotalErrors)
}

func TestServe_RunBatch_MissingModel(t *testing.T) {
	_, h := newTestAPI(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/attribution/run", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_ChannelReport(t *testing.T) {
	_, h := newTestAPI(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/channels", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var stats attribution.ChannelStatistics
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalTouchpoints)
	assert.Equal(t, 2, stats.UniqueChannels)
}

func TestServe_ComparisonReport(t *testing.T) {
	api, h := newTestAPI(t)

	// Persist results for two models so the comparison has input.
	for _, kind := range []model.ModelKind{model.ModelLinear, model.ModelFirstTouch} {
		_, err := api.engine.TriggerAttributionCalculation(context.Background(), []string{"j1"}, kind)
		require.NoError(t, err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/comparison?models=linear,first_touch", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var report comparisonReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Len(t, report.Models, 2)
	assert.NotEmpty(t, report.Spreads)
	assert.Len(t, report.Correlation.Values, 2)
}

func TestServe_Metrics(t *testing.T) {
	_, h := newTestAPI(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
