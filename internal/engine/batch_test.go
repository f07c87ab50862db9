package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-cli/internal/attribution"
	"github.com/sells-group/attribution-cli/internal/model"
)

type captureNotifier struct {
	runs []model.BatchRun
}

func (n *captureNotifier) NotifyRun(_ context.Context, run model.BatchRun) {
	n.runs = append(n.runs, run)
}

func newTestRunner(t *testing.T, st *mockStore, cfg RunnerConfig, notifier RunNotifier) *BatchRunner {
	t.Helper()
	acfg := attribution.DefaultConfig()
	eng := New(st, attribution.NewRegistry(acfg), acfg)
	return NewBatchRunner(st, eng, cfg, notifier)
}

func seedMany(st *mockStore, n int) {
	for i := 0; i < n; i++ {
		seedJourney(st, fmt.Sprintf("j%03d", i), 100, model.ChannelEmail, model.ChannelGoogleAds)
	}
}

func TestBatchRunner_Disabled(t *testing.T) {
	r := newTestRunner(t, newMockStore(), RunnerConfig{Enabled: false}, nil)

	_, err := r.Run(context.Background(), model.ModelLinear)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunnerDisabled))
}

func TestBatchRunner_EmergencyStopWinsOverEnabled(t *testing.T) {
	r := newTestRunner(t, newMockStore(), RunnerConfig{Enabled: true, EmergencyStop: true}, nil)

	_, err := r.Run(context.Background(), model.ModelLinear)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmergencyStop))
}

func TestBatchRunner_ProcessesAllChunks(t *testing.T) {
	st := newMockStore()
	seedMany(st, 25)
	r := newTestRunner(t, st, RunnerConfig{Enabled: true, ChunkSize: 10}, nil)

	run, err := r.Run(context.Background(), model.ModelLinear)
	require.NoError(t, err)

	assert.Equal(t, model.BatchRunFinished, run.Status)
	assert.Equal(t, 25, run.TotalProcessed)
	assert.Zero(t, run.TotalErrors)
	assert.NotNil(t, run.FinishedAt)
	// 25 journeys at chunk size 10 is 3 replace calls.
	assert.Equal(t, 3, st.replaceCalls)

	persisted, err := st.GetAttributionResultsByModels(context.Background(), []model.ModelKind{model.ModelLinear})
	require.NoError(t, err)
	assert.Len(t, persisted, 50)
}

func TestBatchRunner_DefaultChunkSize(t *testing.T) {
	st := newMockStore()
	seedMany(st, 5)
	r := newTestRunner(t, st, RunnerConfig{Enabled: true}, nil)

	run, err := r.Run(context.Background(), model.ModelLastTouch)
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, run.ChunkSize)
	assert.Equal(t, 1, st.replaceCalls)
}

func TestBatchRunner_FailedChunkDoesNotAbortRun(t *testing.T) {
	st := newMockStore()
	seedMany(st, 30)
	// Poison one journey in the middle chunk.
	st.failReplaceFor["j015"] = true
	r := newTestRunner(t, st, RunnerConfig{Enabled: true, ChunkSize: 10}, nil)

	run, err := r.Run(context.Background(), model.ModelLinear)
	require.NoError(t, err)

	assert.Equal(t, 30, run.TotalProcessed)
	assert.Equal(t, 10, run.TotalErrors)
	assert.InDelta(t, 1.0/3.0, run.ErrorRate(), 1e-9)
	require.Len(t, run.ErrorMessages, 1)
	assert.Contains(t, run.ErrorMessages[0], "chunk of 10 journeys failed")

	// The failed chunk is dead-lettered with its journey ids.
	require.Len(t, st.dlq, 1)
	assert.Len(t, st.dlq[0].JourneyIDs, 10)
	assert.Equal(t, model.ModelLinear, st.dlq[0].Model)
	assert.Equal(t, run.ID, st.dlq[0].RunID)

	// The other two chunks persisted normally.
	persisted, err := st.GetAttributionResultsByModels(context.Background(), []model.ModelKind{model.ModelLinear})
	require.NoError(t, err)
	assert.Len(t, persisted, 40)
}

func TestBatchRunner_RowFailuresCountPerJourney(t *testing.T) {
	st := newMockStore()
	seedMany(st, 10)
	st.failRowsFor["j004"] = true
	r := newTestRunner(t, st, RunnerConfig{Enabled: true, ChunkSize: 10}, nil)

	run, err := r.Run(context.Background(), model.ModelLinear)
	require.NoError(t, err)

	assert.Equal(t, 10, run.TotalProcessed)
	assert.Equal(t, 1, run.TotalErrors)
	require.Len(t, run.ErrorMessages, 1)
	assert.Contains(t, run.ErrorMessages[0], "1 of 10 journeys failed to persist")
	// Row-level failures do not dead-letter the chunk.
	assert.Empty(t, st.dlq)
}

func TestBatchRunner_NotifiesOnFinish(t *testing.T) {
	st := newMockStore()
	seedMany(st, 4)
	st.failReplaceFor["j001"] = true
	notifier := &captureNotifier{}
	r := newTestRunner(t, st, RunnerConfig{Enabled: true, ChunkSize: 2}, notifier)

	run, err := r.Run(context.Background(), model.ModelTimeDecay)
	require.NoError(t, err)

	require.Len(t, notifier.runs, 1)
	assert.Equal(t, run.ID, notifier.runs[0].ID)
	assert.Equal(t, 2, notifier.runs[0].TotalErrors)
}

func TestBatchRunner_EmptyStore(t *testing.T) {
	st := newMockStore()
	r := newTestRunner(t, st, RunnerConfig{Enabled: true}, nil)

	run, err := r.Run(context.Background(), model.ModelLinear)
	require.NoError(t, err)
	assert.Equal(t, model.BatchRunFinished, run.Status)
	assert.Zero(t, run.TotalProcessed)
	assert.Zero(t, st.replaceCalls)
}

func TestBatchRunner_ReplayDLQ(t *testing.T) {
	st := newMockStore()
	seedMany(st, 6)
	st.failReplaceFor["j002"] = true
	r := newTestRunner(t, st, RunnerConfig{Enabled: true, ChunkSize: 3}, nil)

	_, err := r.Run(context.Background(), model.ModelLinear)
	require.NoError(t, err)
	require.Len(t, st.dlq, 1)

	// Clear the fault and replay.
	delete(st.failReplaceFor, "j002")
	replayed, err := r.ReplayDLQ(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)
	assert.Empty(t, st.dlq)

	persisted, err := st.GetAttributionResultsByModels(context.Background(), []model.ModelKind{model.ModelLinear})
	require.NoError(t, err)
	assert.Len(t, persisted, 12)
}

func TestBatchRunner_ReplayDLQ_StillFailingStaysQueued(t *testing.T) {
	st := newMockStore()
	seedMany(st, 3)
	st.failReplaceFor["j001"] = true
	r := newTestRunner(t, st, RunnerConfig{Enabled: true, ChunkSize: 3}, nil)

	_, err := r.Run(context.Background(), model.ModelLinear)
	require.NoError(t, err)
	require.Len(t, st.dlq, 1)

	replayed, err := r.ReplayDLQ(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, replayed)
	assert.Len(t, st.dlq, 1)
}
