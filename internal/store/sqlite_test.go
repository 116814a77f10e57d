package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRecord(name string) model.Record {
	return model.Record{
		FDD:          "FDD-1",
		StoreNo:      "101",
		LocationName: "Golden Chick #101",
		Franchisee:   name,
		Address:      "100 Main St",
		City:         "Dallas",
		State:        "TX",
		Zip:          "75201",
	}
}

func testEnriched(name string, conf float64, degraded bool) model.EnrichedRecord {
	return model.EnrichedRecord{
		Record:           testRecord(name),
		Fields:           model.Fields{"owner": name},
		AgentConfidence:  conf,
		DataQualityScore: 0.5,
		SourcesConsulted: []string{"business_registry"},
		Reasoning:        "Entity: business (0.90)",
		Degraded:         degraded,
		FinalState:       "done",
	}
}

// --- Runs ---

func TestSQLite_CreateAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "franchisees.xlsx")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "franchisees.xlsx", got.Input)
	assert.Equal(t, model.RunStatusQueued, got.Status)
	assert.Nil(t, got.Summary)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_UpdateRunStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "in.csv")
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)

	err = st.UpdateRunStatus(ctx, "missing", model.RunStatusRunning)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_CompleteRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "in.csv")
	require.NoError(t, err)

	summary := &model.BatchSummary{Total: 4, Succeeded: 3, Failed: 1, Batches: 1, AvgConfidence: 0.71}
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusComplete, summary, ""))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 4, got.Summary.Total)
	assert.Equal(t, 1, got.Summary.Failed)
	assert.InDelta(t, 0.71, got.Summary.AvgConfidence, 1e-9)
	assert.Empty(t, got.Error)
}

func TestSQLite_CompleteRun_Failed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "in.csv")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusFailed, nil, "read input: no rows"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "read input: no rows", got.Error)
	assert.Nil(t, got.Summary)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, "a.csv")
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "b.csv")
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, a.ID, model.RunStatusRunning))

	all, err := st.ListRuns(ctx, model.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	running, err := st.ListRuns(ctx, model.RunFilter{Status: model.RunStatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, a.ID, running[0].ID)

	limited, err := st.ListRuns(ctx, model.RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	offset, err := st.ListRuns(ctx, model.RunFilter{Limit: 10, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, offset, 1)
}

// --- Records ---

func TestSQLite_SaveAndListRecords(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "in.csv")
	require.NoError(t, err)

	require.NoError(t, st.SaveRecords(ctx, run.ID, []IndexedRecord{
		{Index: 2, Record: testEnriched("Charlie LLC", 0.4, false)},
		{Index: 0, Record: testEnriched("Alpha Inc", 0.9, false)},
	}))
	require.NoError(t, st.SaveRecord(ctx, run.ID, 1, testEnriched("Bravo Corp", 0, true)))

	recs, err := st.ListRecords(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "Alpha Inc", recs[0].Record.Franchisee)
	assert.Equal(t, "Bravo Corp", recs[1].Record.Franchisee)
	assert.True(t, recs[1].Degraded)
	assert.Equal(t, "Charlie LLC", recs[2].Record.Franchisee)
	assert.Equal(t, "Charlie LLC", recs[2].Fields["owner"])
}

func TestSQLite_SaveRecord_Overwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "in.csv")
	require.NoError(t, err)

	require.NoError(t, st.SaveRecord(ctx, run.ID, 0, testEnriched("Alpha Inc", 0, true)))
	require.NoError(t, st.SaveRecord(ctx, run.ID, 0, testEnriched("Alpha Inc", 0.8, false)))

	recs, err := st.ListRecords(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Degraded)
	assert.InDelta(t, 0.8, recs[0].AgentConfidence, 1e-9)
}

func TestSQLite_SaveRecords_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.SaveRecords(context.Background(), "any", nil))
}

// --- Dead letter queue ---

func TestSQLite_DLQ_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.EnqueueDLQ(ctx, resilience.DLQEntry{
		ID:          "due",
		RunID:       "run-1",
		Record:      testRecord("Alpha Inc"),
		Error:       "enrich: enriching_primary: context canceled",
		ErrorType:   resilience.ErrorTransient,
		FailedState: "enriching_primary",
		MaxRetries:  3,
		NextRetryAt: now.Add(-time.Minute),
	}))
	require.NoError(t, st.EnqueueDLQ(ctx, resilience.DLQEntry{
		ID:          "later",
		RunID:       "run-1",
		Record:      testRecord("Bravo Corp"),
		Error:       "boom",
		ErrorType:   resilience.ErrorPermanent,
		MaxRetries:  3,
		NextRetryAt: now.Add(time.Hour),
	}))

	n, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	due, err := st.DequeueDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)
	assert.Equal(t, "Alpha Inc", due[0].Record.Franchisee)
	assert.Equal(t, "enriching_primary", due[0].FailedState)

	all, err := st.ListDLQ(ctx, resilience.DLQFilter{RunID: "run-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	permanent, err := st.ListDLQ(ctx, resilience.DLQFilter{ErrorType: resilience.ErrorPermanent})
	require.NoError(t, err)
	require.Len(t, permanent, 1)
	assert.Equal(t, "later", permanent[0].ID)

	require.NoError(t, st.IncrementDLQRetry(ctx, "due", now.Add(time.Hour), "still failing"))
	due, err = st.DequeueDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, st.RemoveDLQ(ctx, "due"))
	n, err = st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_DLQ_ExhaustedNotDequeued(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, resilience.DLQEntry{
		ID:          "spent",
		Record:      testRecord("Alpha Inc"),
		Error:       "boom",
		RetryCount:  3,
		MaxRetries:  3,
		NextRetryAt: time.Now().Add(-time.Hour),
	}))

	due, err := st.DequeueDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSQLite_DLQ_EnqueueDefaults(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnqueueDLQ(ctx, resilience.DLQEntry{
		Record:     testRecord("Alpha Inc"),
		Error:      "boom",
		MaxRetries: 1,
	}))

	all, err := st.ListDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotEmpty(t, all[0].ID)
	assert.Equal(t, resilience.ErrorPermanent, all[0].ErrorType)
	assert.False(t, all[0].CreatedAt.IsZero())
}

func TestSQLite_IncrementDLQRetry_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.IncrementDLQRetry(context.Background(), "missing", time.Now(), "x")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
