package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

type mockRuns struct {
	runs     []model.Run
	dlqCount int
	listErr  error
	dlqErr   error
}

func (m *mockRuns) ListRuns(_ context.Context, filter model.RunFilter) ([]model.Run, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Run
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockRuns) CountDLQ(context.Context) (int, error) {
	return m.dlqCount, m.dlqErr
}

func TestCollector_Collect(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &mockRuns{
		dlqCount: 3,
		runs: []model.Run{
			{ID: "a", Status: model.RunStatusComplete, CreatedAt: now.Add(-time.Hour), Summary: &model.BatchSummary{
				Total: 10, Failed: 2, LowConfidence: 4, AvgConfidence: 0.6, TotalDuration: 100 * time.Second,
			}},
			{ID: "b", Status: model.RunStatusComplete, CreatedAt: now.Add(-2 * time.Hour), Summary: &model.BatchSummary{
				Total: 30, Failed: 0, LowConfidence: 2, AvgConfidence: 0.8, TotalDuration: 300 * time.Second,
			}},
			{ID: "c", Status: model.RunStatusFailed, CreatedAt: now.Add(-3 * time.Hour)},
			{ID: "d", Status: model.RunStatusRunning, CreatedAt: now.Add(-10 * time.Minute)},
			{ID: "old", Status: model.RunStatusFailed, CreatedAt: now.Add(-48 * time.Hour)},
		},
	}

	c := NewCollector(src)
	c.now = func() time.Time { return now }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.Equal(t, 40, snap.RecordsTotal)
	assert.Equal(t, 2, snap.RecordsFailed)
	assert.InDelta(t, 0.95, snap.SuccessRate, 1e-9)
	assert.InDelta(t, 0.15, snap.LowConfidenceRate, 1e-9)
	assert.InDelta(t, 0.75, snap.AvgConfidence, 1e-9)
	assert.InDelta(t, 200, snap.AvgRunSeconds, 1e-9)
	assert.InDelta(t, 300, snap.MaxRunSeconds, 1e-9)
	assert.Equal(t, 3, snap.DLQDepth)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := NewCollector(&mockRuns{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.SuccessRate)
}

func TestCollector_Errors(t *testing.T) {
	_, err := NewCollector(&mockRuns{listErr: errors.New("db down")}).Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "monitoring: list runs")

	_, err = NewCollector(&mockRuns{dlqErr: errors.New("db down")}).Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "monitoring: count dlq")
}

func TestSnapshotFromSummary(t *testing.T) {
	snap := SnapshotFromSummary(model.BatchSummary{
		Total: 4, Succeeded: 3, Failed: 1, LowConfidence: 2, TotalDuration: 5 * time.Second,
	})
	assert.Equal(t, 4, snap.RecordsTotal)
	assert.InDelta(t, 0.75, snap.SuccessRate, 1e-9)
	assert.InDelta(t, 0.5, snap.LowConfidenceRate, 1e-9)
	assert.InDelta(t, 5, snap.MaxRunSeconds, 1e-9)
}
