package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

func TestReplayDLQ_RecoversIntoRun(t *testing.T) {
	env := newTestEnv(t, "enrich")
	ctx := context.Background()
	recs := sampleRecords()

	run, err := env.Store.CreateRun(ctx, "in.csv")
	require.NoError(t, err)
	require.NoError(t, env.Store.SaveRecord(ctx, run.ID, 1, model.EnrichedRecord{
		Record:    recs[1],
		Fields:    model.Fields{},
		Reasoning: "Error: enrich: enriching_primary: context canceled",
		Degraded:  true,
	}))
	require.NoError(t, env.Store.EnqueueDLQ(ctx, resilience.DLQEntry{
		ID:          "dlq-1",
		RunID:       run.ID,
		Record:      recs[1],
		RecordIndex: 1,
		Error:       "enrich: enriching_primary: context canceled",
		ErrorType:   resilience.ErrorTransient,
		MaxRetries:  3,
		NextRetryAt: time.Now().Add(-time.Minute),
	}))

	stats, err := replayDLQ(ctx, env, resilience.DLQFilter{}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, replayStats{Attempted: 1, Recovered: 1}, stats)

	saved, err := env.Store.ListRecords(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.False(t, saved[0].Degraded)
	assert.Positive(t, saved[0].AgentConfidence)

	n, err := env.Store.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReplayDLQ_NothingDue(t *testing.T) {
	env := newTestEnv(t, "enrich")
	ctx := context.Background()

	require.NoError(t, env.Store.EnqueueDLQ(ctx, resilience.DLQEntry{
		Record:      sampleRecords()[0],
		Error:       "boom",
		MaxRetries:  3,
		NextRetryAt: time.Now().Add(time.Hour),
	}))

	stats, err := replayDLQ(ctx, env, resilience.DLQFilter{}, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, stats.Attempted)
}

func TestFormatDLQList(t *testing.T) {
	var buf bytes.Buffer
	formatDLQList(&buf, []resilience.DLQEntry{{
		ID:          "dlq-1",
		RunID:       "run-1",
		Record:      model.Record{Franchisee: "Golden Chick Enterprises LLC"},
		Error:       "enrich: scoring: boom",
		ErrorType:   resilience.ErrorPermanent,
		FailedState: "scoring",
		RetryCount:  1,
		MaxRetries:  3,
		NextRetryAt: time.Now(),
	}})

	out := buf.String()
	assert.Contains(t, out, "FRANCHISEE")
	assert.Contains(t, out, "dlq-1")
	assert.Contains(t, out, "1/3")
	assert.Contains(t, out, "permanent")
}
