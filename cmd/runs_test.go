package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
)

func TestFormatRunsList(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatRunsList(&buf, []model.Run{
		{
			ID: "run-1", Input: "franchisees.xlsx", Status: model.RunStatusComplete,
			Summary:   &model.BatchSummary{Total: 10, Succeeded: 9, AvgConfidence: 0.7123},
			CreatedAt: created, UpdatedAt: created.Add(90 * time.Second),
		},
		{ID: "run-2", Input: "in.csv", Status: model.RunStatusRunning, CreatedAt: created},
	})

	out := buf.String()
	assert.Contains(t, out, "AVG_CONF")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "90%")
	assert.Contains(t, out, "0.712")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "running")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "...ghij", truncate("abcdefghij", 7))
}

func TestLoadRunDetail(t *testing.T) {
	env := newTestEnv(t, "enrich")
	ctx := context.Background()

	res, err := runEnrichment(ctx, env, "in.csv", sampleRecords()[:2])
	require.NoError(t, err)

	detail, err := loadRunDetail(ctx, env.Store, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, detail.Run.ID)
	assert.Len(t, detail.Records, 2)

	_, err = loadRunDetail(ctx, env.Store, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestWriteIndentedJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeIndentedJSON(&buf, []model.Run{{ID: "run-1", Status: model.RunStatusFailed}}))
	assert.Contains(t, buf.String(), "\n  {\n")
	assert.Contains(t, buf.String(), `"run-1"`)
}

func TestOpenStore_Migrates(t *testing.T) {
	setTestConfig(t)

	st, err := openStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(context.Background(), model.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}
