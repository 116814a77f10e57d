package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
)

// setTestConfig installs a fast configuration backed by a temp SQLite file
// and restores the previous one when the test ends.
func setTestConfig(t *testing.T) *config.Config {
	t.Helper()
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	c, err := config.Load()
	require.NoError(t, err)
	c.Processing.RateLimitDelaySeconds = 0
	c.Processing.RetryDelaySeconds = 0
	c.Processing.TimeoutSeconds = 5
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "enrich.db")
	c.Paths.StrategyFile = ""
	c.Monitoring.WebhookURL = ""
	cfg = c
	return c
}

func newTestEnv(t *testing.T, mode string) *pipelineEnv {
	t.Helper()
	setTestConfig(t)
	env, err := initPipeline(context.Background(), envOptions{mode: mode})
	require.NoError(t, err)
	t.Cleanup(env.Close)
	return env
}

func sampleRecords() []model.Record {
	return []model.Record{
		{FDD: "GC", StoreNo: "101", LocationName: "Golden Chick #101", Franchisee: "Golden Chick Enterprises LLC", Address: "100 Main St", City: "Dallas", State: "TX", Zip: "75201", Phone: "214-555-0100"},
		{FDD: "GC", StoreNo: "102", LocationName: "Golden Chick #102", Franchisee: "Smith, John", Address: "5 Oak Ave", City: "Tulsa", State: "OK", Zip: "74103"},
		{FDD: "GC", StoreNo: "103", LocationName: "Golden Chick #103", Franchisee: "Bravo Restaurant Group Inc", City: "Miami", State: "FL", Zip: "33101"},
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
