package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
)

func defaultThresholds() config.MonitoringConfig {
	return config.MonitoringConfig{
		LowSuccessRateThreshold:    0.8,
		HighProcessingTimeSeconds:  300,
		LowConfidenceRateThreshold: 0.7,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(defaultThresholds())

	snap := &MetricsSnapshot{
		RunsTotal:         3,
		RunsComplete:      3,
		RecordsTotal:      100,
		RecordsFailed:     5,
		SuccessRate:       0.95,
		LowConfidenceRate: 0.2,
		MaxRunSeconds:     120,
		LookbackHours:     24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_LowSuccessRate(t *testing.T) {
	a := NewAlerter(defaultThresholds())

	snap := &MetricsSnapshot{
		RecordsTotal:  20,
		RecordsFailed: 8,
		SuccessRate:   0.6,
		LookbackHours: 24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLowSuccessRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "60.0%")
	assert.Contains(t, alerts[0].Message, "8 failed / 20 records")
}

func TestAlerter_Evaluate_LowConfidenceRate(t *testing.T) {
	a := NewAlerter(defaultThresholds())

	alerts := a.Evaluate(&MetricsSnapshot{
		RecordsTotal:      10,
		SuccessRate:       1,
		LowConfidence:     8,
		LowConfidenceRate: 0.8,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLowConfidenceRate, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
}

func TestAlerter_Evaluate_HighProcessingTime(t *testing.T) {
	a := NewAlerter(defaultThresholds())

	alerts := a.Evaluate(&MetricsSnapshot{MaxRunSeconds: 301, AvgRunSeconds: 200})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertHighProcessingTime, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "301s")
}

func TestAlerter_Evaluate_EmptyWindowIsQuiet(t *testing.T) {
	a := NewAlerter(defaultThresholds())
	assert.Empty(t, a.Evaluate(&MetricsSnapshot{LookbackHours: 24}))
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(defaultThresholds())

	snap := &MetricsSnapshot{
		RunsTotal:         4,
		RunsFailed:        1,
		RecordsTotal:      10,
		RecordsFailed:     5,
		SuccessRate:       0.5,
		LowConfidence:     9,
		LowConfidenceRate: 0.9,
		MaxRunSeconds:     900,
		LookbackHours:     24,
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 4)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertLowSuccessRate])
	assert.True(t, types[AlertLowConfidenceRate])
	assert.True(t, types[AlertHighProcessingTime])
	assert.True(t, types[AlertRunFailure])
}

func TestAlerter_Evaluate_DLQBacklog(t *testing.T) {
	cfg := defaultThresholds()
	cfg.DLQBacklogThreshold = 10

	alerts := NewAlerter(cfg).Evaluate(&MetricsSnapshot{DLQDepth: 12})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDLQBacklog, alerts[0].Type)
	assert.Equal(t, "low", alerts[0].Severity)
	assert.False(t, alerts[0].Timestamp.IsZero())

	assert.Empty(t, NewAlerter(cfg).Evaluate(&MetricsSnapshot{DLQDepth: 9}))
	assert.Empty(t, NewAlerter(defaultThresholds()).Evaluate(&MetricsSnapshot{DLQDepth: 500}))
}

func TestEvaluate_Summary(t *testing.T) {
	summary := model.BatchSummary{
		Total:         10,
		Succeeded:     6,
		Failed:        4,
		LowConfidence: 2,
		TotalDuration: 30 * time.Second,
	}

	alerts := Evaluate(summary, defaultThresholds())
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLowSuccessRate, alerts[0].Type)

	summary.Failed, summary.Succeeded = 0, 10
	assert.Empty(t, Evaluate(summary, defaultThresholds()))
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := []Alert{
		{Type: AlertLowSuccessRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertRunFailure, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailure}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailure}}))
	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}
