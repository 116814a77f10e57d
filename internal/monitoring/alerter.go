// Package monitoring evaluates run health against alert thresholds and
// delivers alerts to a webhook.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertLowSuccessRate     AlertType = "low_success_rate"
	AlertLowConfidenceRate  AlertType = "low_confidence_rate"
	AlertHighProcessingTime AlertType = "high_processing_time"
	AlertRunFailure         AlertType = "run_failure"
	AlertDLQBacklog         AlertType = "dlq_backlog"
)

// Alert is one breached threshold, as posted to the webhook.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// rule inspects a snapshot and returns an alert when its threshold is
// breached. Type and Timestamp are filled in by Evaluate.
type rule struct {
	typ   AlertType
	check func(snap *MetricsSnapshot, cfg config.MonitoringConfig) (Alert, bool)
}

var rules = []rule{
	{AlertLowSuccessRate, lowSuccessRate},
	{AlertLowConfidenceRate, lowConfidenceRate},
	{AlertHighProcessingTime, slowRun},
	{AlertRunFailure, failedRuns},
	{AlertDLQBacklog, dlqBacklog},
}

func lowSuccessRate(snap *MetricsSnapshot, cfg config.MonitoringConfig) (Alert, bool) {
	if snap.RecordsTotal == 0 || snap.SuccessRate >= cfg.LowSuccessRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Severity: "high",
		Message: fmt.Sprintf("Record success rate %.1f%% is below threshold %.1f%% (%d failed / %d records)",
			snap.SuccessRate*100, cfg.LowSuccessRateThreshold*100, snap.RecordsFailed, snap.RecordsTotal),
		Details: map[string]any{
			"success_rate": snap.SuccessRate,
			"threshold":    cfg.LowSuccessRateThreshold,
			"failed":       snap.RecordsFailed,
			"total":        snap.RecordsTotal,
		},
	}, true
}

func lowConfidenceRate(snap *MetricsSnapshot, cfg config.MonitoringConfig) (Alert, bool) {
	limit := cfg.LowConfidenceRateThreshold
	if snap.RecordsTotal == 0 || limit <= 0 || snap.LowConfidenceRate <= limit {
		return Alert{}, false
	}
	return Alert{
		Severity: "medium",
		Message: fmt.Sprintf("%.1f%% of records scored below the minimum confidence (threshold %.1f%%)",
			snap.LowConfidenceRate*100, limit*100),
		Details: map[string]any{
			"low_confidence_rate": snap.LowConfidenceRate,
			"low_confidence":      snap.LowConfidence,
			"threshold":           limit,
		},
	}, true
}

// slowRun fires on the slowest single run, not the window total.
func slowRun(snap *MetricsSnapshot, cfg config.MonitoringConfig) (Alert, bool) {
	limit := cfg.HighProcessingTimeSeconds
	if limit <= 0 || snap.MaxRunSeconds <= limit {
		return Alert{}, false
	}
	return Alert{
		Severity: "medium",
		Message:  fmt.Sprintf("Run took %.0fs, above threshold %.0fs", snap.MaxRunSeconds, limit),
		Details: map[string]any{
			"max_run_seconds": snap.MaxRunSeconds,
			"avg_run_seconds": snap.AvgRunSeconds,
			"threshold":       limit,
		},
	}, true
}

func failedRuns(snap *MetricsSnapshot, _ config.MonitoringConfig) (Alert, bool) {
	if snap.RunsFailed == 0 {
		return Alert{}, false
	}
	return Alert{
		Severity: "high",
		Message:  fmt.Sprintf("%d of %d run(s) failed in the last %dh", snap.RunsFailed, snap.RunsTotal, snap.LookbackHours),
		Details:  map[string]any{"failed": snap.RunsFailed, "total": snap.RunsTotal},
	}, true
}

func dlqBacklog(snap *MetricsSnapshot, cfg config.MonitoringConfig) (Alert, bool) {
	limit := cfg.DLQBacklogThreshold
	if limit <= 0 || snap.DLQDepth < limit {
		return Alert{}, false
	}
	return Alert{
		Severity: "low",
		Message:  fmt.Sprintf("%d record(s) waiting in the dead-letter queue (threshold %d)", snap.DLQDepth, limit),
		Details:  map[string]any{"depth": snap.DLQDepth, "threshold": limit},
	}, true
}

// Alerter applies the alert rules and posts what fires to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter returns an Alerter for cfg's thresholds and webhook.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks one finished run's summary against cfg.
func Evaluate(summary model.BatchSummary, cfg config.MonitoringConfig) []Alert {
	return NewAlerter(cfg).Evaluate(SnapshotFromSummary(summary))
}

// Evaluate returns an alert for every rule snap breaches, in rule order.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	now := time.Now().UTC()
	var out []Alert
	for _, r := range rules {
		alert, fired := r.check(snap, a.cfg)
		if !fired {
			continue
		}
		alert.Type = r.typ
		alert.Timestamp = now
		out = append(out, alert)
	}
	return out
}

// SendAlerts posts each alert to the webhook and returns how many were
// accepted. Without a webhook the alerts are only logged.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	log := zap.L().With(zap.String("component", "monitoring.alerter"))
	if a.cfg.WebhookURL == "" {
		for _, alert := range alerts {
			log.Warn("monitoring: alert",
				zap.String("type", string(alert.Type)),
				zap.String("severity", alert.Severity),
				zap.String("message", alert.Message),
			)
		}
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.post(ctx, alert); err != nil {
			log.Error("monitoring: deliver alert", zap.String("type", string(alert.Type)), zap.Error(err))
			continue
		}
		sent++
	}
	if sent > 0 {
		log.Info("monitoring: alerts delivered", zap.Int("sent", sent), zap.Int("raised", len(alerts)))
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrapf(err, "monitoring: encode %s alert", alert.Type)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return eris.Errorf("monitoring: webhook answered %d", resp.StatusCode)
	}
	return nil
}
