package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
)

// MetricsSnapshot holds a point-in-time view of enrichment health.
type MetricsSnapshot struct {
	// Runs created within the lookback window.
	RunsTotal    int `json:"runs_total"`
	RunsComplete int `json:"runs_complete"`
	RunsFailed   int `json:"runs_failed"`
	RunsRunning  int `json:"runs_running"`
	RunsQueued   int `json:"runs_queued"`

	// Records across completed runs.
	RecordsTotal      int     `json:"records_total"`
	RecordsFailed     int     `json:"records_failed"`
	LowConfidence     int     `json:"low_confidence"`
	SuccessRate       float64 `json:"success_rate"`
	LowConfidenceRate float64 `json:"low_confidence_rate"`
	AvgConfidence     float64 `json:"avg_confidence"`

	AvgRunSeconds float64 `json:"avg_run_seconds"`
	MaxRunSeconds float64 `json:"max_run_seconds"`

	DLQDepth int `json:"dlq_depth"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SnapshotFromSummary builds a snapshot covering a single run.
func SnapshotFromSummary(s model.BatchSummary) *MetricsSnapshot {
	secs := s.TotalDuration.Seconds()
	return &MetricsSnapshot{
		RunsTotal:         1,
		RunsComplete:      1,
		RecordsTotal:      s.Total,
		RecordsFailed:     s.Failed,
		LowConfidence:     s.LowConfidence,
		SuccessRate:       s.SuccessRate(),
		LowConfidenceRate: s.LowConfidenceRate(),
		AvgConfidence:     s.AvgConfidence,
		AvgRunSeconds:     secs,
		MaxRunSeconds:     secs,
		CollectedAt:       time.Now().UTC(),
	}
}

// RunSource is the slice of the store the collector reads.
type RunSource interface {
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)
	CountDLQ(ctx context.Context) (int, error)
}

// Collector gathers metrics from stored runs.
type Collector struct {
	runs RunSource
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunSource) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, model.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var confSum, secsSum float64
	var summarized int
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		case model.RunStatusQueued:
			snap.RunsQueued++
		}
		if r.Summary == nil {
			continue
		}
		s := r.Summary
		summarized++
		snap.RecordsTotal += s.Total
		snap.RecordsFailed += s.Failed
		snap.LowConfidence += s.LowConfidence
		confSum += s.AvgConfidence * float64(s.Total)
		secs := s.TotalDuration.Seconds()
		secsSum += secs
		snap.MaxRunSeconds = max(snap.MaxRunSeconds, secs)
	}

	if snap.RecordsTotal > 0 {
		n := float64(snap.RecordsTotal)
		snap.SuccessRate = float64(snap.RecordsTotal-snap.RecordsFailed) / n
		snap.LowConfidenceRate = float64(snap.LowConfidence) / n
		snap.AvgConfidence = confSum / n
	}
	if summarized > 0 {
		snap.AvgRunSeconds = secsSum / float64(summarized)
	}

	dlq, err := c.runs.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = dlq

	return snap, nil
}
