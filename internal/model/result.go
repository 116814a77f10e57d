package model

import (
	"strings"
	"time"
)

// QualityMetrics are the per-record quality dimensions.
type QualityMetrics struct {
	DataConsistency     float64 `json:"data_consistency"`
	SourceDiversity     int     `json:"source_diversity"`
	FieldCompleteness   float64 `json:"field_completeness"`
	ConfidenceStability float64 `json:"confidence_stability"`
}

// EnrichedRecord is the engine's output for one input record.
type EnrichedRecord struct {
	Record                Record          `json:"record"`
	Fields                Fields          `json:"fields"`
	AgentConfidence       float64         `json:"agent_confidence"`
	DataQualityScore      float64         `json:"data_quality_score"`
	QualityScore          float64         `json:"quality_score"`
	Classification        Classification  `json:"classification"`
	Strategy              string          `json:"strategy,omitempty"`
	SourcesConsulted      []string        `json:"sources_consulted"`
	SourcesConsultedCount int             `json:"sources_consulted_count"`
	URLSources            []string        `json:"url_sources"`
	Failures              []SourceFailure `json:"failures,omitempty"`
	Conflicts             []Resolution    `json:"conflicts,omitempty"`
	Metrics               QualityMetrics  `json:"metrics"`
	Reasoning             string          `json:"reasoning"`
	Degraded              bool            `json:"degraded"`
	FinalState            string          `json:"final_state"`
	// Path lists the workflow states the record passed through.
	Path            []string      `json:"path,omitempty"`
	Duration        time.Duration `json:"duration_ns"`
	ProcessedAt     time.Time     `json:"processed_at"`
	PipelineVersion string        `json:"pipeline_version,omitempty"`
}

// URLSourcesString joins the reference URLs the way the spreadsheet export
// expects them.
func (r EnrichedRecord) URLSourcesString() string {
	return strings.Join(r.URLSources, "; ")
}

// BatchSummary aggregates a run over many records.
type BatchSummary struct {
	Total             int           `json:"total"`
	Succeeded         int           `json:"succeeded"`
	Failed            int           `json:"failed"`
	LowConfidence     int           `json:"low_confidence"`
	HighConfidence    int           `json:"high_confidence"`
	Batches           int           `json:"batches"`
	AvgConfidence     float64       `json:"avg_confidence"`
	AvgQuality        float64       `json:"avg_quality"`
	TotalDuration     time.Duration `json:"total_duration_ns"`
	SumRecordDuration time.Duration `json:"sum_record_duration_ns"`
}

// SuccessRate is Succeeded/Total, or 0 for an empty batch.
func (s BatchSummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total)
}

// AvgRecordDuration is the mean wall time spent per record.
func (s BatchSummary) AvgRecordDuration() time.Duration {
	if s.Total == 0 {
		return 0
	}
	return s.SumRecordDuration / time.Duration(s.Total)
}

// LowConfidenceRate is LowConfidence/Total, or 0 for an empty batch.
func (s BatchSummary) LowConfidenceRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.LowConfidence) / float64(s.Total)
}

// RunStatus represents the current state of an enrichment run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one invocation of the engine over an input set.
type Run struct {
	ID        string        `json:"id"`
	Input     string        `json:"input"`
	Status    RunStatus     `json:"status"`
	Summary   *BatchSummary `json:"summary,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}
