package resilience

import (
	"time"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Error kinds stored on dead-letter entries.
const (
	ErrorTransient = "transient"
	ErrorPermanent = "permanent"
)

// DLQEntry is a record that came out of a run degraded and can be replayed.
type DLQEntry struct {
	ID           string       `json:"id"`
	RunID        string       `json:"run_id"`
	Record       model.Record `json:"record"`
	RecordIndex  int          `json:"record_index"`
	Error        string       `json:"error"`
	ErrorType    string       `json:"error_type"`
	FailedState  string       `json:"failed_state,omitempty"`
	RetryCount   int          `json:"retry_count"`
	MaxRetries   int          `json:"max_retries"`
	NextRetryAt  time.Time    `json:"next_retry_at"`
	CreatedAt    time.Time    `json:"created_at"`
	LastFailedAt time.Time    `json:"last_failed_at"`
}

// DLQFilter narrows dead-letter queries.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry reports whether the entry has attempts left.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError buckets err for the dead-letter queue.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTransient
	}
	return ErrorPermanent
}

// NextRetry schedules the next replay with a doubling delay from base.
func NextRetry(now time.Time, retryCount int, base time.Duration) time.Time {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 10 {
		retryCount = 10
	}
	return now.Add(base * time.Duration(1<<retryCount))
}
