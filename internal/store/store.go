// Package store persists runs, enriched records and the dead-letter queue.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// ErrNotFound is wrapped when a run or dead-letter entry does not exist.
var ErrNotFound = eris.New("store: not found")

// IndexedRecord is an enriched record with its position in the run input.
type IndexedRecord struct {
	Index  int
	Record model.EnrichedRecord
}

// Store defines the persistence interface for enrichment runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, input string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.BatchSummary, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)

	// Records
	SaveRecord(ctx context.Context, runID string, index int, rec model.EnrichedRecord) error
	SaveRecords(ctx context.Context, runID string, recs []IndexedRecord) error
	ListRecords(ctx context.Context, runID string) ([]model.EnrichedRecord, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func listLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}

func newID() string { return uuid.New().String() }

// recordArgs flattens a record into the run_records column order.
func recordArgs(runID string, index int, rec model.EnrichedRecord) ([]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "marshal record")
	}
	return []any{
		runID, index, rec.Record.Key(), rec.Record.Franchisee,
		rec.AgentConfidence, rec.DataQualityScore, rec.Degraded, string(raw), time.Now().UTC(),
	}, nil
}

func withDLQDefaults(e resilience.DLQEntry) resilience.DLQEntry {
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.LastFailedAt.IsZero() {
		e.LastFailedAt = now
	}
	if e.NextRetryAt.IsZero() {
		e.NextRetryAt = now
	}
	if e.ErrorType == "" {
		e.ErrorType = resilience.ErrorPermanent
	}
	return e
}
