package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// RecorderOption configures a RunRecorder.
type RecorderOption func(*RunRecorder)

// WithFlushSize sets how many records are buffered before a write.
func WithFlushSize(n int) RecorderOption {
	return func(r *RunRecorder) {
		if n > 0 {
			r.flushSize = n
		}
	}
}

// WithDLQPolicy sets the replay budget and base delay for degraded records.
func WithDLQPolicy(maxRetries int, base time.Duration) RecorderOption {
	return func(r *RunRecorder) {
		r.maxRetries = maxRetries
		r.retryBase = base
	}
}

// RunRecorder persists the records of one run as the engine produces them.
// Degraded records are also put on the dead-letter queue.
type RunRecorder struct {
	st         Store
	runID      string
	flushSize  int
	maxRetries int
	retryBase  time.Duration
	now        func() time.Time

	mu       sync.Mutex
	buf      []IndexedRecord
	enqueued int
}

// NewRunRecorder returns a recorder writing to st under runID.
func NewRunRecorder(st Store, runID string, opts ...RecorderOption) *RunRecorder {
	r := &RunRecorder{
		st:         st,
		runID:      runID,
		flushSize:  25,
		maxRetries: 3,
		retryBase:  time.Minute,
		now:        time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Record buffers rec and writes the buffer once it reaches the flush size.
func (r *RunRecorder) Record(ctx context.Context, index int, rec model.EnrichedRecord) error {
	if rec.Degraded {
		if err := r.deadLetter(ctx, index, rec); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.buf = append(r.buf, IndexedRecord{Index: index, Record: rec})
	if len(r.buf) < r.flushSize {
		r.mu.Unlock()
		return nil
	}
	batch := r.buf
	r.buf = nil
	r.mu.Unlock()

	return r.st.SaveRecords(ctx, r.runID, batch)
}

// Flush writes any buffered records.
func (r *RunRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.buf
	r.buf = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return eris.Wrap(r.st.SaveRecords(ctx, r.runID, batch), "store: flush records")
}

// Enqueued returns how many degraded records were dead-lettered.
func (r *RunRecorder) Enqueued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enqueued
}

func (r *RunRecorder) deadLetter(ctx context.Context, index int, rec model.EnrichedRecord) error {
	now := r.now().UTC()
	entry := resilience.DLQEntry{
		RunID:        r.runID,
		Record:       rec.Record,
		RecordIndex:  index,
		Error:        strings.TrimPrefix(rec.Reasoning, "Error: "),
		ErrorType:    errorType(rec),
		FailedState:  rec.FinalState,
		MaxRetries:   r.maxRetries,
		NextRetryAt:  resilience.NextRetry(now, 0, r.retryBase),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if err := r.st.EnqueueDLQ(ctx, entry); err != nil {
		return eris.Wrapf(err, "store: dead-letter %s", rec.Record.Key())
	}

	r.mu.Lock()
	r.enqueued++
	r.mu.Unlock()

	zap.L().Warn("store: record dead-lettered",
		zap.String("run_id", r.runID),
		zap.String("record", rec.Record.Key()),
		zap.String("state", rec.FinalState),
		zap.String("error_type", entry.ErrorType),
	)
	return nil
}

// errorType marks a degraded record transient when the run was interrupted
// or a source failed transiently.
func errorType(rec model.EnrichedRecord) string {
	msg := rec.Reasoning
	if strings.Contains(msg, context.Canceled.Error()) || strings.Contains(msg, context.DeadlineExceeded.Error()) {
		return resilience.ErrorTransient
	}
	for _, f := range rec.Failures {
		if f.Transient {
			return resilience.ErrorTransient
		}
	}
	return resilience.ClassifyError(errors.New(msg))
}
