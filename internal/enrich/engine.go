// Package enrich runs records through classification, source fan-out,
// fusion, conflict resolution and scoring.
package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/classify"
	"github.com/sells-group/enrich-cli/internal/fusion"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/score"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/strategy"
)

// Sink receives every finished record as soon as it is produced. It is
// called from worker goroutines and must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, index int, rec model.EnrichedRecord) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink reports finished records to s.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithSourceFilter drops planned sources for which enabled returns false.
func WithSourceFilter(enabled func(name string) bool) Option {
	return func(e *Engine) { e.enabled = enabled }
}

// WithInvokerOptions passes breakers, limiter or cache to the source invoker.
func WithInvokerOptions(opts ...source.InvokerOption) Option {
	return func(e *Engine) { e.invokerOpts = append(e.invokerOpts, opts...) }
}

// WithClassifier replaces the name classifier.
func WithClassifier(fn func(name string) model.Classification) Option {
	return func(e *Engine) { e.classify = fn }
}

// WithPlans replaces the built-in source plans.
func WithPlans(ps strategy.PlanSet) Option {
	return func(e *Engine) { e.plans = &ps }
}

// Engine enriches records. It holds no per-record state and is safe for
// concurrent use.
type Engine struct {
	settings Settings
	invoker  *source.Invoker
	planner  *strategy.Planner
	resolver *fusion.Resolver
	calc     *score.Calculator
	classify func(string) model.Classification
	sink     Sink
	now      func() time.Time

	enabled     func(string) bool
	plans       *strategy.PlanSet
	invokerOpts []source.InvokerOption
}

// New validates settings and builds an engine over registry.
func New(settings Settings, registry *source.Registry, opts ...Option) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		settings: settings,
		resolver: fusion.NewResolver(settings.AuthoritativeSource),
		calc:     score.NewCalculator(settings.TargetFieldCount),
		classify: classify.Classify,
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}

	policy := strategy.DefaultPolicy()
	policy.DefaultThreshold = settings.DefaultThreshold
	policy.RichRegistryThreshold = settings.RichRegistryThreshold
	policy.RichRegistryStates = settings.RichRegistryStates
	policy.Enabled = e.enabled
	if e.plans != nil {
		policy.Business = e.plans.Business
		policy.Individual = e.plans.Individual
	}
	e.planner = strategy.NewPlanner(policy)

	e.invoker = source.NewInvoker(registry, source.InvokerConfig{
		Timeout:    settings.Timeout,
		MaxRetries: settings.MaxRetries,
		RetryDelay: settings.RetryDelay,
	}, e.invokerOpts...)

	return e, nil
}

// Settings returns the engine's settings.
func (e *Engine) Settings() Settings { return e.settings }

// Process enriches one record. It always returns a record: any error or
// panic inside the workflow yields a degraded record with zero confidence.
func (e *Engine) Process(ctx context.Context, rec model.Record) (out model.EnrichedRecord) {
	rc := newRecordContext(rec, e.now())
	log := zap.L().With(zap.String("record", rec.Key()), zap.String("franchisee", rec.Franchisee))

	defer func() {
		if r := recover(); r != nil {
			err := eris.Errorf("enrich: panic in %s: %v", rc.state, r)
			log.Error("enrich: record panicked", zap.String("state", rc.state.String()), zap.Any("panic", r))
			out = e.degraded(rc, err)
		}
	}()

	for rc.state != StateDone {
		if err := ctx.Err(); err != nil {
			return e.degraded(rc, eris.Wrapf(err, "enrich: %s", rc.state))
		}
		next, err := e.step(ctx, rc)
		if err != nil {
			log.Error("enrich: record failed", zap.String("state", rc.state.String()), zap.Error(err))
			return e.degraded(rc, eris.Wrapf(err, "enrich: %s", rc.state))
		}
		rc.trail = append(rc.trail, rc.state)
		rc.state = next
	}

	out = *rc.out
	out.Path = statePath(append(rc.trail, StateDone))
	out.Duration = e.now().Sub(rc.start)
	out.ProcessedAt = e.now()

	log.Info("enrich: record complete",
		zap.String("entity", string(out.Classification.Type)),
		zap.Float64("confidence", out.AgentConfidence),
		zap.Float64("data_quality", out.DataQualityScore),
		zap.Int("sources", out.SourcesConsultedCount),
		zap.Int("conflicts", len(out.Conflicts)),
		zap.Duration("duration", out.Duration),
	)
	return out
}

// degraded builds the zero-confidence record emitted when processing fails.
func (e *Engine) degraded(rc *recordContext, cause error) model.EnrichedRecord {
	now := e.now()
	return model.EnrichedRecord{
		Record:          rc.rec,
		Fields:          model.Fields{},
		Classification:  rc.class,
		Strategy:        "Failed",
		URLSources:      rc.prov.URLs(),
		Failures:        rc.failures,
		Reasoning:       "Error: " + cause.Error(),
		Degraded:        true,
		FinalState:      rc.state.String(),
		Path:            statePath(append(rc.trail, rc.state)),
		Duration:        now.Sub(rc.start),
		ProcessedAt:     now,
		PipelineVersion: e.settings.PipelineVersion,
	}
}

// Run enriches records in fixed-size batches. At most Concurrency records run
// at once and BatchDelay is paused between batches. Output index i always
// corresponds to input index i. Once ctx is done, remaining records are
// emitted as degraded without being processed.
func (e *Engine) Run(ctx context.Context, records []model.Record) ([]model.EnrichedRecord, model.BatchSummary, error) {
	pool, err := ants.NewPool(e.settings.Concurrency)
	if err != nil {
		return nil, model.BatchSummary{}, eris.Wrap(err, "enrich: create worker pool")
	}
	defer pool.Release()

	start := e.now()
	out := make([]model.EnrichedRecord, len(records))
	stats := &batchStats{min: e.settings.MinConfidence, high: e.settings.HighConfidence}
	size := e.settings.BatchSize

	zap.L().Info("enrich: starting run",
		zap.Int("records", len(records)),
		zap.Int("batch_size", size),
		zap.Int("concurrency", e.settings.Concurrency),
	)

	for b, lo := 0, 0; lo < len(records); b, lo = b+1, lo+size {
		if b > 0 {
			pause(ctx, e.settings.BatchDelay)
		}
		hi := min(lo+size, len(records))

		var wg sync.WaitGroup
		for i := lo; i < hi; i++ {
			if err := ctx.Err(); err != nil {
				e.finish(ctx, stats, out, i, e.skipped(records[i], err))
				continue
			}
			wg.Add(1)
			submitErr := pool.Submit(func() {
				defer wg.Done()
				e.finish(ctx, stats, out, i, e.Process(ctx, records[i]))
			})
			if submitErr != nil {
				wg.Done()
				e.finish(ctx, stats, out, i, e.skipped(records[i], eris.Wrap(submitErr, "enrich: submit record")))
			}
		}
		wg.Wait()
		stats.batch()

		zap.L().Info("enrich: batch complete",
			zap.Int("batch", b+1),
			zap.Int("records", hi-lo),
			zap.Int("done", hi),
			zap.Int("total", len(records)),
		)
	}

	summary := stats.summary(e.now().Sub(start))
	zap.L().Info("enrich: run complete",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Float64("avg_confidence", summary.AvgConfidence),
		zap.Duration("duration", summary.TotalDuration),
	)
	return out, summary, nil
}

func (e *Engine) finish(ctx context.Context, stats *batchStats, out []model.EnrichedRecord, i int, rec model.EnrichedRecord) {
	out[i] = rec
	stats.add(rec)
	if e.sink == nil {
		return
	}
	// The sink outlives a cancelled run so skipped records are still recorded.
	if err := e.sink.Record(context.WithoutCancel(ctx), i, rec); err != nil {
		zap.L().Warn("enrich: sink failed", zap.Int("index", i), zap.Error(err))
	}
}

func (e *Engine) skipped(rec model.Record, cause error) model.EnrichedRecord {
	return e.degraded(newRecordContext(rec, e.now()), cause)
}

// pause sleeps for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// batchStats are the only counters shared across record workers.
type batchStats struct {
	mu        sync.Mutex
	s         model.BatchSummary
	min, high float64
	confSum   float64
	qualSum   float64
}

func (b *batchStats) add(r model.EnrichedRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.s.Total++
	if r.Degraded {
		b.s.Failed++
	} else {
		b.s.Succeeded++
	}
	if r.AgentConfidence < b.min {
		b.s.LowConfidence++
	}
	if r.AgentConfidence >= b.high {
		b.s.HighConfidence++
	}
	b.confSum += r.AgentConfidence
	b.qualSum += r.DataQualityScore
	b.s.SumRecordDuration += r.Duration
}

func (b *batchStats) batch() {
	b.mu.Lock()
	b.s.Batches++
	b.mu.Unlock()
}

func (b *batchStats) summary(total time.Duration) model.BatchSummary {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.s
	s.TotalDuration = total
	if s.Total > 0 {
		s.AvgConfidence = score.Round3(b.confSum / float64(s.Total))
		s.AvgQuality = score.Round3(b.qualSum / float64(s.Total))
	}
	return s
}
