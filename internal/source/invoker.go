package source

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// InvokerConfig bounds each source call.
type InvokerConfig struct {
	// Timeout applies to each attempt separately.
	Timeout time.Duration
	// MaxRetries is the total number of attempts per invocation.
	MaxRetries int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
}

// Invoker calls registered sources with per-attempt timeouts and fixed-delay
// retries. Breakers, limiter and cache are optional.
type Invoker struct {
	registry *Registry
	cfg      InvokerConfig
	breakers *resilience.ServiceBreakers
	limiter  *Limiter
	cache    *Cache
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithBreakers guards each source with its own circuit breaker.
func WithBreakers(b *resilience.ServiceBreakers) InvokerOption {
	return func(iv *Invoker) { iv.breakers = b }
}

// WithLimiter throttles calls per source.
func WithLimiter(l *Limiter) InvokerOption {
	return func(iv *Invoker) { iv.limiter = l }
}

// WithCache reuses successful lookups.
func WithCache(c *Cache) InvokerOption {
	return func(iv *Invoker) { iv.cache = c }
}

// NewInvoker creates an invoker over registry.
func NewInvoker(registry *Registry, cfg InvokerConfig, opts ...InvokerOption) *Invoker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	iv := &Invoker{registry: registry, cfg: cfg}
	for _, o := range opts {
		o(iv)
	}
	return iv
}

// Registry returns the registry the invoker resolves names against.
func (iv *Invoker) Registry() *Registry { return iv.registry }

// Invoke runs the named source for rec. Exactly one of the return values is
// meaningful: a failure is non-nil when the source could not produce a
// result. On success the source's reference URL is appended to prov.
func (iv *Invoker) Invoke(ctx context.Context, name string, phase model.Phase, rec model.Record, et model.EntityType, prov *model.Provenance) (model.SourceResult, *model.SourceFailure) {
	log := zap.L().With(zap.String("source", name), zap.String("record", rec.Key()))

	src, err := iv.registry.Get(name)
	if err != nil {
		return model.SourceResult{}, failure(name, phase, err, 0)
	}
	if !src.AppliesTo(et) {
		return model.SourceResult{}, failure(name, phase, eris.Wrapf(ErrNotApplicable, "%s for %s", name, et), 0)
	}

	start := time.Now()
	var key string
	if iv.cache != nil {
		key = CacheKey(name, rec, et)
		if resp, ok := iv.cache.Get(key); ok {
			log.Debug("source cache hit")
			res := toResult(name, phase, src.ReferenceURL(rec), resp, 0, time.Since(start))
			res.Cached = true
			prov.Add(res.ReferenceURL)
			return res, nil
		}
	}

	retry := resilience.FixedRetryConfig(iv.cfg.MaxRetries, iv.cfg.RetryDelay)
	retry.ShouldRetry = func(err error) bool {
		return !errors.Is(err, resilience.ErrCircuitOpen) && !errors.Is(err, context.Canceled)
	}
	retry.OnRetry = resilience.RetryLogger(name, "lookup")

	resp, attempts, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*Response, error) {
		return iv.attempt(ctx, src, rec, et)
	})
	if err != nil {
		log.Warn("source failed", zap.Int("attempts", attempts), zap.Error(err))
		return model.SourceResult{}, failure(name, phase, err, attempts)
	}

	if iv.cache != nil {
		iv.cache.Put(key, resp)
	}
	res := toResult(name, phase, src.ReferenceURL(rec), resp, attempts, time.Since(start))
	prov.Add(res.ReferenceURL)
	log.Debug("source succeeded",
		zap.Int("fields", len(res.Fields)),
		zap.Float64("confidence", res.Confidence),
		zap.Int("attempts", attempts),
	)
	return res, nil
}

// attempt makes one bounded call. The lookup runs in its own goroutine so a
// source that ignores ctx still cannot hold the attempt past its deadline.
func (iv *Invoker) attempt(ctx context.Context, src Source, rec model.Record, et model.EntityType) (*Response, error) {
	if iv.limiter != nil {
		if err := iv.limiter.Wait(ctx, src.Name()); err != nil {
			return nil, eris.Wrap(err, "source: rate limit wait")
		}
	}

	call := func(ctx context.Context) (*Response, error) {
		if iv.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, iv.cfg.Timeout)
			defer cancel()
		}
		return lookup(ctx, src, rec, et)
	}
	if iv.breakers != nil {
		return resilience.Execute(ctx, iv.breakers.Get(src.Name()), call)
	}
	return call(ctx)
}

type lookupResult struct {
	resp *Response
	err  error
}

func lookup(ctx context.Context, src Source, rec model.Record, et model.EntityType) (*Response, error) {
	done := make(chan lookupResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- lookupResult{err: eris.Errorf("source: %s panicked: %v", src.Name(), r)}
			}
		}()
		resp, err := src.Lookup(ctx, rec, et)
		done <- lookupResult{resp: resp, err: err}
	}()

	var r lookupResult
	select {
	case <-ctx.Done():
		r.err = ctx.Err()
	case r = <-done:
	}

	switch {
	case r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, eris.Wrapf(context.DeadlineExceeded, "source: %s timed out", src.Name())
	case r.err != nil:
		return nil, eris.Wrapf(r.err, "source: %s lookup", src.Name())
	default:
		if r.resp == nil {
			return nil, eris.Errorf("source: %s returned no response", src.Name())
		}
		return r.resp, nil
	}
}

func toResult(name string, phase model.Phase, ref string, resp *Response, attempts int, d time.Duration) model.SourceResult {
	fields := make(model.Fields, len(resp.Fields))
	for k, v := range resp.Fields {
		fields.Set(k, v)
	}
	var verified map[string]bool
	for k, ok := range resp.Verified {
		if !ok || fields[k] == "" {
			continue
		}
		if verified == nil {
			verified = make(map[string]bool)
		}
		verified[k] = true
	}
	return model.SourceResult{
		Source:       name,
		Phase:        phase,
		Fields:       fields,
		Verified:     verified,
		Confidence:   clamp01(resp.Confidence),
		ReferenceURL: ref,
		Attempts:     attempts,
		Duration:     d,
	}
}

func failure(name string, phase model.Phase, err error, attempts int) *model.SourceFailure {
	return &model.SourceFailure{
		Source:    name,
		Phase:     phase,
		Cause:     causeString(err),
		Attempts:  attempts,
		Transient: resilience.IsTransient(err),
	}
}

// causeString flattens an eris chain to a single line without stack frames.
func causeString(err error) string {
	return err.Error()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
