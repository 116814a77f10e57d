package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/enrich"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/source/live"
	"github.com/sells-group/enrich-cli/internal/source/sim"
	"github.com/sells-group/enrich-cli/internal/store"
	"github.com/sells-group/enrich-cli/internal/strategy"
	"github.com/sells-group/enrich-cli/pkg/google"
	"github.com/sells-group/enrich-cli/pkg/opencorporates"
)

// envOptions selects how the pipeline environment is built.
type envOptions struct {
	// mode is passed to config validation ("enrich" or "serve").
	mode string
	// live swaps in HTTP-backed sources where API keys are configured.
	live bool
	// noStore skips opening the database.
	noStore bool
}

// pipelineEnv holds the sources, shared invoker state and store used by the
// enrich, dlq and serve commands.
type pipelineEnv struct {
	Store    store.Store // nil with noStore
	Registry *source.Registry
	Settings enrich.Settings

	plans       *strategy.PlanSet
	invokerOpts []source.InvokerOption
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// newEngine builds an engine over the shared registry, breakers, limiter and
// cache. sink may be nil.
func (pe *pipelineEnv) newEngine(sink enrich.Sink) (*enrich.Engine, error) {
	opts := []enrich.Option{
		enrich.WithSourceFilter(cfg.SourceEnabled),
		enrich.WithInvokerOptions(pe.invokerOpts...),
	}
	if sink != nil {
		opts = append(opts, enrich.WithSink(sink))
	}
	if pe.plans != nil {
		opts = append(opts, enrich.WithPlans(*pe.plans))
	}
	return enrich.New(pe.Settings, pe.Registry, opts...)
}

// initPipeline validates configuration and wires sources and the store.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, opts envOptions) (*pipelineEnv, error) {
	if err := cfg.Validate(opts.mode); err != nil {
		return nil, err
	}

	settings := enrich.SettingsFromConfig(cfg)
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	env := &pipelineEnv{
		Registry:    buildRegistry(opts.live),
		Settings:    settings,
		invokerOpts: invokerOptions(),
	}

	if path := cfg.Paths.StrategyFile; path != "" {
		ps, err := strategy.LoadPlans(path)
		if err != nil {
			return nil, err
		}
		for _, name := range ps.Names() {
			if !env.Registry.Has(name) {
				return nil, eris.Wrapf(source.ErrUnknownSource, "%q in %s", name, path)
			}
		}
		env.plans = &ps
		zap.L().Info("strategy plans loaded", zap.String("path", path))
	}

	if !opts.noStore {
		st, err := openStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	zap.L().Info("pipeline initialized",
		zap.Strings("sources", env.Registry.List()),
		zap.Bool("live", opts.live),
		zap.Bool("store", env.Store != nil),
	)
	return env, nil
}

// openStore connects to the configured store and applies its migrations.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// buildRegistry registers every simulated source, then replaces the registry
// and places sources with live clients when requested and keyed.
func buildRegistry(useLive bool) *source.Registry {
	reg := source.NewRegistry(sim.All()...)
	if !useLive {
		return reg
	}

	if sc := cfg.Sources[strategy.BusinessRegistry]; sc.Key != "" {
		opts := []opencorporates.Option{opencorporates.WithRateLimit(sc.RPS)}
		if sc.BaseURL != "" {
			opts = append(opts, opencorporates.WithBaseURL(sc.BaseURL))
		}
		reg.Register(live.NewRegistry(opencorporates.NewClient(sc.Key, opts...)))
		zap.L().Info("opencorporates registry lookups enabled")
	} else {
		zap.L().Warn("ENRICH_SOURCES_BUSINESS_REGISTRY_KEY not set, using simulated registry")
	}

	if sc := cfg.Sources[strategy.GooglePlaces]; sc.Key != "" {
		opts := []google.Option{google.WithRateLimit(sc.RPS)}
		if sc.BaseURL != "" {
			opts = append(opts, google.WithBaseURL(sc.BaseURL))
		}
		reg.Register(live.NewPlaces(google.NewClient(sc.Key, opts...)))
		zap.L().Info("google places api enabled")
	} else {
		zap.L().Warn("ENRICH_SOURCES_GOOGLE_PLACES_KEY not set, using simulated places")
	}
	return reg
}

// invokerOptions builds the breakers, limiter and cache shared by every
// engine the process creates.
func invokerOptions() []source.InvokerOption {
	breakers := resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         time.Duration(cfg.Breaker.CooldownSecs) * time.Second,
	})

	limiter := source.NewLimiter(0, 1)
	for name, sc := range cfg.Sources {
		if sc.RPS > 0 {
			limiter.SetRate(name, sc.RPS, sc.Burst)
		}
	}

	opts := []source.InvokerOption{source.WithBreakers(breakers), source.WithLimiter(limiter)}
	if cfg.Cache.Enabled {
		ttl := time.Duration(cfg.Cache.TTLMinutes) * time.Minute
		cache := source.NewCache(ttl, 2*ttl)
		for name, sc := range cfg.Sources {
			if sc.CacheTTLMinutes > 0 {
				cache.SetTTL(name, time.Duration(sc.CacheTTLMinutes)*time.Minute)
			}
		}
		opts = append(opts, source.WithCache(cache))
	}
	return opts
}
