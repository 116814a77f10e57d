package enrich

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/classify"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/source/sim"
	"github.com/sells-group/enrich-cli/internal/strategy"
)

type stubSource struct {
	name  string
	types []model.EntityType
	ref   string
	fn    func(ctx context.Context, rec model.Record) (*source.Response, error)
	calls atomic.Int32
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) AppliesTo(et model.EntityType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, et)
}

func (s *stubSource) ReferenceURL(model.Record) string { return s.ref }

func (s *stubSource) Lookup(ctx context.Context, rec model.Record, _ model.EntityType) (*source.Response, error) {
	s.calls.Add(1)
	return s.fn(ctx, rec)
}

func fixedSource(name string, conf float64, fields model.Fields) *stubSource {
	return &stubSource{
		name: name,
		ref:  "https://" + name + ".example/",
		fn: func(context.Context, model.Record) (*source.Response, error) {
			return &source.Response{Fields: fields.Clone(), Confidence: conf}, nil
		},
	}
}

func testSettings() Settings {
	s := DefaultSettings()
	s.BatchDelay = 0
	s.RetryDelay = time.Millisecond
	s.Timeout = time.Second
	return s
}

func newEngine(t *testing.T, s Settings, srcs ...source.Source) *Engine {
	t.Helper()
	e, err := New(s, source.NewRegistry(srcs...))
	require.NoError(t, err)
	return e
}

func goldenChick() model.Record {
	return model.Record{
		FDD:        "Golden Chick",
		StoreNo:    "101",
		Franchisee: "Golden Chick Enterprises LLC",
		Address:    "100 Main St",
		City:       "Dallas",
		State:      "TX",
		Zip:        "75201",
		Phone:      "(214) 555-0100",
	}
}

func TestProcess_ScenarioBusinessTexas(t *testing.T) {
	registry := fixedSource(strategy.BusinessRegistry, 0.9, model.Fields{model.FieldCorporateName: "Golden Chick Enterprises LLC"})
	places := fixedSource(strategy.GooglePlaces, 0.8, model.Fields{model.FieldPhone: "(214) 555-0100"})
	corp := fixedSource(strategy.CorporateDatabase, 0.7, model.Fields{model.FieldLinkedIn: "x"})
	e := newEngine(t, testSettings(), registry, places, corp)

	out := e.Process(context.Background(), goldenChick())

	assert.False(t, out.Degraded)
	assert.Equal(t, model.EntityBusiness, out.Classification.Type)
	assert.GreaterOrEqual(t, out.Classification.Confidence, 0.9)
	assert.Contains(t, out.Strategy, "TX registry")
	assert.Equal(t, "Golden Chick Enterprises LLC", out.Fields[model.FieldCorporateName])
	assert.Equal(t, "(214) 555-0100", out.Fields[model.FieldPhone])
	assert.Equal(t, 2, out.Metrics.SourceDiversity)
	assert.Empty(t, out.Conflicts)
	assert.NotContains(t, out.Path, StateResolving.String())
	assert.NotContains(t, out.Path, StateEnrichingFallback.String())
	assert.Equal(t, "done", out.FinalState)
	assert.Zero(t, corp.calls.Load(), "mean 0.85 >= 0.8 must skip fallbacks")

	// 0.3*0.9 + 0.3*1 + 0.2*(2/6) + 0.2*(2/3)
	assert.InDelta(t, 0.77, out.AgentConfidence, 0.001)
	assert.Equal(t, []string{strategy.BusinessRegistry, strategy.GooglePlaces}, out.SourcesConsulted)
	assert.Equal(t, 2, out.SourcesConsultedCount)
	assert.Equal(t, []string{"https://business_registry.example/", "https://google_places.example/"}, out.URLSources)
	assert.True(t, strings.HasPrefix(out.Reasoning, "Entity: business (0.90); Sources: 2; Consistency: 1.00; Completeness: 0.33"))
}

func TestProcess_ScenarioIndividualCommaName(t *testing.T) {
	li := fixedSource(strategy.LinkedInIndividual, 0.85, model.Fields{model.FieldOwner: "John Smith"})
	search := fixedSource(strategy.GoogleSearch, 0.75, model.Fields{model.FieldOwner: "John Smith"})
	people := fixedSource(strategy.PeopleSearch, 0.6, model.Fields{model.FieldOwner: "J Smith"})
	e := newEngine(t, testSettings(), li, search, people)

	out := e.Process(context.Background(), model.Record{Franchisee: "Smith, John", State: "OK"})

	assert.Equal(t, model.EntityIndividual, out.Classification.Type)
	assert.InDelta(t, 0.9, out.Classification.Confidence, 0.0001)
	assert.InDelta(t, 1.0, out.Metrics.DataConsistency, 0.0001)
	assert.Empty(t, out.Conflicts)
	assert.Zero(t, people.calls.Load())
	assert.Equal(t, "John Smith", out.Fields[model.FieldOwner])
	assert.Equal(t, []string{strategy.LinkedInIndividual, strategy.GoogleSearch}, out.SourcesConsulted)
}

func TestProcess_ScenarioRegistryWinsConflict(t *testing.T) {
	registry := fixedSource(strategy.BusinessRegistry, 0.9, model.Fields{model.FieldAddress: "1 Elm St"})
	places := &stubSource{
		name: strategy.GooglePlaces,
		fn: func(context.Context, model.Record) (*source.Response, error) {
			return &source.Response{
				Fields:     model.Fields{model.FieldAddress: "100 Elm Street, Suite 4, Dallas, TX 75201"},
				Verified:   map[string]bool{model.FieldAddress: true},
				Confidence: 0.8,
			}, nil
		},
	}
	e := newEngine(t, testSettings(), registry, places)

	out := e.Process(context.Background(), goldenChick())

	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, "registry", out.Conflicts[0].Rule)
	assert.Equal(t, "1 Elm St", out.Fields[model.FieldAddress])
	assert.Contains(t, out.Path, StateResolving.String())
	assert.InDelta(t, 0.0, out.Metrics.DataConsistency, 0.0001)
	assert.Contains(t, out.Reasoning, "Resolved corporate_address by registry")
}

func TestProcess_RegistryWinsRegardlessOfArrival(t *testing.T) {
	registry := &stubSource{
		name: strategy.BusinessRegistry,
		fn: func(ctx context.Context, _ model.Record) (*source.Response, error) {
			time.Sleep(30 * time.Millisecond)
			return &source.Response{Fields: model.Fields{model.FieldAddress: "1 Elm"}, Confidence: 0.9}, nil
		},
	}
	places := fixedSource(strategy.GooglePlaces, 0.8, model.Fields{model.FieldAddress: "1 Elm Street"})
	e := newEngine(t, testSettings(), registry, places)

	out := e.Process(context.Background(), goldenChick())

	assert.Equal(t, "1 Elm", out.Fields[model.FieldAddress])
	assert.Equal(t, []string{strategy.BusinessRegistry, strategy.GooglePlaces}, out.SourcesConsulted,
		"primaries fold in strategy order, not completion order")
}

func TestProcess_SourceTimesOut(t *testing.T) {
	registry := fixedSource(strategy.BusinessRegistry, 0.9, model.Fields{model.FieldCorporateName: "Acme LLC"})
	places := &stubSource{
		name: strategy.GooglePlaces,
		fn: func(ctx context.Context, _ model.Record) (*source.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	s := testSettings()
	s.Timeout = 20 * time.Millisecond
	s.MaxRetries = 3
	e := newEngine(t, s, registry, places)

	out := e.Process(context.Background(), model.Record{Franchisee: "Acme LLC", State: "OK"})

	assert.False(t, out.Degraded)
	assert.Equal(t, int32(3), places.calls.Load())
	require.NotEmpty(t, out.Failures)
	assert.Equal(t, strategy.GooglePlaces, out.Failures[0].Source)
	assert.Equal(t, 3, out.Failures[0].Attempts)
	assert.Contains(t, out.Failures[0].Cause, "timed out")
	assert.NotContains(t, out.SourcesConsulted, strategy.GooglePlaces)
	assert.Equal(t, "Acme LLC", out.Fields[model.FieldCorporateName])
}

func TestProcess_FallbackFoldedAfterPrimaries(t *testing.T) {
	registry := fixedSource(strategy.BusinessRegistry, 0.5, model.Fields{model.FieldCorporateName: "Acme"})
	places := fixedSource(strategy.GooglePlaces, 0.5, model.Fields{model.FieldPhone: "2145550100"})
	corp := fixedSource(strategy.CorporateDatabase, 0.7, model.Fields{model.FieldCorporateName: "Acme Holdings Inc"})
	company := fixedSource(strategy.LinkedInCompany, 0.7, model.Fields{model.FieldLinkedIn: "https://www.linkedin.com/company/acme"})
	e := newEngine(t, testSettings(), registry, places, corp, company)

	out := e.Process(context.Background(), model.Record{Franchisee: "Acme LLC", State: "OK"})

	assert.Equal(t, []string{
		strategy.BusinessRegistry, strategy.GooglePlaces,
		strategy.CorporateDatabase, strategy.LinkedInCompany,
	}, out.SourcesConsulted)
	assert.Contains(t, out.Path, StateEnrichingFallback.String())
	// Registry is authoritative even against a longer fallback value.
	assert.Equal(t, "Acme", out.Fields[model.FieldCorporateName])
	assert.Contains(t, out.Reasoning, "Fallback: primary mean 0.50 < 0.70")
}

func TestProcess_AllSourcesFailStillScores(t *testing.T) {
	failing := func(name string) *stubSource {
		return &stubSource{name: name, fn: func(context.Context, model.Record) (*source.Response, error) {
			return nil, errors.New("400 bad request")
		}}
	}
	s := testSettings()
	s.MaxRetries = 1
	e := newEngine(t, s,
		failing(strategy.BusinessRegistry), failing(strategy.GooglePlaces),
		failing(strategy.CorporateDatabase), failing(strategy.LinkedInCompany))

	out := e.Process(context.Background(), model.Record{Franchisee: "Acme LLC"})

	assert.False(t, out.Degraded)
	assert.Len(t, out.Failures, 4)
	assert.Zero(t, out.Metrics.SourceDiversity)
	assert.GreaterOrEqual(t, out.AgentConfidence, 0.0)
	assert.LessOrEqual(t, out.AgentConfidence, 1.0)
	// Only the classification term remains: 0.3 * 0.8.
	assert.InDelta(t, 0.24, out.AgentConfidence, 0.001)
	assert.Contains(t, out.Reasoning, "Missing: franchisee_owner, corporate_address")
}

func TestProcess_PanicDegradesRecord(t *testing.T) {
	s := testSettings()
	e, err := New(s, source.NewRegistry(sim.All()...), WithClassifier(func(name string) model.Classification {
		if name == "BOOM" {
			panic("classifier exploded")
		}
		return classify.Classify(name)
	}))
	require.NoError(t, err)

	rec := model.Record{Franchisee: "BOOM", State: "TX", Phone: "555"}
	out := e.Process(context.Background(), rec)

	assert.True(t, out.Degraded)
	assert.Zero(t, out.AgentConfidence)
	assert.Equal(t, rec, out.Record)
	assert.Equal(t, StateClassifying.String(), out.FinalState)
	assert.True(t, strings.HasPrefix(out.Reasoning, "Error: "))
	assert.Contains(t, out.Reasoning, "classifier exploded")
}

func TestProcess_CancelledContextDegrades(t *testing.T) {
	e := newEngine(t, testSettings(), sim.All()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := e.Process(ctx, goldenChick())
	assert.True(t, out.Degraded)
	assert.Contains(t, out.Reasoning, "context canceled")
}

func TestProcess_SimulatedSources(t *testing.T) {
	e := newEngine(t, testSettings(), sim.All()...)

	out := e.Process(context.Background(), goldenChick())

	assert.False(t, out.Degraded)
	assert.Equal(t, "Golden Chick Enterprises", out.Fields[model.FieldOwner])
	assert.Equal(t, "100 Main St, Dallas, TX 75201", out.Fields[model.FieldAddress])
	assert.Equal(t, "(214) 555-0100", out.Fields[model.FieldPhone])
	assert.Equal(t, "https://sos.texas.gov/corp/sosda/", out.URLSources[0])
	assert.InDelta(t, 1.0, out.DataQualityScore, 0.0001)
	assert.GreaterOrEqual(t, out.AgentConfidence, 0.0)
	assert.LessOrEqual(t, out.AgentConfidence, 1.0)
}

func TestProcess_SourceFilter(t *testing.T) {
	registry := fixedSource(strategy.BusinessRegistry, 0.9, model.Fields{model.FieldCorporateName: "Acme"})
	places := fixedSource(strategy.GooglePlaces, 0.9, model.Fields{model.FieldPhone: "2145550100"})
	e, err := New(testSettings(), source.NewRegistry(registry, places),
		WithSourceFilter(func(name string) bool { return name != strategy.GooglePlaces }))
	require.NoError(t, err)

	out := e.Process(context.Background(), model.Record{Franchisee: "Acme LLC"})
	assert.Zero(t, places.calls.Load())
	assert.Equal(t, []string{strategy.BusinessRegistry}, out.SourcesConsulted)
}

type memSink struct {
	mu   sync.Mutex
	seen map[int]model.EnrichedRecord
}

func (m *memSink) Record(_ context.Context, i int, r model.EnrichedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[int]model.EnrichedRecord)
	}
	m.seen[i] = r
	return nil
}

func records(names ...string) []model.Record {
	out := make([]model.Record, len(names))
	for i, n := range names {
		out[i] = model.Record{FDD: "Golden Chick", StoreNo: string(rune('A' + i)), Franchisee: n, State: "TX", Phone: "(214) 555-0100"}
	}
	return out
}

func TestRun_IndexAlignedWithIsolatedFailures(t *testing.T) {
	sink := &memSink{}
	s := testSettings()
	s.BatchSize = 2
	s.Concurrency = 2
	e, err := New(s, source.NewRegistry(sim.All()...),
		WithSink(sink),
		WithClassifier(func(name string) model.Classification {
			if name == "BOOM" {
				panic("bad record")
			}
			return classify.Classify(name)
		}),
	)
	require.NoError(t, err)

	in := records("Acme LLC", "BOOM", "Smith, John", "Jane Doe", "Taco Holdings Inc")
	out, summary, err := e.Run(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i], out[i].Record, "index %d", i)
	}
	assert.True(t, out[1].Degraded)
	assert.False(t, out[0].Degraded)
	assert.False(t, out[2].Degraded)

	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, summary.Batches)
	assert.Len(t, sink.seen, 5)
	assert.True(t, sink.seen[1].Degraded)
}

func TestRun_ConcurrencyBounded(t *testing.T) {
	var inflight, peak atomic.Int32
	registry := &stubSource{
		name: strategy.BusinessRegistry,
		fn: func(context.Context, model.Record) (*source.Response, error) {
			n := inflight.Add(1)
			defer inflight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			return &source.Response{Fields: model.Fields{model.FieldCorporateName: "x"}, Confidence: 0.9}, nil
		},
	}
	places := fixedSource(strategy.GooglePlaces, 0.9, model.Fields{model.FieldPhone: "2145550100"})

	s := testSettings()
	s.BatchSize = 6
	s.Concurrency = 2
	e := newEngine(t, s, registry, places)

	out, summary, err := e.Run(context.Background(), records("A LLC", "B LLC", "C LLC", "D LLC", "E LLC", "F LLC"))
	require.NoError(t, err)
	assert.Len(t, out, 6)
	assert.Equal(t, 6, summary.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(6), registry.calls.Load())
}

func TestRun_PausesBetweenBatches(t *testing.T) {
	s := testSettings()
	s.BatchSize = 1
	s.BatchDelay = 40 * time.Millisecond
	e := newEngine(t, s, sim.All()...)

	start := time.Now()
	_, summary, err := e.Run(context.Background(), records("A LLC", "B LLC", "C LLC"))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, 3, summary.Batches)
}

func TestRun_CancelledRunKeepsCardinality(t *testing.T) {
	sink := &memSink{}
	s := testSettings()
	e, err := New(s, source.NewRegistry(sim.All()...), WithSink(sink))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := records("A LLC", "B LLC", "C LLC")
	out, summary, err := e.Run(ctx, in)
	require.NoError(t, err)

	require.Len(t, out, 3)
	for i, r := range out {
		assert.True(t, r.Degraded)
		assert.Equal(t, in[i], r.Record)
	}
	assert.Equal(t, 3, summary.Failed)
	assert.Len(t, sink.seen, 3)
}

func TestRun_OutputMatchesInput(t *testing.T) {
	e := newEngine(t, testSettings(), sim.All()...)

	in := records("A LLC", "B LLC", "C LLC")
	out, summary, err := e.Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	assert.Equal(t, len(in), summary.Total)
	for i, r := range out {
		assert.Equal(t, in[i], r.Record)
	}
}

func TestRun_Empty(t *testing.T) {
	e := newEngine(t, testSettings(), sim.All()...)
	out, summary, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.Batches)
}

func TestBatchStats(t *testing.T) {
	b := &batchStats{min: 0.5, high: 0.8}
	b.add(model.EnrichedRecord{AgentConfidence: 0.9, DataQualityScore: 1, Duration: time.Second})
	b.add(model.EnrichedRecord{AgentConfidence: 0.3, DataQualityScore: 0.5, Duration: time.Second})
	b.add(model.EnrichedRecord{Degraded: true, Duration: time.Second})
	b.batch()

	s := b.summary(5 * time.Second)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.LowConfidence)
	assert.Equal(t, 1, s.HighConfidence)
	assert.Equal(t, 1, s.Batches)
	assert.InDelta(t, 0.4, s.AvgConfidence, 0.001)
	assert.InDelta(t, 0.5, s.AvgQuality, 0.001)
	assert.Equal(t, time.Second, s.AvgRecordDuration())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "enriching_primary", StateEnrichingPrimary.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "state(42)", State(42).String())
}
