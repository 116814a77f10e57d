package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/enrich-cli/internal/fusion"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/score"
)

// State is a step of the per-record workflow.
type State int

const (
	StateClassifying State = iota
	StatePlanning
	StateEnrichingPrimary
	StateEnrichingFallback
	StateFusing
	StateResolving
	StateScoring
	StateDone
)

var stateNames = [...]string{
	StateClassifying:       "classifying",
	StatePlanning:          "planning",
	StateEnrichingPrimary:  "enriching_primary",
	StateEnrichingFallback: "enriching_fallback",
	StateFusing:            "fusing",
	StateResolving:         "resolving",
	StateScoring:           "scoring",
	StateDone:              "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func statePath(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.String()
	}
	return out
}

// recordContext is the working state of one record. It is owned by the
// goroutine processing that record.
type recordContext struct {
	rec   model.Record
	start time.Time
	state State
	trail []State

	class model.Classification
	strat model.Strategy
	prov  model.Provenance

	primary  []model.SourceResult
	fallback []model.SourceResult
	failures []model.SourceFailure
	// primaryMean is the mean confidence of successful primaries.
	primaryMean float64

	results     []model.SourceResult
	fusion      *model.FusionState
	consistency float64
	conflicts   []model.Conflict
	resolutions []model.Resolution

	out *model.EnrichedRecord
}

func newRecordContext(rec model.Record, now time.Time) *recordContext {
	return &recordContext{rec: rec, start: now, state: StateClassifying}
}

// step runs the current state and returns the next one.
func (e *Engine) step(ctx context.Context, rc *recordContext) (State, error) {
	switch rc.state {
	case StateClassifying:
		return e.classifyStep(rc)
	case StatePlanning:
		return e.planStep(rc)
	case StateEnrichingPrimary:
		return e.primaryStep(ctx, rc)
	case StateEnrichingFallback:
		return e.fallbackStep(ctx, rc)
	case StateFusing:
		return e.fuseStep(rc)
	case StateResolving:
		return e.resolveStep(rc)
	case StateScoring:
		return e.scoreStep(rc)
	}
	return rc.state, eris.Errorf("enrich: no step for state %s", rc.state)
}

func (e *Engine) classifyStep(rc *recordContext) (State, error) {
	rc.class = e.classify(rc.rec.Franchisee)
	return StatePlanning, nil
}

func (e *Engine) planStep(rc *recordContext) (State, error) {
	rc.strat = e.planner.Plan(rc.class, rc.rec)
	return StateEnrichingPrimary, nil
}

func (e *Engine) primaryStep(ctx context.Context, rc *recordContext) (State, error) {
	results, err := e.fanOut(ctx, rc, rc.strat.Primary, model.PhasePrimary)
	if err != nil {
		return rc.state, err
	}
	rc.primary = results
	rc.primaryMean = meanConfidence(results)

	if len(rc.strat.Fallback) > 0 && rc.primaryMean < rc.strat.ConfidenceThreshold {
		zap.L().Debug("enrich: primary confidence below threshold, running fallbacks",
			zap.String("record", rc.rec.Key()),
			zap.Float64("mean", rc.primaryMean),
			zap.Float64("threshold", rc.strat.ConfidenceThreshold),
		)
		return StateEnrichingFallback, nil
	}
	return StateFusing, nil
}

func (e *Engine) fallbackStep(ctx context.Context, rc *recordContext) (State, error) {
	results, err := e.fanOut(ctx, rc, rc.strat.Fallback, model.PhaseFallback)
	if err != nil {
		return rc.state, err
	}
	rc.fallback = results
	return StateFusing, nil
}

func (e *Engine) fuseStep(rc *recordContext) (State, error) {
	rc.results = make([]model.SourceResult, 0, len(rc.primary)+len(rc.fallback))
	rc.results = append(rc.results, rc.primary...)
	rc.results = append(rc.results, rc.fallback...)

	rc.fusion, rc.consistency = fusion.Fuse(rc.results)
	rc.conflicts = rc.fusion.Conflicts()
	if len(rc.conflicts) == 0 {
		return StateScoring, nil
	}
	return StateResolving, nil
}

func (e *Engine) resolveStep(rc *recordContext) (State, error) {
	rc.resolutions = e.resolver.Resolve(rc.conflicts)
	rc.results = fusion.Apply(rc.results, rc.resolutions)
	return StateScoring, nil
}

func (e *Engine) scoreStep(rc *recordContext) (State, error) {
	fields := fusion.Merge(rc.results)

	sources := make([]string, 0, len(rc.results))
	confidences := make([]float64, 0, len(rc.results))
	for _, r := range rc.results {
		sources = append(sources, r.Source)
		confidences = append(confidences, r.Confidence)
	}
	m := e.calc.Metrics(rc.consistency, fields, sources, confidences)

	rc.out = &model.EnrichedRecord{
		Record:                rc.rec,
		Fields:                fields,
		AgentConfidence:       score.Round3(score.AgentConfidence(rc.class.Confidence, m)),
		DataQualityScore:      score.DataQuality(fields),
		QualityScore:          score.Round3(score.QualityScore(m)),
		Classification:        rc.class,
		Strategy:              rc.strat.Reasoning,
		SourcesConsulted:      sources,
		SourcesConsultedCount: len(sources),
		URLSources:            rc.prov.URLs(),
		Failures:              rc.failures,
		Conflicts:             rc.resolutions,
		Metrics:               m,
		Reasoning:             e.reasoning(rc, m, fields),
		FinalState:            StateDone.String(),
		PipelineVersion:       e.settings.PipelineVersion,
	}
	return StateDone, nil
}

// fanOut invokes names concurrently and returns the successes in the order
// of names, whatever order they finished in. Failures and reference URLs are
// folded into rc in the same order.
func (e *Engine) fanOut(ctx context.Context, rc *recordContext, names []string, phase model.Phase) ([]model.SourceResult, error) {
	type outcome struct {
		res  model.SourceResult
		fail *model.SourceFailure
		prov model.Provenance
	}
	outs := make([]outcome, len(names))

	g, gCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			o := &outs[i]
			o.res, o.fail = e.invoker.Invoke(gCtx, name, phase, rc.rec, rc.class.Type, &o.prov)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]model.SourceResult, 0, len(names))
	for _, o := range outs {
		for _, u := range o.prov.URLs() {
			rc.prov.Add(u)
		}
		if o.fail != nil {
			rc.failures = append(rc.failures, *o.fail)
			zap.L().Warn("enrich: source failed",
				zap.String("record", rc.rec.Key()),
				zap.String("source", o.fail.Source),
				zap.String("phase", string(phase)),
				zap.String("cause", o.fail.Cause),
			)
			continue
		}
		results = append(results, o.res)
	}
	return results, nil
}

func (e *Engine) reasoning(rc *recordContext, m model.QualityMetrics, fields model.Fields) string {
	parts := []string{
		fmt.Sprintf("Entity: %s (%.2f)", rc.class.Type, rc.class.Confidence),
		fmt.Sprintf("Sources: %d", len(rc.results)),
		fmt.Sprintf("Consistency: %.2f", m.DataConsistency),
		fmt.Sprintf("Completeness: %.2f", m.FieldCompleteness),
	}
	if len(rc.fallback) > 0 || rc.hasFallbackFailures() {
		parts = append(parts, fmt.Sprintf("Fallback: primary mean %.2f < %.2f", rc.primaryMean, rc.strat.ConfidenceThreshold))
	}
	for _, r := range rc.resolutions {
		parts = append(parts, fmt.Sprintf("Resolved %s by %s (%s)", r.Field, r.Rule, r.Source))
	}
	var missing []string
	for _, f := range e.settings.RequiredFields {
		if fields[f] == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		parts = append(parts, "Missing: "+strings.Join(missing, ", "))
	}
	return strings.Join(parts, "; ")
}

func (rc *recordContext) hasFallbackFailures() bool {
	for _, f := range rc.failures {
		if f.Phase == model.PhaseFallback {
			return true
		}
	}
	return false
}

func meanConfidence(results []model.SourceResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Confidence
	}
	return sum / float64(len(results))
}
