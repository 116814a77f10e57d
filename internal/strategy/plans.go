package strategy

import (
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// PlanSet holds the source plans for both entity types.
type PlanSet struct {
	Business   Plan `yaml:"business"`
	Individual Plan `yaml:"individual"`
}

// DefaultPlans returns the built-in plans.
func DefaultPlans() PlanSet {
	p := DefaultPolicy()
	return PlanSet{Business: p.Business, Individual: p.Individual}
}

// LoadPlans reads plans from a YAML file with a top-level "strategies" key.
// An entity type or phase left empty keeps its built-in list.
func LoadPlans(path string) (PlanSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PlanSet{}, eris.Wrapf(err, "strategy: read plans %s", path)
	}
	return ParsePlans(data)
}

// ParsePlans decodes plans from YAML. A source may appear at most once in
// the lists a file names for one entity type. A built-in list filled into an
// empty phase drops the sources the other phase already uses.
func ParsePlans(data []byte) (PlanSet, error) {
	var wrapper struct {
		Strategies PlanSet `yaml:"strategies"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return PlanSet{}, eris.Wrap(err, "strategy: parse plans")
	}

	ps := wrapper.Strategies
	for name, p := range map[string]Plan{"business": ps.Business, "individual": ps.Individual} {
		if err := checkPlan(name, p); err != nil {
			return PlanSet{}, err
		}
	}

	def := DefaultPlans()
	fill(&ps.Business, def.Business)
	fill(&ps.Individual, def.Individual)
	return ps, nil
}

func checkPlan(name string, p Plan) error {
	seen := make(map[string]bool)
	for _, src := range append(append([]string{}, p.Primary...), p.Fallback...) {
		if src == "" {
			return eris.Errorf("strategy: %s plan has an empty source name", name)
		}
		if seen[src] {
			return eris.Errorf("strategy: %s plan lists %q twice", name, src)
		}
		seen[src] = true
	}
	return nil
}

// Names returns every source named by the set, without duplicates, in plan
// order.
func (ps PlanSet) Names() []string {
	var out []string
	seen := make(map[string]bool)
	for _, list := range [][]string{ps.Business.Primary, ps.Business.Fallback, ps.Individual.Primary, ps.Individual.Fallback} {
		for _, n := range list {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

func fill(p *Plan, def Plan) {
	switch {
	case len(p.Primary) == 0 && len(p.Fallback) == 0:
		*p = def
	case len(p.Primary) == 0:
		p.Primary = without(def.Primary, p.Fallback)
	case len(p.Fallback) == 0:
		p.Fallback = without(def.Fallback, p.Primary)
	}
}

// without returns list minus every name in drop, keeping order.
func without(list, drop []string) []string {
	out := make([]string, 0, len(list))
	for _, n := range list {
		if !slices.Contains(drop, n) {
			out = append(out, n)
		}
	}
	return out
}
