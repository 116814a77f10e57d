// Package strategy picks the ordered source plan for a classified record.
package strategy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Source names used by the built-in plans.
const (
	BusinessRegistry   = "business_registry"
	GooglePlaces       = "google_places"
	CorporateDatabase  = "corporate_database"
	LinkedInCompany    = "linkedin_company"
	LinkedInIndividual = "linkedin_individual"
	GoogleSearch       = "google_search"
	PeopleSearch       = "people_search"
	SocialMedia        = "social_media"
)

// Plan is a fixed primary/fallback source list for one entity type.
type Plan struct {
	Primary  []string `yaml:"primary"`
	Fallback []string `yaml:"fallback"`
}

// Policy holds the thresholds and source lists the planner applies.
type Policy struct {
	DefaultThreshold      float64
	RichRegistryThreshold float64
	// RichRegistryStates are two-letter codes where the registry is
	// authoritative enough to raise the bar for skipping fallbacks.
	RichRegistryStates []string
	Business           Plan
	Individual         Plan
	// Enabled filters planned sources. Nil enables everything.
	Enabled func(name string) bool
}

// DefaultPolicy returns the built-in plans with a 0.7 default threshold and
// 0.8 for Texas records.
func DefaultPolicy() Policy {
	return Policy{
		DefaultThreshold:      0.7,
		RichRegistryThreshold: 0.8,
		RichRegistryStates:    []string{"TX"},
		Business: Plan{
			Primary:  []string{BusinessRegistry, GooglePlaces},
			Fallback: []string{CorporateDatabase, LinkedInCompany},
		},
		Individual: Plan{
			Primary:  []string{LinkedInIndividual, GoogleSearch},
			Fallback: []string{PeopleSearch, SocialMedia},
		},
	}
}

// Planner turns classifications into strategies.
type Planner struct {
	policy Policy
	rich   map[string]bool
}

// NewPlanner creates a planner for policy.
func NewPlanner(policy Policy) *Planner {
	rich := make(map[string]bool, len(policy.RichRegistryStates))
	for _, s := range policy.RichRegistryStates {
		rich[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return &Planner{policy: policy, rich: rich}
}

// Plan returns the strategy for a record. It never fails.
func (p *Planner) Plan(c model.Classification, rec model.Record) model.Strategy {
	if c.Type == model.EntityIndividual {
		return model.Strategy{
			Primary:             p.filter(p.policy.Individual.Primary),
			Fallback:            p.filter(p.policy.Individual.Fallback),
			ConfidenceThreshold: p.policy.DefaultThreshold,
			Reasoning:           "individual search strategy: professional networks first, then people directories",
		}
	}

	st := model.Strategy{
		Primary:             p.filter(p.policy.Business.Primary),
		Fallback:            p.filter(p.policy.Business.Fallback),
		ConfidenceThreshold: p.policy.DefaultThreshold,
		Reasoning:           "business search strategy: state registry first, then corporate databases",
	}
	if code := rec.StateCode(); p.rich[code] {
		st.ConfidenceThreshold = p.policy.RichRegistryThreshold
		st.Reasoning = fmt.Sprintf("%s registry has comprehensive business records; raised threshold", code)
	}
	return st
}

func (p *Planner) filter(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if p.policy.Enabled != nil && !p.policy.Enabled(n) {
			continue
		}
		out = append(out, n)
	}
	return slices.Clip(out)
}
