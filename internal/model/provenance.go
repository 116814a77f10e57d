package model

import (
	"sort"
	"time"
)

// Phase identifies which wave of a strategy produced a result.
type Phase string

const (
	PhasePrimary  Phase = "primary"
	PhaseFallback Phase = "fallback"
)

// SourceResult is one successful source invocation.
type SourceResult struct {
	Source       string          `json:"source"`
	Phase        Phase           `json:"phase"`
	Fields       Fields          `json:"fields"`
	Verified     map[string]bool `json:"verified,omitempty"`
	Confidence   float64         `json:"confidence"`
	ReferenceURL string          `json:"reference_url,omitempty"`
	Attempts     int             `json:"attempts"`
	Cached       bool            `json:"cached,omitempty"`
	Duration     time.Duration   `json:"duration_ns"`
}

// SourceFailure is an invocation that exhausted its attempts or could not run.
type SourceFailure struct {
	Source    string `json:"source"`
	Phase     Phase  `json:"phase"`
	Cause     string `json:"cause"`
	Attempts  int    `json:"attempts"`
	Transient bool   `json:"transient"`
}

// Contribution is one source's value for one field.
type Contribution struct {
	Value    string `json:"value"`
	Source   string `json:"source"`
	Verified bool   `json:"verified"`
}

// Conflict is a field where contributors disagree.
type Conflict struct {
	Field         string         `json:"field"`
	Candidates    []string       `json:"candidates"`
	Contributions []Contribution `json:"contributions"`
}

// Resolution records the value picked for a conflict and the rule that picked it.
type Resolution struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Source string `json:"source"`
	Rule   string `json:"rule"`
}

// Provenance is the ordered list of reference URLs for sources that succeeded
// for a single record. It is owned by that record's processing and never shared.
type Provenance struct {
	urls []string
}

// Add appends url unless it is empty.
func (p *Provenance) Add(url string) {
	if url == "" {
		return
	}
	p.urls = append(p.urls, url)
}

// URLs returns a copy of the collected URLs in insertion order.
func (p *Provenance) URLs() []string {
	out := make([]string, len(p.urls))
	copy(out, p.urls)
	return out
}

// Len is the number of collected URLs.
func (p *Provenance) Len() int { return len(p.urls) }

// FusionState holds per-field contributions in the order they were folded.
// Contributions are append-only.
type FusionState struct {
	order  []string
	fields map[string][]Contribution
}

// NewFusionState returns an empty state.
func NewFusionState() *FusionState {
	return &FusionState{fields: make(map[string][]Contribution)}
}

// Add appends a contribution for field. Empty values are ignored.
func (s *FusionState) Add(field string, c Contribution) {
	if c.Value == "" {
		return
	}
	if _, ok := s.fields[field]; !ok {
		s.order = append(s.order, field)
	}
	s.fields[field] = append(s.fields[field], c)
}

// Fields returns the contributed field keys in first-contribution order.
func (s *FusionState) Fields() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Contributions returns the contributions for field in fold order.
func (s *FusionState) Contributions(field string) []Contribution {
	return s.fields[field]
}

// Distinct returns the distinct values contributed for field, in first-seen order.
func (s *FusionState) Distinct(field string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range s.fields[field] {
		if seen[c.Value] {
			continue
		}
		seen[c.Value] = true
		out = append(out, c.Value)
	}
	return out
}

// Conflicts returns every field with two or more distinct values, sorted by
// field key.
func (s *FusionState) Conflicts() []Conflict {
	var out []Conflict
	for _, f := range s.order {
		d := s.Distinct(f)
		if len(d) < 2 {
			continue
		}
		contribs := make([]Contribution, len(s.fields[f]))
		copy(contribs, s.fields[f])
		out = append(out, Conflict{Field: f, Candidates: d, Contributions: contribs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
