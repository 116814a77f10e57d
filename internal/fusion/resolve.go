package fusion

import (
	"strings"
	"unicode/utf8"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Resolution rule names, in precedence order.
const (
	RuleRegistry = "registry"
	RuleVerified = "verified"
	RuleLongest  = "longest"
	RuleFirst    = "first"
)

// verifiedPrefix is the legacy in-value verification marker some feeds still
// emit. The structured Contribution.Verified flag is preferred.
const verifiedPrefix = "Verified:"

// Resolver settles conflicting field values.
type Resolver struct {
	// Authoritative is the source whose value always wins.
	Authoritative string
}

// NewResolver creates a resolver trusting authoritative above all others.
func NewResolver(authoritative string) *Resolver {
	return &Resolver{Authoritative: authoritative}
}

// Resolve picks one value per conflict. The result is deterministic for a
// given contribution order.
func (r *Resolver) Resolve(conflicts []model.Conflict) []model.Resolution {
	out := make([]model.Resolution, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, r.resolve(c))
	}
	return out
}

func (r *Resolver) resolve(c model.Conflict) model.Resolution {
	res := model.Resolution{Field: c.Field}

	if r.Authoritative != "" {
		for _, ct := range c.Contributions {
			if ct.Source == r.Authoritative {
				res.Value, res.Source, res.Rule = ct.Value, ct.Source, RuleRegistry
				return res
			}
		}
	}

	var verified []model.Contribution
	for _, ct := range c.Contributions {
		if ct.Verified || strings.HasPrefix(ct.Value, verifiedPrefix) {
			verified = append(verified, ct)
		}
	}
	if len(verified) > 0 {
		best, _ := longest(verified)
		res.Value, res.Source, res.Rule = best.Value, best.Source, RuleVerified
		return res
	}

	best, tie := longest(c.Contributions)
	res.Value, res.Source, res.Rule = best.Value, best.Source, RuleLongest
	if tie {
		res.Rule = RuleFirst
	}
	return res
}

// longest returns the contribution with the most runes, the earliest on
// equal length. tie reports that every value has the same length.
func longest(cs []model.Contribution) (best model.Contribution, tie bool) {
	best, tie = cs[0], true
	for _, ct := range cs[1:] {
		n, bn := utf8.RuneCountInString(ct.Value), utf8.RuneCountInString(best.Value)
		if n != bn {
			tie = false
		}
		if n > bn {
			best = ct
		}
	}
	return best, tie
}

// Apply returns copies of results with each resolved field overwritten in
// every result that contributed it.
func Apply(results []model.SourceResult, resolutions []model.Resolution) []model.SourceResult {
	out := make([]model.SourceResult, len(results))
	for i, res := range results {
		res.Fields = res.Fields.Clone()
		for _, rv := range resolutions {
			if _, ok := res.Fields[rv.Field]; ok {
				res.Fields[rv.Field] = rv.Value
			}
		}
		out[i] = res
	}
	return out
}
