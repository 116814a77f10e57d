// Package classify decides whether a franchisee name names a business or a person.
package classify

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/enrich-cli/internal/model"
)

// BusinessIndicators are matched as case-insensitive substrings of the name.
// Overlapping entries (CORP/CORPORATION, LP/LLP) count separately.
var BusinessIndicators = []string{
	"LLC", "INC", "CORP", "CORPORATION", "LTD", "LIMITED",
	"LP", "LLP", "COMPANY", "ENTERPRISES", "GROUP",
	"VENTURES", "HOLDINGS", "MANAGEMENT", "INVESTMENTS",
	"RESTAURANT", "FOODS", "CHICKEN", "GRILL",
}

// suffixMarkers are generational suffixes recorded as individual evidence only.
var suffixMarkers = []string{"JR", "SR", "III"}

const (
	maxBusinessConfidence  = 0.95
	baseBusinessConfidence = 0.7
	perIndicator           = 0.1
	commaNameConfidence    = 0.9
	twoTokenConfidence     = 0.8
	defaultConfidence      = 0.6
)

var upper = cases.Upper(language.Und)

// Classify returns the entity type and confidence for name. It never fails;
// an empty or ambiguous name is treated as a business at low confidence.
func Classify(name string) model.Classification {
	folded := fold(name)
	tokens := strings.Fields(name)

	ev := model.Evidence{
		HasComma:   strings.Contains(name, ","),
		TokenCount: len(tokens),
	}
	for _, ind := range BusinessIndicators {
		if strings.Contains(folded, ind) {
			ev.BusinessIndicators++
			ev.Matched = append(ev.Matched, ind)
		}
	}
	if ev.HasComma {
		ev.IndividualIndicators++
	}
	for _, tok := range strings.Fields(strings.ReplaceAll(folded, ",", " ")) {
		for _, m := range suffixMarkers {
			if strings.TrimSuffix(tok, ".") == m {
				ev.IndividualIndicators++
			}
		}
	}

	c := model.Classification{Evidence: ev}
	switch {
	case ev.BusinessIndicators > 0:
		c.Type = model.EntityBusiness
		c.Confidence = min(maxBusinessConfidence, round2(baseBusinessConfidence+perIndicator*float64(ev.BusinessIndicators)))
		c.Evidence.Reason = fmt.Sprintf("business entity: %d business indicators found", ev.BusinessIndicators)
	case ev.HasComma && ev.TokenCount == 2:
		c.Type = model.EntityIndividual
		c.Confidence = commaNameConfidence
		c.Evidence.Reason = "individual: 'Last, First' format"
	case ev.TokenCount == 2:
		c.Type = model.EntityIndividual
		c.Confidence = twoTokenConfidence
		c.Evidence.Reason = "individual: two-word name, no business indicators"
	default:
		c.Type = model.EntityBusiness
		c.Confidence = defaultConfidence
		c.Evidence.Reason = "default to business: ambiguous name"
	}
	return c
}

// ParseIndividualName splits a person's name into first and last. It accepts
// "Last, First M" and "First Middle Last" forms. A single token is returned as
// the last name.
func ParseIndividualName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if before, after, ok := strings.Cut(name, ","); ok {
		last = strings.TrimSpace(before)
		if rest := strings.Fields(after); len(rest) > 0 {
			first = rest[0]
		}
		return first, last
	}
	parts := strings.Fields(name)
	if len(parts) >= 2 {
		return parts[0], strings.Join(parts[1:], " ")
	}
	return "", name
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// fold upper-cases s and strips combining marks so "Café" matches "CAFE".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return upper.String(out)
}
