// Package sim provides deterministic stand-ins for every enrichment source.
// They derive their answers from the input record, so runs are repeatable
// without network access or API keys.
package sim

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/sells-group/enrich-cli/internal/classify"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/strategy"
)

type lookupFunc func(rec model.Record, et model.EntityType) (*source.Response, error)

// Source is a simulated source.
type Source struct {
	name    string
	types   []model.EntityType
	ref     func(rec model.Record) string
	lookup  lookupFunc
	latency time.Duration
}

// Name implements source.Source.
func (s *Source) Name() string { return s.name }

// AppliesTo implements source.Source.
func (s *Source) AppliesTo(et model.EntityType) bool {
	for _, t := range s.types {
		if t == et {
			return true
		}
	}
	return false
}

// ReferenceURL implements source.Source.
func (s *Source) ReferenceURL(rec model.Record) string { return s.ref(rec) }

// Lookup implements source.Source. With a latency configured it waits that
// long first, honoring ctx.
func (s *Source) Lookup(ctx context.Context, rec model.Record, et model.EntityType) (*source.Response, error) {
	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return s.lookup(rec, et)
}

// Option adjusts the simulated sources.
type Option func(*Source)

// WithLatency makes every lookup take d.
func WithLatency(d time.Duration) Option {
	return func(s *Source) { s.latency = d }
}

// All returns one simulated source per name the default strategies use.
func All(opts ...Option) []source.Source {
	srcs := []*Source{
		registry(), places(), corporateDatabase(), linkedInCompany(),
		linkedInIndividual(), googleSearch(), peopleSearch(), socialMedia(),
	}
	out := make([]source.Source, len(srcs))
	for i, s := range srcs {
		for _, o := range opts {
			o(s)
		}
		out[i] = s
	}
	return out
}

func fixed(url string) func(model.Record) string {
	return func(model.Record) string { return url }
}

var business = []model.EntityType{model.EntityBusiness}
var individual = []model.EntityType{model.EntityIndividual}

// majorRegistries publish owner data alongside the entity name.
var majorRegistries = map[string]bool{"TX": true, "CA": true, "FL": true, "NY": true}

func registry() *Source {
	return &Source{
		name:  strategy.BusinessRegistry,
		types: business,
		ref: func(rec model.Record) string {
			st := rec.StateCode()
			switch {
			case st == "TX":
				return "https://sos.texas.gov/corp/sosda/"
			case majorRegistries[st]:
				return fmt.Sprintf("https://sos.%s.gov/", strings.ToLower(st))
			}
			return "https://opencorporates.com/"
		},
		lookup: func(rec model.Record, _ model.EntityType) (*source.Response, error) {
			name := strings.TrimSpace(rec.Franchisee)
			f := model.Fields{}
			f.Set(model.FieldCorporateName, name)
			st := rec.StateCode()
			if majorRegistries[st] {
				f.Set(model.FieldOwner, StripLegalSuffix(name))
			} else {
				f.Set(model.FieldOwner, name)
			}
			if st == "TX" {
				f.Set(model.FieldAddress, rec.FullAddress())
			}
			return &source.Response{
				Fields:     f,
				Verified:   map[string]bool{model.FieldCorporateName: true},
				Confidence: 0.9,
			}, nil
		},
	}
}

func places() *Source {
	return &Source{
		name:  strategy.GooglePlaces,
		types: business,
		ref:   fixed("https://maps.googleapis.com/maps/api/place/"),
		lookup: func(rec model.Record, _ model.EntityType) (*source.Response, error) {
			f := model.Fields{}
			f.Set(model.FieldPhone, strings.TrimSpace(rec.Phone))
			f.Set(model.FieldAddress, rec.FullAddress())
			upper := strings.ToUpper(rec.Franchisee)
			if strings.Contains(upper, "LLC") || strings.Contains(upper, "INC") {
				if slug := compact(StripLegalSuffix(rec.Franchisee), 10); slug != "" {
					f.Set(model.FieldEmail, "info@"+slug+".com")
				}
			}
			return &source.Response{
				Fields:     f,
				Verified:   map[string]bool{model.FieldAddress: true, model.FieldPhone: true},
				Confidence: 0.8,
			}, nil
		},
	}
}

func corporateDatabase() *Source {
	return &Source{
		name:  strategy.CorporateDatabase,
		types: business,
		ref:   fixed("https://opencorporates.com/api/"),
		lookup: func(rec model.Record, _ model.EntityType) (*source.Response, error) {
			f := model.Fields{}
			f.Set(model.FieldCorporateName, strings.TrimSpace(rec.Franchisee))
			f.Set(model.FieldLinkedIn, "https://www.linkedin.com/company/"+Slug(rec.Franchisee))
			if strings.Contains(strings.ToUpper(rec.Franchisee), "LLC") && rec.City != "" {
				f.Set(model.FieldAddress, fmt.Sprintf("Registered Agent: %s, %s", strings.TrimSpace(rec.City), rec.StateCode()))
			}
			return &source.Response{Fields: f, Confidence: 0.7}, nil
		},
	}
}

func linkedInCompany() *Source {
	return &Source{
		name:  strategy.LinkedInCompany,
		types: business,
		ref:   fixed("https://www.linkedin.com/search/"),
		lookup: func(rec model.Record, _ model.EntityType) (*source.Response, error) {
			name := StripLegalSuffix(rec.Franchisee)
			f := model.Fields{}
			f.Set(model.FieldLinkedIn, "https://www.linkedin.com/company/"+Slug(name))
			f.Set(model.FieldOwner, name)
			return &source.Response{Fields: f, Confidence: 0.7}, nil
		},
	}
}

func linkedInIndividual() *Source {
	return &Source{
		name:  strategy.LinkedInIndividual,
		types: individual,
		ref:   fixed("https://www.linkedin.com/search/"),
		lookup: func(rec model.Record, _ model.EntityType) (*source.Response, error) {
			first, last := classify.ParseIndividualName(rec.Franchisee)
			if first == "" || last == "" {
				return &source.Response{Fields: model.Fields{}, Confidence: 0.3}, nil
			}
			f := model.Fields{}
			f.Set(model.FieldOwner, first+" "+last)
			f.Set(model.FieldLinkedIn, "https://www.linkedin.com/in/"+Slug(first+" "+last))
			return &source.Response{Fields: f, Confidence: 0.85}, nil
		},
	}
}

func googleSearch() *Source {
	return &Source{
		name:  strategy.GoogleSearch,
		types: []model.EntityType{model.EntityIndividual, model.EntityBusiness},
		ref:   fixed("https://www.google.com/search"),
		lookup: func(rec model.Record, et model.EntityType) (*source.Response, error) {
			f := model.Fields{}
			if et == model.EntityIndividual {
				f.Set(model.FieldOwner, personName(rec.Franchisee))
			} else {
				f.Set(model.FieldCorporateName, strings.TrimSpace(rec.Franchisee))
			}
			f.Set(model.FieldAddress, rec.FullAddress())
			return &source.Response{Fields: f, Confidence: 0.75}, nil
		},
	}
}

func peopleSearch() *Source {
	return &Source{
		name:  strategy.PeopleSearch,
		types: individual,
		ref:   fixed("https://www.whitepages.com/"),
		lookup: func(rec model.Record, _ model.EntityType) (*source.Response, error) {
			f := model.Fields{}
			f.Set(model.FieldOwner, personName(rec.Franchisee))
			f.Set(model.FieldPhone, strings.TrimSpace(rec.Phone))
			return &source.Response{Fields: f, Confidence: 0.6}, nil
		},
	}
}

func socialMedia() *Source {
	return &Source{
		name:  strategy.SocialMedia,
		types: individual,
		ref:   fixed("https://www.facebook.com/search/"),
		lookup: func(rec model.Record, _ model.EntityType) (*source.Response, error) {
			f := model.Fields{}
			f.Set(model.FieldOwner, personName(rec.Franchisee))
			return &source.Response{Fields: f, Confidence: 0.5}, nil
		},
	}
}

func personName(name string) string {
	first, last := classify.ParseIndividualName(name)
	return strings.TrimSpace(first + " " + last)
}

// StripLegalSuffix removes a trailing " LLC" or " Inc" designation.
func StripLegalSuffix(name string) string {
	name = strings.TrimSpace(name)
	for _, suf := range []string{" LLC", " Inc", " INC", " Inc."} {
		name = strings.TrimSuffix(name, suf)
	}
	return strings.TrimSpace(strings.TrimSuffix(name, ","))
}

// Slug lower-cases name and joins alphanumeric runs with dashes.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func compact(name string, n int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if b.Len() >= n {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
