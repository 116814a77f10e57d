package live

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/strategy"
	"github.com/sells-group/enrich-cli/pkg/opencorporates"
)

// ownerPositions rank officer titles that name the person running the
// franchise. Earlier entries win.
var ownerPositions = []string{"owner", "managing member", "member", "manager", "president", "chief executive", "director"}

// Registry looks up state business registrations through OpenCorporates.
type Registry struct {
	client opencorporates.Client
}

var _ source.Source = (*Registry)(nil)

// NewRegistry creates the business_registry source.
func NewRegistry(client opencorporates.Client) *Registry {
	return &Registry{client: client}
}

// Name implements source.Source.
func (r *Registry) Name() string { return strategy.BusinessRegistry }

// AppliesTo implements source.Source.
func (r *Registry) AppliesTo(et model.EntityType) bool { return et == model.EntityBusiness }

// ReferenceURL implements source.Source.
func (r *Registry) ReferenceURL(rec model.Record) string {
	if j := opencorporates.Jurisdiction(rec.StateCode()); j != "" {
		return "https://opencorporates.com/companies/" + j
	}
	return "https://opencorporates.com/"
}

// Lookup searches the record's home jurisdiction for the franchisee and
// reads officers of the best match. No match is an empty response, not an
// error.
func (r *Registry) Lookup(ctx context.Context, rec model.Record, _ model.EntityType) (*source.Response, error) {
	name := strings.TrimSpace(rec.Franchisee)
	companies, err := r.client.SearchCompanies(ctx, name, opencorporates.Jurisdiction(rec.StateCode()))
	if err != nil {
		return nil, eris.Wrap(classifyHTTP(err), "live: registry search")
	}

	best, exact := bestCompany(name, companies)
	if best == nil {
		return &source.Response{Fields: model.Fields{}}, nil
	}

	f := model.Fields{}
	f.Set(model.FieldCorporateName, best.Name)
	f.Set(model.FieldAddress, best.RegisteredAddress)
	verified := map[string]bool{model.FieldCorporateName: exact, model.FieldAddress: exact}

	if best.CompanyNumber != "" {
		full, err := r.client.GetCompany(ctx, best.JurisdictionCode, best.CompanyNumber)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, eris.Wrap(ctx.Err(), "live: registry company")
		case err != nil:
			zap.L().Debug("live: registry officers unavailable",
				zap.String("company", best.CompanyNumber),
				zap.Error(err),
			)
		default:
			f.Set(model.FieldOwner, ownerName(full.Officers))
		}
	}

	conf := 0.6
	if exact {
		conf = 0.9
	}
	return &source.Response{Fields: f, Verified: verified, Confidence: conf}, nil
}

// bestCompany prefers an active company whose normalized name matches, then
// any name match, then the first active result.
func bestCompany(name string, companies []opencorporates.Company) (*opencorporates.Company, bool) {
	want := normalizeName(name)
	var firstActive, firstMatch *opencorporates.Company
	for i := range companies {
		c := &companies[i]
		active := isActive(c.CurrentStatus)
		match := normalizeName(c.Name) == want
		if match && active {
			return c, true
		}
		if match && firstMatch == nil {
			firstMatch = c
		}
		if active && firstActive == nil {
			firstActive = c
		}
	}
	if firstMatch != nil {
		return firstMatch, true
	}
	return firstActive, false
}

func isActive(status string) bool {
	s := strings.ToLower(status)
	return s == "" || strings.Contains(s, "active") || strings.Contains(s, "good standing") || strings.Contains(s, "in existence")
}

func ownerName(officers []opencorporates.Officer) string {
	for _, pos := range ownerPositions {
		for _, o := range officers {
			if !o.Inactive && strings.Contains(strings.ToLower(o.Position), pos) {
				return strings.TrimSpace(o.Name)
			}
		}
	}
	for _, o := range officers {
		if !o.Inactive && !strings.Contains(strings.ToLower(o.Position), "agent") {
			return strings.TrimSpace(o.Name)
		}
	}
	return ""
}
