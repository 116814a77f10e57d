package live

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/strategy"
	"github.com/sells-group/enrich-cli/pkg/google"
)

// Places finds the franchise location through Google Places Text Search.
type Places struct {
	client google.Client
}

var _ source.Source = (*Places)(nil)

// NewPlaces creates the google_places source.
func NewPlaces(client google.Client) *Places {
	return &Places{client: client}
}

// Name implements source.Source.
func (p *Places) Name() string { return strategy.GooglePlaces }

// AppliesTo implements source.Source.
func (p *Places) AppliesTo(et model.EntityType) bool { return et == model.EntityBusiness }

// ReferenceURL implements source.Source.
func (p *Places) ReferenceURL(rec model.Record) string {
	return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(query(rec))
}

// Lookup implements source.Source.
func (p *Places) Lookup(ctx context.Context, rec model.Record, _ model.EntityType) (*source.Response, error) {
	resp, err := p.client.TextSearch(ctx, google.TextSearchRequest{
		TextQuery:      query(rec),
		RegionCode:     "US",
		MaxResultCount: 5,
	})
	if err != nil {
		return nil, eris.Wrap(classifyHTTP(err), "live: places search")
	}

	place := pickPlace(resp.Places)
	if place == nil {
		return &source.Response{Fields: model.Fields{}}, nil
	}

	f := model.Fields{}
	f.Set(model.FieldAddress, strings.TrimSuffix(place.FormattedAddress, ", USA"))
	f.Set(model.FieldPhone, place.NationalPhoneNumber)
	if strings.Contains(place.WebsiteURI, "linkedin.com/company/") {
		f.Set(model.FieldLinkedIn, place.WebsiteURI)
	}
	return &source.Response{
		Fields:     f,
		Verified:   map[string]bool{model.FieldAddress: true, model.FieldPhone: true},
		Confidence: 0.8,
	}, nil
}

// query searches for the store location, which is what Places indexes,
// rather than the owning entity.
func query(rec model.Record) string {
	name := strings.TrimSpace(rec.LocationName)
	if name == "" {
		name = strings.TrimSpace(rec.Franchisee)
	}
	return strings.TrimSpace(name + " " + rec.FullAddress())
}

func pickPlace(places []google.Place) *google.Place {
	for i := range places {
		if places[i].BusinessStatus != "CLOSED_PERMANENTLY" {
			return &places[i]
		}
	}
	return nil
}
