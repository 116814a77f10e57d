// Package opencorporates is a client for the OpenCorporates company registry API.
package opencorporates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.opencorporates.com/v0.4"

// Client performs registry lookups.
type Client interface {
	// SearchCompanies finds companies by name, optionally within one
	// jurisdiction such as "us_tx".
	SearchCompanies(ctx context.Context, name, jurisdiction string) ([]Company, error)
	// GetCompany fetches one company with its officers.
	GetCompany(ctx context.Context, jurisdiction, number string) (*Company, error)
}

// Company is a registered legal entity.
type Company struct {
	Name              string    `json:"name"`
	CompanyNumber     string    `json:"company_number"`
	JurisdictionCode  string    `json:"jurisdiction_code"`
	CompanyType       string    `json:"company_type"`
	CurrentStatus     string    `json:"current_status"`
	IncorporationDate string    `json:"incorporation_date"`
	RegisteredAddress string    `json:"registered_address_in_full"`
	OpenCorporatesURL string    `json:"opencorporates_url"`
	Officers          []Officer `json:"-"`
}

// Officer is a director, manager or agent listed for a company.
type Officer struct {
	Name     string `json:"name"`
	Position string `json:"position"`
	Inactive bool   `json:"inactive"`
}

// APIError is a non-200 response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("opencorporates: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	apiToken string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates an OpenCorporates client. An empty token uses the
// anonymous quota.
func NewClient(apiToken string, opts ...Option) Client {
	c := &httpClient{
		apiToken: apiToken,
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(1, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchResponse struct {
	Results struct {
		Companies []struct {
			Company Company `json:"company"`
		} `json:"companies"`
	} `json:"results"`
}

type companyResponse struct {
	Results struct {
		Company struct {
			Company
			Officers []struct {
				Officer Officer `json:"officer"`
			} `json:"officers"`
		} `json:"company"`
	} `json:"results"`
}

func (c *httpClient) SearchCompanies(ctx context.Context, name, jurisdiction string) ([]Company, error) {
	q := url.Values{}
	q.Set("q", name)
	if jurisdiction != "" {
		q.Set("jurisdiction_code", jurisdiction)
	}

	var resp searchResponse
	if err := c.get(ctx, "/companies/search", q, &resp); err != nil {
		return nil, err
	}

	out := make([]Company, 0, len(resp.Results.Companies))
	for _, item := range resp.Results.Companies {
		out = append(out, item.Company)
	}
	return out, nil
}

func (c *httpClient) GetCompany(ctx context.Context, jurisdiction, number string) (*Company, error) {
	path := "/companies/" + url.PathEscape(jurisdiction) + "/" + url.PathEscape(number)

	var resp companyResponse
	if err := c.get(ctx, path, url.Values{}, &resp); err != nil {
		return nil, err
	}

	co := resp.Results.Company.Company
	for _, o := range resp.Results.Company.Officers {
		co.Officers = append(co.Officers, o.Officer)
	}
	return &co, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "opencorporates: rate limit")
	}
	if c.apiToken != "" {
		q.Set("api_token", c.apiToken)
	}

	u := c.baseURL + path
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return eris.Wrap(err, "opencorporates: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "opencorporates: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "opencorporates: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return eris.Wrap(json.Unmarshal(body, out), "opencorporates: unmarshal response")
}

// Jurisdiction maps a US state code to an OpenCorporates jurisdiction code.
func Jurisdiction(state string) string {
	state = strings.ToLower(strings.TrimSpace(state))
	if len(state) != 2 {
		return ""
	}
	return "us_" + state
}
