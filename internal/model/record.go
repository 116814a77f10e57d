package model

import (
	"strings"
)

// Record is one input row to be enriched. Records are values and are never
// mutated once read.
type Record struct {
	FDD          string `json:"fdd"`
	StoreNo      string `json:"store_no"`
	LocationName string `json:"location_name"`
	Franchisee   string `json:"franchisee"`
	ContactName  string `json:"contact_name"`
	Address      string `json:"address"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	Phone        string `json:"phone"`
}

// Key returns a stable identity for the record, used for cache keys and logs.
func (r Record) Key() string {
	parts := []string{
		strings.TrimSpace(r.FDD),
		strings.TrimSpace(r.StoreNo),
		strings.ToUpper(strings.TrimSpace(r.Franchisee)),
		strings.ToUpper(strings.TrimSpace(r.State)),
		strings.TrimSpace(r.Zip),
	}
	return strings.Join(parts, "|")
}

// StateCode returns the upper-cased, trimmed two-letter state.
func (r Record) StateCode() string {
	return strings.ToUpper(strings.TrimSpace(r.State))
}

// FullAddress joins street, city, state and zip as "addr, city, ST zip".
// Empty components are skipped.
func (r Record) FullAddress() string {
	var parts []string
	if s := strings.TrimSpace(r.Address); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(r.City); s != "" {
		parts = append(parts, s)
	}
	tail := strings.TrimSpace(r.StateCode() + " " + strings.TrimSpace(r.Zip))
	if tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}

// Fields returns the original columns keyed by their source header, used to
// carry the input through to exports and degraded results.
func (r Record) Fields() map[string]string {
	return map[string]string{
		"FDD":               r.FDD,
		"FDD Store No.":     r.StoreNo,
		"FDD Location Name": r.LocationName,
		"Franchisee":        r.Franchisee,
		"FDD Contact Name":  r.ContactName,
		"Address":           r.Address,
		"City":              r.City,
		"State":             r.State,
		"Zip":               r.Zip,
		"Phone":             r.Phone,
	}
}
