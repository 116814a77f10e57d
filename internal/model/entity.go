package model

// EntityType is the kind of party a record names.
type EntityType string

const (
	EntityBusiness   EntityType = "business"
	EntityIndividual EntityType = "individual"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	return t == EntityBusiness || t == EntityIndividual
}

// Evidence records what the classifier saw. It is kept for audit and is not
// consulted by later stages.
type Evidence struct {
	BusinessIndicators   int      `json:"business_indicators"`
	IndividualIndicators int      `json:"individual_indicators"`
	Matched              []string `json:"matched,omitempty"`
	HasComma             bool     `json:"has_comma"`
	TokenCount           int      `json:"token_count"`
	Reason               string   `json:"reason"`
}

// Classification is the classifier's verdict for one name.
type Classification struct {
	Type       EntityType `json:"entity_type"`
	Confidence float64    `json:"confidence"`
	Evidence   Evidence   `json:"evidence"`
}

// Strategy is the ordered source plan for one record.
type Strategy struct {
	Primary             []string `json:"primary_sources"`
	Fallback            []string `json:"fallback_sources"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	Reasoning           string   `json:"reasoning"`
}
