// Package score computes the per-record confidence and data-quality scores.
package score

import (
	"math"
	"strings"
	"unicode"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Weights of the agent confidence terms.
const (
	WeightClassification = 0.3
	WeightConsistency    = 0.3
	WeightCompleteness   = 0.2
	WeightDiversity      = 0.2

	// DiversitySaturation is the number of agreeing sources past which more
	// sources add no confidence.
	DiversitySaturation = 3
)

// Data-quality penalties.
const (
	PenaltyPhone        = 0.1
	PenaltyEmail        = 0.1
	PenaltyLinkedIn     = 0.05
	PenaltyMissingOwner = 0.2
	PenaltyMissingAddr  = 0.1
)

// Calculator scores fused records against a target field count.
type Calculator struct {
	TargetFieldCount int
}

// NewCalculator creates a calculator. A non-positive target falls back to
// the number of known target fields.
func NewCalculator(target int) *Calculator {
	if target <= 0 {
		target = len(model.TargetFields)
	}
	return &Calculator{TargetFieldCount: target}
}

// Completeness is populated/target, clamped to [0,1].
func (c *Calculator) Completeness(populated int) float64 {
	return Clamp01(float64(populated) / float64(c.TargetFieldCount))
}

// Metrics builds the quality dimensions for one record. confidences are the
// confidences of sources that succeeded; diversity counts distinct ones.
func (c *Calculator) Metrics(consistency float64, fields model.Fields, sources []string, confidences []float64) model.QualityMetrics {
	distinct := make(map[string]bool, len(sources))
	for _, s := range sources {
		distinct[s] = true
	}
	return model.QualityMetrics{
		DataConsistency:     Clamp01(consistency),
		SourceDiversity:     len(distinct),
		FieldCompleteness:   c.Completeness(fields.Populated()),
		ConfidenceStability: Stability(confidences),
	}
}

// AgentConfidence combines classification confidence with the quality
// metrics into one number in [0,1].
func AgentConfidence(classConfidence float64, m model.QualityMetrics) float64 {
	v := WeightClassification*Clamp01(classConfidence) +
		WeightConsistency*Clamp01(m.DataConsistency) +
		WeightCompleteness*Clamp01(m.FieldCompleteness) +
		WeightDiversity*diversityTerm(m.SourceDiversity)
	return Clamp01(v)
}

// QualityScore is the mean of the four metrics with diversity normalized to
// [0,1] the same way AgentConfidence does.
func QualityScore(m model.QualityMetrics) float64 {
	sum := Clamp01(m.DataConsistency) + diversityTerm(m.SourceDiversity) +
		Clamp01(m.FieldCompleteness) + Clamp01(m.ConfidenceStability)
	return Clamp01(sum / 4)
}

// Stability is min/max of the given confidences, or 0 when there are none or
// the maximum is 0.
func Stability(confidences []float64) float64 {
	if len(confidences) == 0 {
		return 0
	}
	lo, hi := confidences[0], confidences[0]
	for _, c := range confidences[1:] {
		lo = math.Min(lo, c)
		hi = math.Max(hi, c)
	}
	if hi <= 0 {
		return 0
	}
	return Clamp01(lo / hi)
}

// DataQuality checks the format of populated fields and the presence of the
// owner and address. It starts at 1.0 and never drops below 0.
func DataQuality(f model.Fields) float64 {
	q := 1.0
	if p := f[model.FieldPhone]; p != "" && digits(p) < 10 {
		q -= PenaltyPhone
	}
	if e := f[model.FieldEmail]; e != "" && (!strings.Contains(e, "@") || !strings.Contains(e, ".")) {
		q -= PenaltyEmail
	}
	if l := f[model.FieldLinkedIn]; l != "" &&
		!strings.HasPrefix(l, "https://linkedin.com") && !strings.HasPrefix(l, "https://www.linkedin.com") {
		q -= PenaltyLinkedIn
	}
	if f[model.FieldOwner] == "" {
		q -= PenaltyMissingOwner
	}
	if f[model.FieldAddress] == "" {
		q -= PenaltyMissingAddr
	}
	return Round3(Clamp01(q))
}

// Clamp01 bounds v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Round3 rounds to three decimals for output.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func diversityTerm(n int) float64 {
	return math.Min(1, float64(n)/DiversitySaturation)
}

func digits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
