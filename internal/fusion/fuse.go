// Package fusion folds per-source results into per-field contributions,
// measures their agreement, and settles conflicts between them.
package fusion

import (
	"slices"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Fuse folds results in the order given and returns the fusion state with its
// overall consistency. Callers pass primary results before fallback results,
// each phase in strategy order, so contribution order is deterministic.
func Fuse(results []model.SourceResult) (*model.FusionState, float64) {
	st := model.NewFusionState()
	for _, res := range results {
		for _, k := range fieldOrder(res.Fields) {
			st.Add(k, model.Contribution{
				Value:    res.Fields[k],
				Source:   res.Source,
				Verified: res.Verified[k],
			})
		}
	}
	return st, Consistency(st)
}

// Consistency is the mean per-field consistency over every field that got a
// contribution, or 0 when none did.
func Consistency(st *model.FusionState) float64 {
	fields := st.Fields()
	if len(fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fields {
		sum += FieldConsistency(len(st.Distinct(f)), len(st.Contributions(f)))
	}
	return sum / float64(len(fields))
}

// FieldConsistency is 1 − (distinct−1)/max(1, total−1). Full agreement scores
// 1.0 and every extra distinct value lowers it.
func FieldConsistency(distinct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 1 - float64(distinct-1)/float64(max(1, total-1))
}

// Merge returns the first value contributed for each field across results,
// in fold order. Run it after Apply so every result agrees.
func Merge(results []model.SourceResult) model.Fields {
	out := model.Fields{}
	for _, res := range results {
		for _, k := range fieldOrder(res.Fields) {
			if _, ok := out[k]; !ok {
				out.Set(k, res.Fields[k])
			}
		}
	}
	return out
}

// fieldOrder lists target fields first, then any extra keys sorted.
func fieldOrder(f model.Fields) []string {
	keys := make([]string, 0, len(f))
	for _, k := range model.TargetFields {
		if f[k] != "" {
			keys = append(keys, k)
		}
	}
	var extra []string
	for k, v := range f {
		if v != "" && !slices.Contains(model.TargetFields, k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	return append(keys, extra...)
}
