package explain

import (
	"math"
	"sort"
)

// RankedContribution is one feature's attribution, positioned for display.
type RankedContribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// Rank orders an attribution by descending absolute contribution. Equal
// magnitudes keep their original feature order, so ranking the same
// attribution twice yields the same sequence. Empty input ranks to an empty
// (non-nil) sequence.
func Rank(a *Attribution) []RankedContribution {
	if a == nil {
		return []RankedContribution{}
	}

	out := make([]RankedContribution, 0, len(a.Contributions))
	for i, v := range a.Contributions {
		out = append(out, RankedContribution{Feature: a.Features[i], Value: v})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Value) > math.Abs(out[j].Value)
	})
	return out
}
