package explain

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/shockwatch-ai/shockwatch/internal/model"
)

// DefaultPermutations is the sampling budget per explained record. Cost is
// permutations * (features + 1) model evaluations.
const DefaultPermutations = 64

// SamplingMethod estimates Shapley values by permutation sampling against a
// fixed background record. For each sampled permutation it walks features
// from background to the explained record and credits each feature the
// change in model output when it flips. The per-permutation credits
// telescope to f(record) - f(background), so the averaged attribution is
// exactly additive around the background baseline regardless of the budget.
//
// The method is deterministic: a fixed seed drives permutation sampling, so
// the same record explains identically on every run.
type SamplingMethod struct {
	// Background is the reference record, ordered like the classifier's
	// feature order. Its model output is the attribution baseline.
	Background []float64
	// Permutations is the sampling budget; 0 means DefaultPermutations.
	Permutations int
	// Seed drives the permutation RNG.
	Seed int64
}

// NewSamplingMethod builds a sampling method over the given background
// record with the default budget.
func NewSamplingMethod(background []float64) *SamplingMethod {
	bg := make([]float64, len(background))
	copy(bg, background)
	return &SamplingMethod{
		Background:   bg,
		Permutations: DefaultPermutations,
		Seed:         1,
	}
}

// Attribute implements Method. Output is per-sample, per-feature, per-class.
func (m *SamplingMethod) Attribute(ctx context.Context, clf model.Classifier, records [][]float64) (*Raw, error) {
	if len(m.Background) == 0 {
		return nil, fmt.Errorf("sampling method has no background record")
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to attribute")
	}

	permutations := m.Permutations
	if permutations <= 0 {
		permutations = DefaultPermutations
	}

	basePred, err := clf.PredictProba(m.Background)
	if err != nil {
		return nil, fmt.Errorf("score background: %w", err)
	}
	classes := len(basePred)

	raw := &Raw{
		BaseValues: make([][]float64, len(records)),
		Values:     make([][][]float64, len(records)),
	}

	for s, record := range records {
		if len(record) != len(m.Background) {
			return nil, fmt.Errorf("record %d has %d values, background has %d", s, len(record), len(m.Background))
		}

		values, err := m.attributeOne(ctx, clf, record, basePred, permutations, classes)
		if err != nil {
			return nil, err
		}

		base := make([]float64, classes)
		copy(base, basePred)
		raw.BaseValues[s] = base
		raw.Values[s] = values
	}

	return raw, nil
}

func (m *SamplingMethod) attributeOne(ctx context.Context, clf model.Classifier, record, basePred []float64, permutations, classes int) ([][]float64, error) {
	n := len(record)
	rng := rand.New(rand.NewSource(m.Seed))

	sums := make([][]float64, n)
	for i := range sums {
		sums[i] = make([]float64, classes)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	current := make([]float64, n)
	prev := make([]float64, classes)

	for p := 0; p < permutations; p++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("attribution canceled: %w", err)
		}

		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		copy(current, m.Background)
		copy(prev, basePred)

		for _, idx := range order {
			current[idx] = record[idx]
			next, err := clf.PredictProba(current)
			if err != nil {
				return nil, fmt.Errorf("score coalition: %w", err)
			}
			if len(next) != classes {
				return nil, fmt.Errorf("classifier class count changed mid-attribution: %d then %d", classes, len(next))
			}
			for c := 0; c < classes; c++ {
				sums[idx][c] += next[c] - prev[c]
			}
			copy(prev, next)
		}
	}

	for i := range sums {
		for c := range sums[i] {
			sums[i][c] /= float64(permutations)
		}
	}
	return sums, nil
}
