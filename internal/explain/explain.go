// Package explain produces per-feature additive attributions for a single
// scored record: a baseline plus one signed contribution per feature that
// together reconstruct the classifier's positive-class probability.
package explain

import (
	"context"
	"fmt"
	"math"

	"github.com/shockwatch-ai/shockwatch/internal/feature"
	"github.com/shockwatch-ai/shockwatch/internal/model"
)

// DefaultTolerance bounds |baseline + sum(contributions) - probability|
// before the engine rejects a method's output as non-additive.
const DefaultTolerance = 1e-4

// Attribution is the explanation for one record and the positive class.
// Invariant: Baseline + sum(Contributions) reconstructs the scored
// probability within the engine's tolerance.
type Attribution struct {
	// Features is the record's feature order; Contributions is aligned.
	Features      []string
	Contributions []float64
	// Baseline is the expected model output over the background record.
	Baseline float64
}

// ExplanationError reports that the attribution method failed or returned
// output the engine cannot slice into single-record, positive-class form.
type ExplanationError struct {
	Err error
}

func (e *ExplanationError) Error() string {
	return "explanation failed: " + e.Err.Error()
}

func (e *ExplanationError) Unwrap() error { return e.Err }

// Raw is the unsliced output of an attribution method: per-sample,
// per-feature, per-class contributions plus per-sample, per-class baselines.
// Indexing is Values[sample][feature][class] and BaseValues[sample][class].
type Raw struct {
	BaseValues [][]float64
	Values     [][][]float64
}

// Method computes additive attributions for a batch of ordered records
// against a classifier. Implementations may be expensive (sampling against
// the model) and must honor ctx cancellation.
type Method interface {
	Attribute(ctx context.Context, clf model.Classifier, records [][]float64) (*Raw, error)
}

// Engine wraps an attribution method and owns the one step callers get
// silently wrong when they do it themselves: picking the (first sample,
// positive class) slice out of the method's raw output, and checking that
// the slice actually reconstructs the model's probability.
type Engine struct {
	method    Method
	tolerance float64
}

// NewEngine wraps a method with the default additivity tolerance.
func NewEngine(method Method) *Engine {
	return &Engine{method: method, tolerance: DefaultTolerance}
}

// NewEngineWithTolerance is NewEngine with an explicit additivity bound.
func NewEngineWithTolerance(method Method, tolerance float64) *Engine {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Engine{method: method, tolerance: tolerance}
}

// Explain computes the attribution for one record and the positive class.
// It either returns a complete Attribution or an *ExplanationError; there
// are no partial results.
func (e *Engine) Explain(ctx context.Context, clf model.Classifier, rec feature.Record) (*Attribution, error) {
	raw, err := e.method.Attribute(ctx, clf, [][]float64{rec.Values})
	if err != nil {
		return nil, &ExplanationError{Err: err}
	}

	baseline, contributions, err := slicePositive(raw, len(rec.Values))
	if err != nil {
		return nil, &ExplanationError{Err: err}
	}

	// The additive identity is the whole value of the explanation; an
	// attribution that does not reconstruct the probability is wrong, not
	// approximately right.
	probs, err := clf.PredictProba(rec.Values)
	if err != nil {
		return nil, &ExplanationError{Err: fmt.Errorf("verify additivity: %w", err)}
	}
	if len(probs) <= model.PositiveClass {
		return nil, &ExplanationError{
			Err: fmt.Errorf("verify additivity: classifier returned %d classes", len(probs)),
		}
	}

	sum := baseline
	for _, c := range contributions {
		sum += c
	}
	if diff := math.Abs(sum - probs[model.PositiveClass]); diff > e.tolerance {
		return nil, &ExplanationError{
			Err: fmt.Errorf("attribution is not additive: baseline + contributions = %v, probability = %v (|diff| %v > %v)",
				sum, probs[model.PositiveClass], diff, e.tolerance),
		}
	}

	out := &Attribution{
		Features:      make([]string, len(rec.Order)),
		Contributions: contributions,
		Baseline:      baseline,
	}
	copy(out.Features, rec.Order)
	return out, nil
}

// slicePositive extracts (sample 0, positive class) from raw method output
// and validates every dimension on the way in.
func slicePositive(raw *Raw, featureCount int) (baseline float64, contributions []float64, err error) {
	if raw == nil {
		return 0, nil, fmt.Errorf("method returned nil output")
	}
	if len(raw.Values) < 1 || len(raw.BaseValues) < 1 {
		return 0, nil, fmt.Errorf("method returned no samples")
	}

	base := raw.BaseValues[0]
	if len(base) <= model.PositiveClass {
		return 0, nil, fmt.Errorf("method returned %d base values, need class %d", len(base), model.PositiveClass)
	}

	sample := raw.Values[0]
	if len(sample) != featureCount {
		return 0, nil, fmt.Errorf("method returned %d feature contributions, record has %d", len(sample), featureCount)
	}

	contributions = make([]float64, featureCount)
	for i, perClass := range sample {
		if len(perClass) <= model.PositiveClass {
			return 0, nil, fmt.Errorf("feature %d has %d class contributions, need class %d", i, len(perClass), model.PositiveClass)
		}
		contributions[i] = perClass[model.PositiveClass]
	}

	return base[model.PositiveClass], contributions, nil
}
