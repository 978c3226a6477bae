package model

import (
	"fmt"
	"math"
)

// FakeClassifier is a deterministic in-process stand-in for the ONNX model.
// It scores with a fixed logistic over the ordered record, which gives tests
// a real probability surface (feature order matters, output in [0,1]) without
// the onnxruntime dependency.
type FakeClassifier struct {
	Features []string
	// Weights are per-feature logistic coefficients, aligned with Features.
	// Nil means every weight is zero and the score is sigmoid(Bias).
	Weights []float64
	Bias    float64
	// Err, when set, is returned from every PredictProba call.
	Err error
}

// NewFake returns a fake classifier over the given feature order with small
// deterministic weights.
func NewFake(features []string) *FakeClassifier {
	weights := make([]float64, len(features))
	for i := range weights {
		// alternating sign, decaying magnitude
		w := 0.04 / float64(i+1)
		if i%2 == 1 {
			w = -w
		}
		weights[i] = w
	}
	return &FakeClassifier{
		Features: features,
		Weights:  weights,
		Bias:     -1.2,
	}
}

func (f *FakeClassifier) FeatureNames() []string {
	out := make([]string, len(f.Features))
	copy(out, f.Features)
	return out
}

func (f *FakeClassifier) PredictProba(values []float64) ([]float64, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if len(values) != len(f.Features) {
		return nil, fmt.Errorf("record has %d values, model expects %d", len(values), len(f.Features))
	}

	z := f.Bias
	for i, v := range values {
		if f.Weights != nil {
			z += f.Weights[i] * v
		}
	}
	p := 1.0 / (1.0 + math.Exp(-z))
	return []float64{1 - p, p}, nil
}
