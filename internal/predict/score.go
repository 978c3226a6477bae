// Package predict turns an ordered feature record into the headline result:
// positive-class probability and risk tier.
package predict

import (
	"fmt"

	"github.com/shockwatch-ai/shockwatch/internal/feature"
	"github.com/shockwatch-ai/shockwatch/internal/model"
)

// InferenceError reports that the classifier rejected the record or returned
// an output the scorer cannot read. It signals a builder/scorer contract
// break, so it is surfaced as-is and never retried.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return "inference failed: " + e.Err.Error()
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Score runs the classifier on one record and extracts the probability mass
// on the positive class. The returned probability is in [0,1]; float32
// round-trip through the ONNX runtime can overshoot by an ulp, which is
// clamped rather than surfaced.
func Score(clf model.Classifier, rec feature.Record) (float64, error) {
	probs, err := clf.PredictProba(rec.Values)
	if err != nil {
		return 0, &InferenceError{Err: err}
	}
	if len(probs) <= model.PositiveClass {
		return 0, &InferenceError{
			Err: fmt.Errorf("classifier returned %d class probabilities, need at least %d", len(probs), model.PositiveClass+1),
		}
	}

	p := probs[model.PositiveClass]
	if p < -1e-6 || p > 1+1e-6 {
		return 0, &InferenceError{
			Err: fmt.Errorf("classifier returned probability %v outside [0,1]", p),
		}
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p, nil
}
