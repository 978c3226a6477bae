// Package model abstracts the pre-trained septic-shock classifier. The rest
// of the pipeline only sees the Classifier interface: a declared feature
// order and a probability prediction for one ordered record.
package model

// Classifier is a fixed, pre-trained binary probabilistic classifier. It is
// loaded once at startup and shared read-only across requests;
// implementations must be safe for concurrent PredictProba calls.
type Classifier interface {
	// FeatureNames returns the feature order the model was trained on.
	// Records handed to PredictProba must follow this order exactly.
	FeatureNames() []string

	// PredictProba scores one ordered record and returns the class
	// probability distribution (summing to 1). For the septic-shock model
	// that is [P(no shock), P(shock)].
	PredictProba(values []float64) ([]float64, error)
}

// PositiveClass is the class index for "septic shock within 12 hours" in the
// classifier's probability output.
const PositiveClass = 1
