// Package audit records every assessment the service produces: who was
// scored (the inputs), what came out (probability, tier, attribution
// summary), and how long it took. Events fan out to configured sinks off the
// request path.
package audit

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/shockwatch-ai/shockwatch/internal/pipeline"
)

// TopFeature is one ranked attribution entry kept in the event.
type TopFeature struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// TimingMs captures per-stage latency in milliseconds.
type TimingMs struct {
	Score   float64 `json:"score"`
	Explain float64 `json:"explain,omitempty"`
	Total   float64 `json:"total"`
}

// Event is the canonical audit payload for one assessment.
type Event struct {
	Version      string    `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
	ModelVersion string    `json:"model_version"`

	// Features and Values are the ordered record that was scored.
	Features []string  `json:"features"`
	Values   []float64 `json:"values"`

	Probability    float64 `json:"probability"`
	Tier           string  `json:"tier"`
	Recommendation string  `json:"recommendation"`

	Explained   bool         `json:"explained"`
	Baseline    float64      `json:"baseline,omitempty"`
	TopFeatures []TopFeature `json:"top_features,omitempty"`

	TimingMs TimingMs `json:"timing_ms"`
}

// eventVersion tags the payload schema, not the model.
const eventVersion = "v1"

// topFeatureCount bounds how much of the ranked attribution the event keeps.
const topFeatureCount = 5

// BuildParams collects inputs needed to assemble a canonical audit event.
type BuildParams struct {
	Assessment   *pipeline.Assessment
	Features     []string
	Values       []float64
	ModelVersion string
	RequestID    string
	TotalLatency time.Duration
}

// BuildEvent creates a canonical audit event from one finished assessment.
func BuildEvent(params BuildParams) *Event {
	a := params.Assessment
	if a == nil {
		return nil
	}

	id := params.RequestID
	if id == "" {
		id = newRequestID()
	}

	ev := &Event{
		Version:        eventVersion,
		Timestamp:      time.Now().UTC(),
		RequestID:      id,
		ModelVersion:   params.ModelVersion,
		Features:       append([]string(nil), params.Features...),
		Values:         append([]float64(nil), params.Values...),
		Probability:    a.Probability,
		Tier:           string(a.Tier),
		Recommendation: a.Recommendation,
		Explained:      a.Explained(),
		TimingMs: TimingMs{
			Score:   durationMillis(a.Timings.Score),
			Explain: durationMillis(a.Timings.Explain),
			Total:   durationMillis(params.TotalLatency),
		},
	}

	if a.Explained() {
		ev.Baseline = a.Baseline
		n := topFeatureCount
		if n > len(a.Attributions) {
			n = len(a.Attributions)
		}
		ev.TopFeatures = make([]TopFeature, 0, n)
		for _, rc := range a.Attributions[:n] {
			ev.TopFeatures = append(ev.TopFeatures, TopFeature{Feature: rc.Feature, Value: rc.Value})
		}
	}

	return ev
}

func durationMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func newRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}
