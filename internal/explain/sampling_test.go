package explain

import (
	"context"
	"math"
	"testing"

	"github.com/shockwatch-ai/shockwatch/internal/feature"
	"github.com/shockwatch-ai/shockwatch/internal/model"
)

func backgroundRecord() []float64 {
	bg := make([]float64, feature.Count)
	for i := range bg {
		bg[i] = float64(i)
	}
	return bg
}

func explainedRecord() []float64 {
	rec := make([]float64, feature.Count)
	for i := range rec {
		rec[i] = float64(i) + 2.5
	}
	return rec
}

func TestSamplingMethod_Additivity(t *testing.T) {
	clf := model.NewFake(feature.Names)
	method := NewSamplingMethod(backgroundRecord())
	rec := explainedRecord()

	raw, err := method.Attribute(context.Background(), clf, [][]float64{rec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fx, err := clf.PredictProba(rec)
	if err != nil {
		t.Fatalf("score record: %v", err)
	}

	for class := 0; class < 2; class++ {
		sum := raw.BaseValues[0][class]
		for i := 0; i < feature.Count; i++ {
			sum += raw.Values[0][i][class]
		}
		if diff := math.Abs(sum - fx[class]); diff > 1e-9 {
			t.Fatalf("class %d: baseline + contributions = %v, f(x) = %v (diff %v)", class, sum, fx[class], diff)
		}
	}
}

func TestSamplingMethod_Deterministic(t *testing.T) {
	clf := model.NewFake(feature.Names)
	rec := explainedRecord()

	first, err := NewSamplingMethod(backgroundRecord()).Attribute(context.Background(), clf, [][]float64{rec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := NewSamplingMethod(backgroundRecord()).Attribute(context.Background(), clf, [][]float64{rec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < feature.Count; i++ {
		for c := 0; c < 2; c++ {
			if first.Values[0][i][c] != second.Values[0][i][c] {
				t.Fatalf("feature %d class %d differs across runs: %v vs %v", i, c, first.Values[0][i][c], second.Values[0][i][c])
			}
		}
	}
}

func TestSamplingMethod_UnchangedFeatureGetsZero(t *testing.T) {
	clf := model.NewFake(feature.Names)
	bg := backgroundRecord()
	rec := explainedRecord()
	rec[4] = bg[4] // feature 4 matches the background exactly

	raw, err := NewSamplingMethod(bg).Attribute(context.Background(), clf, [][]float64{rec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v := raw.Values[0][4][model.PositiveClass]; v != 0 {
		t.Fatalf("feature equal to its background must contribute exactly 0, got %v", v)
	}
}

// additiveClassifier is linear per feature, so the exact Shapley value of
// feature i is w[i]*(x[i]-bg[i]) for any permutation budget.
type additiveClassifier struct {
	weights []float64
}

func (c *additiveClassifier) FeatureNames() []string { return feature.Names }

func (c *additiveClassifier) PredictProba(values []float64) ([]float64, error) {
	p := 0.0
	for i, v := range values {
		p += c.weights[i] * v
	}
	return []float64{1 - p, p}, nil
}

func TestSamplingMethod_ExactOnLinearModel(t *testing.T) {
	weights := make([]float64, feature.Count)
	for i := range weights {
		weights[i] = 0.001 * float64(i+1)
	}
	clf := &additiveClassifier{weights: weights}

	bg := backgroundRecord()
	rec := explainedRecord()

	raw, err := NewSamplingMethod(bg).Attribute(context.Background(), clf, [][]float64{rec})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < feature.Count; i++ {
		want := weights[i] * (rec[i] - bg[i])
		got := raw.Values[0][i][model.PositiveClass]
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("feature %d: contribution %v, want exact %v", i, got, want)
		}
	}
}

func TestSamplingMethod_HonorsCancellation(t *testing.T) {
	clf := model.NewFake(feature.Names)
	method := NewSamplingMethod(backgroundRecord())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := method.Attribute(ctx, clf, [][]float64{explainedRecord()})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
}

func TestSamplingMethod_RejectsWidthMismatch(t *testing.T) {
	clf := model.NewFake(feature.Names)
	method := NewSamplingMethod(backgroundRecord())

	_, err := method.Attribute(context.Background(), clf, [][]float64{{1, 2, 3}})
	if err == nil {
		t.Fatal("expected error for record narrower than background")
	}
}

func TestEngineWithSamplingMethod_EndToEnd(t *testing.T) {
	clf := model.NewFake(feature.Names)
	engine := NewEngine(NewSamplingMethod(backgroundRecord()))

	b, err := feature.NewBuilder(feature.Names)
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	rec := b.Build(feature.RawInputs{
		Pneumonia: true, Age: 80, HeartRate: 130, SBP: 85, RespiratoryRate: 30,
		SpO2: 88, Temperature: 39.2, WBC: 18, Albumin: 2.1, ALT: 95, BUN: 40,
		Sodium: 148, PlateletCount: 90, SOFA: 11,
	})

	attr, err := engine.Explain(context.Background(), clf, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attr.Contributions) != feature.Count {
		t.Fatalf("got %d contributions, want %d", len(attr.Contributions), feature.Count)
	}
}
