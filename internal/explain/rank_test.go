package explain

import (
	"math"
	"testing"
)

func TestRank_DescendingByMagnitude(t *testing.T) {
	attr := &Attribution{
		Features:      []string{"a", "b", "c", "d", "e"},
		Contributions: []float64{0.02, -0.30, 0.10, -0.05, 0.30},
		Baseline:      0.1,
	}

	ranked := Rank(attr)
	if len(ranked) != 5 {
		t.Fatalf("got %d entries, want 5", len(ranked))
	}
	for i := 1; i < len(ranked); i++ {
		if math.Abs(ranked[i].Value) > math.Abs(ranked[i-1].Value) {
			t.Fatalf("entry %d (%v) outranks entry %d (%v)", i, ranked[i], i-1, ranked[i-1])
		}
	}
}

func TestRank_TiesKeepFeatureOrder(t *testing.T) {
	attr := &Attribution{
		Features:      []string{"a", "b", "c", "d"},
		Contributions: []float64{-0.10, 0.10, 0.10, -0.10},
	}

	ranked := Rank(attr)
	want := []string{"a", "b", "c", "d"}
	for i, name := range want {
		if ranked[i].Feature != name {
			t.Fatalf("tie-break broke feature order: position %d is %q, want %q", i, ranked[i].Feature, name)
		}
	}
}

func TestRank_Idempotent(t *testing.T) {
	attr := &Attribution{
		Features:      []string{"a", "b", "c"},
		Contributions: []float64{0.05, -0.05, 0.2},
	}

	first := Rank(attr)
	second := Rank(attr)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("rank is not deterministic: %v vs %v at %d", first[i], second[i], i)
		}
	}
}

func TestRank_EmptyAndNil(t *testing.T) {
	if got := Rank(&Attribution{}); len(got) != 0 {
		t.Fatalf("empty attribution must rank to empty sequence, got %v", got)
	}
	if got := Rank(nil); got == nil || len(got) != 0 {
		t.Fatalf("nil attribution must rank to empty non-nil sequence, got %v", got)
	}
}
