package predict

import "testing"

func TestClassify_Boundaries(t *testing.T) {
	cases := []struct {
		probability float64
		want        Tier
	}{
		{0.00, TierLow},
		{0.1999, TierLow},
		{0.20, TierModerate},
		{0.35, TierModerate},
		{0.4999, TierModerate},
		{0.50, TierHigh},
		{0.75, TierHigh},
		{1.00, TierHigh},
	}

	for _, tc := range cases {
		tier, rec := Classify(tc.probability)
		if tier != tc.want {
			t.Fatalf("Classify(%v) = %q, want %q", tc.probability, tier, tc.want)
		}
		if rec == "" {
			t.Fatalf("Classify(%v) returned empty recommendation", tc.probability)
		}
	}
}

func TestClassify_Monotonic(t *testing.T) {
	rank := map[Tier]int{TierLow: 0, TierModerate: 1, TierHigh: 2}

	prev := TierLow
	for i := 0; i <= 1000; i++ {
		p := float64(i) / 1000
		tier, _ := Classify(p)
		if rank[tier] < rank[prev] {
			t.Fatalf("tier dropped from %q to %q at p=%v", prev, tier, p)
		}
		prev = tier
	}
}

func TestClassify_RecommendationPerTier(t *testing.T) {
	_, low := Classify(0.05)
	_, moderate := Classify(0.30)
	_, high := Classify(0.90)

	if low == moderate || moderate == high || low == high {
		t.Fatal("each tier must carry a distinct recommendation")
	}
}
