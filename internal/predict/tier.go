package predict

// Tier is the discretized risk level derived from the probability.
type Tier string

const (
	TierLow      Tier = "low"
	TierModerate Tier = "moderate"
	TierHigh     Tier = "high"
)

const (
	recommendHigh     = "Immediate evaluation and early aggressive intervention recommended."
	recommendModerate = "Close monitoring and early warning advised."
	recommendLow      = "Continue routine care and observation."
)

// Classify maps a probability to its risk tier and recommendation. The
// cutoffs are fixed clinical policy, checked high to low and inclusive at
// each boundary: 0.50 is high, 0.20 is moderate.
func Classify(probability float64) (Tier, string) {
	switch {
	case probability >= 0.50:
		return TierHigh, recommendHigh
	case probability >= 0.20:
		return TierModerate, recommendModerate
	default:
		return TierLow, recommendLow
	}
}
