package keystroke

// Params holds the extractor's tuned constants. These are hand-tuned
// heuristics; keep them as configuration rather than literals so they can
// be adjusted without touching the algorithm shape.
type Params struct {
	// TrimFraction is the fraction of sorted values dropped from each end
	// before averaging (floor of fraction × length per end).
	TrimFraction float64
	// Smoothing is the additive (Laplace) smoothing parameter applied to
	// per-character counts.
	Smoothing float64
	// PauseMultiplier scales AverageSpeed into the adaptive pause threshold.
	PauseMultiplier float64
	// MinBurstWindow is the smallest sliding-window size for burst speed.
	MinBurstWindow int
	// BurstWindowFraction sizes the burst window relative to the interval
	// count; the effective window is max(MinBurstWindow, floor(fraction×n)).
	BurstWindowFraction float64
}

// DefaultParams returns the extractor constants the rest of the system is
// calibrated against.
func DefaultParams() Params {
	return Params{
		TrimFraction:        0.10,
		Smoothing:           0.1,
		PauseMultiplier:     2.0,
		MinBurstWindow:      5,
		BurstWindowFraction: 0.20,
	}
}

// Weights are the base weights of the five comparison sub-scores. They sum
// to 1.00 before adaptive scaling.
type Weights struct {
	Speed           float64
	KeyDistribution float64
	Rhythm          float64
	Timing          float64
	Style           float64
}

// ScoreParams holds the comparison constants.
type ScoreParams struct {
	Weights Weights
	// SpeedExponent makes the speed-mismatch penalty sub-linear.
	SpeedExponent float64
	// FreqFloor is the minimum denominator when comparing per-character
	// frequencies, so rare characters cannot dominate.
	FreqFloor float64
	// VocabNorm is the vocabulary size at which the confidence multiplier
	// stops penalizing small samples.
	VocabNorm float64
}

// DefaultScoreParams returns the comparison constants.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		Weights: Weights{
			Speed:           0.30,
			KeyDistribution: 0.25,
			Rhythm:          0.20,
			Timing:          0.15,
			Style:           0.10,
		},
		SpeedExponent: 0.5,
		FreqFloor:     0.01,
		VocabNorm:     20,
	}
}
