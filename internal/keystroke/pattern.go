package keystroke

// Pattern is the typing fingerprint: a fixed-shape statistical summary
// derived deterministically from a KeyEvent sequence. A Pattern is always
// fully populated: degenerate input (fewer than 2 events) yields the zero
// pattern with empty maps, never nil fields, so comparison code does not
// need null handling.
//
// All fields are plain float64 values serialized without rounding; the
// store persists patterns as JSON and comparison accuracy depends on full
// numeric precision surviving the round trip.
type Pattern struct {
	// AverageSpeed is the trimmed-mean inter-key interval in milliseconds.
	AverageSpeed float64 `json:"averageSpeed"`
	// KeyPressDistribution maps single-character keys to their smoothed
	// relative frequency. Values sum to 1 over the observed characters.
	KeyPressDistribution map[string]float64 `json:"keyPressDistribution"`
	// ModifierUsage maps a key to the interval preceding its most recent
	// modified press. Last write wins; this is not an aggregate.
	ModifierUsage map[string]float64 `json:"modifierUsage"`
	// TimingPatterns is the raw ordered sequence of inter-key intervals,
	// kept for downstream visualization.
	TimingPatterns []float64 `json:"timingPatterns"`
	// RhythmConsistency is the coefficient of variation of the intervals
	// (population stddev / mean).
	RhythmConsistency float64 `json:"rhythmConsistency"`
	// SpeedVariability is the interquartile range of the intervals
	// normalized by AverageSpeed.
	SpeedVariability float64 `json:"speedVariability"`
	// BurstSpeed is the minimum sliding-window mean interval, the fastest
	// sustained stretch of typing. Smaller is faster.
	BurstSpeed float64 `json:"burstSpeed"`
	// PauseFrequency is the fraction of intervals exceeding twice the
	// average speed.
	PauseFrequency float64 `json:"pauseFrequency"`
	// AverageWordLength is the trimmed-mean length of whitespace/Enter
	// delimited tokens, accounting for backspace edits.
	AverageWordLength float64 `json:"averageWordLength"`

	ModifierFrequency    float64 `json:"modifierFrequency"`
	CapitalFrequency     float64 `json:"capitalFrequency"`
	PunctuationFrequency float64 `json:"punctuationFrequency"`
	BackspaceFrequency   float64 `json:"backspaceFrequency"`

	// ErrorRate is the backspace rate inflated by speed variability, a
	// proxy for typing error propensity.
	ErrorRate float64 `json:"errorRate"`

	// SpecialKeyFrequency and KeyPressForce are reserved for forward
	// compatibility of the profile shape. Always zero in this design.
	SpecialKeyFrequency float64 `json:"specialKeyFrequency"`
	KeyPressForce       float64 `json:"keyPressForce"`
}

// Vocabulary returns the number of distinct characters observed in the
// pattern's key-press distribution.
func (p Pattern) Vocabulary() int {
	return len(p.KeyPressDistribution)
}

func zeroPattern() Pattern {
	return Pattern{
		KeyPressDistribution: map[string]float64{},
		ModifierUsage:        map[string]float64{},
		TimingPatterns:       []float64{},
	}
}
