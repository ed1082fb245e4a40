package keystroke

import "math"

// Compare scores the similarity of two typing patterns in [0,1] using the
// default parameters. It is symmetric in intent but not guaranteed
// bit-exact under argument swap because of max/min orderings; callers
// should treat small asymmetries as noise.
func Compare(a, b Pattern) float64 {
	return CompareWith(DefaultScoreParams(), a, b)
}

// CompareWith combines five weighted sub-scores. Each sub-score carries a
// base weight scaled by an adaptive multiplier that shrinks the weight when
// the underlying metric itself is unstable between the two profiles: a
// metric that differs wildly is trusted less when combining, down to 50% of
// its base weight. The combined score is then capped by a confidence
// multiplier that penalizes profiles built from too little character
// variety.
func CompareWith(p ScoreParams, a, b Pattern) float64 {
	type sub struct {
		score  float64
		weight float64
	}
	subs := []sub{
		{
			score:  speedScore(p, a, b),
			weight: adaptiveWeight(a.AverageSpeed, b.AverageSpeed, p.Weights.Speed),
		},
		{
			score:  distributionScore(p, a.KeyPressDistribution, b.KeyPressDistribution),
			weight: adaptiveWeight(float64(a.Vocabulary()), float64(b.Vocabulary()), p.Weights.KeyDistribution),
		},
		{
			score:  math.Exp(-math.Abs(a.RhythmConsistency - b.RhythmConsistency)),
			weight: adaptiveWeight(a.RhythmConsistency, b.RhythmConsistency, p.Weights.Rhythm),
		},
		{
			score:  timingScore(a, b),
			weight: adaptiveWeight(a.BurstSpeed, b.BurstSpeed, p.Weights.Timing),
		},
		{
			score:  styleScore(a, b),
			weight: adaptiveWeight(a.ModifierFrequency, b.ModifierFrequency, p.Weights.Style),
		},
	}

	var weighted, total float64
	for _, s := range subs {
		weighted += s.score * s.weight
		total += s.weight
	}
	if total == 0 {
		return 0
	}
	combined := weighted / total

	return clamp01(combined * confidenceMultiplier(p, a, b))
}

// adaptiveWeight scales base by (0.5 + 0.5×stability), where stability is
// 1 − |m1−m2| / max(m1, m2, 1).
func adaptiveWeight(m1, m2, base float64) float64 {
	denom := math.Max(math.Max(m1, m2), 1)
	stability := 1 - math.Abs(m1-m2)/denom
	return base * (0.5 + 0.5*stability)
}

// speedScore is (min/max)^exponent; the sub-linear exponent tolerates
// moderate speed differences.
func speedScore(p ScoreParams, a, b Pattern) float64 {
	return math.Pow(ratio(a.AverageSpeed, b.AverageSpeed), p.SpeedExponent)
}

// distributionScore averages per-character frequency agreement over the
// union of observed characters, weighting frequent characters more.
func distributionScore(p ScoreParams, a, b map[string]float64) float64 {
	var weighted, total float64
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	for k := range seen {
		fa, fb := a[k], b[k]
		if fa == 0 && fb == 0 {
			continue
		}
		maxFreq := math.Max(fa, fb)
		sim := 1 - math.Abs(fa-fb)/math.Max(maxFreq, p.FreqFloor)
		weighted += sim * maxFreq
		total += maxFreq
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func timingScore(a, b Pattern) float64 {
	burst := ratio(a.BurstSpeed, b.BurstSpeed)
	pause := 1 - math.Abs(a.PauseFrequency-b.PauseFrequency)
	return 0.6*burst + 0.4*pause
}

func styleScore(a, b Pattern) float64 {
	mod := 1 - math.Abs(a.ModifierFrequency-b.ModifierFrequency)
	capital := 1 - math.Abs(a.CapitalFrequency-b.CapitalFrequency)
	punct := 1 - math.Abs(a.PunctuationFrequency-b.PunctuationFrequency)
	return 0.4*mod + 0.3*capital + 0.3*punct
}

// confidenceMultiplier caps the combined score for profiles built from too
// little character variety; it never raises a score above 1.
func confidenceMultiplier(p ScoreParams, a, b Pattern) float64 {
	va := math.Sqrt(float64(a.Vocabulary()) / p.VocabNorm)
	vb := math.Sqrt(float64(b.Vocabulary()) / p.VocabNorm)
	errAgreement := 1 - math.Abs(a.ErrorRate-b.ErrorRate)
	return clamp01(va * vb * errAgreement)
}

// ratio is min/max, 0 when the larger value is not positive.
func ratio(x, y float64) float64 {
	max := math.Max(x, y)
	if max <= 0 {
		return 0
	}
	return math.Min(x, y) / max
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
