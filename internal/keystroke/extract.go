package keystroke

import (
	"math"
	"sort"
	"unicode"
	"unicode/utf8"
)

// punctuation is the character set counted toward punctuation frequency.
const punctuation = `.,!?;:'"`

// Extract derives a typing Pattern from an ordered KeyEvent sequence using
// the default parameters. It never fails: fewer than 2 events yields the
// zero pattern, which is a deliberate degenerate case rather than an error.
func Extract(events []KeyEvent) Pattern {
	return ExtractWith(DefaultParams(), events)
}

// ExtractWith is Extract with explicit parameters.
func ExtractWith(p Params, events []KeyEvent) Pattern {
	pat := zeroPattern()
	if len(events) < 2 {
		return pat
	}

	// Intervals are every event's TimeSinceLast except the first.
	intervals := make([]float64, len(events)-1)
	for i, e := range events[1:] {
		intervals[i] = e.TimeSinceLast
	}
	pat.TimingPatterns = intervals

	sorted := append([]float64(nil), intervals...)
	sort.Float64s(sorted)

	pat.AverageSpeed = trimmedMean(sorted, p.TrimFraction)
	if pat.AverageSpeed > 0 {
		pat.RhythmConsistency = popStddev(intervals) / pat.AverageSpeed
		pat.SpeedVariability = (percentile(sorted, 0.75) - percentile(sorted, 0.25)) / pat.AverageSpeed
	}

	pauseThreshold := p.PauseMultiplier * pat.AverageSpeed
	pauses := 0
	for _, v := range intervals {
		if v > pauseThreshold {
			pauses++
		}
	}
	pat.PauseFrequency = float64(pauses) / float64(len(intervals))

	window := int(p.BurstWindowFraction * float64(len(intervals)))
	if window < p.MinBurstWindow {
		window = p.MinBurstWindow
	}
	pat.BurstSpeed = burstSpeed(intervals, window)

	// Single pass over events: character counts, capitals, punctuation,
	// modifier flags, and word boundaries.
	counts := make(map[string]int)
	var charTotal, capitals, puncts, modified, backspaces int
	var wordLen int
	var wordLengths []float64

	flushWord := func() {
		if wordLen > 0 {
			wordLengths = append(wordLengths, float64(wordLen))
		}
		wordLen = 0
	}

	for i, e := range events {
		if e.Modifiers.Any() && i > 0 {
			pat.ModifierUsage[e.Key] = e.TimeSinceLast
		}
		if e.Modifiers.Any() {
			modified++
		}

		switch e.Key {
		case "Backspace":
			backspaces++
			if wordLen > 0 {
				wordLen--
			}
		case "Enter":
			flushWord()
		default:
			if utf8.RuneCountInString(e.Key) != 1 {
				continue
			}
			charTotal++
			counts[e.Key]++
			r, _ := utf8.DecodeRuneInString(e.Key)
			if unicode.IsUpper(r) {
				capitals++
			}
			if isPunctuation(r) {
				puncts++
			}
			if r == ' ' {
				flushWord()
			} else {
				wordLen++
			}
		}
	}
	flushWord()

	// Laplace smoothing over the observed distinct characters keeps unseen
	// keys from being strictly zero-probability within this profile.
	if charTotal > 0 {
		denom := float64(charTotal) + p.Smoothing*float64(len(counts))
		for k, c := range counts {
			pat.KeyPressDistribution[k] = (float64(c) + p.Smoothing) / denom
		}
	}

	total := float64(len(events))
	pat.ModifierFrequency = float64(modified) / total
	pat.BackspaceFrequency = float64(backspaces) / total
	if charTotal > 0 {
		pat.CapitalFrequency = float64(capitals) / float64(charTotal)
		pat.PunctuationFrequency = float64(puncts) / float64(charTotal)
	}
	if charTotal+backspaces > 0 {
		// Erratic speed correlates with noisier corrections, so the raw
		// backspace rate is inflated by the speed variability.
		rate := float64(backspaces) / float64(charTotal+backspaces)
		pat.ErrorRate = rate * (1 + pat.SpeedVariability)
	}

	pat.AverageWordLength = wordLengthMean(wordLengths, p.TrimFraction)

	return pat
}

func isPunctuation(r rune) bool {
	for _, p := range punctuation {
		if r == p {
			return true
		}
	}
	return false
}

// trimmedMean averages a sorted slice after dropping floor(fraction×n)
// values from each end. Never removes more than available.
func trimmedMean(sorted []float64, fraction float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	k := int(fraction * float64(len(sorted)))
	trimmed := sorted[k : len(sorted)-k]
	if len(trimmed) == 0 {
		trimmed = sorted
	}
	return mean(trimmed)
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// popStddev is the population standard deviation.
func popStddev(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	m := mean(vs)
	var sum float64
	for _, v := range vs {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vs)))
}

// percentile indexes a sorted slice at floor(length×q).
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// burstSpeed slides a window across the interval sequence and returns the
// minimum window mean, the fastest sustained stretch. Sequences shorter
// than the window fall back to the plain mean.
func burstSpeed(intervals []float64, window int) float64 {
	if len(intervals) == 0 {
		return 0
	}
	if len(intervals) < window {
		return mean(intervals)
	}
	var sum float64
	for _, v := range intervals[:window] {
		sum += v
	}
	best := sum
	for i := window; i < len(intervals); i++ {
		sum += intervals[i] - intervals[i-window]
		if sum < best {
			best = sum
		}
	}
	return best / float64(window)
}

// wordLengthMean is the trimmed mean of completed word lengths, falling
// back to the untrimmed mean when the trim would remove the entire set.
func wordLengthMean(lengths []float64, fraction float64) float64 {
	if len(lengths) == 0 {
		return 0
	}
	sorted := append([]float64(nil), lengths...)
	sort.Float64s(sorted)
	return trimmedMean(sorted, fraction)
}
