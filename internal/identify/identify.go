// Package identify holds the decision policy that sits between raw key
// events and the gallery: the minimum-sample gate, concurrent scoring of a
// fresh pattern against every enrolled profile, and the confidence bands
// that turn a best score into an outcome.
package identify

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"keyprint/internal/keystroke"
)

// ErrInsufficientSample is returned when a sample has fewer events than the
// minimum required for a reliable pattern.
var ErrInsufficientSample = errors.New("insufficient sample")

// ErrEmptyGallery is returned when identification is attempted with no
// enrolled profiles.
var ErrEmptyGallery = errors.New("no enrolled profiles")

// Bands classify a best-candidate confidence score. Rejected attempts are
// still recorded in comparison history; only match triggers a profile
// update.
const (
	BandMatch    = "match"
	BandPossible = "possible"
	BandRejected = "rejected"
	BandNone     = "none"
)

// Thresholds are the decision constants of the identification boundary.
type Thresholds struct {
	// Match is the minimum confidence for a positive identification.
	Match float64
	// Possible marks a likely but not conclusive match.
	Possible float64
	// Record is the floor under which an attempt is not attributed to any
	// profile at all.
	Record float64
	// MinEvents is the minimum sample size accepted for scoring.
	MinEvents int
}

// DefaultThresholds returns the standard decision bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Match:     0.85,
		Possible:  0.75,
		Record:    0.60,
		MinEvents: 75,
	}
}

// Candidate is one enrolled profile presented for scoring.
type Candidate struct {
	ID      string
	Name    string
	Pattern keystroke.Pattern
}

// Decision is the outcome of scoring a sample against the gallery. ProfileID
// and ProfileName always name the best-scoring candidate; Band tells the
// caller how much to trust it.
type Decision struct {
	ProfileID   string
	ProfileName string
	Confidence  float64
	Band        string
	Pattern     keystroke.Pattern
	EventCount  int
}

// Matched reports whether the decision is at least a possible match.
func (d Decision) Matched() bool {
	return d.Band == BandMatch || d.Band == BandPossible
}

// Service applies the decision policy.
type Service struct {
	thresholds Thresholds
}

// New creates a Service. Zero-valued thresholds fall back to the defaults.
func New(th Thresholds) *Service {
	def := DefaultThresholds()
	if th.Match == 0 {
		th.Match = def.Match
	}
	if th.Possible == 0 {
		th.Possible = def.Possible
	}
	if th.Record == 0 {
		th.Record = def.Record
	}
	if th.MinEvents == 0 {
		th.MinEvents = def.MinEvents
	}
	return &Service{thresholds: th}
}

// Thresholds returns the active decision constants.
func (s *Service) Thresholds() Thresholds {
	return s.thresholds
}

// SamplePattern applies the minimum-sample gate and extracts a pattern.
func (s *Service) SamplePattern(events []keystroke.KeyEvent) (keystroke.Pattern, error) {
	if len(events) < s.thresholds.MinEvents {
		return keystroke.Pattern{}, ErrInsufficientSample
	}
	return keystroke.Extract(events), nil
}

// Identify scores a sample against every candidate concurrently and returns
// the banded best match. The sample gate runs before any scoring, so an
// undersized sample never touches the gallery.
func (s *Service) Identify(ctx context.Context, events []keystroke.KeyEvent, candidates []Candidate) (Decision, error) {
	pattern, err := s.SamplePattern(events)
	if err != nil {
		return Decision{}, err
	}
	if len(candidates) == 0 {
		return Decision{}, ErrEmptyGallery
	}

	scores := make([]float64, len(candidates))
	g, _ := errgroup.WithContext(ctx)
	for i := range candidates {
		g.Go(func() error {
			scores[i] = keystroke.Compare(pattern, candidates[i].Pattern)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Decision{}, err
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}

	return Decision{
		ProfileID:   candidates[best].ID,
		ProfileName: candidates[best].Name,
		Confidence:  scores[best],
		Band:        s.band(scores[best]),
		Pattern:     pattern,
		EventCount:  len(events),
	}, nil
}

func (s *Service) band(confidence float64) string {
	switch {
	case confidence >= s.thresholds.Match:
		return BandMatch
	case confidence >= s.thresholds.Possible:
		return BandPossible
	case confidence >= s.thresholds.Record:
		return BandRejected
	default:
		return BandNone
	}
}
