// Package gallery manages the set of enrolled typists: enrollment, lookup,
// identification attempts, and the asynchronous profile updates that follow
// high-confidence matches. All writes go through a single Manager so the
// predict path and the background worker never race on a profile.
package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"keyprint/internal/identify"
	"keyprint/internal/keystroke"
	"keyprint/internal/storage"
)

// Store defines the persistence operations the Manager needs.
// Implemented by storage.Store.
type Store interface {
	SaveProfile(p storage.Profile) error
	GetProfile(id string) (storage.Profile, error)
	GetProfileByName(name string) (storage.Profile, error)
	ListProfiles() ([]storage.Profile, error)
	DeleteProfile(id string) error
	UpdateProfilePattern(id, patternJSON string) error
	UpdateProfileStats(id string, attempts, matches int, accuracy, consistency float64) error
	SaveSample(s storage.Sample) error
	ListSamples(profileID string, limit int) ([]storage.Sample, error)
	TrimSamples(profileID string, keep int) error
	SaveComparison(c storage.Comparison) error
	ListComparisons(limit, offset int) ([]storage.Comparison, error)
	EnqueueJob(j storage.Job) error
}

// UserProfile is an enrolled typist with the stored pattern decoded.
type UserProfile struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Pattern            keystroke.Pattern `json:"pattern"`
	AttemptCount       int               `json:"attempt_count"`
	MatchCount         int               `json:"match_count"`
	RollingAccuracy    float64           `json:"rolling_accuracy"`
	RollingConsistency float64           `json:"rolling_consistency"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

const (
	// sampleRetention is how many raw samples are kept per profile.
	sampleRetention = 5
	// statsAlpha is the smoothing factor for the rolling statistics.
	statsAlpha = 0.1
)

// JobTypeProfileUpdate is the queue job enqueued after a high-confidence
// match; the enrollq worker applies it.
const JobTypeProfileUpdate = "profile_update"

// UpdatePayload is the job payload carrying a matched sample back to its
// profile.
type UpdatePayload struct {
	ProfileID  string               `json:"profile_id"`
	Confidence float64              `json:"confidence"`
	Events     []keystroke.KeyEvent `json:"events"`
}

// Manager owns all gallery writes.
type Manager struct {
	mu     sync.Mutex
	store  Store
	svc    *identify.Service
	logger *slog.Logger
}

// NewManager creates a Manager around a store and an identification service.
func NewManager(store Store, svc *identify.Service) *Manager {
	return &Manager{
		store:  store,
		svc:    svc,
		logger: slog.Default(),
	}
}

// MinEvents returns the minimum sample size the gallery accepts.
func (m *Manager) MinEvents() int {
	return m.svc.Thresholds().MinEvents
}

// Enroll creates a profile for name from a key-event sample, or refreshes
// the profile if the name is already enrolled. The sample is gated by the
// same minimum size as identification.
func (m *Manager) Enroll(name string, events []keystroke.KeyEvent) (UserProfile, error) {
	pattern, err := m.svc.SamplePattern(events)
	if err != nil {
		return UserProfile{}, err
	}

	patternJSON, err := json.Marshal(pattern)
	if err != nil {
		return UserProfile{}, fmt.Errorf("encoding pattern: %w", err)
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return UserProfile{}, fmt.Errorf("encoding events: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.GetProfileByName(name)
	switch err {
	case nil:
		if err := m.store.UpdateProfilePattern(existing.ID, string(patternJSON)); err != nil {
			return UserProfile{}, fmt.Errorf("refreshing pattern for %q: %w", name, err)
		}
	case storage.ErrNotFound:
		existing = storage.Profile{
			ID:          uuid.New().String(),
			Name:        name,
			PatternJSON: string(patternJSON),
		}
		if err := m.store.SaveProfile(existing); err != nil {
			return UserProfile{}, fmt.Errorf("creating profile %q: %w", name, err)
		}
	default:
		return UserProfile{}, fmt.Errorf("looking up profile %q: %w", name, err)
	}

	if err := m.retainSample(existing.ID, string(eventsJSON), len(events)); err != nil {
		return UserProfile{}, err
	}

	stored, err := m.store.GetProfile(existing.ID)
	if err != nil {
		return UserProfile{}, fmt.Errorf("reloading profile %q: %w", name, err)
	}
	return decodeProfile(stored)
}

// Identify scores a sample against the gallery, records the attempt in
// comparison history, and on a high-confidence match enqueues the deferred
// profile update. The gallery itself is never written inline.
func (m *Manager) Identify(ctx context.Context, events []keystroke.KeyEvent) (identify.Decision, error) {
	candidates, err := m.Candidates()
	if err != nil {
		return identify.Decision{}, err
	}

	decision, err := m.svc.Identify(ctx, events, candidates)
	if err != nil {
		return identify.Decision{}, err
	}

	comparison := storage.Comparison{
		ID:         uuid.New().String(),
		Confidence: decision.Confidence,
		Band:       decision.Band,
		EventCount: decision.EventCount,
	}
	if decision.Band != identify.BandNone {
		comparison.ProfileID = decision.ProfileID
		comparison.ProfileName = decision.ProfileName
	}
	if err := m.store.SaveComparison(comparison); err != nil {
		return identify.Decision{}, fmt.Errorf("recording attempt: %w", err)
	}

	if decision.Band == identify.BandMatch {
		payload, err := json.Marshal(UpdatePayload{
			ProfileID:  decision.ProfileID,
			Confidence: decision.Confidence,
			Events:     events,
		})
		if err != nil {
			return identify.Decision{}, fmt.Errorf("encoding update payload: %w", err)
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        JobTypeProfileUpdate,
			PayloadJSON: string(payload),
		}
		if err := m.store.EnqueueJob(job); err != nil {
			return identify.Decision{}, fmt.Errorf("enqueueing profile update: %w", err)
		}
		m.logger.Debug("profile update enqueued", "profile_id", decision.ProfileID, "confidence", decision.Confidence)
	}

	return decision, nil
}

// ApplyUpdate merges a matched sample into its profile: the sample joins the
// retained history, the current pattern is recomputed from it, and the
// rolling statistics absorb the new confidence. Called by the enrollq worker.
func (m *Manager) ApplyUpdate(profileID string, confidence float64, events []keystroke.KeyEvent) error {
	pattern, err := m.svc.SamplePattern(events)
	if err != nil {
		return fmt.Errorf("extracting update sample: %w", err)
	}

	patternJSON, err := json.Marshal(pattern)
	if err != nil {
		return fmt.Errorf("encoding pattern: %w", err)
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encoding events: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.store.GetProfile(profileID)
	if err != nil {
		return fmt.Errorf("loading profile %s: %w", profileID, err)
	}

	if err := m.retainSample(p.ID, string(eventsJSON), len(events)); err != nil {
		return err
	}
	if err := m.store.UpdateProfilePattern(p.ID, string(patternJSON)); err != nil {
		return fmt.Errorf("updating pattern: %w", err)
	}

	consistency := 1 / (1 + pattern.RhythmConsistency)
	attempts := p.AttemptCount + 1
	matches := p.MatchCount + 1
	accuracy := ema(p.RollingAccuracy, confidence, p.AttemptCount == 0)
	rolling := ema(p.RollingConsistency, consistency, p.AttemptCount == 0)

	if err := m.store.UpdateProfileStats(p.ID, attempts, matches, accuracy, rolling); err != nil {
		return fmt.Errorf("updating stats: %w", err)
	}
	return nil
}

// retainSample stores a sample and trims the profile's history to the
// retention limit. Caller holds the write lock.
func (m *Manager) retainSample(profileID, eventsJSON string, eventCount int) error {
	sample := storage.Sample{
		ID:         uuid.New().String(),
		ProfileID:  profileID,
		EventsJSON: eventsJSON,
		EventCount: eventCount,
	}
	if err := m.store.SaveSample(sample); err != nil {
		return fmt.Errorf("saving sample: %w", err)
	}
	if err := m.store.TrimSamples(profileID, sampleRetention); err != nil {
		return fmt.Errorf("trimming samples: %w", err)
	}
	return nil
}

// Candidates returns every enrolled profile in scoring form.
func (m *Manager) Candidates() ([]identify.Candidate, error) {
	profiles, err := m.store.ListProfiles()
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	candidates := make([]identify.Candidate, 0, len(profiles))
	for _, p := range profiles {
		var pattern keystroke.Pattern
		if err := json.Unmarshal([]byte(p.PatternJSON), &pattern); err != nil {
			return nil, fmt.Errorf("decoding pattern for %q: %w", p.Name, err)
		}
		candidates = append(candidates, identify.Candidate{ID: p.ID, Name: p.Name, Pattern: pattern})
	}
	return candidates, nil
}

// Get returns one enrolled profile by ID.
func (m *Manager) Get(id string) (UserProfile, error) {
	p, err := m.store.GetProfile(id)
	if err != nil {
		return UserProfile{}, err
	}
	return decodeProfile(p)
}

// GetByName returns one enrolled profile by name.
func (m *Manager) GetByName(name string) (UserProfile, error) {
	p, err := m.store.GetProfileByName(name)
	if err != nil {
		return UserProfile{}, err
	}
	return decodeProfile(p)
}

// List returns every enrolled profile, ordered by name.
func (m *Manager) List() ([]UserProfile, error) {
	profiles, err := m.store.ListProfiles()
	if err != nil {
		return nil, err
	}
	out := make([]UserProfile, 0, len(profiles))
	for _, p := range profiles {
		up, err := decodeProfile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, up)
	}
	return out, nil
}

// Delete removes a profile and, via the schema, its retained samples.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.DeleteProfile(id)
}

// Samples returns up to limit retained samples of a profile, newest first.
func (m *Manager) Samples(profileID string, limit int) ([]storage.Sample, error) {
	if limit <= 0 {
		limit = sampleRetention
	}
	return m.store.ListSamples(profileID, limit)
}

// History returns recorded identification attempts, newest first.
func (m *Manager) History(limit, offset int) ([]storage.Comparison, error) {
	return m.store.ListComparisons(limit, offset)
}

func decodeProfile(p storage.Profile) (UserProfile, error) {
	var pattern keystroke.Pattern
	if err := json.Unmarshal([]byte(p.PatternJSON), &pattern); err != nil {
		return UserProfile{}, fmt.Errorf("decoding pattern for %q: %w", p.Name, err)
	}
	return UserProfile{
		ID:                 p.ID,
		Name:               p.Name,
		Pattern:            pattern,
		AttemptCount:       p.AttemptCount,
		MatchCount:         p.MatchCount,
		RollingAccuracy:    p.RollingAccuracy,
		RollingConsistency: p.RollingConsistency,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}, nil
}

// ema folds a new observation into a running average. The first observation
// seeds the average directly.
func ema(current, observed float64, first bool) float64 {
	if first {
		return observed
	}
	return current + statsAlpha*(observed-current)
}
