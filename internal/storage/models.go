package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Profile is an enrolled typist: identity, the current typing pattern
// (recomputed from the most recent sample), and rolling match statistics
// maintained by the boundary layer.
type Profile struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	PatternJSON        string    `json:"-"`
	AttemptCount       int       `json:"attempt_count"`
	MatchCount         int       `json:"match_count"`
	RollingAccuracy    float64   `json:"rolling_accuracy"`
	RollingConsistency float64   `json:"rolling_consistency"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Sample is a retained raw key-event capture belonging to a profile. Only
// the most recent few are kept per profile.
type Sample struct {
	ID         string    `json:"id"`
	ProfileID  string    `json:"profile_id"`
	EventsJSON string    `json:"-"`
	EventCount int       `json:"event_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Comparison is one scored identification attempt.
type Comparison struct {
	ID          string    `json:"id"`
	ProfileID   string    `json:"profile_id,omitempty"`
	ProfileName string    `json:"profile_name,omitempty"`
	Confidence  float64   `json:"confidence"`
	Band        string    `json:"band"`
	EventCount  int       `json:"event_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Job is a queued background task.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
