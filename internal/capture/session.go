// Package capture models the accumulation of key events between flushes as
// an explicit session object with a start/flush/reset lifecycle, replacing
// the ambient page-level buffers the capture surfaces would otherwise keep.
package capture

import (
	"sync"

	"keyprint/internal/keystroke"
)

// DefaultBatchSize is the number of events a session accumulates before it
// reports itself ready to flush. It matches the minimum sample size the
// identification boundary enforces.
const DefaultBatchSize = 75

// Session buffers key events for one capture surface. It derives each
// event's TimeSinceLast from the previous event's timestamp, so callers
// only need to report what they observed: key, code, timestamp, modifiers.
// Safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	batch   int
	events  []keystroke.KeyEvent
	last    float64
	started bool
}

// NewSession creates a session that becomes Ready every batchSize events.
// batchSize <= 0 uses DefaultBatchSize.
func NewSession(batchSize int) *Session {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Session{batch: batchSize}
}

// Record appends a key press to the session buffer. The first recorded
// event of a session (or after a Reset) gets TimeSinceLast 0.
func (s *Session) Record(key, code string, timestamp float64, mods keystroke.Modifiers) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sinceLast float64
	if s.started {
		sinceLast = timestamp - s.last
		if sinceLast < 0 {
			sinceLast = 0
		}
	}
	s.events = append(s.events, keystroke.KeyEvent{
		Key:           key,
		Code:          code,
		Timestamp:     timestamp,
		TimeSinceLast: sinceLast,
		Modifiers:     mods,
	})
	s.last = timestamp
	s.started = true
}

// Add appends an already-formed event, trusting its TimeSinceLast. Used
// when the capture surface computed timing itself.
func (s *Session) Add(e keystroke.KeyEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	s.last = e.Timestamp
	s.started = true
}

// Ready reports whether the buffer has reached the batch size.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events) >= s.batch
}

// Len returns the number of buffered events.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Flush returns the buffered events and empties the buffer. Timing
// continuity is preserved: the next recorded event is still measured
// against the last flushed one.
func (s *Session) Flush() []keystroke.KeyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

// Reset discards buffered events and timing state entirely.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.last = 0
	s.started = false
}
