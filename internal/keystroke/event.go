package keystroke

// Modifiers holds the modifier-flag state captured with a key press.
type Modifiers struct {
	Ctrl  bool `json:"ctrl"`
	Alt   bool `json:"alt"`
	Shift bool `json:"shift"`
	Meta  bool `json:"meta"`
}

// Any reports whether at least one modifier flag is set.
func (m Modifiers) Any() bool {
	return m.Ctrl || m.Alt || m.Shift || m.Meta
}

// KeyEvent is a single timestamped key press as produced by a capture
// surface. Events are immutable once captured; ordering is significant
// because all timing statistics derive from adjacency.
type KeyEvent struct {
	// Key is the logical character or named key ("a", "Backspace", "Enter").
	Key string `json:"key"`
	// Code is the physical key identifier ("KeyA", "Space").
	Code string `json:"code"`
	// Timestamp is a capture-time monotonic instant in milliseconds.
	Timestamp float64 `json:"timestamp"`
	// TimeSinceLast is the elapsed milliseconds since the previous event in
	// the same session; 0 for the first event.
	TimeSinceLast float64   `json:"timeSinceLast"`
	Modifiers     Modifiers `json:"modifiers"`
}
