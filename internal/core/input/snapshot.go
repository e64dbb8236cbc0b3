package input

// Snapshot keeps the previous and current intent so rising edges can be detected. It is
// advanced exactly once per simulation tick; intents received between ticks overwrite
// each other and only the latest one is observed.
type Snapshot struct {
	prev    Intent
	curr    Intent
	pending Intent
}

// Set records the latest received intent. It becomes current on the next Advance.
func (s *Snapshot) Set(intent Intent) {
	s.pending = intent.Sanitized()
}

// Advance shifts current into previous and promotes the pending intent.
func (s *Snapshot) Advance() {
	s.prev = s.curr
	s.curr = s.pending
}

// Current returns the intent observed this tick.
func (s *Snapshot) Current() Intent { return s.curr }

// Latest returns the most recently received intent, which may not be current yet.
func (s *Snapshot) Latest() Intent { return s.pending }

// Held reports whether a is held this tick.
func (s *Snapshot) Held(a Action) bool { return s.curr.Has(a) }

// Pressed reports a rising edge: held now, not held on the previous tick.
func (s *Snapshot) Pressed(a Action) bool { return s.curr.Has(a) && !s.prev.Has(a) }

// Released reports a falling edge.
func (s *Snapshot) Released(a Action) bool { return !s.curr.Has(a) && s.prev.Has(a) }

// Reset clears all slots.
func (s *Snapshot) Reset() { *s = Snapshot{} }
