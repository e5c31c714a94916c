package comrelay

import "sync"

// Signal is a manual-reset readiness flag. Ready returns a channel that
// is closed while the signal is set, so any number of receives succeed
// without consuming it; Clear re-arms the channel. Waiters that grabbed
// the channel just before a Set/Clear pair may wake spuriously, so they
// must re-check the condition they are waiting for.
type Signal struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

// NewSignal returns a Signal in the given initial state.
func NewSignal(set bool) *Signal {
	s := &Signal{ch: make(chan struct{})}
	if set {
		s.set = true
		close(s.ch)
	}
	return s
}

// Set marks the signal. A no-op if already set.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		s.set = true
		close(s.ch)
	}
}

// Clear resets the signal. A no-op if already clear.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		s.set = false
		s.ch = make(chan struct{})
	}
}

// IsSet reports the current state.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Ready returns the channel for the current state. Receiving succeeds
// immediately while the signal is set.
func (s *Signal) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}
