package peer

import "time"

// seenSet remembers received reliable sequence numbers for a bounded
// window. Expired entries are swept lazily on insert. It is owned by the
// session goroutine.
type seenSet struct {
	window    time.Duration
	clock     TimeProvider
	entries   map[uint64]time.Time
	lastSweep time.Time
}

func newSeenSet(window time.Duration, clock TimeProvider) *seenSet {
	return &seenSet{
		window:    window,
		clock:     clock,
		entries:   make(map[uint64]time.Time),
		lastSweep: clock.Now(),
	}
}

// checkAndStore returns true if rseq was not seen within the window, and
// records it.
func (s *seenSet) checkAndStore(rseq uint64) bool {
	now := s.clock.Now()
	if now.Sub(s.lastSweep) >= s.window {
		s.sweep(now)
	}

	if expiry, ok := s.entries[rseq]; ok && now.Before(expiry) {
		return false
	}
	s.entries[rseq] = now.Add(s.window)
	return true
}

func (s *seenSet) sweep(now time.Time) {
	for rseq, expiry := range s.entries {
		if !now.Before(expiry) {
			delete(s.entries, rseq)
		}
	}
	s.lastSweep = now
}

func (s *seenSet) len() int {
	return len(s.entries)
}
