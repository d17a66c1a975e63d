// Package sequencer drops stale or duplicate game events by their
// monotonically increasing sequence number.
package sequencer

type Sequencer struct {
	last int64
}

// Accept reports whether an event with the given sequence number should be
// applied, and records it as the last applied number when it should.
// Events without a number are always accepted.
func (s *Sequencer) Accept(seq *int64) bool {
	if seq == nil {
		return true
	}
	if s.last != 0 && *seq <= s.last {
		return false
	}
	s.last = *seq
	return true
}

func (s *Sequencer) Last() int64 { return s.last }

// Advance raises the baseline to n. It never lowers it.
func (s *Sequencer) Advance(n int64) {
	if n > s.last {
		s.last = n
	}
}

func (s *Sequencer) Reset() { s.last = 0 }
