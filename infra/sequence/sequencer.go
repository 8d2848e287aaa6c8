// Package sequence issues the command and event sequence numbers the
// journals are keyed by.
package sequence

import "sync/atomic"

// Sequencer generates strictly monotonic sequence numbers. After WAL
// replay it is reset to the last journaled sequence so numbering
// continues where the previous run stopped.
type Sequencer struct {
	next atomic.Uint64
}

func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued sequence.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset is only used after replay.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}
