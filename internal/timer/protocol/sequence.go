package protocol

import "sync/atomic"

// Sequencer hands out strictly increasing sequence numbers. Each side of the
// store/engine channel owns one; sequences are never shared across senders.
type Sequencer struct {
	n atomic.Uint64
}

// Next returns the next sequence number, starting at 1.
func (s *Sequencer) Next() uint64 {
	return s.n.Add(1)
}

// Gate applies the monotonic-sequence rule: a message is accepted only if
// its sequence is strictly greater than the last accepted one. Duplicates
// and reordered stragglers are rejected, which makes replaying any
// interleaving of a valid monotonic subsequence equivalent to in-order
// delivery.
//
// Gate is not goroutine-safe; it belongs to the single goroutine that owns
// the receiving side of the channel.
type Gate struct {
	lastAccepted uint64
}

// Accept reports whether seq passes the gate and, if so, records it.
func (g *Gate) Accept(seq uint64) bool {
	if seq <= g.lastAccepted {
		return false
	}
	g.lastAccepted = seq
	return true
}

// Last returns the most recently accepted sequence number.
func (g *Gate) Last() uint64 {
	return g.lastAccepted
}
