package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultAckTimeout is how long a sent command waits for a correlated
	// reply before resolving as a no-op.
	DefaultAckTimeout = time.Second

	// DefaultMaxAge is the safety-net age after which the sweeper drops a
	// pending entry regardless of its timer.
	DefaultMaxAge = 5 * time.Second
)

type pendingEntry struct {
	env    Envelope
	sentAt time.Time
	ch     chan Envelope
	timer  clockwork.Timer
}

// PendingTable tracks in-flight commands awaiting a correlated reply.
// Entries resolve on reply, expire as a no-op after the ack timeout, and are
// swept after maxAge so a lost timer can never leak them. There is no true
// cancellation of an in-flight message; abandonment is always timeout-based.
type PendingTable struct {
	clock      clockwork.Clock
	ackTimeout time.Duration
	maxAge     time.Duration

	mu      sync.Mutex
	entries map[uint64]*pendingEntry
}

// NewPendingTable creates a table using the supplied clock. Zero durations
// fall back to the defaults.
func NewPendingTable(clock clockwork.Clock, ackTimeout, maxAge time.Duration) *PendingTable {
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &PendingTable{
		clock:      clock,
		ackTimeout: ackTimeout,
		maxAge:     maxAge,
		entries:    make(map[uint64]*pendingEntry),
	}
}

// Track registers an outbound envelope and returns a channel that yields the
// correlated reply, or closes without a value once the ack timeout elapses.
func (t *PendingTable) Track(env Envelope) <-chan Envelope {
	ch := make(chan Envelope, 1)
	t.mu.Lock()
	e := &pendingEntry{env: env, sentAt: t.clock.Now(), ch: ch}
	e.timer = t.clock.AfterFunc(t.ackTimeout, func() { t.expire(env.Seq) })
	t.entries[env.Seq] = e
	t.mu.Unlock()
	return ch
}

// Resolve delivers a reply to the entry it correlates with. Returns false
// when nothing was waiting, which is normal for late replies to abandoned
// messages.
func (t *PendingTable) Resolve(replyTo uint64, reply Envelope) bool {
	if replyTo == 0 {
		return false
	}
	t.mu.Lock()
	e, ok := t.entries[replyTo]
	if ok {
		delete(t.entries, replyTo)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	e.timer.Stop()
	e.ch <- reply
	close(e.ch)
	return true
}

// Drain abandons every pending entry, closing their channels. Used when a
// completion broadcast supersedes whatever was in flight.
func (t *PendingTable) Drain() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[uint64]*pendingEntry)
	t.mu.Unlock()
	for _, e := range entries {
		e.timer.Stop()
		close(e.ch)
	}
}

func (t *PendingTable) expire(seq uint64) {
	t.mu.Lock()
	e, ok := t.entries[seq]
	if ok {
		delete(t.entries, seq)
	}
	t.mu.Unlock()
	if ok {
		log.Debug().Uint64("seq", seq).Str("type", string(e.env.Type)).Msg("pending message timed out without reply")
		close(e.ch)
	}
}

// Sweep removes entries older than maxAge and returns how many it dropped.
func (t *PendingTable) Sweep() int {
	cutoff := t.clock.Now().Add(-t.maxAge)
	t.mu.Lock()
	var stale []*pendingEntry
	for seq, e := range t.entries {
		if e.sentAt.Before(cutoff) {
			stale = append(stale, e)
			delete(t.entries, seq)
		}
	}
	t.mu.Unlock()
	for _, e := range stale {
		e.timer.Stop()
		close(e.ch)
	}
	if len(stale) > 0 {
		log.Warn().Int("count", len(stale)).Msg("swept leaked pending messages")
	}
	return len(stale)
}

// Run sweeps periodically until the context is cancelled.
func (t *PendingTable) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.maxAge)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.Sweep()
		}
	}
}

// Len returns the number of in-flight entries.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
