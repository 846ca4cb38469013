package continuity

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is how often Run re-evaluates the estimate while the
// client is backgrounded and ticks cannot be trusted.
const DefaultPollInterval = 15 * time.Second

// Hooks are the best-effort side effects of a fallback completion. Failures
// are logged and swallowed; a failed notification must never stop the timer.
type Hooks struct {
	// Complete fires the completion path exactly once per armed deadline.
	Complete func()
	// Persist records the completion. Best-effort.
	Persist func() error
	// Notify shows the completion notification. Best-effort.
	Notify func() error
}

// Monitor is a wall-clock estimator that recomputes remaining time
// independently of the tick engine's counter, using
// remaining = max(0, duration - floor(now - startedAt)). It exists for the
// case where the engine's interval was throttled or killed while the client
// was suspended: a redundant fallback completion path, not the primary one.
type Monitor struct {
	clock clockwork.Clock
	hooks Hooks

	mu        sync.Mutex
	armed     bool
	fired     bool
	startedAt time.Time
	duration  time.Duration
	timer     clockwork.Timer
}

// NewMonitor creates a disarmed monitor.
func NewMonitor(clock clockwork.Clock, hooks Hooks) *Monitor {
	return &Monitor{clock: clock, hooks: hooks}
}

// Arm records the start of a countdown and schedules a one-shot timer at
// the expected completion deadline. An existing timer is replaced
// atomically so restarts can never leave two deadlines live.
func (m *Monitor) Arm(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopTimerLocked()
	m.armed = true
	m.fired = false
	m.startedAt = m.clock.Now()
	m.duration = duration
	m.timer = m.clock.AfterFunc(duration, m.Wake)

	log.Debug().Dur("duration", duration).Time("deadline", m.startedAt.Add(duration)).Msg("continuity deadline armed")
}

// Disarm cancels the deadline, e.g. on pause, reset, or a confirmed engine
// completion.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
	m.armed = false
}

// Remaining returns the wall-clock estimate of seconds left, or zero when
// the monitor is disarmed.
func (m *Monitor) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remainingLocked()
}

func (m *Monitor) remainingLocked() int {
	if !m.armed {
		return 0
	}
	elapsed := int(m.clock.Since(m.startedAt) / time.Second)
	remaining := int(m.duration/time.Second) - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Wake recomputes the estimate, firing the fallback completion when it has
// reached zero. Idempotent: repeated wakes after completion do nothing.
// Called on visibility/focus triggers, the armed deadline timer, and the
// background poll.
func (m *Monitor) Wake() {
	m.mu.Lock()
	if !m.armed || m.fired || m.remainingLocked() > 0 {
		m.mu.Unlock()
		return
	}
	m.fired = true
	m.stopTimerLocked()
	m.mu.Unlock()

	log.Info().Msg("continuity estimate reached zero, firing fallback completion")
	if m.hooks.Persist != nil {
		if err := m.hooks.Persist(); err != nil {
			log.Error().Err(err).Msg("fallback completion persist failed")
		}
	}
	if m.hooks.Notify != nil {
		if err := m.hooks.Notify(); err != nil {
			log.Error().Err(err).Msg("fallback completion notify failed")
		}
	}
	if m.hooks.Complete != nil {
		m.hooks.Complete()
	}
}

// Run polls Wake on an interval until ctx is cancelled. This is the
// backgrounded-client path where neither ticks nor the deadline timer are
// assumed reliable.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Wake()
		}
	}
}

// stopTimerLocked stops any live deadline timer. AfterFunc timers have no
// channel to drain; a callback that already fired is handled by the fired
// flag in Wake.
func (m *Monitor) stopTimerLocked() {
	if m.timer == nil {
		return
	}
	m.timer.Stop()
	m.timer = nil
}
