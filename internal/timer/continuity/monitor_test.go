package continuity

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorRemainingEstimate(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	m := NewMonitor(clock, Hooks{})

	assert.Equal(t, 0, m.Remaining(), "disarmed monitor estimates zero")

	m.Arm(60 * time.Second)
	assert.Equal(t, 60, m.Remaining())

	clock.Advance(25 * time.Second)
	assert.Equal(t, 35, m.Remaining())

	// Suspended well past the deadline: the estimate clamps at zero.
	clock.Advance(65 * time.Second)
	assert.Equal(t, 0, m.Remaining())
}

func TestMonitorFiresCompletionExactlyOnce(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var completions atomic.Int32
	m := NewMonitor(clock, Hooks{
		Complete: func() { completions.Add(1) },
	})

	m.Arm(60 * time.Second)
	clock.Advance(60 * time.Second)
	require.Eventually(t, func() bool { return completions.Load() == 1 }, time.Second, time.Millisecond)

	// Redundant wakes after firing (focus, poll) are idempotent.
	m.Wake()
	m.Wake()
	assert.Equal(t, int32(1), completions.Load())
}

func TestMonitorWakeBeforeDeadlineDoesNothing(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var completions atomic.Int32
	m := NewMonitor(clock, Hooks{
		Complete: func() { completions.Add(1) },
	})

	m.Arm(60 * time.Second)
	clock.Advance(30 * time.Second)
	m.Wake()
	assert.Equal(t, int32(0), completions.Load())
}

func TestMonitorDisarmCancelsDeadline(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var completions atomic.Int32
	m := NewMonitor(clock, Hooks{
		Complete: func() { completions.Add(1) },
	})

	m.Arm(60 * time.Second)
	m.Disarm()
	clock.Advance(2 * time.Minute)
	m.Wake()

	assert.Equal(t, int32(0), completions.Load())
	assert.Equal(t, 0, m.Remaining())
}

func TestMonitorRearmReplacesDeadline(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var completions atomic.Int32
	m := NewMonitor(clock, Hooks{
		Complete: func() { completions.Add(1) },
	})

	m.Arm(60 * time.Second)
	clock.Advance(30 * time.Second)
	m.Arm(60 * time.Second)

	// The original deadline passing must not fire the replaced timer.
	clock.Advance(30 * time.Second)
	assert.Equal(t, int32(0), completions.Load())
	assert.Equal(t, 30, m.Remaining())

	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return completions.Load() == 1 }, time.Second, time.Millisecond)
}

func TestMonitorHookFailuresAreSwallowed(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	var completions atomic.Int32
	m := NewMonitor(clock, Hooks{
		Persist:  func() error { return errors.New("db down") },
		Notify:   func() error { return errors.New("no permission") },
		Complete: func() { completions.Add(1) },
	})

	m.Arm(time.Second)
	clock.Advance(time.Second)

	require.Eventually(t, func() bool { return completions.Load() == 1 }, time.Second, time.Millisecond, "completion fires despite hook failures")
}
