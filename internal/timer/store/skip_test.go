package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdev09/woodshed/internal/timer/protocol"
)

func TestSkipWorkToBreak(t *testing.T) {
	t.Parallel()

	s, engine, _ := newTestStore(workState(900, 2))
	engine.confirmAll(t)

	require.NoError(t, s.Skip(context.Background()))

	st := s.Snapshot()
	assert.Equal(t, protocol.ModeBreak, st.Mode)
	assert.Equal(t, 5*60, st.TimeRemaining)
	assert.Equal(t, 2, st.CurrentIteration, "iteration holds across work to break")
	assert.False(t, st.IsRunning)
	assert.False(t, s.Skipping())
	assert.Equal(t, []protocol.MessageType{protocol.TypeUpdateMode}, engine.sentTypes())
}

func TestSkipBreakAdvancesIteration(t *testing.T) {
	t.Parallel()

	initial := workState(300, 2)
	initial.Mode = protocol.ModeBreak
	s, engine, _ := newTestStore(initial)
	engine.confirmAll(t)

	require.NoError(t, s.Skip(context.Background()))

	st := s.Snapshot()
	assert.Equal(t, protocol.ModeWork, st.Mode)
	assert.Equal(t, 25*60, st.TimeRemaining)
	assert.Equal(t, 3, st.CurrentIteration)
}

func TestSkipFinalBreakWrapsToFirstIteration(t *testing.T) {
	t.Parallel()

	initial := workState(300, 4)
	initial.Mode = protocol.ModeBreak
	s, engine, _ := newTestStore(initial)
	engine.confirmAll(t)

	require.NoError(t, s.Skip(context.Background()))

	st := s.Snapshot()
	assert.Equal(t, protocol.ModeWork, st.Mode)
	assert.Equal(t, 1, st.CurrentIteration)
}

func TestSkipFinalWorkIsTerminal(t *testing.T) {
	t.Parallel()

	var completions []protocol.CompletePayload
	s, engine, _ := newTestStore(workState(900, 4), WithOnComplete(func(p protocol.CompletePayload) {
		completions = append(completions, p)
	}))
	engine.confirmAll(t)

	require.NoError(t, s.Skip(context.Background()))

	assert.Empty(t, engine.sent, "terminal skip sends no engine message")
	assert.True(t, s.PracticeComplete())
	assert.False(t, s.Skipping())
	assert.Equal(t, 0, s.Snapshot().TimeRemaining)

	require.Len(t, completions, 1)
	assert.Equal(t, protocol.ModeWork, completions[0].CompletedMode)
	assert.True(t, completions[0].PracticeComplete)

	assert.ErrorIs(t, s.Skip(context.Background()), ErrPracticeComplete)
}

func TestSkipOptimisticFieldsExcludeMode(t *testing.T) {
	t.Parallel()

	// Engine never confirms: only the pending-safe fields may show.
	s, _, _ := newTestStore(workState(900, 2))
	require.NoError(t, s.Skip(context.Background()))

	st := s.Snapshot()
	assert.Equal(t, 5*60, st.TimeRemaining)
	assert.Equal(t, 5*60, st.TotalTime)
	assert.False(t, st.IsRunning)
	assert.Equal(t, protocol.ModeWork, st.Mode, "mode waits for confirmation")
	assert.Equal(t, 2, st.CurrentIteration, "iteration waits for confirmation")
	assert.True(t, s.Skipping())
}

func TestSkipRepeatedCallsAreNoops(t *testing.T) {
	t.Parallel()

	s, engine, _ := newTestStore(workState(900, 2))
	require.NoError(t, s.Skip(context.Background()))
	require.NoError(t, s.Skip(context.Background()))
	require.NoError(t, s.Skip(context.Background()))

	assert.Len(t, engine.sent, 1, "rapid repeated skips dispatch once")
}

func TestSkipFallbackRollsBackOptimisticState(t *testing.T) {
	t.Parallel()

	s, _, clock := newTestStore(workState(900, 2))
	require.NoError(t, s.Skip(context.Background()))
	require.True(t, s.Skipping())

	clock.Advance(defaultSkipFallback)

	require.Eventually(t, func() bool { return !s.Skipping() }, time.Second, time.Millisecond, "fallback clears the in-flight flag")
	st := s.Snapshot()
	assert.Equal(t, 900, st.TimeRemaining, "optimistic fields rolled back")
	assert.Equal(t, protocol.ModeWork, st.Mode)
}

func TestSkipStaleRetriesWithFreshSequence(t *testing.T) {
	t.Parallel()

	s, engine, _ := newTestStore(workState(900, 2))
	require.NoError(t, s.Skip(context.Background()))
	require.Len(t, engine.sent, 1)
	first := engine.sent[0]

	engine.reply(t, protocol.TypeStale, first.Seq, protocol.StalePayload{
		Type:         protocol.TypeUpdateMode,
		LastAccepted: first.Seq + 10,
	})

	require.Len(t, engine.sent, 2, "stale skip is resent")
	retry := engine.sent[1]
	assert.Equal(t, protocol.TypeUpdateMode, retry.Type)
	assert.Greater(t, retry.Seq, first.Seq, "retry carries a fresh sequence")
	assert.JSONEq(t, string(first.Payload), string(retry.Payload), "retry carries the same target")
	assert.True(t, s.Skipping())

	// Confirming the retry settles the skip.
	var p protocol.UpdateModePayload
	require.NoError(t, retry.Decode(&p))
	st := s.committed
	st.Mode = p.Mode
	st.TimeRemaining = p.TimeRemaining
	st.TotalTime = p.TimeRemaining
	st.CurrentIteration = p.CurrentIteration
	engine.reply(t, protocol.TypeUpdateMode, retry.Seq, st)

	assert.False(t, s.Skipping())
	assert.Equal(t, protocol.ModeBreak, s.Snapshot().Mode)
}

func TestSkipStaleForOtherTypesIgnored(t *testing.T) {
	t.Parallel()

	s, engine, _ := newTestStore(workState(900, 2))
	require.NoError(t, s.Skip(context.Background()))
	require.Len(t, engine.sent, 1)

	engine.reply(t, protocol.TypeStale, 0, protocol.StalePayload{
		Type:         protocol.TypePause,
		LastAccepted: 3,
	})
	assert.Len(t, engine.sent, 1, "only UPDATE_MODE stales are retried")
}

func TestSkipWhileRunningPausesFirst(t *testing.T) {
	t.Parallel()

	initial := workState(900, 2)
	initial.IsRunning = true
	s, engine, clock := newTestStore(initial)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Skip(context.Background()) }()

	// The engine never replies: the pause resolves as a no-op on its ack
	// timeout. Waiters are the skip fallback timer and the pending ack.
	clock.BlockUntil(2)
	clock.Advance(protocol.DefaultAckTimeout)

	// Now the skip waits for the channel to settle.
	clock.BlockUntil(2)
	clock.Advance(defaultSettleDelay)
	require.NoError(t, <-errCh)

	assert.Equal(t, []protocol.MessageType{protocol.TypePause, protocol.TypeUpdateMode}, engine.sentTypes())
	assert.True(t, s.Skipping())

	// Confirm the dispatched target.
	skip := engine.sent[1]
	var p protocol.UpdateModePayload
	require.NoError(t, skip.Decode(&p))
	st := s.committed
	st.Mode = p.Mode
	st.TimeRemaining = p.TimeRemaining
	st.TotalTime = p.TimeRemaining
	st.CurrentIteration = p.CurrentIteration
	engine.reply(t, protocol.TypeUpdateMode, skip.Seq, st)

	got := s.Snapshot()
	assert.Equal(t, protocol.ModeBreak, got.Mode)
	assert.False(t, got.IsRunning, "skip target never auto-runs")
	assert.False(t, s.Skipping())
}

func TestReconcileRejectsRegressiveUpdateMode(t *testing.T) {
	t.Parallel()

	s, engine, _ := newTestStore(workState(900, 3))

	// No skip in flight: a late confirmation rewinding the iteration is
	// discarded.
	regressive := workState(1500, 2)
	engine.reply(t, protocol.TypeUpdateMode, 0, regressive)
	assert.Equal(t, 3, s.Snapshot().CurrentIteration)
	assert.Equal(t, 900, s.Snapshot().TimeRemaining)

	// A mode change always counts as forward progress.
	next := workState(300, 3)
	next.Mode = protocol.ModeBreak
	engine.reply(t, protocol.TypeUpdateMode, 0, next)
	assert.Equal(t, protocol.ModeBreak, s.Snapshot().Mode)
}
