package store

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdev09/woodshed/internal/timer/protocol"
)

// fakeEngine stands in for the engine actor. Its respond hook runs
// synchronously inside the store's send call, which is safe because the
// store never dispatches while holding its lock.
type fakeEngine struct {
	store   *Store
	seq     protocol.Sequencer
	sent    []protocol.Envelope
	respond func(cmd protocol.Envelope)
}

func (f *fakeEngine) send(env protocol.Envelope) bool {
	f.sent = append(f.sent, env)
	if f.respond != nil {
		f.respond(env)
	}
	return true
}

func (f *fakeEngine) sentTypes() []protocol.MessageType {
	out := make([]protocol.MessageType, len(f.sent))
	for i, env := range f.sent {
		out[i] = env.Type
	}
	return out
}

// reply delivers an engine event with the next engine sequence.
func (f *fakeEngine) reply(t *testing.T, typ protocol.MessageType, replyTo uint64, payload any) {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, f.seq.Next(), payload)
	require.NoError(t, err)
	env.ReplyTo = replyTo
	f.store.HandleEvent(env)
}

// confirmAll echoes every command back as its confirmation, the way a
// healthy engine would.
func (f *fakeEngine) confirmAll(t *testing.T) {
	t.Helper()
	f.respond = func(cmd protocol.Envelope) {
		switch cmd.Type {
		case protocol.TypeInit:
			f.reply(t, protocol.TypeInitComplete, cmd.Seq, f.store.committed)
		case protocol.TypePause:
			st := f.store.committed
			st.IsRunning = false
			f.reply(t, protocol.TypePaused, cmd.Seq, st)
		case protocol.TypeUpdateMode:
			var p protocol.UpdateModePayload
			require.NoError(t, cmd.Decode(&p))
			st := f.store.committed
			st.Mode = p.Mode
			st.TimeRemaining = p.TimeRemaining
			st.TotalTime = p.TimeRemaining
			st.CurrentIteration = p.CurrentIteration
			st.TotalIterations = p.TotalIterations
			st.IsRunning = p.IsRunning
			f.reply(t, protocol.TypeUpdateMode, cmd.Seq, st)
		}
	}
}

func workState(remaining, iteration int) protocol.TimerState {
	settings := protocol.DefaultSettings()
	st := protocol.NewTimerState(settings)
	st.TimeRemaining = remaining
	st.TotalTime = remaining
	st.CurrentIteration = iteration
	return st
}

func newTestStore(initial protocol.TimerState, opts ...Option) (*Store, *fakeEngine, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	engine := &fakeEngine{}
	s := New(clock, engine.send, initial, opts...)
	engine.store = s
	return s, engine, clock
}

func TestStoreInitHandshake(t *testing.T) {
	t.Parallel()

	s, engine, _ := newTestStore(workState(1500, 1))
	engine.confirmAll(t)

	require.NoError(t, s.Init(context.Background()))
	require.Len(t, engine.sent, 1)
	assert.Equal(t, protocol.TypeInit, engine.sent[0].Type)
	assert.Equal(t, 1500, s.Snapshot().TimeRemaining)
}

func TestStoreInitTimeout(t *testing.T) {
	t.Parallel()

	s, _, clock := newTestStore(workState(1500, 1))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Init(context.Background()) }()

	// Two waiters: the pending-table ack timer and the init timeout.
	clock.BlockUntil(2)
	clock.Advance(initTimeout)

	assert.ErrorIs(t, <-errCh, ErrEngineUnavailable)
}

func TestStoreStartValidatesTimeRemaining(t *testing.T) {
	t.Parallel()

	s, engine, _ := newTestStore(workState(0, 1))
	assert.ErrorIs(t, s.Start(context.Background()), ErrNoTimeRemaining)
	assert.Empty(t, engine.sent, "invalid start never reaches the engine")
}

func TestStoreStartOptimisticallyRuns(t *testing.T) {
	t.Parallel()

	s, engine, _ := newTestStore(workState(1500, 2))
	require.NoError(t, s.Start(context.Background()))

	assert.True(t, s.Snapshot().IsRunning, "running reflects before any tick")
	require.Len(t, engine.sent, 1)

	var p protocol.StartPayload
	require.NoError(t, engine.sent[0].Decode(&p))
	assert.Equal(t, 1500, p.TimeRemaining)
	assert.Equal(t, 2, p.CurrentIteration)
}

func TestStoreTickCommitsAndStaleTickDropped(t *testing.T) {
	t.Parallel()

	s, engine, _ := newTestStore(workState(1500, 1))

	fresh := workState(1499, 1)
	fresh.IsRunning = true
	engine.reply(t, protocol.TypeTick, 0, fresh)
	assert.Equal(t, 1499, s.Snapshot().TimeRemaining)

	// A reordered straggler with an older sequence must not rewind.
	stale, err := protocol.NewEnvelope(protocol.TypeTick, 0, workState(1510, 1))
	require.NoError(t, err)
	s.HandleEvent(stale)
	assert.Equal(t, 1499, s.Snapshot().TimeRemaining)
}

func TestStorePauseWaitsForConfirmation(t *testing.T) {
	t.Parallel()

	initial := workState(900, 1)
	initial.IsRunning = true
	s, engine, _ := newTestStore(initial)
	engine.confirmAll(t)

	require.NoError(t, s.Pause(context.Background()))
	assert.False(t, s.Snapshot().IsRunning)
	assert.Equal(t, []protocol.MessageType{protocol.TypePause}, engine.sentTypes())

	// Pausing an idle timer is a no-op.
	require.NoError(t, s.Pause(context.Background()))
	assert.Len(t, engine.sent, 1)
}

func TestStoreResetClearsTerminalState(t *testing.T) {
	t.Parallel()

	s, engine, _ := newTestStore(workState(10, 4))

	done := workState(0, 5)
	engine.reply(t, protocol.TypeComplete, 0, protocol.CompletePayload{
		State:            done,
		CompletedMode:    protocol.ModeBreak,
		PracticeComplete: true,
	})
	require.True(t, s.PracticeComplete())
	assert.ErrorIs(t, s.Start(context.Background()), ErrPracticeComplete)

	require.NoError(t, s.Reset(context.Background(), 1500))
	assert.False(t, s.PracticeComplete())
	assert.Equal(t, 1500, s.Snapshot().TimeRemaining)
}

func TestStoreCompleteInvokesCallbackAndDrainsPending(t *testing.T) {
	t.Parallel()

	var completions []protocol.CompletePayload
	s, engine, _ := newTestStore(workState(60, 1), WithOnComplete(func(p protocol.CompletePayload) {
		completions = append(completions, p)
	}))

	// An unconfirmed skip leaves an entry in flight.
	require.NoError(t, s.Skip(context.Background()))
	require.Equal(t, 1, s.pending.Len())

	next := workState(300, 1)
	next.Mode = protocol.ModeBreak
	engine.reply(t, protocol.TypeComplete, 0, protocol.CompletePayload{
		State:         next,
		CompletedMode: protocol.ModeWork,
	})

	assert.Equal(t, 0, s.pending.Len(), "completion supersedes in-flight commands")
	assert.False(t, s.Skipping())
	require.Len(t, completions, 1)
	assert.Equal(t, protocol.ModeWork, completions[0].CompletedMode)
}
