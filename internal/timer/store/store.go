package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/timer/protocol"
)

var (
	// ErrEngineUnavailable is returned when the engine never answers INIT.
	// This is the only transport failure surfaced to the user.
	ErrEngineUnavailable = errors.New("timer engine unavailable")

	// ErrPracticeComplete is returned for commands after the terminal state.
	ErrPracticeComplete = errors.New("practice already complete")

	// ErrNoTimeRemaining rejects a START with nothing left to count down.
	// Validated here: the engine trusts its caller once the gate accepts.
	ErrNoTimeRemaining = errors.New("no time remaining")
)

const (
	defaultSettleDelay  = 100 * time.Millisecond
	defaultSkipFallback = 2 * time.Second
	initTimeout         = 5 * time.Second
)

// SendFunc delivers a command envelope to the engine.
type SendFunc func(protocol.Envelope) bool

// Store mediates between immediate caller feedback and asynchronous engine
// confirmation. It mirrors the engine's state, applies optimistic updates
// for responsiveness, and reconciles them against sequenced confirmations,
// rolling back on timeout.
type Store struct {
	clock   clockwork.Clock
	send    SendFunc
	seq     *protocol.Sequencer
	pending *protocol.PendingTable

	mu               sync.Mutex
	gate             protocol.Gate
	committed        protocol.TimerState
	optimistic       *OptimisticFields
	practiceComplete bool

	skipping       bool
	skipFallback   clockwork.Timer
	lastSkipTarget *protocol.UpdateModePayload

	initOnce sync.Once
	initCh   chan struct{}

	settleDelay         time.Duration
	skipFallbackTimeout time.Duration

	onChange   func(protocol.TimerState)
	onComplete func(protocol.CompletePayload)
}

// Option configures a Store.
type Option func(*Store)

// WithOnChange registers a callback invoked with the effective state after
// every visible change. Called outside the store lock.
func WithOnChange(fn func(protocol.TimerState)) Option {
	return func(s *Store) { s.onChange = fn }
}

// WithOnComplete registers a callback for completion events, including the
// terminal practice-complete reached by skipping the final work session.
func WithOnComplete(fn func(protocol.CompletePayload)) Option {
	return func(s *Store) { s.onComplete = fn }
}

// WithSettleDelay overrides the pause-settle delay used by Skip.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Store) { s.settleDelay = d }
}

// WithSkipFallbackTimeout overrides the skip in-flight fallback timeout.
func WithSkipFallbackTimeout(d time.Duration) Option {
	return func(s *Store) { s.skipFallbackTimeout = d }
}

// New creates a store mirroring the given initial state. send is the
// engine's command intake.
func New(clock clockwork.Clock, send SendFunc, initial protocol.TimerState, opts ...Option) *Store {
	s := &Store{
		clock:               clock,
		send:                send,
		seq:                 &protocol.Sequencer{},
		pending:             protocol.NewPendingTable(clock, protocol.DefaultAckTimeout, protocol.DefaultMaxAge),
		committed:           initial,
		initCh:              make(chan struct{}),
		settleDelay:         defaultSettleDelay,
		skipFallbackTimeout: defaultSkipFallback,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives the pending-table sweeper until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	s.pending.Run(ctx)
}

// Init performs the INIT handshake and waits up to five seconds for the
// engine to answer with its initial state.
func (s *Store) Init(ctx context.Context) error {
	env, err := protocol.NewEnvelope(protocol.TypeInit, s.seq.Next(), protocol.InitPayload{
		WorkerID: uuid.New().String(),
	})
	if err != nil {
		return err
	}
	s.dispatch(env)
	select {
	case <-s.initCh:
		return nil
	case <-s.clock.After(initTimeout):
		return ErrEngineUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the effective state: committed state overlaid with any
// optimistic skip fields.
func (s *Store) Snapshot() protocol.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return effectiveState(s.committed, s.optimistic)
}

// PracticeComplete reports whether the terminal state was reached.
func (s *Store) PracticeComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.practiceComplete
}

// Skipping reports whether a skip is in flight. Exposed for the UI's
// disabled-control state.
func (s *Store) Skipping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipping
}

// Start begins the countdown from the current effective state.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.practiceComplete {
		s.mu.Unlock()
		return ErrPracticeComplete
	}
	st := effectiveState(s.committed, s.optimistic)
	if st.TimeRemaining <= 0 {
		s.mu.Unlock()
		return ErrNoTimeRemaining
	}
	env, err := protocol.NewEnvelope(protocol.TypeStart, s.seq.Next(), protocol.StartPayload{
		TimeRemaining:    st.TimeRemaining,
		Mode:             st.Mode,
		CurrentIteration: st.CurrentIteration,
		TotalIterations:  st.TotalIterations,
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	// Running state reflects immediately; ticks will confirm.
	s.committed.IsRunning = true
	s.mu.Unlock()

	s.dispatch(env)
	s.notifyChange()
	return nil
}

// Pause stops the countdown and waits briefly for the engine's PAUSED
// confirmation. Absence of a reply within the ack timeout is treated as
// fire-and-forget.
func (s *Store) Pause(ctx context.Context) error {
	s.mu.Lock()
	if !s.committed.IsRunning {
		s.mu.Unlock()
		return nil
	}
	env, err := protocol.NewEnvelope(protocol.TypePause, s.seq.Next(), nil)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.committed.IsRunning = false
	s.mu.Unlock()

	s.notifyChange()
	_, err = s.sendAndWait(ctx, env)
	return err
}

// Reset force-sets the remaining time and stops the countdown.
func (s *Store) Reset(ctx context.Context, timeRemaining int) error {
	s.mu.Lock()
	env, err := protocol.NewEnvelope(protocol.TypeReset, s.seq.Next(), protocol.ResetPayload{
		TimeRemaining: timeRemaining,
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.committed.IsRunning = false
	s.committed.TimeRemaining = timeRemaining
	s.committed.TotalTime = timeRemaining
	s.practiceComplete = false
	s.mu.Unlock()

	s.dispatch(env)
	s.notifyChange()
	return nil
}

// UpdateSettings merges a partial settings update locally and forwards it to
// the engine. The countdown itself is untouched.
func (s *Store) UpdateSettings(ctx context.Context, patch protocol.SettingsPatch) error {
	s.mu.Lock()
	env, err := protocol.NewEnvelope(protocol.TypeUpdateSettings, s.seq.Next(), patch)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.committed.Settings = patch.Apply(s.committed.Settings)
	if patch.TotalIterations != nil {
		s.committed.TotalIterations = *patch.TotalIterations
	}
	s.mu.Unlock()

	s.dispatch(env)
	s.notifyChange()
	return nil
}

// HandleEvent applies an engine broadcast. Events pass the store-side
// sequence gate first; stale events are dropped silently.
func (s *Store) HandleEvent(env protocol.Envelope) {
	s.mu.Lock()
	if !s.gate.Accept(env.Seq) {
		s.mu.Unlock()
		log.Debug().Str("type", string(env.Type)).Uint64("seq", env.Seq).Msg("dropping stale engine event")
		return
	}
	s.mu.Unlock()

	if env.ReplyTo != 0 {
		s.pending.Resolve(env.ReplyTo, env)
	}

	switch env.Type {
	case protocol.TypeTick, protocol.TypePaused, protocol.TypeReset, protocol.TypeInitComplete:
		var st protocol.TimerState
		if err := env.Decode(&st); err != nil {
			log.Error().Err(err).Str("type", string(env.Type)).Msg("bad state event")
			return
		}
		s.mu.Lock()
		s.committed = st
		if env.Type != protocol.TypeTick {
			s.optimistic = nil
		}
		s.mu.Unlock()
		if env.Type == protocol.TypeInitComplete {
			s.initOnce.Do(func() { close(s.initCh) })
		}
		s.notifyChange()

	case protocol.TypeUpdateMode:
		s.reconcileUpdateMode(env)

	case protocol.TypeComplete:
		var p protocol.CompletePayload
		if err := env.Decode(&p); err != nil {
			log.Error().Err(err).Msg("bad COMPLETE payload")
			return
		}
		s.mu.Lock()
		s.committed = p.State
		s.optimistic = nil
		s.practiceComplete = p.PracticeComplete
		s.clearSkipLocked()
		s.mu.Unlock()
		// Completion supersedes anything in flight.
		s.pending.Drain()
		s.notifyChange()
		if s.onComplete != nil {
			s.onComplete(p)
		}

	case protocol.TypeStale:
		s.retryStale(env)

	case protocol.TypePlaySound, protocol.TypeShowNotification:
		// Side-effect requests are forwarded to clients by the session
		// layer; the store has nothing to mirror.

	default:
		log.Warn().Str("type", string(env.Type)).Msg("unknown engine event, ignoring")
	}
}

// sendAndWait tracks the envelope, sends it, and waits for the correlated
// reply. The pending table resolves the wait as a no-op after the ack
// timeout, so absence of a reply never blocks a caller for long.
func (s *Store) sendAndWait(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error) {
	ch := s.pending.Track(env)
	s.send(env)
	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	}
}

// dispatch tracks and sends without waiting for the reply; the pending
// entry exists so confirmations correlate and timeouts are observable.
func (s *Store) dispatch(env protocol.Envelope) {
	s.pending.Track(env)
	s.send(env)
}

func (s *Store) notifyChange() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.Snapshot())
}
