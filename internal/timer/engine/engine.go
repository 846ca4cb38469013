package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/timer/protocol"
)

// EmitFunc receives every event the engine broadcasts. It must not block;
// the session layer fans events out through buffered channels.
type EmitFunc func(protocol.Envelope)

// Engine owns the authoritative countdown state for one session. It is an
// actor: commands arrive on a channel, state is mutated only by the Run
// goroutine, and every mutation is broadcast through emit. TimeRemaining
// decreases only here, one second per tick.
type Engine struct {
	clock        clockwork.Clock
	emit         EmitFunc
	seq          *protocol.Sequencer
	gate         protocol.Gate
	state        protocol.TimerState
	ticker       clockwork.Ticker
	tickInterval time.Duration
	workerID     string
	cmdCh        chan protocol.Envelope
}

// New creates an engine with initial state derived from settings. The engine
// is inert until Run is called.
func New(clock clockwork.Clock, emit EmitFunc, settings protocol.Settings) *Engine {
	return &Engine{
		clock:        clock,
		emit:         emit,
		seq:          &protocol.Sequencer{},
		state:        protocol.NewTimerState(settings),
		tickInterval: time.Second,
		cmdCh:        make(chan protocol.Envelope, 64),
	}
}

// Enqueue submits a command envelope. It never blocks; a full queue drops
// the command, which the sender's ack timeout turns into a no-op.
func (e *Engine) Enqueue(env protocol.Envelope) bool {
	select {
	case e.cmdCh <- env:
		return true
	default:
		log.Warn().Str("type", string(env.Type)).Uint64("seq", env.Seq).Msg("engine command queue full, dropping")
		return false
	}
}

// Run processes commands and ticks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		var tickCh <-chan time.Time
		if e.ticker != nil {
			tickCh = e.ticker.Chan()
		}
		select {
		case <-ctx.Done():
			e.stopTicker()
			return nil
		case env := <-e.cmdCh:
			e.handle(env)
		case <-tickCh:
			e.tick()
		}
	}
}

// handle applies one command. The sequence gate runs first: anything not
// strictly newer than the last accepted command is discarded, except that a
// stale UPDATE_MODE earns an explicit STALE notice so the sender can retry
// with a fresh sequence. Skip transitions are not safely droppable.
func (e *Engine) handle(env protocol.Envelope) {
	if !e.gate.Accept(env.Seq) {
		if env.Type == protocol.TypeUpdateMode {
			e.broadcast(protocol.TypeStale, env.Seq, protocol.StalePayload{
				Type:         env.Type,
				LastAccepted: e.gate.Last(),
			})
			return
		}
		log.Debug().Str("type", string(env.Type)).Uint64("seq", env.Seq).Uint64("last_accepted", e.gate.Last()).
			Msg("dropping stale command")
		return
	}

	switch env.Type {
	case protocol.TypeInit:
		var p protocol.InitPayload
		if err := env.Decode(&p); err != nil {
			log.Error().Err(err).Msg("bad INIT payload")
			return
		}
		e.workerID = p.WorkerID
		e.broadcast(protocol.TypeInitComplete, env.Seq, e.state)

	case protocol.TypeStart:
		if e.state.IsRunning {
			log.Debug().Uint64("seq", env.Seq).Msg("START ignored, already running")
			return
		}
		var p protocol.StartPayload
		if err := env.Decode(&p); err != nil {
			log.Error().Err(err).Msg("bad START payload")
			return
		}
		// The store validates time_remaining > 0 before dispatch; the
		// engine trusts any command the gate accepted.
		e.state.TimeRemaining = p.TimeRemaining
		e.state.Mode = p.Mode
		e.state.CurrentIteration = p.CurrentIteration
		e.state.TotalIterations = p.TotalIterations
		e.state.IsRunning = true
		e.startTicker()

	case protocol.TypePause:
		if !e.state.IsRunning {
			return
		}
		e.stopTicker()
		e.state.IsRunning = false
		e.broadcast(protocol.TypePaused, env.Seq, e.state)

	case protocol.TypeReset:
		var p protocol.ResetPayload
		if err := env.Decode(&p); err != nil {
			log.Error().Err(err).Msg("bad RESET payload")
			return
		}
		e.stopTicker()
		e.state.IsRunning = false
		e.state.TimeRemaining = p.TimeRemaining
		e.state.TotalTime = p.TimeRemaining
		e.broadcast(protocol.TypeReset, env.Seq, e.state)

	case protocol.TypeUpdateMode:
		var p protocol.UpdateModePayload
		if err := env.Decode(&p); err != nil {
			log.Error().Err(err).Msg("bad UPDATE_MODE payload")
			return
		}
		// Direct overwrite: any running interval stops first so a tick
		// can never race the new state.
		e.stopTicker()
		e.state.Mode = p.Mode
		e.state.TimeRemaining = p.TimeRemaining
		e.state.TotalTime = p.TimeRemaining
		e.state.CurrentIteration = p.CurrentIteration
		e.state.TotalIterations = p.TotalIterations
		e.state.IsRunning = p.IsRunning
		if p.IsRunning {
			e.startTicker()
		}
		e.broadcast(protocol.TypeUpdateMode, env.Seq, e.state)

	case protocol.TypeUpdateSettings:
		var p protocol.SettingsPatch
		if err := env.Decode(&p); err != nil {
			log.Error().Err(err).Msg("bad UPDATE_SETTINGS payload")
			return
		}
		e.state.Settings = p.Apply(e.state.Settings)
		if p.TotalIterations != nil {
			e.state.TotalIterations = *p.TotalIterations
		}

	default:
		log.Warn().Str("type", string(env.Type)).Msg("unknown engine command, ignoring")
	}
}

// tick decrements the countdown by one second and broadcasts the result.
func (e *Engine) tick() {
	if !e.state.IsRunning {
		// A tick can already be buffered when a pause lands; the gate on
		// commands cannot help here, so the running flag is the guard.
		e.stopTicker()
		return
	}
	e.state.TimeRemaining--
	if e.state.TimeRemaining > 0 {
		e.broadcast(protocol.TypeTick, 0, e.state)
		return
	}
	e.state.TimeRemaining = 0
	e.complete()
}

// complete handles a natural countdown expiry: stop ticking, toggle the
// mode, advance the iteration once per work+break pair, and broadcast
// COMPLETE without auto-starting the next phase. The caller must issue a
// fresh START.
func (e *Engine) complete() {
	e.stopTicker()
	e.state.IsRunning = false

	completed := e.state.Mode
	e.state.Mode = completed.Toggle()
	if completed == protocol.ModeBreak {
		e.state.CurrentIteration++
	}

	practiceComplete := e.state.CurrentIteration > e.state.TotalIterations
	if !practiceComplete {
		dur := e.state.Settings.DurationSec(e.state.Mode)
		e.state.TimeRemaining = dur
		e.state.TotalTime = dur
	}

	e.broadcast(protocol.TypeComplete, 0, protocol.CompletePayload{
		State:            e.state,
		CompletedMode:    completed,
		PracticeComplete: practiceComplete,
	})

	if e.state.Settings.SoundEnabled {
		e.broadcast(protocol.TypePlaySound, 0, protocol.SoundPayload{Sound: soundFor(completed)})
	}
	if e.state.Settings.NotificationsEnabled {
		title, body := notificationFor(completed, practiceComplete)
		e.broadcast(protocol.TypeShowNotification, 0, protocol.NotificationPayload{Title: title, Body: body})
	}

	log.Info().
		Str("completed_mode", string(completed)).
		Int("iteration", e.state.CurrentIteration).
		Bool("practice_complete", practiceComplete).
		Msg("countdown completed")
}

func (e *Engine) broadcast(t protocol.MessageType, replyTo uint64, payload any) {
	env, err := protocol.NewEnvelope(t, e.seq.Next(), payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("failed to build event envelope")
		return
	}
	env.ReplyTo = replyTo
	e.emit(env)
}

func (e *Engine) startTicker() {
	e.stopTicker()
	e.ticker = e.clock.NewTicker(e.tickInterval)
}

func (e *Engine) stopTicker() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

func soundFor(completed protocol.Mode) string {
	if completed == protocol.ModeBreak {
		return "break_complete"
	}
	return "work_complete"
}

func notificationFor(completed protocol.Mode, practiceComplete bool) (title, body string) {
	switch {
	case practiceComplete:
		return "Practice complete", "Nice work. You finished every iteration."
	case completed == protocol.ModeWork:
		return "Work session complete", "Time for a break."
	default:
		return "Break over", "Back to work."
	}
}
