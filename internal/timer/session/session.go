package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/timer/continuity"
	"github.com/jdev09/woodshed/internal/timer/engine"
	"github.com/jdev09/woodshed/internal/timer/protocol"
	"github.com/jdev09/woodshed/internal/timer/store"
)

// BroadcastFunc fans an engine event out to connected clients.
type BroadcastFunc func(sessionID uuid.UUID, env protocol.Envelope)

// Session is one live practice session: an engine actor, its reconciliation
// store, and the wall-clock continuity monitor. Sessions are constructed
// explicitly and disposed with Close; there are no package-level singletons.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	engine  *engine.Engine
	store   *store.Store
	monitor *continuity.Monitor

	events    chan protocol.Envelope
	broadcast BroadcastFunc
	cancel    context.CancelFunc
}

// Snapshot is the client-facing view of a session.
type Snapshot struct {
	SessionID        string              `json:"session_id"`
	State            protocol.TimerState `json:"state"`
	Skipping         bool                `json:"skipping"`
	PracticeComplete bool                `json:"practice_complete"`
	// WallClockRemaining is the continuity estimator's independent view,
	// zero when no deadline is armed. Clients reconcile against it after
	// suspension.
	WallClockRemaining int       `json:"wall_clock_remaining_sec"`
	CreatedAt          time.Time `json:"created_at"`
}

// Snapshot returns the current effective view of the session.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		SessionID:          s.ID.String(),
		State:              s.store.Snapshot(),
		Skipping:           s.store.Skipping(),
		PracticeComplete:   s.store.PracticeComplete(),
		WallClockRemaining: s.monitor.Remaining(),
		CreatedAt:          s.CreatedAt,
	}
}

// Store exposes the reconciliation store for command handling.
func (s *Session) Store() *store.Store { return s.store }

// Monitor exposes the continuity monitor for arm/disarm on commands.
func (s *Session) Monitor() *continuity.Monitor { return s.monitor }

// Close tears the session down: engine, sweeper, monitor, and fanout all
// stop. State is tab-scoped and vanishes with the session.
func (s *Session) Close() {
	s.cancel()
}

// start spins up the engine actor, the pending sweeper, the background
// poller, and the event fanout, then performs the INIT handshake.
func (s *Session) start(ctx context.Context, pollInterval time.Duration) error {
	go func() {
		if err := s.engine.Run(ctx); err != nil {
			log.Error().Err(err).Str("session_id", s.ID.String()).Msg("engine stopped with error")
		}
	}()
	go s.store.Run(ctx)
	go s.monitor.Run(ctx, pollInterval)
	go s.fanout(ctx)

	if err := s.store.Init(ctx); err != nil {
		s.cancel()
		return err
	}
	return nil
}

// fanout delivers engine events to the store first, then to connected
// clients. A COMPLETE disarms the continuity deadline: the primary path won,
// the fallback is no longer needed.
func (s *Session) fanout(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.events:
			s.store.HandleEvent(env)
			if env.Type == protocol.TypeComplete {
				s.monitor.Disarm()
			}
			if s.broadcast != nil {
				s.broadcast(s.ID, env)
			}
		}
	}
}

// emit is the engine's event sink. It must not block the engine actor; if a
// session's fanout is wedged the event is dropped and the client recovers
// from the next state broadcast.
func (s *Session) emit(env protocol.Envelope) {
	select {
	case s.events <- env:
	default:
		log.Warn().Str("session_id", s.ID.String()).Str("type", string(env.Type)).Msg("session event buffer full, dropping")
	}
}
