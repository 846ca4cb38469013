package store

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/timer/protocol"
)

// Skip advances the session to its next phase: work to break, break to the
// next work iteration, or the terminal practice-complete state from the
// final work session.
//
// The update is two-phase. TimeRemaining/TotalTime/IsRunning apply
// optimistically so the control feels immediate; Mode and CurrentIteration
// wait for the engine's confirmation so mode-keyed UI transitions exactly
// once. A 2-second fallback clears the in-flight flag if the confirmation
// never arrives, and a stale-rejected skip is retried with a fresh sequence.
func (s *Store) Skip(ctx context.Context) error {
	s.mu.Lock()
	if s.skipping {
		// Already in flight; rapid repeated calls are no-ops.
		s.mu.Unlock()
		return nil
	}
	if s.practiceComplete {
		s.mu.Unlock()
		return ErrPracticeComplete
	}
	s.skipping = true
	s.skipFallback = s.clock.AfterFunc(s.skipFallbackTimeout, s.skipFallbackFired)
	running := s.committed.IsRunning
	s.mu.Unlock()

	if running {
		// Pause first and let the channel settle so a concurrent tick
		// cannot race the state read below.
		if err := s.Pause(ctx); err != nil {
			s.clearSkip()
			return err
		}
		select {
		case <-s.clock.After(s.settleDelay):
		case <-ctx.Done():
			s.clearSkip()
			return ctx.Err()
		}
	}

	// Re-read fresh state: pausing is asynchronous and the state captured
	// at call time may be behind.
	s.mu.Lock()
	target, terminal := nextPhase(s.committed)
	if terminal {
		s.practiceComplete = true
		s.committed.IsRunning = false
		s.committed.TimeRemaining = 0
		completed := protocol.CompletePayload{
			State:            s.committed,
			CompletedMode:    protocol.ModeWork,
			PracticeComplete: true,
		}
		s.optimistic = nil
		s.clearSkipLocked()
		s.mu.Unlock()

		log.Info().Msg("skipped final work session, practice complete")
		s.notifyChange()
		if s.onComplete != nil {
			s.onComplete(completed)
		}
		return nil
	}

	env, err := protocol.NewEnvelope(protocol.TypeUpdateMode, s.seq.Next(), target)
	if err != nil {
		s.clearSkipLocked()
		s.mu.Unlock()
		return err
	}
	s.lastSkipTarget = &target
	s.optimistic = &OptimisticFields{
		TimeRemaining: target.TimeRemaining,
		TotalTime:     target.TimeRemaining,
		IsRunning:     target.IsRunning,
	}
	s.mu.Unlock()

	s.dispatch(env)
	s.notifyChange()
	return nil
}

// reconcileUpdateMode applies an UPDATE_MODE confirmation. While a skip is
// in flight the confirmation is accepted unconditionally, since the intent
// is already known; otherwise it must represent forward progress so a late
// stray confirmation cannot rewind state. The in-flight flag clears either
// way so the control never sticks.
func (s *Store) reconcileUpdateMode(env protocol.Envelope) {
	var st protocol.TimerState
	if err := env.Decode(&st); err != nil {
		log.Error().Err(err).Msg("bad UPDATE_MODE payload")
		return
	}

	s.mu.Lock()
	wasSkipping := s.skipping
	valid := wasSkipping || forwardProgress(s.committed, st)
	if valid {
		s.committed = st
		s.optimistic = nil
	}
	if wasSkipping {
		s.clearSkipLocked()
	}
	s.mu.Unlock()

	if !valid {
		log.Warn().
			Str("mode", string(st.Mode)).
			Int("iteration", st.CurrentIteration).
			Msg("rejected regressive UPDATE_MODE confirmation")
		return
	}
	s.notifyChange()
}

// retryStale handles the one message type that is not safely droppable: a
// skip's UPDATE_MODE rejected by the engine's sequence gate is regenerated
// with a fresh sequence and resent.
func (s *Store) retryStale(env protocol.Envelope) {
	var p protocol.StalePayload
	if err := env.Decode(&p); err != nil {
		log.Error().Err(err).Msg("bad STALE payload")
		return
	}
	if p.Type != protocol.TypeUpdateMode {
		return
	}

	s.mu.Lock()
	if !s.skipping || s.lastSkipTarget == nil {
		s.mu.Unlock()
		return
	}
	retry, err := protocol.NewEnvelope(protocol.TypeUpdateMode, s.seq.Next(), *s.lastSkipTarget)
	s.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Msg("failed to rebuild stale skip message")
		return
	}

	log.Debug().Uint64("seq", retry.Seq).Uint64("stale_seq", env.ReplyTo).Msg("retrying stale skip with fresh sequence")
	s.dispatch(retry)
}

func (s *Store) skipFallbackFired() {
	s.mu.Lock()
	if !s.skipping {
		s.mu.Unlock()
		return
	}
	s.skipping = false
	s.skipFallback = nil
	s.lastSkipTarget = nil
	// Roll back the optimistic fields; the engine never confirmed them.
	s.optimistic = nil
	s.mu.Unlock()

	log.Warn().Msg("skip confirmation never arrived, cleared in-flight flag")
	s.notifyChange()
}

func (s *Store) clearSkip() {
	s.mu.Lock()
	s.clearSkipLocked()
	s.mu.Unlock()
}

func (s *Store) clearSkipLocked() {
	s.skipping = false
	s.lastSkipTarget = nil
	if s.skipFallback != nil {
		s.skipFallback.Stop()
		s.skipFallback = nil
	}
}
