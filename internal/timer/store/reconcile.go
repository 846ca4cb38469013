package store

import (
	"github.com/jdev09/woodshed/internal/timer/protocol"
)

// OptimisticFields are the pending-safe fields a skip applies immediately,
// before the engine confirms. Mode and CurrentIteration are deliberately
// excluded: anything keyed on them (a progress dot, a phase label) must
// change exactly once, on confirmation, not twice.
type OptimisticFields struct {
	TimeRemaining int
	TotalTime     int
	IsRunning     bool
}

// effectiveState merges committed state with any optimistic fields. This is
// what readers see while a skip is in flight.
func effectiveState(committed protocol.TimerState, pending *OptimisticFields) protocol.TimerState {
	if pending == nil {
		return committed
	}
	committed.TimeRemaining = pending.TimeRemaining
	committed.TotalTime = pending.TotalTime
	committed.IsRunning = pending.IsRunning
	return committed
}

// forwardProgress decides whether an UPDATE_MODE confirmation may be applied
// when no skip is in flight. A regressive confirmation (an old message
// arriving late) must not rewind state: a mode change always counts as
// progress; within work mode the iteration may hold or advance; within break
// mode it must hold.
func forwardProgress(current, incoming protocol.TimerState) bool {
	if incoming.Mode != current.Mode {
		return true
	}
	if incoming.Mode == protocol.ModeWork {
		return incoming.CurrentIteration >= current.CurrentIteration
	}
	return incoming.CurrentIteration == current.CurrentIteration
}

// nextPhase computes the skip target from fresh state. Skipping the final
// work session is terminal: the practice is complete and no engine message
// is sent. Skipping a break wraps the iteration to 1 after the last.
func nextPhase(st protocol.TimerState) (protocol.UpdateModePayload, bool) {
	if st.Mode == protocol.ModeWork {
		if st.CurrentIteration >= st.TotalIterations {
			return protocol.UpdateModePayload{}, true
		}
		return protocol.UpdateModePayload{
			Mode:             protocol.ModeBreak,
			TimeRemaining:    st.Settings.DurationSec(protocol.ModeBreak),
			CurrentIteration: st.CurrentIteration,
			TotalIterations:  st.TotalIterations,
			IsRunning:        false,
		}, false
	}
	return protocol.UpdateModePayload{
		Mode:             protocol.ModeWork,
		TimeRemaining:    st.Settings.DurationSec(protocol.ModeWork),
		CurrentIteration: (st.CurrentIteration % st.TotalIterations) + 1,
		TotalIterations:  st.TotalIterations,
		IsRunning:        false,
	}, false
}
