package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jdev09/woodshed/internal/timer/continuity"
	"github.com/jdev09/woodshed/internal/timer/engine"
	"github.com/jdev09/woodshed/internal/timer/protocol"
	"github.com/jdev09/woodshed/internal/timer/store"
)

// ErrSessionNotFound is returned for commands against unknown sessions.
var ErrSessionNotFound = errors.New("session not found")

// CompletionRecorder is what the manager needs from the practice log.
type CompletionRecorder interface {
	RecordCompletion(ctx context.Context, sessionID uuid.UUID, completed protocol.Mode, iteration, durationSec int, practiceComplete bool) error
}

// Command is a client action routed to a session's store.
type Command struct {
	Action        string                  `json:"action"`
	TimeRemaining *int                    `json:"time_remaining_sec,omitempty"`
	Settings      *protocol.SettingsPatch `json:"settings,omitempty"`
}

// Client command actions.
const (
	ActionStart          = "start"
	ActionPause          = "pause"
	ActionReset          = "reset"
	ActionSkip           = "skip"
	ActionUpdateSettings = "update_settings"
)

// Manager owns every live session. It is the application-root context the
// sessions hang off: construction, lookup, command routing, disposal.
type Manager struct {
	clock        clockwork.Clock
	recorder     CompletionRecorder
	defaults     protocol.Settings
	pollInterval time.Duration

	mu        sync.RWMutex
	sessions  map[uuid.UUID]*Session
	broadcast BroadcastFunc
}

// NewManager creates a manager. recorder may be nil when persistence is
// disabled; completions then only broadcast.
func NewManager(clock clockwork.Clock, recorder CompletionRecorder, defaults protocol.Settings) *Manager {
	return &Manager{
		clock:        clock,
		recorder:     recorder,
		defaults:     defaults,
		pollInterval: continuity.DefaultPollInterval,
		sessions:     make(map[uuid.UUID]*Session),
	}
}

// SetBroadcast wires the gateway's fanout. Must be called before Create.
func (m *Manager) SetBroadcast(fn BroadcastFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast = fn
}

// Create builds, starts, and registers a new session. The optional patch
// customizes the default settings.
func (m *Manager) Create(ctx context.Context, patch *protocol.SettingsPatch) (*Session, error) {
	settings := m.defaults
	if patch != nil {
		settings = patch.Apply(settings)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:        uuid.New(),
		CreatedAt: m.clock.Now(),
		events:    make(chan protocol.Envelope, 256),
		cancel:    cancel,
	}
	m.mu.RLock()
	s.broadcast = m.broadcast
	m.mu.RUnlock()

	s.engine = engine.New(m.clock, s.emit, settings)
	s.store = store.New(m.clock, s.engine.Enqueue, protocol.NewTimerState(settings),
		store.WithOnComplete(m.completionHook(s.ID)),
	)
	s.monitor = continuity.NewMonitor(m.clock, continuity.Hooks{
		Persist: m.fallbackPersist(s),
		Notify:  m.fallbackNotify(s),
	})

	if err := s.start(sctx, m.pollInterval); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	log.Info().Str("session_id", s.ID.String()).Int("work_min", settings.WorkMinutes).
		Int("break_min", settings.BreakMinutes).Int("iterations", settings.TotalIterations).
		Msg("session created")
	return s, nil
}

// Get looks up a live session.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close disposes a session and forgets it.
func (m *Manager) Close(id uuid.UUID) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		s.Close()
		log.Info().Str("session_id", id.String()).Msg("session closed")
	}
}

// CloseAll disposes every session, used at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// ApplySettings forwards a settings patch to every live session. Failures
// are logged per session; saved settings are already durable by the time
// this runs.
func (m *Manager) ApplySettings(ctx context.Context, patch protocol.SettingsPatch) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		if err := s.store.UpdateSettings(ctx, patch); err != nil {
			log.Warn().Err(err).Str("session_id", s.ID.String()).Msg("failed to apply settings to session")
		}
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// HandleCommand routes a client action to the session's store and keeps the
// continuity deadline in step with it.
func (m *Manager) HandleCommand(ctx context.Context, sessionID uuid.UUID, cmd Command) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	switch cmd.Action {
	case ActionStart:
		if err := s.store.Start(ctx); err != nil {
			return err
		}
		remaining := s.store.Snapshot().TimeRemaining
		s.monitor.Arm(time.Duration(remaining) * time.Second)
		return nil

	case ActionPause:
		s.monitor.Disarm()
		return s.store.Pause(ctx)

	case ActionReset:
		s.monitor.Disarm()
		target := s.store.Snapshot()
		remaining := target.Settings.DurationSec(target.Mode)
		if cmd.TimeRemaining != nil {
			remaining = *cmd.TimeRemaining
		}
		return s.store.Reset(ctx, remaining)

	case ActionSkip:
		s.monitor.Disarm()
		return s.store.Skip(ctx)

	case ActionUpdateSettings:
		if cmd.Settings == nil {
			return fmt.Errorf("update_settings requires a settings payload")
		}
		return s.store.UpdateSettings(ctx, *cmd.Settings)

	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
}

// completionHook records a confirmed completion. Persistence is best-effort:
// a failed write is logged and swallowed so the timer keeps functioning.
func (m *Manager) completionHook(sessionID uuid.UUID) func(protocol.CompletePayload) {
	return func(p protocol.CompletePayload) {
		if m.recorder == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		dur := p.State.Settings.DurationSec(p.CompletedMode)
		if err := m.recorder.RecordCompletion(ctx, sessionID, p.CompletedMode, p.State.CurrentIteration, dur, p.PracticeComplete); err != nil {
			log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to record completion")
		}
	}
}

// fallbackPersist is the continuity monitor's redundant completion record,
// for when the engine's COMPLETE broadcast was lost while backgrounded.
func (m *Manager) fallbackPersist(s *Session) func() error {
	return func() error {
		if m.recorder == nil {
			return nil
		}
		st := s.store.Snapshot()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.recorder.RecordCompletion(ctx, s.ID, st.Mode, st.CurrentIteration, st.Settings.DurationSec(st.Mode), false)
	}
}

// fallbackNotify pushes a notification event to clients through the same
// broadcast path the engine would have used.
func (m *Manager) fallbackNotify(s *Session) func() error {
	return func() error {
		if s.broadcast == nil {
			return nil
		}
		env, err := protocol.NewEnvelope(protocol.TypeShowNotification, 0, protocol.NotificationPayload{
			Title: "Session complete",
			Body:  "The timer finished while you were away.",
		})
		if err != nil {
			return err
		}
		s.broadcast(s.ID, env)
		return nil
	}
}
