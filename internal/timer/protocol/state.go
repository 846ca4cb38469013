package protocol

// Mode is the current phase of a practice session.
type Mode string

const (
	ModeWork  Mode = "work"
	ModeBreak Mode = "break"
)

// Toggle returns the opposite phase.
func (m Mode) Toggle() Mode {
	if m == ModeWork {
		return ModeBreak
	}
	return ModeWork
}

// Settings holds the configurable durations and side-effect preferences.
type Settings struct {
	WorkMinutes          int  `json:"work_minutes"`
	BreakMinutes         int  `json:"break_minutes"`
	TotalIterations      int  `json:"total_iterations"`
	SoundEnabled         bool `json:"sound_enabled"`
	NotificationsEnabled bool `json:"notifications_enabled"`
}

// DefaultSettings mirrors the stock 25/5 pomodoro configuration.
func DefaultSettings() Settings {
	return Settings{
		WorkMinutes:          25,
		BreakMinutes:         5,
		TotalIterations:      4,
		SoundEnabled:         true,
		NotificationsEnabled: true,
	}
}

// DurationSec returns the configured session length in seconds for a mode.
func (s Settings) DurationSec(m Mode) int {
	if m == ModeBreak {
		return s.BreakMinutes * 60
	}
	return s.WorkMinutes * 60
}

// TimerState is the authoritative countdown state owned by the tick engine.
// The store holds a mirror copy and must never decrement TimeRemaining
// itself, only overwrite it from engine broadcasts.
type TimerState struct {
	TimeRemaining    int      `json:"time_remaining_sec"`
	TotalTime        int      `json:"total_time_sec"`
	IsRunning        bool     `json:"is_running"`
	Mode             Mode     `json:"mode"`
	CurrentIteration int      `json:"current_iteration"`
	TotalIterations  int      `json:"total_iterations"`
	Settings         Settings `json:"settings"`
}

// NewTimerState builds the initial state for a session from settings.
func NewTimerState(s Settings) TimerState {
	dur := s.DurationSec(ModeWork)
	return TimerState{
		TimeRemaining:    dur,
		TotalTime:        dur,
		IsRunning:        false,
		Mode:             ModeWork,
		CurrentIteration: 1,
		TotalIterations:  s.TotalIterations,
		Settings:         s,
	}
}

// SettingsPatch is a partial settings update. Nil fields are left untouched.
type SettingsPatch struct {
	WorkMinutes          *int  `json:"work_minutes,omitempty"`
	BreakMinutes         *int  `json:"break_minutes,omitempty"`
	TotalIterations      *int  `json:"total_iterations,omitempty"`
	SoundEnabled         *bool `json:"sound_enabled,omitempty"`
	NotificationsEnabled *bool `json:"notifications_enabled,omitempty"`
}

// Apply merges the patch into s and returns the result.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.WorkMinutes != nil {
		s.WorkMinutes = *p.WorkMinutes
	}
	if p.BreakMinutes != nil {
		s.BreakMinutes = *p.BreakMinutes
	}
	if p.TotalIterations != nil {
		s.TotalIterations = *p.TotalIterations
	}
	if p.SoundEnabled != nil {
		s.SoundEnabled = *p.SoundEnabled
	}
	if p.NotificationsEnabled != nil {
		s.NotificationsEnabled = *p.NotificationsEnabled
	}
	return s
}
