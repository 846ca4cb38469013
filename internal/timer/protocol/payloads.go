package protocol

// Command payloads (store -> engine).

// InitPayload identifies the engine instance being initialized.
type InitPayload struct {
	WorkerID string `json:"worker_id"`
}

// StartPayload begins the 1-second tick loop from the supplied state.
type StartPayload struct {
	TimeRemaining    int  `json:"time_remaining_sec"`
	Mode             Mode `json:"mode"`
	CurrentIteration int  `json:"current_iteration"`
	TotalIterations  int  `json:"total_iterations"`
}

// ResetPayload force-sets the remaining time and stops ticking.
type ResetPayload struct {
	TimeRemaining int `json:"time_remaining_sec"`
}

// UpdateModePayload is a direct state overwrite, used for skip transitions.
type UpdateModePayload struct {
	Mode             Mode `json:"mode"`
	TimeRemaining    int  `json:"time_remaining_sec"`
	CurrentIteration int  `json:"current_iteration"`
	TotalIterations  int  `json:"total_iterations"`
	IsRunning        bool `json:"is_running"`
}

// Event payloads (engine -> store). TICK, PAUSED, RESET, UPDATE_MODE and
// INIT_COMPLETE carry a full TimerState.

// CompletePayload is broadcast when a countdown reaches zero. The state
// already reflects the next phase; the engine does not auto-start it.
type CompletePayload struct {
	State            TimerState `json:"state"`
	CompletedMode    Mode       `json:"completed_mode"`
	PracticeComplete bool       `json:"practice_complete"`
}

// StalePayload tells the sender its command lost the sequence race. Only
// UPDATE_MODE earns an explicit stale notice; other stale commands are
// dropped silently because a newer message supersedes them anyway.
type StalePayload struct {
	Type         MessageType `json:"type"`
	LastAccepted uint64      `json:"last_accepted"`
}

// SoundPayload asks the client to synthesize a completion sound.
type SoundPayload struct {
	Sound string `json:"sound"`
}

// NotificationPayload asks the client to show a browser notification.
type NotificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}
