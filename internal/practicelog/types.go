package practicelog

import (
	"time"

	"github.com/google/uuid"

	"github.com/jdev09/woodshed/internal/timer/protocol"
)

// Entry is one confirmed phase completion. A row with Mode == work and
// PracticeComplete == true marks the end of a full practice session.
type Entry struct {
	ID               uuid.UUID     `json:"id"`
	SessionID        uuid.UUID     `json:"session_id"`
	Mode             protocol.Mode `json:"mode"`
	Iteration        int           `json:"iteration"`
	DurationSec      int           `json:"duration_sec"`
	PracticeComplete bool          `json:"practice_complete"`
	CompletedAt      time.Time     `json:"completed_at"`
}

// DaySummary aggregates a day of logged work.
type DaySummary struct {
	Day             time.Time `json:"day"`
	WorkCompletions int       `json:"work_completions"`
	WorkSeconds     int       `json:"work_seconds"`
	FullSessions    int       `json:"full_sessions"`
}
