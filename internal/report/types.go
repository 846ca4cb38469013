package report

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jdev09/woodshed/internal/practicelog"
)

// Report is a frozen progress snapshot shared by capability token. The
// token is the only credential: anyone holding the URL can read the
// snapshot, nothing else.
type Report struct {
	ID        uuid.UUID       `json:"id"`
	Token     string          `json:"token"`
	Title     string          `json:"title"`
	Snapshot  json.RawMessage `json:"snapshot"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateReportRequest names the report and the window it covers.
type CreateReportRequest struct {
	Title  string     `json:"title"`
	PlanID *uuid.UUID `json:"plan_id,omitempty"`
	From   time.Time  `json:"from"`
	To     time.Time  `json:"to"`
}

// Snapshot is the document frozen into a report at creation time.
type Snapshot struct {
	Title       string                   `json:"title"`
	From        time.Time                `json:"from"`
	To          time.Time                `json:"to"`
	GeneratedAt time.Time                `json:"generated_at"`
	Days        []practicelog.DaySummary `json:"days"`
	Totals      SnapshotTotals           `json:"totals"`
	Plan        json.RawMessage          `json:"plan,omitempty"`
}

// SnapshotTotals sums the covered window.
type SnapshotTotals struct {
	WorkCompletions int `json:"work_completions"`
	WorkSeconds     int `json:"work_seconds"`
	FullSessions    int `json:"full_sessions"`
}
