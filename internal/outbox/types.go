package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Domain event types written to the outbox.
const (
	EventCompletionRecorded = "COMPLETION_RECORDED"
	EventReportCreated      = "REPORT_CREATED"
	EventSettingsUpdated    = "SETTINGS_UPDATED"
)

// Event is a row in the transactional outbox. SentAt is nil until the
// relay has published the event to JetStream.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}
