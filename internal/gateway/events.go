package gateway

import (
	"encoding/json"
	"time"

	"github.com/jdev09/woodshed/internal/timer/protocol"
)

// WireEvent is the frame sent to WebSocket clients: the sequenced engine
// envelope plus routing metadata. Clients run the same sequence gate on it.
type WireEvent struct {
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Envelope  protocol.Envelope `json:"envelope"`
}

// RelayEvent is the envelope published to and consumed from JetStream for
// cross-device fanout of persisted domain events.
type RelayEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}
