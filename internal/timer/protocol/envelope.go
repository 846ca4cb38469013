package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies a message crossing the store/engine boundary.
type MessageType string

// Store -> engine commands.
const (
	TypeInit           MessageType = "INIT"
	TypeStart          MessageType = "START"
	TypePause          MessageType = "PAUSE"
	TypeReset          MessageType = "RESET"
	TypeUpdateMode     MessageType = "UPDATE_MODE"
	TypeUpdateSettings MessageType = "UPDATE_SETTINGS"
)

// Engine -> store events. RESET and UPDATE_MODE reuse the command name for
// their confirmation, matching the wire vocabulary.
const (
	TypeInitComplete     MessageType = "INIT_COMPLETE"
	TypeTick             MessageType = "TICK"
	TypePaused           MessageType = "PAUSED"
	TypeComplete         MessageType = "COMPLETE"
	TypeStale            MessageType = "STALE"
	TypePlaySound        MessageType = "PLAY_SOUND"
	TypeShowNotification MessageType = "SHOW_NOTIFICATION"
)

// Envelope wraps every message with a monotonic sequence number. ReplyTo
// carries the sequence of the command an event confirms, or zero for
// unsolicited broadcasts such as ticks.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq"`
	ReplyTo uint64          `json:"reply_to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload and wraps it. A nil payload produces an
// envelope with no payload field.
func NewEnvelope(t MessageType, seq uint64, payload any) (Envelope, error) {
	env := Envelope{Type: t, Seq: seq}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Payload = data
	}
	return env, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}
