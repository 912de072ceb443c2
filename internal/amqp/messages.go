package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"remesas/internal/core"
)

// EventStatusChanged names the only event the service emits.
const EventStatusChanged = "remesa.status_changed"

// StatusChangedMessage carries a remesa status change. The worker reloads
// the remesa from the store, so the message stays small.
type StatusChangedMessage struct {
	Event string `json:"event"`
	core.StatusChange
	Timestamp time.Time `json:"timestamp"`
}

// NewStatusChangedMessage wraps a status change for publishing.
func NewStatusChangedMessage(ev core.StatusChange) *StatusChangedMessage {
	return &StatusChangedMessage{
		Event:        EventStatusChanged,
		StatusChange: ev,
		Timestamp:    time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *StatusChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// StatusChangedMessageFromJSON decodes a message and checks it names a remesa.
func StatusChangedMessageFromJSON(data []byte) (*StatusChangedMessage, error) {
	var msg StatusChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Event != "" && msg.Event != EventStatusChanged {
		return nil, errors.New("unexpected event " + msg.Event)
	}
	if msg.RemesaID == "" {
		return nil, errors.New("message without remesa_id")
	}
	return &msg, nil
}
