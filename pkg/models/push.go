package models

import "encoding/json"

// Well-known push message kinds. The server may send others; they are routed
// by their literal type tag.
const (
	PushTaskCreated = "TaskCreated"
	PushTaskUpdated = "TaskUpdated"
	PushTaskDeleted = "TaskDeleted"
)

// PushMessage is a typed message received on the push channel.
type PushMessage struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// DecodePushMessage parses a push frame, keeping the full payload in Raw.
func DecodePushMessage(data []byte) (PushMessage, error) {
	var msg PushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return PushMessage{}, err
	}
	msg.Raw = append(json.RawMessage(nil), data...)
	return msg, nil
}
