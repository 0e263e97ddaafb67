package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventAdminProvisioned EventType = "admin.provisioned"
	EventGymCreated       EventType = "gym.created"
	EventMFAEnabled       EventType = "mfa.enabled"
	EventMFADisabled      EventType = "mfa.disabled"
	EventPasswordChanged  EventType = "password.changed"
)

// Event is an outbound notification. Data must never carry credentials.
type Event struct {
	Type       EventType         `json:"type"`
	Recipient  string            `json:"recipient"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

func (e Event) values() (map[string]any, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return map[string]any{
		"type":    string(e.Type),
		"payload": string(payload),
	}, nil
}

// DecodeEvent reads an event from stream message values.
func DecodeEvent(values map[string]interface{}) (Event, error) {
	raw, ok := values["payload"].(string)
	if !ok {
		return Event{}, fmt.Errorf("message has no payload")
	}
	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if event.Type == "" {
		return Event{}, fmt.Errorf("event has no type")
	}
	return event, nil
}
