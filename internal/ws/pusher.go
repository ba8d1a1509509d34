package ws

import (
	"encoding/json"

	"dispatch/internal/service"
)

// EventPusher adapts the hub to the service.Pusher interface by
// serializing events as JSON text frames.
type EventPusher struct {
	hub *Hub
}

func NewEventPusher(hub *Hub) *EventPusher {
	return &EventPusher{hub: hub}
}

func (p *EventPusher) Push(recipientID string, event service.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.hub.Push(recipientID, payload)
}

var _ service.Pusher = (*EventPusher)(nil)
