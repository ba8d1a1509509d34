package service

import (
	"time"

	"github.com/sirupsen/logrus"

	"dispatch/internal/domain"
)

// EventType identifies a ride state-change event.
type EventType string

const (
	EventRideRequested      EventType = "RIDE_REQUESTED"
	EventRideAccepted       EventType = "RIDE_ACCEPTED"
	EventRideEnRoute        EventType = "RIDE_EN_ROUTE"
	EventRideStarted        EventType = "RIDE_STARTED"
	EventRideCompleted      EventType = "RIDE_COMPLETED"
	EventRideCancelled      EventType = "RIDE_CANCELLED"
	EventNoDriversAvailable EventType = "NO_DRIVERS_AVAILABLE"
)

// Event is one notification delivered to a subscriber's channel.
type Event struct {
	Type      EventType      `json:"type"`
	RideID    string         `json:"ride_id"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Pusher delivers an event to one recipient's channel. Implementations
// must preserve per-recipient ordering for pushes made from a single
// goroutine and must not block the caller on a slow recipient.
type Pusher interface {
	Push(recipientID string, event Event) error
}

// Fanout delivers ride state-change events to the interested parties.
// Delivery is at-most-once per subscriber per event; a failing recipient
// never blocks or fails delivery to the others.
type Fanout struct {
	pusher Pusher
	log    *logrus.Logger
}

// NewFanout creates a notification fanout.
func NewFanout(pusher Pusher, log *logrus.Logger) *Fanout {
	return &Fanout{pusher: pusher, log: log}
}

// RideRequested notifies every eligible driver about a new request. With
// zero eligible drivers the rider receives a NO_DRIVERS_AVAILABLE notice
// instead.
func (f *Fanout) RideRequested(ride *domain.Ride, eligibleDriverIDs []string) {
	if len(eligibleDriverIDs) == 0 {
		f.deliver(ride.RiderID, Event{
			Type:      EventNoDriversAvailable,
			RideID:    ride.ID,
			CreatedAt: time.Now(),
		})
		return
	}

	event := Event{
		Type:   EventRideRequested,
		RideID: ride.ID,
		Data: map[string]any{
			"pickup_lat":    ride.Pickup.Lat,
			"pickup_lng":    ride.Pickup.Lng,
			"vehicle_class": ride.VehicleClass,
			"fare_amount":   ride.Fare.Amount,
		},
		CreatedAt: time.Now(),
	}
	for _, driverID := range eligibleDriverIDs {
		f.deliver(driverID, event)
	}
	f.deliver(ride.RiderID, event)
}

// StateChanged notifies the rider and, when assigned, the driver about a
// ride transition.
func (f *Fanout) StateChanged(ride *domain.Ride, eventType EventType) {
	event := Event{
		Type:   eventType,
		RideID: ride.ID,
		Data: map[string]any{
			"status": ride.Status,
		},
		CreatedAt: time.Now(),
	}
	if ride.DriverID != "" {
		event.Data["driver_id"] = ride.DriverID
	}
	if ride.CancelReason != "" {
		event.Data["reason"] = ride.CancelReason
	}

	f.deliver(ride.RiderID, event)
	if ride.DriverID != "" {
		f.deliver(ride.DriverID, event)
	}
}

func (f *Fanout) deliver(recipientID string, event Event) {
	if err := f.pusher.Push(recipientID, event); err != nil {
		f.log.WithFields(logrus.Fields{
			"recipient": recipientID,
			"event":     event.Type,
			"ride_id":   event.RideID,
		}).WithError(err).Warn("notification delivery failed")
	}
}
