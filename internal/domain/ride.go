package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusRequested  RideStatus = "REQUESTED"
	RideStatusAccepted   RideStatus = "ACCEPTED"
	RideStatusOnTheWay   RideStatus = "ON_THE_WAY"
	RideStatusInProgress RideStatus = "IN_PROGRESS"
	RideStatusCompleted  RideStatus = "COMPLETED"
	RideStatusCancelled  RideStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s RideStatus) Terminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// VehicleClass represents the category of vehicle a ride requests.
type VehicleClass string

const (
	VehicleClassEconomy  VehicleClass = "ECONOMY"
	VehicleClassStandard VehicleClass = "STANDARD"
	VehicleClassPremium  VehicleClass = "PREMIUM"
)

// VehicleClasses lists all valid classes in fare-table order.
var VehicleClasses = []VehicleClass{VehicleClassEconomy, VehicleClassStandard, VehicleClassPremium}

// Valid reports whether c is a known vehicle class.
func (c VehicleClass) Valid() bool {
	switch c {
	case VehicleClassEconomy, VehicleClassStandard, VehicleClassPremium:
		return true
	}
	return false
}

// Location is an address paired with its coordinates.
type Location struct {
	Address string
	Lat     float64
	Lng     float64
}

// Fare is a monetary amount in whole currency units.
type Fare struct {
	Amount   int64
	Currency string
}

// Ride represents one trip request from creation to a terminal outcome.
// Rides are never deleted; terminal rides are retained for history.
type Ride struct {
	ID               string
	RiderID          string
	DriverID         string // empty until accepted
	Pickup           Location
	Destination      Location
	VehicleClass     VehicleClass
	Status           RideStatus
	Version          int // bumped on every status transition
	Fare             Fare
	DistanceMeters   float64
	DurationSeconds  float64
	VerificationCode string // 6 decimal digits, set at creation, immutable
	RequestedAt      time.Time
	EstimatedArrival time.Time
	ArrivedAt        time.Time
	EndedAt          time.Time
	CancelReason     string
	Rating           int // 1..5, zero until rated
	Review           string
}
