package service

import (
	"errors"
	"fmt"

	"dispatch/internal/domain"
)

var (
	// ErrInvalidInput is returned for malformed coordinates or fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidRiderID is returned when rider ID is empty.
	ErrInvalidRiderID = errors.New("invalid rider id")

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidRideID is returned when ride ID is empty.
	ErrInvalidRideID = errors.New("invalid ride id")

	// ErrInvalidVehicleClass is returned for an unknown vehicle class.
	ErrInvalidVehicleClass = errors.New("invalid vehicle class")

	// ErrInvalidCoordinates is returned when coordinates are not finite
	// numbers within valid latitude/longitude ranges.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrInvalidRating is returned when a rating is outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrNotFound is returned when no such ride exists.
	ErrNotFound = errors.New("ride not found")

	// ErrForbidden is returned when the actor lacks permission for the
	// requested transition.
	ErrForbidden = errors.New("actor not permitted for this transition")

	// ErrInvalidCode is returned when the supplied verification code does
	// not exactly match the ride's stored code.
	ErrInvalidCode = errors.New("verification code mismatch")

	// ErrInvalidState is returned when the ride is no longer in the state
	// an operation expects, including a transition lost to a concurrent
	// caller. An accept that finds the ride already ACCEPTED surfaces
	// this way.
	ErrInvalidState = errors.New("ride not in expected state")

	// ErrDriverUnavailable is returned when the driver lost the
	// availability race on accept.
	ErrDriverUnavailable = errors.New("driver not available")

	// ErrServiceUnavailable is returned when a downstream provider
	// exhausted its retries and no fallback exists.
	ErrServiceUnavailable = errors.New("downstream service unavailable")
)

// InvalidTransitionError reports an illegal ride status transition,
// carrying both the attempted and the current state.
type InvalidTransitionError struct {
	From domain.RideStatus
	To   domain.RideStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
