package repository

import (
	"context"
	"time"

	"dispatch/internal/domain"
)

// RideTransition describes a conditional status change for one ride.
// The update only applies while the ride still has the expected From
// status and Version; a stale snapshot makes the update a no-op, which
// is how concurrent transitions on the same ride are serialized.
type RideTransition struct {
	From    domain.RideStatus
	To      domain.RideStatus
	Version int

	// Optional fields written together with the status change.
	DriverID         string // assigned driver, when non-empty
	EstimatedArrival time.Time
	ArrivedAt        time.Time
	EndedAt          time.Time
	CancelReason     string
}

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// GetAll retrieves recent rides, newest first.
	GetAll(ctx context.Context) ([]*domain.Ride, error)

	// ApplyTransition performs the conditional status update described by t.
	// It returns false when the guard (current status + version) no longer
	// holds, i.e. a concurrent transition won.
	ApplyTransition(ctx context.Context, id string, t RideTransition) (bool, error)

	// SetRating records a rating and review on a completed ride. Returns
	// false when the ride is not completed or already rated.
	SetRating(ctx context.Context, id string, rating int, review string) (bool, error)
}
