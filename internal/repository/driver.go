package repository

import (
	"context"
	"time"

	"dispatch/internal/domain"
)

// DriverRepository defines the persistence operations for drivers.
type DriverRepository interface {
	// GetByID retrieves a driver by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// GetByIDs retrieves the drivers for the given IDs; unknown IDs are
	// silently skipped.
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Driver, error)

	// UpsertLocation records a location heartbeat with last-write-wins
	// semantics: an update carrying an older timestamp than the stored
	// LastSeen is discarded.
	UpsertLocation(ctx context.Context, driver *domain.Driver) error

	// SetAvailable sets the availability flag unconditionally. The write
	// is idempotent.
	SetAvailable(ctx context.Context, id string, available bool) error

	// Reserve flips availability true -> false as a compare-and-set.
	// Returns false when the driver was not available (race lost).
	Reserve(ctx context.Context, id string) (bool, error)

	// MarkStale flips available drivers whose LastSeen is older than
	// cutoff to unavailable and returns their IDs.
	MarkStale(ctx context.Context, cutoff time.Time) ([]string, error)
}
