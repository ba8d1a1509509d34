package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

// NewDriverRepositoryWithTx creates a driver repository using a transaction.
func NewDriverRepositoryWithTx(tx *sql.Tx) *DriverRepository {
	return &DriverRepository{q: tx}
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	query := `
		SELECT id, lat, lng, vehicle_class, is_available, last_seen
		FROM drivers WHERE id = $1
	`

	var d domain.Driver
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.Lat, &d.Lng, &d.VehicleClass, &d.Available, &d.LastSeen,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// GetByIDs retrieves the drivers for the given IDs.
func (r *DriverRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Driver, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, lat, lng, vehicle_class, is_available, last_seen
		FROM drivers WHERE id = ANY($1)
	`

	rows, err := r.q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		var d domain.Driver
		if err := rows.Scan(&d.ID, &d.Lat, &d.Lng, &d.VehicleClass, &d.Available, &d.LastSeen); err != nil {
			return nil, err
		}
		drivers = append(drivers, &d)
	}
	return drivers, rows.Err()
}

// UpsertLocation records a heartbeat. The WHERE guard on the update arm
// drops out-of-order heartbeats: only the newest timestamp wins.
func (r *DriverRepository) UpsertLocation(ctx context.Context, driver *domain.Driver) error {
	query := `
		INSERT INTO drivers (id, lat, lng, vehicle_class, is_available, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET lat = EXCLUDED.lat,
		    lng = EXCLUDED.lng,
		    vehicle_class = EXCLUDED.vehicle_class,
		    last_seen = EXCLUDED.last_seen
		WHERE drivers.last_seen < EXCLUDED.last_seen
	`

	_, err := r.q.ExecContext(ctx, query,
		driver.ID, driver.Lat, driver.Lng, driver.VehicleClass, driver.Available, driver.LastSeen,
	)
	return err
}

// SetAvailable sets the availability flag. Idempotent.
func (r *DriverRepository) SetAvailable(ctx context.Context, id string, available bool) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE drivers SET is_available = $1 WHERE id = $2`, available, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Reserve flips availability true -> false as a compare-and-set.
func (r *DriverRepository) Reserve(ctx context.Context, id string) (bool, error) {
	result, err := r.q.ExecContext(ctx,
		`UPDATE drivers SET is_available = false WHERE id = $1 AND is_available = true`, id)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkStale flips available drivers with heartbeats older than cutoff to
// unavailable and returns their IDs.
func (r *DriverRepository) MarkStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		UPDATE drivers SET is_available = false
		WHERE is_available = true AND last_seen < $1
		RETURNING id
	`

	rows, err := r.q.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
