package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

const rideColumns = `
	id, rider_id, driver_id, pickup_address, pickup_lat, pickup_lng,
	destination_address, destination_lat, destination_lng, vehicle_class,
	status, version, fare_amount, fare_currency, distance_meters,
	duration_seconds, verification_code, requested_at, estimated_arrival,
	arrived_at, ended_at, cancel_reason, rating, review
`

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.RiderID,
		nullString(ride.DriverID),
		ride.Pickup.Address,
		ride.Pickup.Lat,
		ride.Pickup.Lng,
		ride.Destination.Address,
		ride.Destination.Lat,
		ride.Destination.Lng,
		ride.VehicleClass,
		ride.Status,
		ride.Version,
		ride.Fare.Amount,
		ride.Fare.Currency,
		ride.DistanceMeters,
		ride.DurationSeconds,
		ride.VerificationCode,
		ride.RequestedAt,
		nullTime(ride.EstimatedArrival),
		nullTime(ride.ArrivedAt),
		nullTime(ride.EndedAt),
		nullString(ride.CancelReason),
		nullInt(ride.Rating),
		nullString(ride.Review),
	)

	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// GetAll retrieves recent rides, newest first.
func (r *RideRepository) GetAll(ctx context.Context) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides ORDER BY requested_at DESC LIMIT 100`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// ApplyTransition performs the conditional status update. The guard on
// current status and version makes concurrent transitions on the same
// ride serialize: the loser updates zero rows.
func (r *RideRepository) ApplyTransition(ctx context.Context, id string, t repository.RideTransition) (bool, error) {
	query := `
		UPDATE rides
		SET status = $1,
		    version = version + 1,
		    driver_id = COALESCE($2, driver_id),
		    estimated_arrival = COALESCE($3, estimated_arrival),
		    arrived_at = COALESCE($4, arrived_at),
		    ended_at = COALESCE($5, ended_at),
		    cancel_reason = COALESCE($6, cancel_reason)
		WHERE id = $7 AND status = $8 AND version = $9
	`

	result, err := r.q.ExecContext(ctx, query,
		t.To,
		nullString(t.DriverID),
		nullTime(t.EstimatedArrival),
		nullTime(t.ArrivedAt),
		nullTime(t.EndedAt),
		nullString(t.CancelReason),
		id,
		t.From,
		t.Version,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// SetRating records a rating on a completed, not-yet-rated ride.
func (r *RideRepository) SetRating(ctx context.Context, id string, rating int, review string) (bool, error) {
	query := `
		UPDATE rides
		SET rating = $1, review = $2
		WHERE id = $3 AND status = $4 AND rating IS NULL
	`

	result, err := r.q.ExecContext(ctx, query, rating, nullString(review), id, domain.RideStatusCompleted)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRide(s scanner) (*domain.Ride, error) {
	var ride domain.Ride
	var driverID, cancelReason, review sql.NullString
	var estimatedArrival, arrivedAt, endedAt sql.NullTime
	var rating sql.NullInt64

	err := s.Scan(
		&ride.ID,
		&ride.RiderID,
		&driverID,
		&ride.Pickup.Address,
		&ride.Pickup.Lat,
		&ride.Pickup.Lng,
		&ride.Destination.Address,
		&ride.Destination.Lat,
		&ride.Destination.Lng,
		&ride.VehicleClass,
		&ride.Status,
		&ride.Version,
		&ride.Fare.Amount,
		&ride.Fare.Currency,
		&ride.DistanceMeters,
		&ride.DurationSeconds,
		&ride.VerificationCode,
		&ride.RequestedAt,
		&estimatedArrival,
		&arrivedAt,
		&endedAt,
		&cancelReason,
		&rating,
		&review,
	)
	if err != nil {
		return nil, err
	}

	ride.DriverID = driverID.String
	ride.CancelReason = cancelReason.String
	ride.Review = review.String
	if estimatedArrival.Valid {
		ride.EstimatedArrival = estimatedArrival.Time
	}
	if arrivedAt.Valid {
		ride.ArrivedAt = arrivedAt.Time
	}
	if endedAt.Valid {
		ride.EndedAt = endedAt.Time
	}
	ride.Rating = int(rating.Int64)

	return &ride, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}
