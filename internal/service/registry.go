package service

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

const (
	// releaseAttempts bounds the retries for putting a driver back into
	// the available pool after a terminal ride state. A driver must never
	// stay unavailable because a release was lost.
	releaseAttempts = 3

	supervisorInterval = time.Minute
)

// Registry tracks driver availability, location and heartbeat freshness.
// It is the sole authoritative writer of the availability flag; the ride
// state machine requests flips through it rather than mutating directly.
type Registry struct {
	driverRepo    repository.DriverRepository
	locationStore redis.LocationStoreInterface
	log           *logrus.Logger
	freshness     time.Duration
}

// NewRegistry creates a driver availability registry.
func NewRegistry(
	driverRepo repository.DriverRepository,
	locationStore redis.LocationStoreInterface,
	log *logrus.Logger,
	freshness time.Duration,
) *Registry {
	if freshness <= 0 {
		freshness = 5 * time.Minute
	}
	return &Registry{
		driverRepo:    driverRepo,
		locationStore: locationStore,
		log:           log,
		freshness:     freshness,
	}
}

// UpdateLocation records a driver heartbeat. Updates are last-write-wins
// on the timestamp; an out-of-order heartbeat is discarded by the store.
// A heartbeat never changes the availability flag.
func (r *Registry) UpdateLocation(ctx context.Context, driverID string, lat, lng float64, class domain.VehicleClass, at time.Time) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}
	if !validLatLng(lat, lng) {
		return ErrInvalidCoordinates
	}
	if !class.Valid() {
		return ErrInvalidVehicleClass
	}
	if at.IsZero() {
		at = time.Now()
	}

	if err := r.driverRepo.UpsertLocation(ctx, &domain.Driver{
		ID:           driverID,
		Lat:          lat,
		Lng:          lng,
		VehicleClass: class,
		Available:    false, // only used on first insert; flips go through SetAvailable
		LastSeen:     at,
	}); err != nil {
		return err
	}

	return r.locationStore.UpdateLocation(ctx, driverID, lat, lng)
}

// SetAvailable flips the driver's availability flag.
func (r *Registry) SetAvailable(ctx context.Context, driverID string, available bool) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}
	return r.driverRepo.SetAvailable(ctx, driverID, available)
}

// Reserve claims an available driver for assignment. Exactly one of any
// set of concurrent reservations for the same driver succeeds.
func (r *Registry) Reserve(ctx context.Context, driverID string) (bool, error) {
	return r.driverRepo.Reserve(ctx, driverID)
}

// Release returns a driver to the available pool after a completed or
// cancelled ride. The flip is idempotent and retried so a transient
// store failure cannot strand the driver as unavailable.
func (r *Registry) Release(ctx context.Context, driverID string) error {
	var err error
	for attempt := 1; attempt <= releaseAttempts; attempt++ {
		err = r.driverRepo.SetAvailable(ctx, driverID, true)
		if err == nil {
			return nil
		}
		r.log.WithFields(logrus.Fields{
			"driver_id": driverID,
			"attempt":   attempt,
		}).WithError(err).Warn("driver release failed, retrying")
	}
	return err
}

// FindEligible returns the IDs of available, class-matching drivers
// within radiusKm of the origin whose last heartbeat is within the
// freshness window. Ordering among eligible drivers is unspecified.
func (r *Registry) FindEligible(ctx context.Context, class domain.VehicleClass, lat, lng, radiusKm float64) ([]string, error) {
	nearby, err := r.locationStore.FindNearbyDrivers(ctx, lat, lng, radiusKm)
	if err != nil {
		return nil, err
	}
	if len(nearby) == 0 {
		return nil, nil
	}

	ids := make([]string, len(nearby))
	for i, loc := range nearby {
		ids[i] = loc.DriverID
	}

	drivers, err := r.driverRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-r.freshness)
	var eligible []string
	for _, d := range drivers {
		if !d.Available || d.VehicleClass != class || d.LastSeen.Before(cutoff) {
			continue
		}
		eligible = append(eligible, d.ID)
	}
	return eligible, nil
}

// RunSupervisor periodically flips drivers with stale heartbeats to
// unavailable and drops them from the geo index. A disconnected driver
// is taken out of the pool by this timeout, not by presence lookups.
func (r *Registry) RunSupervisor(ctx context.Context) {
	ticker := time.NewTicker(supervisorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-r.freshness)
			stale, err := r.driverRepo.MarkStale(ctx, cutoff)
			if err != nil {
				r.log.WithError(err).Warn("stale driver sweep failed")
				continue
			}
			for _, id := range stale {
				if err := r.locationStore.RemoveLocation(ctx, id); err != nil {
					r.log.WithField("driver_id", id).WithError(err).Warn("failed to drop stale driver from geo index")
				}
			}
			if len(stale) > 0 {
				r.log.WithField("count", len(stale)).Info("marked stale drivers unavailable")
			}
		}
	}
}

func validLatLng(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
