package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const geoIndexKey = "dispatch:drivers:geo"

// DriverLocation is a driver's last reported position, with its
// distance from the query point when returned from a radius search.
type DriverLocation struct {
	DriverID   string
	Lat        float64
	Lng        float64
	DistanceKm float64
}

// LocationStore maintains the driver geo index as a single Redis geo
// set. Positions are written on every heartbeat and removed when a
// driver goes stale.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation upserts a driver's position in the geo index.
func (s *LocationStore) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	err := s.client.GeoAdd(ctx, geoIndexKey, &redis.GeoLocation{
		Name:      driverID,
		Latitude:  lat,
		Longitude: lng,
	}).Err()
	if err != nil {
		return fmt.Errorf("geoadd %s: %w", driverID, err)
	}
	return nil
}

// FindNearbyDrivers returns drivers within radiusKm of the given point,
// nearest first.
func (s *LocationStore) FindNearbyDrivers(ctx context.Context, lat, lng, radiusKm float64) ([]DriverLocation, error) {
	results, err := s.client.GeoSearchLocation(ctx, geoIndexKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Latitude:   lat,
			Longitude:  lng,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}

	locations := make([]DriverLocation, 0, len(results))
	for _, r := range results {
		locations = append(locations, DriverLocation{
			DriverID:   r.Name,
			Lat:        r.Latitude,
			Lng:        r.Longitude,
			DistanceKm: r.Dist,
		})
	}
	return locations, nil
}

// RemoveLocation drops a driver from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	if err := s.client.ZRem(ctx, geoIndexKey, driverID).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", driverID, err)
	}
	return nil
}
