package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dispatch/internal/domain"
	"dispatch/internal/maps"
	"dispatch/internal/redis"
)

const (
	defaultQuoteTTL       = 90 * time.Second
	defaultSearchRadiusKm = 5.0
)

// RideRequest carries everything needed to dispatch a new ride.
type RideRequest struct {
	RiderID      string
	Pickup       domain.Location
	Destination  domain.Location
	VehicleClass domain.VehicleClass
}

// DispatchResult is what the rider gets back after a successful dispatch.
type DispatchResult struct {
	Ride            *domain.Ride
	NotifiedDrivers int
}

// DispatchService coordinates a ride request end to end: validate,
// route, quote, persist, find eligible drivers and fan the request out.
// Validation and quoting happen before the ride exists, so a rejected
// request leaves no trace.
type DispatchService struct {
	rides      *RideService
	registry   *Registry
	fanout     *Fanout
	geo        *maps.Client
	quoteCache redis.CacheInterface
	log        *logrus.Logger
	quoteTTL   time.Duration
	radiusKm   float64
}

func NewDispatchService(
	rides *RideService,
	registry *Registry,
	fanout *Fanout,
	geo *maps.Client,
	quoteCache redis.CacheInterface,
	log *logrus.Logger,
	quoteTTL time.Duration,
	searchRadiusKm float64,
) *DispatchService {
	if quoteTTL <= 0 {
		quoteTTL = defaultQuoteTTL
	}
	if searchRadiusKm <= 0 {
		searchRadiusKm = defaultSearchRadiusKm
	}
	return &DispatchService{
		rides:      rides,
		registry:   registry,
		fanout:     fanout,
		geo:        geo,
		quoteCache: quoteCache,
		log:        log,
		quoteTTL:   quoteTTL,
		radiusKm:   searchRadiusKm,
	}
}

// RequestRide runs the full dispatch pipeline. Fanout failures are
// logged but never fail the request: the ride is already durable.
func (s *DispatchService) RequestRide(ctx context.Context, req RideRequest) (*DispatchResult, error) {
	if req.RiderID == "" {
		return nil, ErrInvalidRiderID
	}
	if !req.VehicleClass.Valid() {
		return nil, ErrInvalidVehicleClass
	}
	if !validLatLng(req.Pickup.Lat, req.Pickup.Lng) || !validLatLng(req.Destination.Lat, req.Destination.Lng) {
		return nil, ErrInvalidCoordinates
	}

	quote, err := s.quote(ctx, req.Pickup, req.Destination)
	if err != nil {
		return nil, err
	}

	ride, err := s.rides.Create(ctx, req.RiderID, req.Pickup, req.Destination, req.VehicleClass, *quote)
	if err != nil {
		return nil, err
	}

	driverIDs, err := s.registry.FindEligible(ctx, req.VehicleClass, req.Pickup.Lat, req.Pickup.Lng, s.radiusKm)
	if err != nil {
		s.log.WithField("ride_id", ride.ID).WithError(err).Warn("driver search failed, ride created without candidates")
		driverIDs = nil
	}
	s.fanout.RideRequested(ride, driverIDs)

	return &DispatchResult{Ride: ride, NotifiedDrivers: len(driverIDs)}, nil
}

// GetFareQuote estimates the fare for every vehicle class between two
// points without creating a ride.
func (s *DispatchService) GetFareQuote(ctx context.Context, pickup, destination domain.Location) (*FareQuote, error) {
	if !validLatLng(pickup.Lat, pickup.Lng) || !validLatLng(destination.Lat, destination.Lng) {
		return nil, ErrInvalidCoordinates
	}
	return s.quote(ctx, pickup, destination)
}

func (s *DispatchService) quote(ctx context.Context, pickup, destination domain.Location) (*FareQuote, error) {
	key := quoteKey(pickup, destination)
	if s.quoteCache != nil {
		if data, err := s.quoteCache.Get(ctx, key); err == nil && data != nil {
			var cached FareQuote
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	route, err := s.geo.Route(ctx,
		maps.LatLng{Lat: pickup.Lat, Lng: pickup.Lng},
		maps.LatLng{Lat: destination.Lat, Lng: destination.Lng},
	)
	if err != nil {
		if errors.Is(err, maps.ErrInvalidInput) {
			return nil, ErrInvalidCoordinates
		}
		return nil, ErrServiceUnavailable
	}

	quote := QuoteFares(route.DistanceMeters, route.DurationSeconds, time.Now())

	if s.quoteCache != nil {
		if data, err := json.Marshal(quote); err == nil {
			if err := s.quoteCache.Set(ctx, key, data, s.quoteTTL); err != nil {
				s.log.WithError(err).Warn("failed to cache fare quote")
			}
		}
	}
	return &quote, nil
}

func quoteKey(pickup, destination domain.Location) string {
	return fmt.Sprintf("fare:quote:%.5f,%.5f:%.5f,%.5f",
		pickup.Lat, pickup.Lng, destination.Lat, destination.Lng)
}
