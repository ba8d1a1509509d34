package tests

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/maps"
	"dispatch/internal/service"
)

// stubProvider returns a fixed route and counts calls.
type stubProvider struct {
	calls int32
	route maps.RouteResult
}

func (p *stubProvider) Directions(ctx context.Context, origin, destination maps.LatLng) (maps.RouteResult, error) {
	atomic.AddInt32(&p.calls, 1)
	return p.route, nil
}

func (p *stubProvider) Geocode(ctx context.Context, address string) (maps.GeocodeResult, error) {
	return maps.GeocodeResult{Lat: 12.97, Lng: 77.59, NormalizedAddress: address}, nil
}

func (p *stubProvider) Autocomplete(ctx context.Context, prefix string) ([]maps.Suggestion, error) {
	return nil, nil
}

type dispatchFixture struct {
	rideRepo   *MockRideRepository
	driverRepo *MockDriverRepository
	locations  *MockLocationStore
	pusher     *MockPusher
	cache      *MockCache
	provider   *stubProvider
	dispatch   *service.DispatchService
}

func newDispatchFixture() *dispatchFixture {
	log := newTestLogger()
	f := &dispatchFixture{
		rideRepo:   NewMockRideRepository(),
		driverRepo: NewMockDriverRepository(),
		locations:  NewMockLocationStore(),
		pusher:     NewMockPusher(),
		cache:      NewMockCache(),
		provider:   &stubProvider{route: maps.RouteResult{DistanceMeters: 5000, DurationSeconds: 600}},
	}
	registry := service.NewRegistry(f.driverRepo, f.locations, log, 5*time.Minute)
	fanout := service.NewFanout(f.pusher, log)
	geo := maps.NewClient(f.provider, f.cache, log, time.Second, 3)
	rides := service.NewRideService(f.rideRepo, registry, fanout, NewMockLockStore(), log, 10*time.Minute)
	f.dispatch = service.NewDispatchService(rides, registry, fanout, geo, f.cache, log, 90*time.Second, 5.0)
	return f
}

func (f *dispatchFixture) addEligibleDriver(id string) {
	f.driverRepo.AddDriver(&domain.Driver{
		ID:           id,
		Lat:          12.97,
		Lng:          77.59,
		VehicleClass: domain.VehicleClassEconomy,
		Available:    true,
		LastSeen:     time.Now(),
	})
	_ = f.locations.UpdateLocation(context.Background(), id, 12.97, 77.59)
}

func validRequest() service.RideRequest {
	return service.RideRequest{
		RiderID:      "rider-1",
		Pickup:       domain.Location{Lat: 12.97, Lng: 77.59},
		Destination:  domain.Location{Lat: 12.93, Lng: 77.62},
		VehicleClass: domain.VehicleClassEconomy,
	}
}

func TestRequestRide_HappyPath(t *testing.T) {
	f := newDispatchFixture()
	f.addEligibleDriver("driver-1")
	f.addEligibleDriver("driver-2")

	result, err := f.dispatch.RequestRide(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if result.Ride.Status != domain.RideStatusRequested {
		t.Errorf("expected REQUESTED, got %s", result.Ride.Status)
	}
	if result.NotifiedDrivers != 2 {
		t.Errorf("expected 2 notified drivers, got %d", result.NotifiedDrivers)
	}
	if result.Ride.Fare.Amount == 0 {
		t.Error("expected fare to be quoted")
	}

	for _, id := range []string{"driver-1", "driver-2"} {
		events := f.pusher.EventsFor(id)
		if len(events) != 1 || events[0].Type != service.EventRideRequested {
			t.Errorf("%s: expected RIDE_REQUESTED, got %v", id, events)
		}
	}
}

func TestRequestRide_InvalidClassCreatesNothing(t *testing.T) {
	f := newDispatchFixture()

	req := validRequest()
	req.VehicleClass = "HELICOPTER"

	if _, err := f.dispatch.RequestRide(context.Background(), req); err != service.ErrInvalidVehicleClass {
		t.Errorf("expected ErrInvalidVehicleClass, got %v", err)
	}
	if count := atomic.LoadInt32(&f.rideRepo.CreateCallCount); count != 0 {
		t.Errorf("no ride should be created on invalid input, got %d creates", count)
	}
}

func TestRequestRide_InvalidCoordinatesCreatesNothing(t *testing.T) {
	f := newDispatchFixture()

	req := validRequest()
	req.Pickup.Lat = 95.0

	if _, err := f.dispatch.RequestRide(context.Background(), req); err != service.ErrInvalidCoordinates {
		t.Errorf("expected ErrInvalidCoordinates, got %v", err)
	}
	if count := atomic.LoadInt32(&f.rideRepo.CreateCallCount); count != 0 {
		t.Errorf("no ride should be created on invalid input, got %d creates", count)
	}
	if count := atomic.LoadInt32(&f.provider.calls); count != 0 {
		t.Errorf("provider should not be called on invalid input, got %d calls", count)
	}
}

func TestRequestRide_NoEligibleDriversStillCreatesRide(t *testing.T) {
	f := newDispatchFixture()

	result, err := f.dispatch.RequestRide(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if result.NotifiedDrivers != 0 {
		t.Errorf("expected 0 notified drivers, got %d", result.NotifiedDrivers)
	}
	if f.rideRepo.GetRide(result.Ride.ID) == nil {
		t.Error("ride should exist even with no drivers around")
	}

	events := f.pusher.EventsFor("rider-1")
	if len(events) != 1 || events[0].Type != service.EventNoDriversAvailable {
		t.Errorf("expected NO_DRIVERS_AVAILABLE for rider, got %v", events)
	}
}

func TestGetFareQuote_UsesCacheOnRepeat(t *testing.T) {
	f := newDispatchFixture()
	ctx := context.Background()

	pickup := domain.Location{Lat: 12.97, Lng: 77.59}
	destination := domain.Location{Lat: 12.93, Lng: 77.62}

	first, err := f.dispatch.GetFareQuote(ctx, pickup, destination)
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	second, err := f.dispatch.GetFareQuote(ctx, pickup, destination)
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}

	if calls := atomic.LoadInt32(&f.provider.calls); calls != 1 {
		t.Errorf("expected a single provider call, got %d", calls)
	}
	for _, class := range domain.VehicleClasses {
		if first.PerClass[class] != second.PerClass[class] {
			t.Errorf("%s: cached quote differs: %d vs %d", class, first.PerClass[class], second.PerClass[class])
		}
	}
}

func TestGetFareQuote_AllClassesQuoted(t *testing.T) {
	f := newDispatchFixture()

	quote, err := f.dispatch.GetFareQuote(context.Background(),
		domain.Location{Lat: 12.97, Lng: 77.59},
		domain.Location{Lat: 12.93, Lng: 77.62})
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}

	for _, class := range domain.VehicleClasses {
		if quote.PerClass[class] <= 0 {
			t.Errorf("%s: expected positive fare, got %d", class, quote.PerClass[class])
		}
	}
	if quote.Currency != "USD" {
		t.Errorf("expected USD, got %s", quote.Currency)
	}
}
