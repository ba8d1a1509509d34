package tests

import (
	"context"
	"testing"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

func newRegistryFixture() (*service.Registry, *MockDriverRepository, *MockLocationStore) {
	driverRepo := NewMockDriverRepository()
	locations := NewMockLocationStore()
	registry := service.NewRegistry(driverRepo, locations, newTestLogger(), 5*time.Minute)
	return registry, driverRepo, locations
}

func TestUpdateLocation_Validation(t *testing.T) {
	registry, _, _ := newRegistryFixture()
	ctx := context.Background()
	now := time.Now()

	if err := registry.UpdateLocation(ctx, "", 12.0, 77.0, domain.VehicleClassEconomy, now); err != service.ErrInvalidDriverID {
		t.Errorf("expected ErrInvalidDriverID, got %v", err)
	}
	if err := registry.UpdateLocation(ctx, "driver-1", 91.0, 77.0, domain.VehicleClassEconomy, now); err != service.ErrInvalidCoordinates {
		t.Errorf("expected ErrInvalidCoordinates for lat 91, got %v", err)
	}
	if err := registry.UpdateLocation(ctx, "driver-1", 12.0, -181.0, domain.VehicleClassEconomy, now); err != service.ErrInvalidCoordinates {
		t.Errorf("expected ErrInvalidCoordinates for lng -181, got %v", err)
	}
	if err := registry.UpdateLocation(ctx, "driver-1", 12.0, 77.0, "BICYCLE", now); err != service.ErrInvalidVehicleClass {
		t.Errorf("expected ErrInvalidVehicleClass, got %v", err)
	}
}

func TestUpdateLocation_LastWriteWins(t *testing.T) {
	registry, driverRepo, _ := newRegistryFixture()
	ctx := context.Background()
	base := time.Now()

	if err := registry.UpdateLocation(ctx, "driver-1", 12.0, 77.0, domain.VehicleClassEconomy, base); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}
	// A delayed heartbeat with an older timestamp must not win.
	if err := registry.UpdateLocation(ctx, "driver-1", 99.0, 10.0, domain.VehicleClassEconomy, base.Add(-time.Minute)); err != nil {
		t.Fatalf("stale heartbeat errored: %v", err)
	}

	driver := driverRepo.GetDriver("driver-1")
	if driver.Lat != 12.0 || driver.Lng != 77.0 {
		t.Errorf("stale heartbeat overwrote position: lat=%f lng=%f", driver.Lat, driver.Lng)
	}

	// A newer heartbeat wins.
	if err := registry.UpdateLocation(ctx, "driver-1", 13.0, 78.0, domain.VehicleClassEconomy, base.Add(time.Minute)); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}
	driver = driverRepo.GetDriver("driver-1")
	if driver.Lat != 13.0 || driver.Lng != 78.0 {
		t.Errorf("newer heartbeat did not win: lat=%f lng=%f", driver.Lat, driver.Lng)
	}
}

func TestUpdateLocation_DoesNotFlipAvailability(t *testing.T) {
	registry, driverRepo, _ := newRegistryFixture()
	ctx := context.Background()

	driverRepo.AddDriver(&domain.Driver{
		ID:           "driver-1",
		VehicleClass: domain.VehicleClassEconomy,
		Available:    true,
		LastSeen:     time.Now().Add(-time.Minute),
	})

	if err := registry.UpdateLocation(ctx, "driver-1", 12.0, 77.0, domain.VehicleClassEconomy, time.Now()); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}
	if !driverRepo.GetDriver("driver-1").Available {
		t.Error("heartbeat must not change availability")
	}
}

func TestFindEligible_FiltersByFreshnessClassAndAvailability(t *testing.T) {
	registry, driverRepo, locations := newRegistryFixture()
	ctx := context.Background()
	now := time.Now()

	add := func(id string, class domain.VehicleClass, available bool, lastSeen time.Time) {
		driverRepo.AddDriver(&domain.Driver{
			ID:           id,
			Lat:          12.97,
			Lng:          77.59,
			VehicleClass: class,
			Available:    available,
			LastSeen:     lastSeen,
		})
		_ = locations.UpdateLocation(ctx, id, 12.97, 77.59)
	}

	add("fresh-economy", domain.VehicleClassEconomy, true, now)
	add("stale-economy", domain.VehicleClassEconomy, true, now.Add(-10*time.Minute))
	add("fresh-premium", domain.VehicleClassPremium, true, now)
	add("busy-economy", domain.VehicleClassEconomy, false, now)

	eligible, err := registry.FindEligible(ctx, domain.VehicleClassEconomy, 12.97, 77.59, 5.0)
	if err != nil {
		t.Fatalf("find eligible failed: %v", err)
	}

	if len(eligible) != 1 || eligible[0] != "fresh-economy" {
		t.Errorf("expected only fresh-economy, got %v", eligible)
	}
}

func TestFindEligible_RespectsRadius(t *testing.T) {
	registry, driverRepo, locations := newRegistryFixture()
	ctx := context.Background()
	now := time.Now()

	driverRepo.AddDriver(&domain.Driver{
		ID: "far-away", Lat: 13.5, Lng: 78.2,
		VehicleClass: domain.VehicleClassEconomy, Available: true, LastSeen: now,
	})
	_ = locations.UpdateLocation(ctx, "far-away", 13.5, 78.2)

	eligible, err := registry.FindEligible(ctx, domain.VehicleClassEconomy, 12.97, 77.59, 5.0)
	if err != nil {
		t.Fatalf("find eligible failed: %v", err)
	}
	if len(eligible) != 0 {
		t.Errorf("expected no drivers within 5 km, got %v", eligible)
	}
}

func TestSetAvailable_Idempotent(t *testing.T) {
	registry, driverRepo, _ := newRegistryFixture()
	ctx := context.Background()

	driverRepo.AddDriver(&domain.Driver{
		ID: "driver-1", VehicleClass: domain.VehicleClassEconomy,
		Available: false, LastSeen: time.Now(),
	})

	for i := 0; i < 3; i++ {
		if err := registry.SetAvailable(ctx, "driver-1", true); err != nil {
			t.Fatalf("set available failed on attempt %d: %v", i+1, err)
		}
	}
	if !driverRepo.GetDriver("driver-1").Available {
		t.Error("driver should be available")
	}
}

func TestReserve_CompareAndSet(t *testing.T) {
	registry, driverRepo, _ := newRegistryFixture()
	ctx := context.Background()

	driverRepo.AddDriver(&domain.Driver{
		ID: "driver-1", VehicleClass: domain.VehicleClassEconomy,
		Available: true, LastSeen: time.Now(),
	})

	ok, err := registry.Reserve(ctx, "driver-1")
	if err != nil || !ok {
		t.Fatalf("first reserve should succeed, got ok=%v err=%v", ok, err)
	}
	ok, err = registry.Reserve(ctx, "driver-1")
	if err != nil {
		t.Fatalf("second reserve errored: %v", err)
	}
	if ok {
		t.Error("second reserve must fail, the driver is already claimed")
	}
}
