package tests

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

var errTransient = errors.New("transient store failure")

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is an in-memory RideRepository. ApplyTransition
// honors the status+version guard under a lock, so races between
// concurrent transitions behave like the conditional UPDATE does.
type MockRideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride

	// Counters for verification
	CreateCallCount          int32
	ApplyTransitionCallCount int32

	// Error injection
	CreateError          error
	ApplyTransitionError error
}

// NewMockRideRepository creates a new mock ride repository.
func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{
		rides: make(map[string]*domain.Ride),
	}
}

// AddRide seeds a ride for test setup.
func (m *MockRideRepository) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.ID] = ride
}

// GetRide returns the stored ride for test assertions.
func (m *MockRideRepository) GetRide(id string) *domain.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ride, ok := m.rides[id]; ok {
		copy := *ride
		return &copy
	}
	return nil
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *ride
	m.rides[ride.ID] = &copy
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *ride
	return &copy, nil
}

func (m *MockRideRepository) GetAll(ctx context.Context) ([]*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Ride, 0, len(m.rides))
	for _, r := range m.rides {
		copy := *r
		result = append(result, &copy)
	}
	return result, nil
}

func (m *MockRideRepository) ApplyTransition(ctx context.Context, id string, t repository.RideTransition) (bool, error) {
	atomic.AddInt32(&m.ApplyTransitionCallCount, 1)
	if m.ApplyTransitionError != nil {
		return false, m.ApplyTransitionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ride, ok := m.rides[id]
	if !ok {
		return false, nil
	}
	if ride.Status != t.From || ride.Version != t.Version {
		return false, nil
	}
	ride.Status = t.To
	ride.Version++
	if t.DriverID != "" {
		ride.DriverID = t.DriverID
	}
	if !t.EstimatedArrival.IsZero() {
		ride.EstimatedArrival = t.EstimatedArrival
	}
	if !t.ArrivedAt.IsZero() {
		ride.ArrivedAt = t.ArrivedAt
	}
	if !t.EndedAt.IsZero() {
		ride.EndedAt = t.EndedAt
	}
	if t.CancelReason != "" {
		ride.CancelReason = t.CancelReason
	}
	return true, nil
}

func (m *MockRideRepository) SetRating(ctx context.Context, id string, rating int, review string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ride, ok := m.rides[id]
	if !ok {
		return false, nil
	}
	if ride.Status != domain.RideStatusCompleted || ride.Rating != 0 {
		return false, nil
	}
	ride.Rating = rating
	ride.Review = review
	return true, nil
}

// ──────────────────────────────────────────────
// MOCK DRIVER REPOSITORY
// ──────────────────────────────────────────────

// MockDriverRepository is an in-memory DriverRepository with the same
// compare-and-set and last-write-wins semantics as the SQL version.
type MockDriverRepository struct {
	mu      sync.RWMutex
	drivers map[string]*domain.Driver

	// Counters for verification
	ReserveCallCount      int32
	SetAvailableCallCount int32

	// Error injection. SetAvailableFailures makes the first N
	// SetAvailable calls fail, for exercising the release retry.
	SetAvailableError    error
	SetAvailableFailures int32
	ReserveError         error
}

// NewMockDriverRepository creates a new mock driver repository.
func NewMockDriverRepository() *MockDriverRepository {
	return &MockDriverRepository{
		drivers: make(map[string]*domain.Driver),
	}
}

// AddDriver seeds a driver for test setup.
func (m *MockDriverRepository) AddDriver(driver *domain.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driver.ID] = driver
}

// GetDriver returns the stored driver for test assertions.
func (m *MockDriverRepository) GetDriver(id string) *domain.Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.drivers[id]; ok {
		copy := *d
		return &copy
	}
	return nil
}

func (m *MockDriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	driver, ok := m.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *driver
	return &copy, nil
}

func (m *MockDriverRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Driver, 0, len(ids))
	for _, id := range ids {
		if d, ok := m.drivers[id]; ok {
			copy := *d
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockDriverRepository) UpsertLocation(ctx context.Context, driver *domain.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.drivers[driver.ID]
	if !ok {
		copy := *driver
		m.drivers[driver.ID] = &copy
		return nil
	}
	// Last write wins on the heartbeat timestamp.
	if !existing.LastSeen.Before(driver.LastSeen) {
		return nil
	}
	existing.Lat = driver.Lat
	existing.Lng = driver.Lng
	existing.VehicleClass = driver.VehicleClass
	existing.LastSeen = driver.LastSeen
	return nil
}

func (m *MockDriverRepository) SetAvailable(ctx context.Context, id string, available bool) error {
	atomic.AddInt32(&m.SetAvailableCallCount, 1)
	if m.SetAvailableError != nil {
		return m.SetAvailableError
	}
	if atomic.AddInt32(&m.SetAvailableFailures, -1) >= 0 {
		return errTransient
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	driver.Available = available
	return nil
}

func (m *MockDriverRepository) Reserve(ctx context.Context, id string) (bool, error) {
	atomic.AddInt32(&m.ReserveCallCount, 1)
	if m.ReserveError != nil {
		return false, m.ReserveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	driver, ok := m.drivers[id]
	if !ok || !driver.Available {
		return false, nil
	}
	driver.Available = false
	return true, nil
}

func (m *MockDriverRepository) MarkStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []string
	for id, d := range m.drivers {
		if d.Available && d.LastSeen.Before(cutoff) {
			d.Available = false
			stale = append(stale, id)
		}
	}
	return stale, nil
}

// ──────────────────────────────────────────────
// MOCK LOCATION STORE
// ──────────────────────────────────────────────

// MockLocationStore is an in-memory geo index.
type MockLocationStore struct {
	mu        sync.RWMutex
	locations map[string]redis.DriverLocation

	FindError error
}

// NewMockLocationStore creates a new mock location store.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{
		locations: make(map[string]redis.DriverLocation),
	}
}

func (m *MockLocationStore) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[driverID] = redis.DriverLocation{DriverID: driverID, Lat: lat, Lng: lng}
	return nil
}

func (m *MockLocationStore) FindNearbyDrivers(ctx context.Context, lat, lng, radiusKm float64) ([]redis.DriverLocation, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []redis.DriverLocation
	for _, loc := range m.locations {
		if distanceKm(lat, lng, loc.Lat, loc.Lng) <= radiusKm {
			result = append(result, loc)
		}
	}
	return result, nil
}

func (m *MockLocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locations, driverID)
	return nil
}

// HasLocation reports whether the driver is still in the index.
func (m *MockLocationStore) HasLocation(driverID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.locations[driverID]
	return ok
}

func distanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	rad := math.Pi / 180
	dlat := (lat2 - lat1) * rad
	dlng := (lng2 - lng1) * rad
	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is an in-memory distributed lock.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]bool
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]bool)}
}

func (m *MockLockStore) AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[driverID] {
		return false, nil
	}
	m.locks[driverID] = true
	return true, nil
}

func (m *MockLockStore) ReleaseDriverLock(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, driverID)
	return nil
}

// ──────────────────────────────────────────────
// MOCK CACHE
// ──────────────────────────────────────────────

// MockCache is an in-memory byte cache. TTLs are recorded, not enforced.
type MockCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
	ttls    map[string]time.Duration

	GetCallCount int32
	SetCallCount int32
}

// NewMockCache creates a new mock cache.
func NewMockCache() *MockCache {
	return &MockCache{
		entries: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
	}
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	atomic.AddInt32(&m.SetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	m.ttls[key] = ttl
	return nil
}

// TTLOf returns the TTL recorded for a key.
func (m *MockCache) TTLOf(key string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ttls[key]
}

// ──────────────────────────────────────────────
// MOCK PUSHER
// ──────────────────────────────────────────────

// MockPusher records delivered events per recipient in order.
type MockPusher struct {
	mu     sync.Mutex
	events map[string][]service.Event

	// FailFor makes pushes to the named recipient fail.
	FailFor map[string]error
}

// NewMockPusher creates a new mock pusher.
func NewMockPusher() *MockPusher {
	return &MockPusher{
		events:  make(map[string][]service.Event),
		FailFor: make(map[string]error),
	}
}

func (m *MockPusher) Push(recipientID string, event service.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailFor[recipientID]; ok {
		return err
	}
	m.events[recipientID] = append(m.events[recipientID], event)
	return nil
}

// EventsFor returns the events delivered to a recipient, in order.
func (m *MockPusher) EventsFor(recipientID string) []service.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]service.Event, len(m.events[recipientID]))
	copy(out, m.events[recipientID])
	return out
}
