package maps

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"dispatch/internal/redis"
)

type fakeProvider struct {
	mu          sync.Mutex
	calls       int
	failures    int // first N calls fail
	route       RouteResult
	geocode     GeocodeResult
	suggestions []Suggestion
}

func (p *fakeProvider) next() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return errors.New("upstream timeout")
	}
	return nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) Directions(ctx context.Context, origin, destination LatLng) (RouteResult, error) {
	if err := p.next(); err != nil {
		return RouteResult{}, err
	}
	return p.route, nil
}

func (p *fakeProvider) Geocode(ctx context.Context, address string) (GeocodeResult, error) {
	if err := p.next(); err != nil {
		return GeocodeResult{}, err
	}
	return p.geocode, nil
}

func (p *fakeProvider) Autocomplete(ctx context.Context, prefix string) ([]Suggestion, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	return p.suggestions, nil
}

func newTestClient(provider Provider, cache redis.CacheInterface) (*Client, *[]time.Duration) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	c := NewClient(provider, cache, log, time.Second, 3)
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }
	return c, &slept
}

func TestRoute_RetriesThenSucceeds(t *testing.T) {
	provider := &fakeProvider{
		failures: 2,
		route:    RouteResult{DistanceMeters: 5000, DurationSeconds: 600},
	}
	client, slept := newTestClient(provider, nil)

	result, err := client.Route(context.Background(), LatLng{Lat: 12.97, Lng: 77.59}, LatLng{Lat: 12.93, Lng: 77.62})
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if result.DistanceMeters != 5000 || result.Estimated {
		t.Errorf("expected provider result, got %+v", result)
	}
	if provider.callCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", provider.callCount())
	}
	// Linear backoff: 1s after the first failure, 2s after the second.
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("expected backoff %v, got %v", want, *slept)
	}
}

func TestRoute_FallsBackToGreatCircle(t *testing.T) {
	provider := &fakeProvider{failures: 100}
	client, _ := newTestClient(provider, nil)

	origin := LatLng{Lat: 12.97, Lng: 77.59}
	destination := LatLng{Lat: 12.93, Lng: 77.62}

	result, err := client.Route(context.Background(), origin, destination)
	if err != nil {
		t.Fatalf("route must never fail for valid coordinates, got %v", err)
	}
	if !result.Estimated {
		t.Error("expected the fallback estimate to be flagged")
	}

	wantMeters := haversineMeters(origin, destination)
	if math.Abs(result.DistanceMeters-wantMeters) > 1 {
		t.Errorf("expected haversine distance ~%f, got %f", wantMeters, result.DistanceMeters)
	}
	// Duration derives from the distance at 30 km/h.
	wantSeconds := wantMeters / (30.0 * 1000 / 3600)
	if math.Abs(result.DurationSeconds-wantSeconds) > 1 {
		t.Errorf("expected duration ~%f, got %f", wantSeconds, result.DurationSeconds)
	}
}

func TestRoute_InvalidCoordinates(t *testing.T) {
	provider := &fakeProvider{}
	client, _ := newTestClient(provider, nil)

	testCases := []struct {
		name   string
		origin LatLng
	}{
		{"lat too high", LatLng{Lat: 90.1, Lng: 0}},
		{"lat too low", LatLng{Lat: -90.1, Lng: 0}},
		{"lng too high", LatLng{Lat: 0, Lng: 180.1}},
		{"lng too low", LatLng{Lat: 0, Lng: -180.1}},
		{"nan", LatLng{Lat: math.NaN(), Lng: 0}},
		{"inf", LatLng{Lat: 0, Lng: math.Inf(1)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Route(context.Background(), tc.origin, LatLng{Lat: 12.93, Lng: 77.62})
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if provider.callCount() != 0 {
		t.Errorf("provider must not be called for invalid input, got %d calls", provider.callCount())
	}
}

func TestRoute_ServesFromCache(t *testing.T) {
	provider := &fakeProvider{route: RouteResult{DistanceMeters: 5000, DurationSeconds: 600}}
	cache := newMemCache()
	client, _ := newTestClient(provider, cache)

	origin := LatLng{Lat: 12.97, Lng: 77.59}
	destination := LatLng{Lat: 12.93, Lng: 77.62}

	for i := 0; i < 3; i++ {
		if _, err := client.Route(context.Background(), origin, destination); err != nil {
			t.Fatalf("route failed: %v", err)
		}
	}
	if provider.callCount() != 1 {
		t.Errorf("expected one provider call with a warm cache, got %d", provider.callCount())
	}
	if ttl := cache.ttlOf(routeKey(origin, destination)); ttl != routeCacheTTL {
		t.Errorf("expected route TTL %v, got %v", routeCacheTTL, ttl)
	}
}

func TestGeocode_ExhaustedRetriesSurfaceError(t *testing.T) {
	provider := &fakeProvider{failures: 100}
	client, _ := newTestClient(provider, nil)

	_, err := client.Geocode(context.Background(), "100 Main St")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if provider.callCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", provider.callCount())
	}
}

func TestGeocode_EmptyAddress(t *testing.T) {
	client, _ := newTestClient(&fakeProvider{}, nil)

	if _, err := client.Geocode(context.Background(), "   "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAutocomplete_ShortPrefixReturnsEmpty(t *testing.T) {
	provider := &fakeProvider{suggestions: []Suggestion{{Description: "Main Street"}}}
	client, _ := newTestClient(provider, nil)

	for _, prefix := range []string{"", "a", "ab", "  ab  "} {
		if got := client.Autocomplete(context.Background(), prefix); len(got) != 0 {
			t.Errorf("prefix %q: expected empty result, got %v", prefix, got)
		}
	}
	if provider.callCount() != 0 {
		t.Errorf("provider must not be called for short prefixes, got %d calls", provider.callCount())
	}
}

func TestAutocomplete_FailureDegradesToEmpty(t *testing.T) {
	provider := &fakeProvider{failures: 100}
	client, _ := newTestClient(provider, nil)

	if got := client.Autocomplete(context.Background(), "Main"); got != nil {
		t.Errorf("expected nil on provider failure, got %v", got)
	}
}

func TestAutocomplete_ReturnsSuggestions(t *testing.T) {
	provider := &fakeProvider{suggestions: []Suggestion{
		{Description: "Main Street", PlaceID: "p1"},
		{Description: "Main Road", PlaceID: "p2"},
	}}
	client, _ := newTestClient(provider, nil)

	got := client.Autocomplete(context.Background(), "Main")
	if len(got) != 2 || got[0].PlaceID != "p1" {
		t.Errorf("unexpected suggestions: %v", got)
	}
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key], nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) ttlOf(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttls[key]
}
