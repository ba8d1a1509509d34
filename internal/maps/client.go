package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dispatch/internal/redis"
)

var (
	// ErrInvalidInput is returned for coordinates outside valid ranges
	// or non-finite values.
	ErrInvalidInput = errors.New("invalid coordinates")

	// ErrUnavailable is returned when the provider exhausted retries and
	// the operation has no fallback.
	ErrUnavailable = errors.New("routing provider unavailable")
)

const (
	routeCacheTTL   = time.Hour
	geocodeCacheTTL = 24 * time.Hour
	suggestCacheTTL = 24 * time.Hour

	// fallbackSpeedKmh is the assumed average speed used to derive a
	// duration from the great-circle distance.
	fallbackSpeedKmh = 30.0

	minAutocompleteLen = 3
)

// Client wraps the routing provider with bounded retries, TTL caching
// and a great-circle fallback for route lookups.
type Client struct {
	provider    Provider
	cache       redis.CacheInterface
	log         *logrus.Logger
	timeout     time.Duration
	maxAttempts int

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// NewClient creates a route client. cache may be nil, in which case
// every call goes to the provider. provider may also be nil; route
// lookups then always use the great-circle estimate.
func NewClient(provider Provider, cache redis.CacheInterface, log *logrus.Logger, timeout time.Duration, maxAttempts int) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Client{
		provider:    provider,
		cache:       cache,
		log:         log,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		sleep:       time.Sleep,
	}
}

// Route returns distance and duration between two coordinates. Provider
// failures degrade to a haversine estimate; this method only errors on
// invalid input.
func (c *Client) Route(ctx context.Context, origin, destination LatLng) (RouteResult, error) {
	if !validCoords(origin) || !validCoords(destination) {
		return RouteResult{}, ErrInvalidInput
	}

	key := routeKey(origin, destination)
	var cached RouteResult
	if c.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	var result RouteResult
	err := c.withRetry(ctx, "route", func(ctx context.Context) error {
		var err error
		result, err = c.provider.Directions(ctx, origin, destination)
		return err
	})
	if err != nil {
		result = c.fallbackRoute(origin, destination)
		c.log.WithFields(logrus.Fields{
			"origin":      fmt.Sprintf("%.5f,%.5f", origin.Lat, origin.Lng),
			"destination": fmt.Sprintf("%.5f,%.5f", destination.Lat, destination.Lng),
			"error":       err.Error(),
		}).Warn("route provider failed, using great-circle estimate")
	}

	c.cacheSet(ctx, key, result, routeCacheTTL)
	return result, nil
}

// Geocode resolves an address to coordinates. There is no fallback;
// exhausting retries surfaces ErrUnavailable.
func (c *Client) Geocode(ctx context.Context, address string) (GeocodeResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return GeocodeResult{}, ErrInvalidInput
	}

	key := "geo:addr:" + strings.ToLower(address)
	var cached GeocodeResult
	if c.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	var result GeocodeResult
	err := c.withRetry(ctx, "geocode", func(ctx context.Context) error {
		var err error
		result, err = c.provider.Geocode(ctx, address)
		return err
	})
	if err != nil {
		return GeocodeResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.cacheSet(ctx, key, result, geocodeCacheTTL)
	return result, nil
}

// Autocomplete returns suggestions for a prefix. Short prefixes and any
// downstream failure yield an empty sequence, never an error.
func (c *Client) Autocomplete(ctx context.Context, prefix string) []Suggestion {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < minAutocompleteLen {
		return nil
	}

	key := "geo:suggest:" + strings.ToLower(prefix)
	var cached []Suggestion
	if c.cacheGet(ctx, key, &cached) {
		return cached
	}

	var result []Suggestion
	err := c.withRetry(ctx, "autocomplete", func(ctx context.Context) error {
		var err error
		result, err = c.provider.Autocomplete(ctx, prefix)
		return err
	})
	if err != nil {
		c.log.WithField("prefix", prefix).WithError(err).Debug("autocomplete degraded to empty result")
		return nil
	}

	c.cacheSet(ctx, key, result, suggestCacheTTL)
	return result
}

// withRetry runs fn up to maxAttempts times with a per-attempt timeout
// and linear backoff between attempts.
func (c *Client) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	if c.provider == nil {
		return ErrUnavailable
	}
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < c.maxAttempts {
			c.log.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt,
			}).WithError(err).Debug("provider attempt failed, retrying")
			c.sleep(time.Duration(attempt) * time.Second)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *Client) fallbackRoute(origin, destination LatLng) RouteResult {
	meters := haversineMeters(origin, destination)
	seconds := meters / (fallbackSpeedKmh * 1000 / 3600)
	return RouteResult{
		DistanceMeters:  meters,
		DurationSeconds: seconds,
		Estimated:       true,
	}
}

func (c *Client) cacheGet(ctx context.Context, key string, out any) bool {
	if c.cache == nil {
		return false
	}
	data, err := c.cache.Get(ctx, key)
	if err != nil || data == nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (c *Client) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.cache.Set(ctx, key, data, ttl)
}

func routeKey(origin, destination LatLng) string {
	return fmt.Sprintf("geo:route:%.5f,%.5f:%.5f,%.5f", origin.Lat, origin.Lng, destination.Lat, destination.Lng)
}

func validCoords(p LatLng) bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// haversineMeters computes the great-circle distance between two points.
func haversineMeters(a, b LatLng) float64 {
	const earthRadiusM = 6371000.0
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dlat := (b.Lat - a.Lat) * math.Pi / 180
	dlng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}
