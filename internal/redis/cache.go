package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore is a TTL byte cache in Redis. Route results, geocode
// results, autocomplete suggestions and fare quotes all live here under
// their own key prefixes; entries are evicted by TTL only.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Get retrieves a cached value. A miss returns (nil, nil).
func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Set stores a value with the given TTL.
func (s *CacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}
