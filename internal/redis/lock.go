package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore provides short-lived driver claim locks on top of SETNX.
// A lock guards the accept critical section; the TTL bounds how long a
// crashed claimant can hold a driver.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func driverLockKey(driverID string) string {
	return "dispatch:lock:driver:" + driverID
}

// AcquireDriverLock claims the lock for a driver. It returns false when
// another claimant already holds it.
func (s *LockStore) AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, driverLockKey(driverID), time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire driver lock %s: %w", driverID, err)
	}
	return ok, nil
}

// ReleaseDriverLock drops the lock for a driver. Releasing a lock that
// already expired is not an error.
func (s *LockStore) ReleaseDriverLock(ctx context.Context, driverID string) error {
	if err := s.client.Del(ctx, driverLockKey(driverID)).Err(); err != nil {
		return fmt.Errorf("release driver lock %s: %w", driverID, err)
	}
	return nil
}
