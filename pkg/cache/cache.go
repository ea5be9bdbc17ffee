package cache

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Store is the key/value surface shared by the in-process and Redis tiers.
// Values are JSON encoded, so Get must receive a pointer of the stored type.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
}

// Locker provides short-lived mutual exclusion keyed by string.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Service is a Store that can also hand out locks.
type Service interface {
	Store
	Locker
}

// GetTyped is Get with the destination allocated for the caller.
func GetTyped[T any](ctx context.Context, s Store, key string) (T, error) {
	var v T
	err := s.Get(ctx, key, &v)
	return v, err
}
