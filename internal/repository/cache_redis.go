package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/cache"
)

const cacheNamespace = "pricecache"

// RedisCacheStore keeps the durable price cache tier in Redis. Keys expire
// after the retention period so stale fallbacks do not pile up.
type RedisCacheStore struct {
	redis     *cache.RedisCache
	retention time.Duration
}

var _ domrepo.CacheStore = (*RedisCacheStore)(nil)

func NewRedisCacheStore(rc *cache.RedisCache, retention time.Duration) *RedisCacheStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisCacheStore{redis: rc, retention: retention}
}

func (s *RedisCacheStore) UpsertCacheEntry(ctx context.Context, e models.CacheEntry) error {
	if err := s.redis.Set(ctx, cache.GenerateKey(cacheNamespace, e.Key), e, s.retention); err != nil {
		return fmt.Errorf("redis upsert cache %s: %w", e.Key, err)
	}
	return nil
}

func (s *RedisCacheStore) GetCacheEntry(ctx context.Context, key string) (models.CacheEntry, error) {
	var e models.CacheEntry
	err := s.redis.Get(ctx, cache.GenerateKey(cacheNamespace, key), &e)
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.CacheEntry{}, domrepo.ErrCacheMiss
	}
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("redis get cache %s: %w", key, err)
	}
	return e, nil
}
