package pricecache

import (
	"context"
	"errors"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/cache"
	applogger "MarketPulse/pkg/logger"
)

// Read results reported to metrics.
const (
	ReadFresh = "fresh"
	ReadStale = "stale"
	ReadMiss  = "miss"
)

type Config struct {
	TTL            time.Duration // freshness window of an entry
	Retention      time.Duration // how long stale entries stay around for fallback
	DurableTimeout time.Duration
	Now            func() time.Time
}

// PriceCache keeps the last series per instrument in an in-process store and
// mirrors it into an optional durable tier. Stale entries are kept so callers
// can fall back to them when the upstream is down.
type PriceCache struct {
	cfg     Config
	mem     cache.Store
	durable domrepo.CacheStore
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

// New builds a cache. durable may be nil.
func New(cfg Config, mem cache.Store, durable domrepo.CacheStore, m domrepo.Metrics, l *applogger.Logger) *PriceCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * time.Second
	}
	if cfg.Retention < cfg.TTL {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.DurableTimeout <= 0 {
		cfg.DurableTimeout = 2 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PriceCache{
		cfg:     cfg,
		mem:     mem,
		durable: durable,
		metrics: m,
		logger:  l.With(applogger.Component("pricecache")),
	}
}

func (c *PriceCache) TTL() time.Duration { return c.cfg.TTL }

// Get returns the entry stored under key and whether it is still fresh.
// It returns domrepo.ErrCacheMiss when neither tier has the key.
func (c *PriceCache) Get(ctx context.Context, key string) (models.CacheEntry, bool, error) {
	entry, err := c.lookup(ctx, key)
	if err != nil {
		c.metrics.RecordCacheRead(ReadMiss)
		return models.CacheEntry{}, false, err
	}

	fresh := entry.FreshAt(c.cfg.Now())
	if fresh {
		c.metrics.RecordCacheRead(ReadFresh)
	} else {
		c.metrics.RecordCacheRead(ReadStale)
	}
	return entry, fresh, nil
}

func (c *PriceCache) lookup(ctx context.Context, key string) (models.CacheEntry, error) {
	var entry models.CacheEntry
	err := c.mem.Get(ctx, key, &entry)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("in-process cache read failed", applogger.String("key", key), applogger.Error(err))
	}
	if c.durable == nil {
		return models.CacheEntry{}, domrepo.ErrCacheMiss
	}

	dctx, cancel := context.WithTimeout(ctx, c.cfg.DurableTimeout)
	defer cancel()

	entry, err = c.durable.GetCacheEntry(dctx, key)
	if err != nil {
		if !errors.Is(err, domrepo.ErrCacheMiss) {
			c.logger.Warn("durable cache read failed", applogger.String("key", key), applogger.Error(err))
		}
		return models.CacheEntry{}, domrepo.ErrCacheMiss
	}

	if err := c.mem.Set(ctx, key, entry, c.cfg.Retention); err != nil {
		c.logger.Warn("in-process cache repopulate failed", applogger.String("key", key), applogger.Error(err))
	}
	return entry, nil
}

// Put stores series under key with a fresh TTL. Write failures are logged,
// never returned.
func (c *PriceCache) Put(ctx context.Context, key string, series models.Series) models.CacheEntry {
	now := c.cfg.Now()
	entry := models.CacheEntry{
		Key:       key,
		Series:    series,
		FetchedAt: now,
		ExpiresAt: now.Add(c.cfg.TTL),
	}

	if err := c.mem.Set(ctx, key, entry, c.cfg.Retention); err != nil {
		c.logger.Warn("in-process cache write failed", applogger.String("key", key), applogger.Error(err))
	}

	if c.durable != nil {
		dctx, cancel := context.WithTimeout(ctx, c.cfg.DurableTimeout)
		defer cancel()
		if err := c.durable.UpsertCacheEntry(dctx, entry); err != nil {
			c.metrics.RecordError("cache_durable_write")
			c.logger.Warn("durable cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return entry
}
