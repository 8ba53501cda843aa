package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/internal/metrics"
	"github.com/OldStager01/farm-bi/pkg/models"
)

// Store is the physical backend of the analytics cache. Get returns
// models.ErrNotFound for a missing key; expiry is decided by Cache.
type Store interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Put(ctx context.Context, entry *models.CacheEntry) error
	Touch(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) (bool, error)
	DeletePattern(ctx context.Context, pattern string) (int64, error)
	DeleteTagged(ctx context.Context, tag string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Clear(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (models.CacheStats, error)
}

const DefaultKPITag = "kpi"

type Cache struct {
	store      Store
	now        func() time.Time
	defaultTTL time.Duration
	kpiTag     string
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

func WithKPITag(tag string) Option {
	return func(c *Cache) {
		if tag != "" {
			c.kpiTag = tag
		}
	}
}

func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:      store,
		now:        time.Now,
		defaultTTL: time.Hour,
		kpiTag:     DefaultKPITag,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KPITag is the tag that marks entries derived from period KPIs.
func (c *Cache) KPITag() string {
	return c.kpiTag
}

func (c *Cache) expired(e *models.CacheEntry) bool {
	age := c.now().Sub(e.CreatedAt.Time)
	return age > time.Duration(e.TTLSeconds)*time.Second
}

// GetOrCompute returns the cached value for key when it exists and is within
// its TTL, counting a hit. Otherwise it calls compute once, stores the result
// under key with the given ttl and tags, and returns it. A failing store read
// or write never fails the call; compute errors are returned and not cached.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error), tags ...string) (T, error) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	entry, err := c.store.Get(ctx, key)
	switch {
	case err == nil && !c.expired(entry):
		var cached T
		uerr := json.Unmarshal([]byte(entry.Value), &cached)
		if uerr == nil {
			if terr := c.store.Touch(ctx, key); terr != nil {
				logger.WithField("key", key).Warnf("Failed to record cache hit: %v", terr)
			}
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return cached, nil
		}
		logger.WithField("key", key).Warnf("Discarding undecodable cache entry: %v", uerr)
	case err != nil && !errors.Is(err, models.ErrNotFound):
		logger.WithField("key", key).Warnf("Cache read failed, recomputing: %v", err)
	}
	metrics.CacheRequests.WithLabelValues("miss").Inc()

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		logger.WithField("key", key).Warnf("Cache value not serializable: %v", err)
		return value, nil
	}

	if err := c.store.Put(ctx, &models.CacheEntry{
		Key:        key,
		Value:      string(data),
		CreatedAt:  models.NewUnixTime(c.now()),
		TTLSeconds: int64(ttl / time.Second),
		Tags:       models.EncodeTags(tags),
	}); err != nil {
		logger.WithField("key", key).Warnf("Cache write failed: %v", err)
	}

	return value, nil
}

// Invalidate removes one entry and reports whether it existed.
func (c *Cache) Invalidate(ctx context.Context, key string) (bool, error) {
	removed, err := c.store.Delete(ctx, key)
	if removed {
		metrics.CacheEvictions.WithLabelValues("key").Inc()
	}
	return removed, err
}

// InvalidatePattern removes every key matching a glob (* and ?).
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) (int64, error) {
	n, err := c.store.DeletePattern(ctx, pattern)
	if err != nil {
		return 0, err
	}
	metrics.CacheEvictions.WithLabelValues("pattern").Add(float64(n))
	logger.WithFields(map[string]interface{}{
		"pattern": pattern,
		"removed": n,
	}).Info("Cache pattern invalidated")
	return n, nil
}

// InvalidateOnNewSnapshot drops every KPI-derived entry. It must run after a
// snapshot is written and before anything reads KPI aggregates again.
func (c *Cache) InvalidateOnNewSnapshot(ctx context.Context, period models.Period) (int64, error) {
	n, err := c.store.DeleteTagged(ctx, c.kpiTag)
	if err != nil {
		return 0, err
	}
	metrics.CacheEvictions.WithLabelValues("snapshot").Add(float64(n))
	logger.WithPeriod(period).WithField("removed", n).Info("KPI cache invalidated")
	return n, nil
}

// Sweep physically removes expired entries.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	n, err := c.store.DeleteExpired(ctx, c.now())
	if err != nil {
		return 0, err
	}
	metrics.CacheEvictions.WithLabelValues("expired").Add(float64(n))
	if n > 0 {
		logger.WithField("removed", n).Debug("Cache swept")
	}
	return n, nil
}

func (c *Cache) Clear(ctx context.Context) (int64, error) {
	n, err := c.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	metrics.CacheEvictions.WithLabelValues("clear").Add(float64(n))
	return n, nil
}

func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	return c.store.Stats(ctx)
}
