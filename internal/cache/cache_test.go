package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/farm-bi/internal/cache"
	"github.com/OldStager01/farm-bi/internal/testutil"
	"github.com/OldStager01/farm-bi/pkg/database/queries"
	"github.com/OldStager01/farm-bi/pkg/models"
)

var _ cache.Store = (*queries.CacheEntryRepository)(nil)
var _ cache.Store = (*cache.RedisStore)(nil)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newCache(t *testing.T) (*cache.Cache, *queries.CacheEntryRepository, *clock) {
	t.Helper()
	store := queries.NewCacheEntryRepository(testutil.NewDB(t))
	clk := &clock{t: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)}
	return cache.New(store, cache.WithClock(clk.Now)), store, clk
}

type counter struct{ calls int }

func (c *counter) compute(ctx context.Context) (map[string]float64, error) {
	c.calls++
	return map[string]float64{"value": float64(c.calls)}, nil
}

func TestGetOrCompute_TTLBoundary(t *testing.T) {
	tests := []struct {
		name      string
		elapsed   time.Duration
		wantCalls int
	}{
		{name: "fresh entry is served from cache at 59s", elapsed: 59 * time.Second, wantCalls: 1},
		{name: "exactly at ttl is still fresh", elapsed: 60 * time.Second, wantCalls: 1},
		{name: "expired entry recomputes at 61s", elapsed: 61 * time.Second, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, clk := newCache(t)
			ctx := context.Background()
			fn := &counter{}

			_, err := cache.GetOrCompute(ctx, c, "trend_costo_total_12", time.Minute, fn.compute)
			require.NoError(t, err)

			clk.Advance(tt.elapsed)
			got, err := cache.GetOrCompute(ctx, c, "trend_costo_total_12", time.Minute, fn.compute)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCalls, fn.calls)
			assert.Equal(t, float64(tt.wantCalls), got["value"])
		})
	}
}

func TestGetOrCompute_HitsResetOnRecompute(t *testing.T) {
	c, store, clk := newCache(t)
	ctx := context.Background()
	fn := &counter{}

	for i := 0; i < 3; i++ {
		_, err := cache.GetOrCompute(ctx, c, "k", time.Minute, fn.compute)
		require.NoError(t, err)
	}
	e, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Hits)

	clk.Advance(2 * time.Minute)
	_, err = cache.GetOrCompute(ctx, c, "k", time.Minute, fn.compute)
	require.NoError(t, err)

	e, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.Hits)
	assert.Equal(t, 2, fn.calls)
}

func TestGetOrCompute_ComputeErrorNotCached(t *testing.T) {
	c, store, _ := newCache(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := cache.GetOrCompute(ctx, c, "k", time.Minute, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

type brokenStore struct{ cache.Store }

func (brokenStore) Get(context.Context, string) (*models.CacheEntry, error) {
	return nil, models.Persistence("get", errors.New("down"))
}

func (brokenStore) Put(context.Context, *models.CacheEntry) error {
	return models.Persistence("put", errors.New("down"))
}

func TestGetOrCompute_StoreFailureStillComputes(t *testing.T) {
	c := cache.New(brokenStore{})

	got, err := cache.GetOrCompute(context.Background(), c, "k", time.Minute, func(context.Context) (string, error) {
		return "fresh", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "fresh", got)
}

func TestCache_Invalidation(t *testing.T) {
	c, _, clk := newCache(t)
	ctx := context.Background()
	fn := &counter{}

	_, _ = cache.GetOrCompute(ctx, c, "trend_ingreso_total_12", time.Hour, fn.compute, c.KPITag())
	_, _ = cache.GetOrCompute(ctx, c, "trend_costo_total_12", time.Hour, fn.compute, c.KPITag())
	_, _ = cache.GetOrCompute(ctx, c, "comparison_2025_1", time.Hour, fn.compute)
	_, _ = cache.GetOrCompute(ctx, c, "short", time.Second, fn.compute)

	removed, err := c.Invalidate(ctx, "comparison_2025_1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = c.Invalidate(ctx, "comparison_2025_1")
	require.NoError(t, err)
	assert.False(t, removed)

	n, err := c.InvalidateOnNewSnapshot(ctx, models.NewPeriod(2025, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	clk.Advance(5 * time.Second)
	n, err = c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Entries)
}

func TestCache_InvalidatePatternAndClear(t *testing.T) {
	c, _, _ := newCache(t)
	ctx := context.Background()
	fn := &counter{}

	for _, key := range []string{"trend_a", "trend_b", "ai_anomalies_6m:2025-01", "ai_patterns_12m:2025-01"} {
		_, err := cache.GetOrCompute(ctx, c, key, time.Hour, fn.compute)
		require.NoError(t, err)
	}

	n, err := c.InvalidatePattern(ctx, "trend_*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = c.InvalidatePattern(ctx, "ai_*:2025-0?")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, _ = cache.GetOrCompute(ctx, c, "x", time.Hour, fn.compute)
	n, err = c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
