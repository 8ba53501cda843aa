package queries_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/farm-bi/internal/testutil"
	"github.com/OldStager01/farm-bi/pkg/database/queries"
	"github.com/OldStager01/farm-bi/pkg/models"
)

func TestSummaryRepository_SaveAndGet(t *testing.T) {
	db := testutil.NewDB(t)
	repo := queries.NewSummaryRepository(db)
	ctx := context.Background()
	p := models.NewPeriod(2025, 1)

	s := &models.PeriodSummary{
		Year: 2025, Month: 1,
		IncomeTotal: 1000, CostTotal: 600,
		Deaths: 1, OpeningAnimals: 20,
		ClosedBy: "ana", ClosedAt: models.NewUnixTime(time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)),
	}
	s.Finalize()

	require.NoError(t, repo.Save(ctx, s, s.KPIs()))
	assert.NotZero(t, s.ID)

	got, err := repo.Get(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 400.0, got.GrossMargin)
	assert.Equal(t, 40.0, got.GrossMarginPct)
	assert.Equal(t, "ana", got.ClosedBy)
	assert.True(t, s.ClosedAt.Equal(got.ClosedAt.Time))

	kpis, err := repo.KPIs(ctx, p)
	require.NoError(t, err)
	assert.Len(t, kpis, len(s.KPIs()))

	exists, err := repo.Exists(ctx, p)
	require.NoError(t, err)
	assert.True(t, exists)

	err = repo.Save(ctx, s, nil)
	assert.ErrorIs(t, err, models.ErrAlreadyClosed)
}

func TestSummaryRepository_GetMissing(t *testing.T) {
	repo := queries.NewSummaryRepository(testutil.NewDB(t))

	_, err := repo.Get(context.Background(), models.NewPeriod(2024, 6))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSummaryRepository_List(t *testing.T) {
	repo := queries.NewSummaryRepository(testutil.NewDB(t))
	ctx := context.Background()

	for _, p := range []models.Period{{Year: 2024, Month: 11}, {Year: 2024, Month: 12}, {Year: 2025, Month: 1}} {
		s := &models.PeriodSummary{Year: p.Year, Month: p.Month, ClosedAt: models.NewUnixTime(time.Now())}
		require.NoError(t, repo.Save(ctx, s, nil))
	}

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, models.NewPeriod(2025, 1), all[0].Period())

	only2024, err := repo.List(ctx, 2024)
	require.NoError(t, err)
	assert.Len(t, only2024, 2)
}

func TestSnapshotRepository_UpsertBumpsVersion(t *testing.T) {
	repo := queries.NewSnapshotRepository(testutil.NewDB(t))
	ctx := context.Background()

	s := &models.Snapshot{
		Year: 2025, Month: 3,
		GeneratedAt:   models.NewUnixTime(time.Now()),
		GeneratedBy:   "ana",
		ContentHash:   "aaa",
		SchemaVersion: models.CurrentSnapshotSchema,
		PayloadJSON:   `{}`,
	}
	require.NoError(t, repo.Upsert(ctx, s))
	assert.Equal(t, 1, s.Version)
	firstID := s.ID

	s.ContentHash = "bbb"
	require.NoError(t, repo.Upsert(ctx, s))
	assert.Equal(t, 2, s.Version)
	assert.Equal(t, firstID, s.ID)

	got, err := repo.Get(ctx, models.NewPeriod(2025, 3))
	require.NoError(t, err)
	assert.Equal(t, "bbb", got.ContentHash)
	assert.Equal(t, models.NewPeriod(2025, 3).Key(), got.PeriodKey)
}

func TestSnapshotRepository_RangeAndDeleteBefore(t *testing.T) {
	repo := queries.NewSnapshotRepository(testutil.NewDB(t))
	ctx := context.Background()

	start := models.NewPeriod(2024, 10)
	for i := 0; i < 5; i++ {
		p := start.AddMonths(i)
		require.NoError(t, repo.Upsert(ctx, &models.Snapshot{
			Year: p.Year, Month: p.Month,
			GeneratedAt: models.NewUnixTime(time.Now()), GeneratedBy: "x",
			ContentHash: "h", SchemaVersion: 2, PayloadJSON: `{}`,
		}))
	}

	rng, err := repo.Range(ctx, models.NewPeriod(2024, 12), models.NewPeriod(2025, 2))
	require.NoError(t, err)
	require.Len(t, rng, 3)
	assert.Equal(t, 12, rng[0].Month)
	assert.Equal(t, 2, rng[2].Month)

	n, err := repo.DeleteBefore(ctx, models.NewPeriod(2025, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = repo.Get(ctx, models.NewPeriod(2024, 12))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCacheEntryRepository(t *testing.T) {
	repo := queries.NewCacheEntryRepository(testutil.NewDB(t))
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	put := func(key string, age time.Duration, ttl int64, tags ...string) {
		require.NoError(t, repo.Put(ctx, &models.CacheEntry{
			Key: key, Value: `1`, CreatedAt: models.NewUnixTime(now.Add(-age)),
			TTLSeconds: ttl, Tags: models.EncodeTags(tags),
		}))
	}
	put("trend_ingreso_total_12", 0, 3600, "kpi")
	put("trend_costo_total_12", 0, 3600, "kpi")
	put("comparison_2025_1", 2*time.Hour, 3600)
	put("odd_100%_key", 0, 3600)

	require.NoError(t, repo.Touch(ctx, "trend_ingreso_total_12"))
	require.NoError(t, repo.Touch(ctx, "trend_ingreso_total_12"))
	e, err := repo.Get(ctx, "trend_ingreso_total_12")
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Hits)
	assert.Equal(t, []string{"kpi"}, models.DecodeTags(e.Tags))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Entries)
	assert.Equal(t, int64(2), stats.TotalHits)
	assert.Equal(t, int64(2), stats.MaxHits)

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.DeletePattern(ctx, "odd_100_*")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "literal underscore and percent must not act as wildcards")

	n, err = repo.DeletePattern(ctx, "trend_*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	deleted, err := repo.Delete(ctx, "odd_100%_key")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = repo.Get(ctx, "odd_100%_key")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestCacheEntryRepository_DeleteTagged(t *testing.T) {
	repo := queries.NewCacheEntryRepository(testutil.NewDB(t))
	ctx := context.Background()

	for key, tags := range map[string][]string{
		"a": {"kpi"},
		"b": {"kpi", "trend"},
		"c": {"kpis"},
		"d": nil,
	} {
		require.NoError(t, repo.Put(ctx, &models.CacheEntry{
			Key: key, Value: `1`, CreatedAt: models.NewUnixTime(time.Now()),
			TTLSeconds: 60, Tags: models.EncodeTags(tags),
		}))
	}

	n, err := repo.DeleteTagged(ctx, "kpi")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestAlertRepository(t *testing.T) {
	repo := queries.NewAlertRepository(testutil.NewDB(t))
	ctx := context.Background()
	now := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	high := models.NewAlert(models.AlertAbnormalSpend, models.PriorityHigh, "spend", "", now).
		WithEntity(models.EntityExpenseCategory, "alimento").WithValues(160, 100)
	low := models.NewAlert(models.AlertStaleReview, models.PriorityLow, "review", "", now.Add(time.Hour)).
		WithEntity(models.EntityAnimal, "multiple")
	require.NoError(t, repo.Insert(ctx, high))
	require.NoError(t, repo.Insert(ctx, low))
	assert.NotZero(t, high.ID)

	n, err := repo.CountActiveSimilar(ctx, models.AlertAbnormalSpend, models.EntityExpenseCategory, "alimento",
		now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := repo.Active(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, models.PriorityHigh, active[0].Priority)
	require.NotNil(t, active[0].CurrentValue)
	assert.Equal(t, 160.0, *active[0].CurrentValue)
	assert.Nil(t, active[1].CurrentValue)

	onlyLow, err := repo.Active(ctx, models.PriorityLow, 0)
	require.NoError(t, err)
	assert.Len(t, onlyLow, 1)

	require.NoError(t, repo.Resolve(ctx, high.ID))
	assert.ErrorIs(t, repo.Resolve(ctx, high.ID), models.ErrNotFound)

	recent, err := repo.DetectedBetween(ctx, now.Add(-24*time.Hour), now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestPeriodLockRepository_Idempotent(t *testing.T) {
	repo := queries.NewPeriodLockRepository(testutil.NewDB(t))
	ctx := context.Background()
	p := models.NewPeriod(2025, 1)

	require.NoError(t, repo.Lock(ctx, p, models.DomainSales, "ana"))
	require.NoError(t, repo.Lock(ctx, p, models.DomainSales, "luis"))

	locks, err := repo.List(ctx, p)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "ana", locks[0].LockedBy)

	locked, err := repo.IsLocked(ctx, p, models.DomainPayroll)
	require.NoError(t, err)
	assert.False(t, locked)
}
