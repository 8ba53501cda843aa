package anomaly_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/farm-bi/internal/anomaly"
	"github.com/OldStager01/farm-bi/internal/cache"
	"github.com/OldStager01/farm-bi/internal/testutil"
	"github.com/OldStager01/farm-bi/pkg/database/queries"
	"github.com/OldStager01/farm-bi/pkg/models"
)

func series(start models.Period, values ...float64) []models.SeriesPoint {
	points := make([]models.SeriesPoint, len(values))
	for i, v := range values {
		points[i] = models.SeriesPoint{Period: start.AddMonths(i), Value: v}
	}
	return points
}

func TestEvaluate(t *testing.T) {
	d := anomaly.New(anomaly.Config{}, nil, nil)
	start := models.NewPeriod(2024, 7)

	tests := []struct {
		name      string
		values    []float64
		wantOK    bool
		wantScore int
		wantLevel models.Level
		wantZ     float64
		wantPct   float64
	}{
		{
			name:   "too few values",
			values: []float64{1, 2},
			wantOK: false,
		},
		{
			name:      "cost spike",
			values:    []float64{4.5e6, 5.5e6, 4.5e6, 5.5e6, 4.5e6, 5.5e6, 8e6},
			wantOK:    true,
			wantScore: 100,
			wantLevel: models.LevelHigh,
			wantZ:     6,
			wantPct:   60,
		},
		{
			name:      "flat history has zero z",
			values:    []float64{100, 100, 100, 110},
			wantOK:    true,
			wantScore: 5,
			wantLevel: models.LevelLow,
			wantZ:     0,
			wantPct:   10,
		},
		{
			name:      "zero mean has zero pct",
			values:    []float64{-10, 10, -10, 10, 0},
			wantOK:    true,
			wantScore: 0,
			wantLevel: models.LevelLow,
			wantZ:     0,
			wantPct:   0,
		},
		{
			name:      "medium drop",
			values:    []float64{90, 110, 90, 110, 80},
			wantOK:    true,
			wantScore: 50,
			wantLevel: models.LevelMedium,
			wantZ:     -2,
			wantPct:   -20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.Evaluate(models.KPICostTotal, series(start, tt.values...))

			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, tt.wantLevel, got.Level)
			assert.InDelta(t, tt.wantZ, got.ZScore, 1e-9)
			assert.InDelta(t, tt.wantPct, got.PctDeviation, 1e-9)
			assert.Equal(t, start.AddMonths(len(tt.values)-1), got.Period)
		})
	}
}

func TestEvaluate_UsesAtMostSixPriorValues(t *testing.T) {
	d := anomaly.New(anomaly.Config{}, nil, nil)

	got, ok := d.Evaluate(models.KPICostTotal, series(models.NewPeriod(2024, 1),
		1000, 1000, 90, 110, 90, 110, 90, 110, 100))

	require.True(t, ok)
	assert.Equal(t, 6, got.Samples)
	assert.InDelta(t, 100, got.Mean, 1e-9)
	assert.InDelta(t, 10, got.StdDev, 1e-9)
}

func TestEvaluate_ScoreMonotonic(t *testing.T) {
	d := anomaly.New(anomaly.Config{}, nil, nil)
	history := []float64{90, 110, 90, 110, 90, 110}

	last := -1
	for current := 100.0; current <= 200; current += 5 {
		got, ok := d.Evaluate(models.KPICostTotal, series(models.NewPeriod(2024, 1), append(history, current)...))
		require.True(t, ok)

		if last == 100 {
			assert.Equal(t, 100, got.Score)
		} else {
			assert.Greater(t, got.Score, last, "current=%.0f", current)
		}
		last = got.Score
	}
	assert.Equal(t, 100, last)
}

func TestEvaluate_NearZeroMeanSaturates(t *testing.T) {
	d := anomaly.New(anomaly.Config{}, nil, nil)

	// 0.1 + 0.2 - 0.3 leaves a float mean of about 1e-17.
	for _, current := range []float64{1, 5, 10, 1e6} {
		got, ok := d.Evaluate(models.KPIGrossMarginPct, series(models.NewPeriod(2024, 1), 0.1, 0.2, -0.3, current))
		require.True(t, ok)
		assert.Equal(t, 100, got.Score, "current=%g", current)
		assert.Equal(t, models.LevelHigh, got.Level, "current=%g", current)
	}
}

func TestEvaluate_Explanation(t *testing.T) {
	d := anomaly.New(anomaly.Config{}, nil, nil)

	got, ok := d.Evaluate(models.KPIProduction, series(models.NewPeriod(2024, 1), 90, 110, 90, 110, 80))

	require.True(t, ok)
	assert.Equal(t,
		"produccion total decreased 20.0% vs the 4-month average. z=-2.00, current=80.00, mean=100.00",
		got.Explanation)
}

func TestToCandidates(t *testing.T) {
	jan := models.NewPeriod(2025, 1)
	at := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	alerts := anomaly.ToCandidates([]models.AnomalyResult{
		{Metric: models.KPICostTotal, Period: jan, Level: models.LevelHigh, Current: 8, Mean: 5},
		{Metric: models.KPIProduction, Period: jan, Level: models.LevelMedium, Current: 1, Mean: 2},
		{Metric: models.KPIIncomeTotal, Period: jan, Level: models.LevelLow},
	}, at)

	require.Len(t, alerts, 2)
	assert.Equal(t, models.AlertFinancialAnomaly, alerts[0].Type)
	assert.Equal(t, models.PriorityHigh, alerts[0].Priority)
	assert.Equal(t, models.EntitySnapshot, alerts[0].EntityType)
	assert.Equal(t, "2025-01/costo_total", alerts[0].EntityID)
	assert.Equal(t, 5.0, *alerts[0].ReferenceValue)

	assert.Equal(t, models.AlertProductiveAnomaly, alerts[1].Type)
	assert.Equal(t, models.PriorityMedium, alerts[1].Priority)
	assert.True(t, alerts[1].DetectedAt.Equal(at))
}

type fakeSnapshots struct {
	snaps []models.Snapshot
	calls int
	err   error
}

func (f *fakeSnapshots) GetSnapshotsInRange(_ context.Context, start, end models.Period) ([]models.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Snapshot
	for _, s := range f.snaps {
		if !s.Period().Before(start) && !end.Before(s.Period()) {
			out = append(out, s)
		}
	}
	return out, nil
}

func snapshotsOf(start models.Period, metric string, values ...float64) []models.Snapshot {
	snaps := make([]models.Snapshot, len(values))
	for i, v := range values {
		p := start.AddMonths(i)
		snaps[i] = models.Snapshot{
			Year: p.Year, Month: p.Month,
			Payload: models.SnapshotPayload{KPIs: map[string]models.KPIEntry{metric: {Value: v}}},
		}
	}
	return snaps
}

func TestDetect_WindowAndCache(t *testing.T) {
	src := &fakeSnapshots{snaps: snapshotsOf(models.NewPeriod(2024, 1), models.KPICostTotal,
		9e9, 9e9, 9e9, 9e9, 9e9, 9e9, 4.5e6, 5.5e6, 4.5e6, 5.5e6, 4.5e6, 5.5e6, 8e6)}
	c := cache.New(queries.NewCacheEntryRepository(testutil.NewDB(t)))
	d := anomaly.New(anomaly.Config{Metrics: []string{models.KPICostTotal, models.KPIProduction}}, src, c)
	ctx := context.Background()
	asOf := models.NewPeriod(2025, 1)

	results, err := d.Detect(ctx, asOf)
	require.NoError(t, err)
	require.Len(t, results, 1, "produccion_total has no values and is skipped")
	assert.Equal(t, 100, results[0].Score)
	assert.Equal(t, asOf, results[0].Period)

	again, err := d.Detect(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, results, again)
	assert.Equal(t, 1, src.calls)

	n, err := c.InvalidateOnNewSnapshot(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = d.Detect(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestDetect_SourceError(t *testing.T) {
	boom := errors.New("boom")
	d := anomaly.New(anomaly.Config{}, &fakeSnapshots{err: boom}, nil)

	_, err := d.Detect(context.Background(), models.NewPeriod(2025, 1))

	assert.ErrorIs(t, err, boom)
}
