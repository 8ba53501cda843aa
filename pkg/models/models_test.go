package models_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/farm-bi/pkg/models"
)

func TestPeriod_Arithmetic(t *testing.T) {
	tests := []struct {
		name     string
		period   models.Period
		months   int
		expected models.Period
	}{
		{"previous month", models.NewPeriod(2025, 3), -1, models.NewPeriod(2025, 2)},
		{"wraps year backwards", models.NewPeriod(2025, 1), -1, models.NewPeriod(2024, 12)},
		{"wraps year forwards", models.NewPeriod(2024, 12), 1, models.NewPeriod(2025, 1)},
		{"six months back", models.NewPeriod(2025, 1), -6, models.NewPeriod(2024, 7)},
		{"two years ahead", models.NewPeriod(2023, 5), 24, models.NewPeriod(2025, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.period.AddMonths(tt.months))
		})
	}
}

func TestPeriod_KeyRoundTrip(t *testing.T) {
	p := models.NewPeriod(2024, 12)
	assert.Equal(t, p, models.PeriodFromKey(p.Key()))
	assert.Equal(t, p.Key()+1, models.NewPeriod(2025, 1).Key())
}

func TestPeriod_Bounds(t *testing.T) {
	p := models.NewPeriod(2024, 2)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), p.End())
	assert.Equal(t, "2024-02", p.String())
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		input   string
		want    models.Period
		wantErr bool
	}{
		{"2025-01", models.NewPeriod(2025, 1), false},
		{"2024-12", models.NewPeriod(2024, 12), false},
		{"2024-13", models.Period{}, true},
		{"2024-00", models.Period{}, true},
		{"garbage", models.Period{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := models.ParsePeriod(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidPeriod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPersistenceError_Is(t *testing.T) {
	cause := errors.New("connection refused")
	err := models.Persistence("insert alert", cause)

	assert.ErrorIs(t, err, models.ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "insert alert")

	assert.NoError(t, models.Persistence("noop", nil))
	assert.Equal(t, models.ErrNotFound, models.Persistence("get", models.ErrNotFound))
}

func TestUnixTime_ScanValue(t *testing.T) {
	ts := time.Date(2025, 1, 31, 12, 30, 0, 0, time.UTC)
	u := models.NewUnixTime(ts)

	v, err := u.Value()
	require.NoError(t, err)
	assert.Equal(t, ts.Unix(), v)

	var scanned models.UnixTime
	require.NoError(t, scanned.Scan(ts.Unix()))
	assert.True(t, ts.Equal(scanned.Time))

	require.NoError(t, scanned.Scan([]byte("0")))
	assert.True(t, scanned.IsZero())

	assert.Error(t, scanned.Scan(true))
}

func TestPeriodSummary_Finalize(t *testing.T) {
	s := models.PeriodSummary{IncomeTotal: 12_000_000, CostTotal: 8_000_000, Deaths: 3, OpeningAnimals: 50}
	s.Finalize()

	assert.Equal(t, 4_000_000.0, s.GrossMargin)
	assert.InDelta(t, 33.333, s.GrossMarginPct, 0.001)
	assert.InDelta(t, 6.0, s.MortalityPct(), 0.0001)

	kpis := make(map[string]models.KPIValue)
	for _, k := range s.KPIs() {
		kpis[k.Name] = k
	}
	assert.Equal(t, 8_000_000.0, kpis[models.KPICostTotal].Value)
	assert.Equal(t, models.CategoryFinancial, kpis[models.KPICostTotal].Category)
	assert.Equal(t, models.CategoryHealth, kpis[models.KPIMortalityPct].Category)
}

func TestPctChange(t *testing.T) {
	assert.Equal(t, 0.0, models.PctChange(0, 50))
	assert.Equal(t, 50.0, models.PctChange(100, 150))
	assert.Equal(t, 50.0, models.PctChange(-100, -50))
}

func TestDecodePayload_MigratesV1(t *testing.T) {
	v1 := map[string]interface{}{
		"summary": map[string]interface{}{"year": 2024, "month": 6, "income_total": 100.0},
		"kpis": map[string]float64{
			models.KPICostTotal:  80,
			models.KPIProduction: 5000,
			"custom_metric":      1,
		},
		"alerts":               map[string]interface{}{"total": 2},
		"margin_variation_pct": -12.5,
	}
	data, err := json.Marshal(v1)
	require.NoError(t, err)

	payload, err := models.DecodePayload(models.SnapshotSchemaV1, data)
	require.NoError(t, err)

	assert.Equal(t, models.CurrentSnapshotSchema, payload.SchemaVersion)
	assert.Equal(t, models.NewPeriod(2024, 6), payload.Period)
	assert.Equal(t, models.KPIEntry{Value: 80, Category: models.CategoryFinancial}, payload.KPIs[models.KPICostTotal])
	assert.Equal(t, models.CategoryProductive, payload.KPIs[models.KPIProduction].Category)
	assert.Equal(t, "general", payload.KPIs["custom_metric"].Category)
	assert.Equal(t, -12.5, payload.Trends[models.KPIGrossMargin])
	assert.Equal(t, 3, payload.Stats.KPICount)
}

func TestDecodePayload_UnknownVersion(t *testing.T) {
	_, err := models.DecodePayload(99, []byte(`{}`))
	assert.Error(t, err)
}

func TestLevel_AlertPriority(t *testing.T) {
	p, ok := models.LevelHigh.AlertPriority()
	assert.True(t, ok)
	assert.Equal(t, models.PriorityHigh, p)

	p, ok = models.LevelMedium.AlertPriority()
	assert.True(t, ok)
	assert.Equal(t, models.PriorityMedium, p)

	_, ok = models.LevelLow.AlertPriority()
	assert.False(t, ok)
}
