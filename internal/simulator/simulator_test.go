package simulator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/farm-bi/internal/simulator"
	"github.com/OldStager01/farm-bi/internal/testutil"
	"github.com/OldStager01/farm-bi/pkg/database/queries"
	"github.com/OldStager01/farm-bi/pkg/models"
)

func TestPatterns(t *testing.T) {
	start := models.NewPeriod(2024, 1)

	tests := []struct {
		name    string
		pattern simulator.Pattern
		period  models.Period
		want    float64
	}{
		{"steady", &simulator.SteadyPattern{}, start, 100},
		{"seasonal peak", &simulator.SeasonalPattern{Amplitude: 0.2, PeakMonth: 5}, models.NewPeriod(2024, 5), 120},
		{"seasonal trough", &simulator.SeasonalPattern{Amplitude: 0.2, PeakMonth: 5}, models.NewPeriod(2024, 11), 80},
		{"rise before start", &simulator.GradualRisePattern{Start: start}, models.NewPeriod(2023, 12), 100},
		{"rise after two months", &simulator.GradualRisePattern{Start: start}, models.NewPeriod(2024, 3), 110},
		{"rise capped", &simulator.GradualRisePattern{Start: start, PctPerMonth: 10, MaxPct: 30}, models.NewPeriod(2025, 1), 130},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.pattern.Apply(100, tt.period), 1e-9)
		})
	}
}

func TestRandomPattern_StaysInSpread(t *testing.T) {
	p := simulator.NewRandomPattern(42, 0.1)
	for i := 0; i < 100; i++ {
		v := p.Apply(100, models.NewPeriod(2024, 1))
		assert.GreaterOrEqual(t, v, 90.0)
		assert.LessOrEqual(t, v, 110.0)
	}
}

func TestParsePattern(t *testing.T) {
	for _, name := range []string{"steady", "seasonal", "random", "gradual_rise"} {
		assert.Equal(t, name, simulator.ParsePattern(name, 1).Name())
	}
	assert.Equal(t, "steady", simulator.ParsePattern("unknown", 1).Name())
}

func TestSeed_FeedsMonthlySummary(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	sim := simulator.New(simulator.Config{Herd: 4, Employees: 1}, db)

	jan, feb := models.NewPeriod(2024, 1), models.NewPeriod(2024, 2)
	stats, err := sim.Seed(ctx, jan, feb)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Months)
	assert.Equal(t, 4, stats.Animals)
	assert.Equal(t, 4*(31+29), stats.Production)
	assert.Equal(t, 2, stats.Sales)
	assert.Equal(t, 4, stats.Expenses)
	assert.Equal(t, 2, stats.Payments)
	assert.Equal(t, 4, stats.Services)

	summary, err := queries.NewOperationalRepository(db).Summary(ctx, feb)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.ActiveAnimals)
	assert.Equal(t, 1, summary.PregnantAnimals)
	assert.Equal(t, 4, summary.ProductiveCows)
	assert.InDelta(t, 4*18*29, summary.TotalLiters, 1e-6)
	assert.InDelta(t, 4*18*29*1800, summary.IncomeMilk, 1e-3)
	assert.InDelta(t, 1_800_000, summary.CostSupplies, 1e-6)
	assert.InDelta(t, 1_600_000, summary.CostPayroll, 1e-6)
	assert.InDelta(t, 3_400_000, summary.CostTotal, 1e-6)
	assert.Equal(t, 2, summary.Services)

	// A later run reuses the herd and staff.
	stats, err = sim.Seed(ctx, models.NewPeriod(2024, 3), models.NewPeriod(2024, 3))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Animals)

	var animals int
	require.NoError(t, db.Get(&animals, `SELECT COUNT(*) FROM animal`))
	assert.Equal(t, 4, animals)
}

func TestSeed_RejectsInvertedRange(t *testing.T) {
	sim := simulator.New(simulator.Config{}, testutil.NewDB(t))
	_, err := sim.Seed(context.Background(), models.NewPeriod(2024, 5), models.NewPeriod(2024, 4))
	assert.ErrorIs(t, err, models.ErrInvalidPeriod)
}
