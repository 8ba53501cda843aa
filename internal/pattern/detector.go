package pattern

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/OldStager01/farm-bi/internal/cache"
	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/internal/metrics"
	"github.com/OldStager01/farm-bi/pkg/models"
)

type SnapshotSource interface {
	GetSnapshotsInRange(ctx context.Context, start, end models.Period) ([]models.Snapshot, error)
}

type Config struct {
	Window         int
	Metrics        []string
	CostMetrics    []string
	SeasonalMedium float64
	SeasonalHigh   float64
	RampValues     int
	RampMinValues  int
	RampLength     int
	CacheTTL       time.Duration
}

func DefaultMetrics() []string {
	return []string{
		models.KPIProduction,
		models.KPICostTotal,
		models.KPIIncomeTotal,
		models.KPIGrossMarginPct,
	}
}

type Detector struct {
	config    Config
	snapshots SnapshotSource
	cache     *cache.Cache
	cost      map[string]bool
}

func New(cfg Config, snapshots SnapshotSource, c *cache.Cache) *Detector {
	if cfg.Window == 0 {
		cfg.Window = 13
	}
	if len(cfg.Metrics) == 0 {
		cfg.Metrics = DefaultMetrics()
	}
	if len(cfg.CostMetrics) == 0 {
		cfg.CostMetrics = []string{models.KPICostTotal}
	}
	if cfg.SeasonalMedium == 0 {
		cfg.SeasonalMedium = 10
	}
	if cfg.SeasonalHigh == 0 {
		cfg.SeasonalHigh = 20
	}
	if cfg.RampValues == 0 {
		cfg.RampValues = 6
	}
	if cfg.RampMinValues == 0 {
		cfg.RampMinValues = 4
	}
	if cfg.RampLength == 0 {
		cfg.RampLength = 3
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 2 * time.Hour
	}

	cost := make(map[string]bool, len(cfg.CostMetrics))
	for _, m := range cfg.CostMetrics {
		cost[m] = true
	}

	return &Detector{
		config:    cfg,
		snapshots: snapshots,
		cache:     c,
		cost:      cost,
	}
}

func CacheKey(asOf models.Period) string {
	return "ai_patterns_12m:" + asOf.String()
}

// Detect runs both sub-algorithms for every tracked metric over the window
// ending at asOf and caches the combined insight list.
func (d *Detector) Detect(ctx context.Context, asOf models.Period) ([]models.PatternInsight, error) {
	compute := func(ctx context.Context) ([]models.PatternInsight, error) {
		return d.compute(ctx, asOf)
	}
	if d.cache == nil {
		return compute(ctx)
	}
	return cache.GetOrCompute(ctx, d.cache, CacheKey(asOf), d.config.CacheTTL, compute, d.cache.KPITag())
}

func (d *Detector) compute(ctx context.Context, asOf models.Period) ([]models.PatternInsight, error) {
	snaps, err := d.snapshots.GetSnapshotsInRange(ctx, asOf.AddMonths(-(d.config.Window - 1)), asOf)
	if err != nil {
		return nil, err
	}

	insights := make([]models.PatternInsight, 0)
	for _, metric := range d.config.Metrics {
		points := models.Series(snaps, metric)
		if insight, ok := d.Seasonality(metric, points); ok {
			insights = append(insights, insight)
		}
		if insight, ok := d.Ramp(metric, points); ok {
			insights = append(insights, insight)
		}
	}

	for _, in := range insights {
		metrics.PatternsDetected.WithLabelValues(string(in.Kind), string(in.Level)).Inc()
	}
	logger.WithPeriod(asOf).WithFields(map[string]interface{}{
		"snapshots": len(snaps),
		"insights":  len(insights),
	}).Info("Pattern detection finished")

	return insights, nil
}

// Seasonality compares the last point with the average of earlier points of
// the same calendar month.
func (d *Detector) Seasonality(metric string, points []models.SeriesPoint) (models.PatternInsight, bool) {
	if len(points) == 0 {
		return models.PatternInsight{}, false
	}
	current := points[len(points)-1]

	var sum float64
	var n int
	for _, p := range points[:len(points)-1] {
		if p.Period.Month == current.Period.Month {
			sum += p.Value
			n++
		}
	}
	if n == 0 {
		return models.PatternInsight{}, false
	}
	avg := sum / float64(n)
	if avg <= 0 {
		return models.PatternInsight{}, false
	}

	pct := (current.Value - avg) / avg * 100
	level := models.LevelLow
	switch {
	case math.Abs(pct) >= d.config.SeasonalHigh:
		level = models.LevelHigh
	case math.Abs(pct) >= d.config.SeasonalMedium:
		level = models.LevelMedium
	}

	position := "above"
	if current.Value < avg {
		position = "below"
	}

	return models.PatternInsight{
		Metric: metric,
		Kind:   models.PatternSeasonality,
		Level:  level,
		Period: current.Period,
		Description: fmt.Sprintf("%s this month is %s the historical average for the month (%.1f%%).",
			models.MetricWords(metric), position, math.Abs(pct)),
		Evidence: []string{
			fmt.Sprintf("Month %02d: current=%.2f, month_avg=%.2f", current.Period.Month, current.Value, avg),
		},
		Current:   current.Value,
		Reference: avg,
	}, true
}

// Ramp looks at the last RampValues points for RampLength consecutive
// increases on a cost metric or decreases on any other metric.
func (d *Detector) Ramp(metric string, points []models.SeriesPoint) (models.PatternInsight, bool) {
	if len(points) > d.config.RampValues {
		points = points[len(points)-d.config.RampValues:]
	}
	if len(points) < d.config.RampMinValues {
		return models.PatternInsight{}, false
	}

	kind, want, description := models.PatternProductionRamp, -1, "consecutive decline"
	if d.cost[metric] {
		kind, want, description = models.PatternCostRamp, 1, "consecutive increase"
	}

	run := 0
	found := false
	for i := 1; i < len(points); i++ {
		if direction(points[i-1].Value, points[i].Value) == want {
			run++
		} else {
			run = 0
		}
		if run >= d.config.RampLength {
			found = true
			break
		}
	}
	if !found {
		return models.PatternInsight{}, false
	}

	values := make([]string, len(points))
	for i, p := range points {
		values[i] = fmt.Sprintf("%.0f", p.Value)
	}
	current := points[len(points)-1]

	return models.PatternInsight{
		Metric: metric,
		Kind:   kind,
		Level:  models.LevelHigh,
		Period: current.Period,
		Description: fmt.Sprintf("%s shows a %s over %d months.",
			models.MetricWords(metric), description, d.config.RampLength),
		Evidence:  []string{"Series: " + strings.Join(values, ", ")},
		Current:   current.Value,
		Reference: points[0].Value,
	}, true
}

func direction(prev, curr float64) int {
	switch {
	case curr > prev:
		return 1
	case curr < prev:
		return -1
	default:
		return 0
	}
}

// ToCandidates turns MEDIUM and HIGH insights into alert candidates.
func ToCandidates(insights []models.PatternInsight, detectedAt time.Time) []*models.Alert {
	var out []*models.Alert
	for _, in := range insights {
		priority, ok := in.Level.AlertPriority()
		if !ok {
			continue
		}
		out = append(out, models.NewAlert(
			models.AlertPatternPrefix+string(in.Kind),
			priority,
			"Pattern in "+in.Metric,
			in.Description,
			detectedAt,
		).WithEntity(models.EntitySnapshot, in.Period.String()+"/"+in.Metric))
	}
	return out
}
