package anomaly

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
	Window      int
	MinValues   int
	Metrics     []string
	ZWeight     float64
	PctWeight   float64
	MediumScore int
	HighScore   int
	CacheTTL    time.Duration
}

func DefaultMetrics() []string {
	return []string{
		models.KPICostTotal,
		models.KPIIncomeTotal,
		models.KPIProduction,
		models.KPIGrossMarginPct,
		models.KPIMortalityPct,
	}
}

// Detector scores each tracked KPI of the latest snapshot against the
// snapshots before it.
type Detector struct {
	config    Config
	snapshots SnapshotSource
	cache     *cache.Cache
}

func New(cfg Config, snapshots SnapshotSource, c *cache.Cache) *Detector {
	if cfg.Window == 0 {
		cfg.Window = 7
	}
	if cfg.MinValues == 0 {
		cfg.MinValues = 3
	}
	if len(cfg.Metrics) == 0 {
		cfg.Metrics = DefaultMetrics()
	}
	if cfg.ZWeight == 0 {
		cfg.ZWeight = 20
	}
	if cfg.PctWeight == 0 {
		cfg.PctWeight = 0.5
	}
	if cfg.MediumScore == 0 {
		cfg.MediumScore = 30
	}
	if cfg.HighScore == 0 {
		cfg.HighScore = 60
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 2 * time.Hour
	}

	return &Detector{
		config:    cfg,
		snapshots: snapshots,
		cache:     c,
	}
}

func CacheKey(asOf models.Period) string {
	return "ai_anomalies_6m:" + asOf.String()
}

// Detect evaluates every tracked metric over the window ending at asOf. The
// batch is cached as a whole under CacheKey and tagged as KPI-derived.
func (d *Detector) Detect(ctx context.Context, asOf models.Period) ([]models.AnomalyResult, error) {
	compute := func(ctx context.Context) ([]models.AnomalyResult, error) {
		return d.compute(ctx, asOf)
	}
	if d.cache == nil {
		return compute(ctx)
	}
	return cache.GetOrCompute(ctx, d.cache, CacheKey(asOf), d.config.CacheTTL, compute, d.cache.KPITag())
}

func (d *Detector) compute(ctx context.Context, asOf models.Period) ([]models.AnomalyResult, error) {
	snaps, err := d.snapshots.GetSnapshotsInRange(ctx, asOf.AddMonths(-(d.config.Window - 1)), asOf)
	if err != nil {
		return nil, err
	}

	results := make([]models.AnomalyResult, 0, len(d.config.Metrics))
	for _, metric := range d.config.Metrics {
		result, ok := d.Evaluate(metric, models.Series(snaps, metric))
		if !ok {
			logger.WithField("metric", metric).Debug("Not enough history, skipping metric")
			continue
		}
		if result.Level != models.LevelLow {
			metrics.AnomaliesDetected.WithLabelValues(metric, string(result.Level)).Inc()
		}
		results = append(results, result)
	}

	logger.WithPeriod(asOf).WithFields(map[string]interface{}{
		"snapshots": len(snaps),
		"results":   len(results),
	}).Info("Anomaly detection finished")

	return results, nil
}

// Evaluate scores the last point of a series against up to Window-1 points
// before it. It reports false when fewer than MinValues points exist.
func (d *Detector) Evaluate(metric string, points []models.SeriesPoint) (models.AnomalyResult, bool) {
	if len(points) > d.config.Window {
		points = points[len(points)-d.config.Window:]
	}
	if len(points) < d.config.MinValues || len(points) < 2 {
		return models.AnomalyResult{}, false
	}

	current := points[len(points)-1]
	history := make([]float64, 0, len(points)-1)
	for _, p := range points[:len(points)-1] {
		history = append(history, p.Value)
	}

	mean, std := meanStd(history)

	var z, pct float64
	if std != 0 {
		z = (current.Value - mean) / std
	}
	if mean != 0 {
		pct = (current.Value - mean) / math.Abs(mean) * 100
	}

	score := scoreOf(math.Abs(z)*d.config.ZWeight + math.Abs(pct)*d.config.PctWeight)

	return models.AnomalyResult{
		Metric:       metric,
		Period:       current.Period,
		Score:        score,
		Level:        d.level(score),
		Current:      current.Value,
		Mean:         mean,
		StdDev:       std,
		ZScore:       z,
		PctDeviation: pct,
		Samples:      len(history),
		Explanation:  explain(metric, current.Value, mean, z, pct, len(history)),
	}, true
}

func (d *Detector) level(score int) models.Level {
	switch {
	case score < d.config.MediumScore:
		return models.LevelLow
	case score < d.config.HighScore:
		return models.LevelMedium
	default:
		return models.LevelHigh
	}
}

// ToCandidates turns MEDIUM and HIGH results into alert candidates detected
// at the given time.
func ToCandidates(results []models.AnomalyResult, detectedAt time.Time) []*models.Alert {
	var out []*models.Alert
	for _, r := range results {
		priority, ok := r.Level.AlertPriority()
		if !ok {
			continue
		}
		out = append(out, models.NewAlert(
			alertType(r.Metric),
			priority,
			"Anomaly in "+r.Metric,
			r.Explanation,
			detectedAt,
		).WithEntity(models.EntitySnapshot, r.Period.String()+"/"+r.Metric).WithValues(r.Current, r.Mean))
	}
	return out
}

func alertType(metric string) string {
	for _, financial := range []string{"costo", "ingreso", "margen"} {
		if strings.Contains(metric, financial) {
			return models.AlertFinancialAnomaly
		}
	}
	return models.AlertProductiveAnomaly
}

func explain(metric string, current, mean, z, pct float64, samples int) string {
	direction := "increased"
	if current < mean {
		direction = "decreased"
	}
	return fmt.Sprintf("%s %s %.1f%% vs the %d-month average. z=%.2f, current=%.2f, mean=%.2f",
		models.MetricWords(metric), direction, math.Abs(pct), samples, z, current, mean)
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))

	return mean, math.Sqrt(variance)
}

// scoreOf clamps in float64 before converting: a mean near zero drives pct
// far past the int range.
func scoreOf(raw float64) int {
	switch {
	case math.IsNaN(raw) || raw >= 100:
		return 100
	case raw <= 0:
		return 0
	default:
		return int(math.Round(raw))
	}
}
