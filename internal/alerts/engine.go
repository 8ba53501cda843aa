package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/farm-bi/internal/events"
	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/internal/metrics"
	"github.com/OldStager01/farm-bi/pkg/models"
)

// AggregateSource provides the live operational aggregates the rules read.
type AggregateSource interface {
	ExpensesByCategory(ctx context.Context, from, to time.Time) (map[string]float64, error)
	DailyOutputAverage(ctx context.Context, from, to time.Time) (float64, int, error)
	PopulationAt(ctx context.Context, t time.Time) (int, error)
	DeathsBetween(ctx context.Context, from, to time.Time) (int, error)
	ServiceOutcomes(ctx context.Context, from, to time.Time) (int, int, error)
	AnimalsWithoutTreatmentSince(ctx context.Context, cutoff time.Time) ([]string, error)
	EmployeesWithoutPaymentSince(ctx context.Context, cutoff time.Time) ([]string, error)
	RecordCoverage(ctx context.Context, from, to time.Time) (models.RecordCoverage, error)
}

type Store interface {
	Insert(ctx context.Context, a *models.Alert) error
	CountActiveSimilar(ctx context.Context, alertType, entityType, entityID string, from, to time.Time) (int, error)
	Active(ctx context.Context, priority models.AlertPriority, limit int) ([]models.Alert, error)
}

type Config struct {
	DedupWindow        time.Duration
	AverageMonths      int
	SpendPct           float64
	SpendHighPct       float64
	OutputWindowDays   int
	OutputBaseDays     int
	OutputPct          float64
	OutputHighPct      float64
	LossPct            float64
	LossHighPct        float64
	SuccessWindowDays  int
	SuccessPct         float64
	SuccessHighPct     float64
	MinSample          int
	ReviewDays         int
	ReviewMinAnimals   int
	PayrollDays        int
	PayrollHighCount   int
	QualityHigh        float64
	QualityMedium      float64
	QualityCoveragePct float64
	QualityMinDays     int
	Now                func() time.Time
}

// Rule evaluates one heuristic at a reference date.
type Rule func(ctx context.Context, ref time.Time) ([]*models.Alert, error)

type Engine struct {
	config    Config
	source    AggregateSource
	store     Store
	publisher *events.Publisher
	now       func() time.Time
	rules     []namedRule
}

type namedRule struct {
	name string
	fn   Rule
}

func New(cfg Config, source AggregateSource, store Store, publisher *events.Publisher) *Engine {
	if cfg.DedupWindow == 0 {
		cfg.DedupWindow = 7 * 24 * time.Hour
	}
	if cfg.AverageMonths == 0 {
		cfg.AverageMonths = 6
	}
	if cfg.SpendPct == 0 {
		cfg.SpendPct = 130
	}
	if cfg.SpendHighPct == 0 {
		cfg.SpendHighPct = 150
	}
	if cfg.OutputWindowDays == 0 {
		cfg.OutputWindowDays = 30
	}
	if cfg.OutputBaseDays == 0 {
		cfg.OutputBaseDays = 180
	}
	if cfg.OutputPct == 0 {
		cfg.OutputPct = 80
	}
	if cfg.OutputHighPct == 0 {
		cfg.OutputHighPct = 70
	}
	if cfg.LossPct == 0 {
		cfg.LossPct = 5
	}
	if cfg.LossHighPct == 0 {
		cfg.LossHighPct = 10
	}
	if cfg.SuccessWindowDays == 0 {
		cfg.SuccessWindowDays = 90
	}
	if cfg.SuccessPct == 0 {
		cfg.SuccessPct = 60
	}
	if cfg.SuccessHighPct == 0 {
		cfg.SuccessHighPct = 50
	}
	if cfg.MinSample == 0 {
		cfg.MinSample = 5
	}
	if cfg.ReviewDays == 0 {
		cfg.ReviewDays = 180
	}
	if cfg.ReviewMinAnimals == 0 {
		cfg.ReviewMinAnimals = 5
	}
	if cfg.PayrollDays == 0 {
		cfg.PayrollDays = 45
	}
	if cfg.PayrollHighCount == 0 {
		cfg.PayrollHighCount = 3
	}
	if cfg.QualityHigh == 0 {
		cfg.QualityHigh = 85
	}
	if cfg.QualityMedium == 0 {
		cfg.QualityMedium = 70
	}
	if cfg.QualityCoveragePct == 0 {
		cfg.QualityCoveragePct = 80
	}
	if cfg.QualityMinDays == 0 {
		cfg.QualityMinDays = 7
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		config:    cfg,
		source:    source,
		store:     store,
		publisher: publisher,
		now:       now,
	}
	e.rules = []namedRule{
		{"abnormal_spend", e.AbnormalSpend},
		{"low_output", e.LowOutput},
		{"high_loss", e.HighLoss},
		{"low_success_rate", e.LowSuccessRate},
		{"stale_actions", e.StaleActions},
		{"data_quality", e.DataQuality},
	}
	return e
}

// EvaluateAll runs every rule at ref and appends the detector candidates.
// A failing rule does not stop the others; its error is joined into the
// returned error next to the alerts that were produced, including any the
// failing rule found before it failed.
func (e *Engine) EvaluateAll(ctx context.Context, ref time.Time, candidates ...*models.Alert) ([]*models.Alert, error) {
	var out []*models.Alert
	var errs []error

	for _, rule := range e.rules {
		found, err := rule.fn(ctx, ref)
		out = append(out, found...)
		if err != nil {
			logger.WithField("rule", rule.name).Warnf("Rule evaluation failed: %v", err)
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.name, err))
		}
	}
	out = append(out, candidates...)

	logger.WithFields(map[string]interface{}{
		"reference":  models.FormatDate(ref),
		"alerts":     len(out),
		"candidates": len(candidates),
	}).Info("Alert rules evaluated")

	return out, errors.Join(errs...)
}

// Persist inserts candidates that have no active twin of the same type and
// entity detected within the dedup window, counting against both the store
// and earlier candidates of the same batch. A failed lookup skips the
// candidate. It returns how many alerts were inserted.
func (e *Engine) Persist(ctx context.Context, alerts []*models.Alert) (int, error) {
	window := e.config.DedupWindow
	accepted := make(map[string][]time.Time)
	inserted := 0
	var errs []error

	for _, a := range alerts {
		key := a.DedupKey()
		detected := a.DetectedAt.Time

		if withinWindow(accepted[key], detected, window) {
			metrics.AlertsDeduplicated.Inc()
			continue
		}

		n, err := e.store.CountActiveSimilar(ctx, a.Type, a.EntityType, a.EntityID,
			detected.Add(-window), detected.Add(window))
		if err != nil {
			logger.WithField("alert_type", a.Type).Warnf("Dedup lookup failed, skipping alert: %v", err)
			metrics.AlertsDeduplicated.Inc()
			continue
		}
		if n > 0 {
			metrics.AlertsDeduplicated.Inc()
			continue
		}

		if a.Status == "" {
			a.Status = models.AlertActive
		}
		if err := e.store.Insert(ctx, a); err != nil {
			logger.WithField("alert_type", a.Type).Errorf("Failed to insert alert: %v", err)
			errs = append(errs, err)
			continue
		}

		accepted[key] = append(accepted[key], detected)
		inserted++
		metrics.AlertsRaised.WithLabelValues(a.Type, string(a.Priority)).Inc()
		e.publisher.AlertRaised(a)
	}

	logger.WithFields(map[string]interface{}{
		"evaluated": len(alerts),
		"inserted":  inserted,
	}).Info("Alerts persisted")

	return inserted, errors.Join(errs...)
}

// Active lists active alerts, most urgent first. An empty priority lists
// all of them.
func (e *Engine) Active(ctx context.Context, priority models.AlertPriority) ([]models.Alert, error) {
	return e.store.Active(ctx, priority, 0)
}

func withinWindow(times []time.Time, t time.Time, window time.Duration) bool {
	for _, other := range times {
		d := t.Sub(other)
		if d < 0 {
			d = -d
		}
		if d < window {
			return true
		}
	}
	return false
}
