package closing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/OldStager01/farm-bi/internal/anomaly"
	"github.com/OldStager01/farm-bi/internal/backup"
	"github.com/OldStager01/farm-bi/internal/cache"
	"github.com/OldStager01/farm-bi/internal/events"
	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/internal/metrics"
	"github.com/OldStager01/farm-bi/internal/pattern"
	"github.com/OldStager01/farm-bi/pkg/models"
)

// SummarySource aggregates the operational data of a month.
type SummarySource interface {
	Summary(ctx context.Context, p models.Period) (*models.PeriodSummary, error)
}

// SummaryStore persists closed summaries. Save must return
// models.ErrAlreadyClosed when the period already has one.
type SummaryStore interface {
	Save(ctx context.Context, s *models.PeriodSummary, kpis []models.KPIValue) error
	Get(ctx context.Context, p models.Period) (*models.PeriodSummary, error)
	Exists(ctx context.Context, p models.Period) (bool, error)
	List(ctx context.Context, year int) ([]models.PeriodSummary, error)
}

type Locker interface {
	Lock(ctx context.Context, p models.Period, domain, actor string) error
}

type SnapshotGenerator interface {
	GenerateSnapshot(ctx context.Context, p models.Period, actor string) (*models.Snapshot, error)
}

type AnomalyDetector interface {
	Detect(ctx context.Context, asOf models.Period) ([]models.AnomalyResult, error)
}

type PatternDetector interface {
	Detect(ctx context.Context, asOf models.Period) ([]models.PatternInsight, error)
}

type AlertEngine interface {
	EvaluateAll(ctx context.Context, ref time.Time, candidates ...*models.Alert) ([]*models.Alert, error)
	Persist(ctx context.Context, alerts []*models.Alert) (int, error)
}

type Config struct {
	MinYear       int
	LockDomains   []string
	ComparisonTTL time.Duration
	Now           func() time.Time
}

// Deps are the collaborators of a close. Backup and Publisher may be nil.
type Deps struct {
	Source    SummarySource
	Summaries SummaryStore
	Locker    Locker
	Snapshots SnapshotGenerator
	Cache     *cache.Cache
	Anomalies AnomalyDetector
	Patterns  PatternDetector
	Alerts    AlertEngine
	Backup    backup.Requester
	Publisher *events.Publisher
}

type CloseRequest struct {
	Period models.Period
	Actor  string
	Notes  string
}

type Orchestrator struct {
	config Config
	deps   Deps
	now    func() time.Time

	mu       sync.Mutex
	inflight map[int]struct{}
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.MinYear == 0 {
		cfg.MinYear = 2020
	}
	if len(cfg.LockDomains) == 0 {
		cfg.LockDomains = models.DefaultLockDomains()
	}
	if cfg.ComparisonTTL == 0 {
		cfg.ComparisonTTL = time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if deps.Backup == nil {
		deps.Backup = backup.NoopRequester{}
	}

	return &Orchestrator{
		config:   cfg,
		deps:     deps,
		now:      now,
		inflight: make(map[int]struct{}),
	}
}

// Validate checks that a period can be closed at all: a real month, not
// before the configured first year and already started.
func (o *Orchestrator) Validate(p models.Period) error {
	if !p.Valid() {
		return fmt.Errorf("%w: month %d", models.ErrInvalidPeriod, p.Month)
	}
	if p.Year < o.config.MinYear {
		return fmt.Errorf("%w: year %d is before %d", models.ErrInvalidPeriod, p.Year, o.config.MinYear)
	}
	if p.Start().After(o.now()) {
		return fmt.Errorf("%w: %s has not started", models.ErrInvalidPeriod, p)
	}
	return nil
}

func (o *Orchestrator) IsClosed(ctx context.Context, p models.Period) (bool, error) {
	return o.deps.Summaries.Exists(ctx, p)
}

// CloseMonth freezes a month. Summary, locks and snapshot are hard steps:
// the first failure stops the run and is returned. Cache invalidation,
// detection with alerting and the backup request are soft: failures are
// recorded in the report and the close still succeeds.
func (o *Orchestrator) CloseMonth(ctx context.Context, req CloseRequest) (*Report, error) {
	period := req.Period
	if err := o.Validate(period); err != nil {
		return nil, err
	}
	if err := o.acquire(period); err != nil {
		return nil, err
	}
	defer o.release(period)

	closed, err := o.IsClosed(ctx, period)
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, fmt.Errorf("%w: %s", models.ErrAlreadyClosed, period)
	}

	report := o.newReport(period, req.Actor)
	pub := o.deps.Publisher.WithTraceID(report.RunID)
	log := logger.WithPeriod(period).WithField("run_id", report.RunID)
	log.WithField("actor", req.Actor).Info("Monthly close started")
	pub.CloseStarted(period, req.Actor)

	hard := []struct {
		name string
		fn   func(context.Context) (string, error)
	}{
		{StepSummary, func(ctx context.Context) (string, error) {
			s, err := o.freezeSummary(ctx, req)
			if err != nil {
				return "", err
			}
			report.Summary = s
			return fmt.Sprintf("%d KPIs", len(s.KPIs())), nil
		}},
		{StepLock, func(ctx context.Context) (string, error) {
			return o.lockDomains(ctx, period, req.Actor)
		}},
		{StepSnapshot, func(ctx context.Context) (string, error) {
			return o.snapshot(ctx, report, pub)
		}},
	}

	for _, step := range hard {
		res := o.runStep(ctx, log, step.name, step.fn)
		report.Hard = append(report.Hard, res)
		if !res.OK {
			return o.fail(report, pub, log, res)
		}
	}

	o.runSoftSteps(ctx, report, pub, log)
	return o.finish(report, pub, log), nil
}

// RegenerateSnapshot is the repair path for a closed period whose snapshot
// is missing or stale: it reruns the snapshot step and the soft steps.
func (o *Orchestrator) RegenerateSnapshot(ctx context.Context, period models.Period, actor string) (*Report, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("%w: month %d", models.ErrInvalidPeriod, period.Month)
	}
	if err := o.acquire(period); err != nil {
		return nil, err
	}
	defer o.release(period)

	report := o.newReport(period, actor)
	pub := o.deps.Publisher.WithTraceID(report.RunID)
	log := logger.WithPeriod(period).WithField("run_id", report.RunID)
	log.WithField("actor", actor).Info("Snapshot regeneration started")

	res := o.runStep(ctx, log, StepSnapshot, func(ctx context.Context) (string, error) {
		return o.snapshot(ctx, report, pub)
	})
	report.Hard = append(report.Hard, res)
	if !res.OK {
		return o.fail(report, pub, log, res)
	}

	o.runSoftSteps(ctx, report, pub, log)
	return o.finish(report, pub, log), nil
}

func (o *Orchestrator) runSoftSteps(ctx context.Context, report *Report, pub *events.Publisher, log *logrus.Entry) {
	period := report.Period
	soft := []struct {
		name string
		fn   func(context.Context) (string, error)
	}{
		{StepInvalidate, func(ctx context.Context) (string, error) {
			n, err := o.deps.Cache.InvalidateOnNewSnapshot(ctx, period)
			if err != nil {
				return "", err
			}
			pub.CacheInvalidated(period, n)
			return fmt.Sprintf("%d entries removed", n), nil
		}},
		{StepDetect, func(ctx context.Context) (string, error) {
			return o.detectAndAlert(ctx, report)
		}},
		{StepBackup, func(ctx context.Context) (string, error) {
			if err := o.deps.Backup.RequestBackup(ctx, backup.NewRequest(period, report.Actor)); err != nil {
				return "", err
			}
			pub.BackupRequested(period)
			return "requested", nil
		}},
	}

	for _, step := range soft {
		res := o.runStep(ctx, log, step.name, step.fn)
		report.Soft = append(report.Soft, res)
		if !res.OK {
			pub.StepDegraded(period, step.name, res.Err())
		}
	}
}

func (o *Orchestrator) freezeSummary(ctx context.Context, req CloseRequest) (*models.PeriodSummary, error) {
	s, err := o.deps.Source.Summary(ctx, req.Period)
	if err != nil {
		return nil, err
	}
	s.Year, s.Month = req.Period.Year, req.Period.Month
	s.Notes = req.Notes
	s.ClosedBy = req.Actor
	s.ClosedAt = models.NewUnixTime(o.now())
	s.Finalize()

	if err := o.deps.Summaries.Save(ctx, s, s.KPIs()); err != nil {
		return nil, err
	}
	return s, nil
}

func (o *Orchestrator) lockDomains(ctx context.Context, period models.Period, actor string) (string, error) {
	var errs []error
	for _, domain := range o.config.LockDomains {
		if err := o.deps.Locker.Lock(ctx, period, domain, actor); err != nil {
			errs = append(errs, fmt.Errorf("lock %s: %w", domain, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d domains", len(o.config.LockDomains)), nil
}

func (o *Orchestrator) snapshot(ctx context.Context, report *Report, pub *events.Publisher) (string, error) {
	snap, err := o.deps.Snapshots.GenerateSnapshot(ctx, report.Period, report.Actor)
	if err != nil {
		return "", err
	}
	report.Snapshot = snap
	pub.SnapshotGenerated(snap)
	return fmt.Sprintf("version %d", snap.Version), nil
}

// detectAndAlert runs both detectors concurrently, then evaluates the rules
// at the last day of the period with the detector findings as extra
// candidates. A failing detector does not stop the rules.
func (o *Orchestrator) detectAndAlert(ctx context.Context, report *Report) (string, error) {
	period := report.Period

	var (
		g         errgroup.Group
		anomalies []models.AnomalyResult
		insights  []models.PatternInsight
		detectErr [2]error
	)
	g.Go(func() error {
		detectErr[0] = contained("anomaly detector", func() (err error) {
			anomalies, err = o.deps.Anomalies.Detect(ctx, period)
			return err
		})
		return nil
	})
	g.Go(func() error {
		detectErr[1] = contained("pattern detector", func() (err error) {
			insights, err = o.deps.Patterns.Detect(ctx, period)
			return err
		})
		return nil
	})
	_ = g.Wait()

	report.Anomalies = anomalies
	report.Insights = insights

	detectedAt := o.now()
	candidates := append(anomaly.ToCandidates(anomalies, detectedAt), pattern.ToCandidates(insights, detectedAt)...)

	alerts, evalErr := o.deps.Alerts.EvaluateAll(ctx, period.End(), candidates...)
	inserted, persistErr := o.deps.Alerts.Persist(ctx, alerts)
	report.AlertsNew = inserted

	var errs []error
	if detectErr[0] != nil {
		errs = append(errs, fmt.Errorf("anomalies: %w", detectErr[0]))
	}
	if detectErr[1] != nil {
		errs = append(errs, fmt.Errorf("patterns: %w", detectErr[1]))
	}
	if evalErr != nil {
		errs = append(errs, evalErr)
	}
	if persistErr != nil {
		errs = append(errs, persistErr)
	}

	detail := fmt.Sprintf("%d anomalies, %d insights, %d candidates, %d alerts inserted",
		len(anomalies), len(insights), len(alerts), inserted)
	return detail, errors.Join(errs...)
}

func (o *Orchestrator) runStep(ctx context.Context, log *logrus.Entry, name string, fn func(context.Context) (string, error)) StepResult {
	stepLog := logger.WithStep(log, name)
	stepLog.Debug("Close step started")

	start := time.Now()
	var detail string
	err := contained("step "+name, func() (err error) {
		detail, err = fn(ctx)
		return err
	})
	res := StepResult{Step: name, OK: err == nil, Detail: detail, Duration: time.Since(start), err: err}
	metrics.ObserveStep(name, err)

	if err != nil {
		res.Error = err.Error()
		return res
	}
	stepLog.WithFields(logrus.Fields{
		"detail":   detail,
		"duration": res.Duration.String(),
	}).Info("Close step completed")
	return res
}

// contained runs fn and turns a panic into an error, so a broken
// collaborator degrades its step instead of taking the process down.
func contained(what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", what, r)
		}
	}()
	return fn()
}

func (o *Orchestrator) fail(report *Report, pub *events.Publisher, log *logrus.Entry, res StepResult) (*Report, error) {
	report.State = models.PeriodFailed
	report.FinishedAt = o.now()
	metrics.ObserveClose(string(report.State), report.FinishedAt.Sub(report.StartedAt))

	logger.WithStep(log, res.Step).WithError(res.Err()).Error("Monthly close failed")
	pub.CloseFailed(report.Period, res.Step, res.Err())
	return report, fmt.Errorf("close %s: step %s: %w", report.Period, res.Step, res.Err())
}

func (o *Orchestrator) finish(report *Report, pub *events.Publisher, log *logrus.Entry) *Report {
	report.State = models.PeriodClosed
	report.FinishedAt = o.now()
	metrics.ObserveClose(string(report.State), report.FinishedAt.Sub(report.StartedAt))

	for _, s := range report.Soft {
		if !s.OK {
			logger.WithStep(log, s.Step).Warnf("Close step degraded: %s", s.Error)
		}
	}
	log.WithFields(logrus.Fields{
		"degraded":   report.Degraded(),
		"alerts_new": report.AlertsNew,
	}).Info("Monthly close completed")
	pub.CloseCompleted(report.Period, report)
	return report
}

func (o *Orchestrator) newReport(period models.Period, actor string) *Report {
	return &Report{
		RunID:     models.NewUUID(),
		Period:    period,
		Actor:     actor,
		State:     models.PeriodClosing,
		StartedAt: o.now(),
	}
}

// acquire rejects a second run on the same period while one is in flight.
func (o *Orchestrator) acquire(p models.Period) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[p.Key()]; busy {
		return fmt.Errorf("%w: %s is being closed", models.ErrAlreadyClosed, p)
	}
	o.inflight[p.Key()] = struct{}{}
	return nil
}

func (o *Orchestrator) release(p models.Period) {
	o.mu.Lock()
	delete(o.inflight, p.Key())
	o.mu.Unlock()
}
