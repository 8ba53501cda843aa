package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OldStager01/farm-bi/internal/events"
	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/internal/metrics"
	"github.com/OldStager01/farm-bi/pkg/models"
)

// Job is one periodic task. Run gets a context bounded by the interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs      []Job
	publisher *events.Publisher
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
}

func New(publisher *events.Publisher, jobs ...Job) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:      jobs,
		publisher: publisher,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs every job with a positive interval in its own loop. Each job
// runs once immediately and then on every tick.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	for _, job := range s.jobs {
		if job.Interval <= 0 {
			logger.WithField("job", job.Name).Info("Scheduled job disabled")
			continue
		}
		s.wg.Add(1)
		go s.loop(job)
	}
	logger.WithField("jobs", len(s.jobs)).Info("Scheduler started")
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	logger.Info("Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.runJob(job)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runJob(job)
		}
	}
}

func (s *Scheduler) runJob(job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, job.Interval)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	log := logger.WithFields(map[string]interface{}{
		"job":      job.Name,
		"duration": time.Since(start).String(),
	})

	if err != nil {
		metrics.SchedulerRuns.WithLabelValues(job.Name, "error").Inc()
		if s.ctx.Err() != nil {
			return
		}
		log.Errorf("Scheduled job failed: %v", err)
		s.publisher.Error("", fmt.Sprintf("Scheduled job %s failed", job.Name), err)
		return
	}
	metrics.SchedulerRuns.WithLabelValues(job.Name, "ok").Inc()
	log.Debug("Scheduled job completed")
}

type RuleEvaluator interface {
	EvaluateAll(ctx context.Context, ref time.Time, candidates ...*models.Alert) ([]*models.Alert, error)
	Persist(ctx context.Context, alerts []*models.Alert) (int, error)
}

type CacheSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

type SnapshotPruner interface {
	PruneOlderThan(ctx context.Context, retentionMonths int) (int64, error)
}

// RulesJob evaluates every alert rule at the current time and persists
// what survives deduplication. Alerts from rules that succeeded are
// persisted even when another rule failed.
func RulesJob(interval time.Duration, engine RuleEvaluator, now func() time.Time) Job {
	if now == nil {
		now = time.Now
	}
	return Job{
		Name:     "rules",
		Interval: interval,
		Run: func(ctx context.Context) error {
			alerts, evalErr := engine.EvaluateAll(ctx, now())
			inserted, err := engine.Persist(ctx, alerts)
			if inserted > 0 {
				logger.WithField("inserted", inserted).Info("Scheduled rule evaluation raised alerts")
			}
			if evalErr != nil {
				return evalErr
			}
			return err
		},
	}
}

func SweepJob(interval time.Duration, c CacheSweeper) Job {
	return Job{
		Name:     "cache_sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := c.Sweep(ctx)
			return err
		},
	}
}

// PruneJob applies snapshot retention; zero months uses the store default.
func PruneJob(interval time.Duration, store SnapshotPruner, retentionMonths int) Job {
	return Job{
		Name:     "snapshot_prune",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := store.PruneOlderThan(ctx, retentionMonths)
			return err
		},
	}
}
