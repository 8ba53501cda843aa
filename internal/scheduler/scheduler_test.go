package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/farm-bi/internal/events"
	"github.com/OldStager01/farm-bi/internal/scheduler"
	"github.com/OldStager01/farm-bi/pkg/models"
)

func TestScheduler_RunsUntilStopped(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New(nil, scheduler.Job{
		Name:     "count",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start()
	s.Start()
	assert.True(t, s.IsRunning())
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	stopped := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())

	s.Stop()
}

func TestScheduler_DisabledJobNeverRuns(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New(nil, scheduler.Job{
		Name: "off",
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	assert.Zero(t, runs.Load())
}

func TestScheduler_FailurePublishesError(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	errs := bus.Subscribe(models.EventTypeError)

	s := scheduler.New(events.NewPublisher(bus), scheduler.Job{
		Name:     "broken",
		Interval: time.Hour,
		Run:      func(context.Context) error { return errors.New("db gone") },
	})
	s.Start()
	defer s.Stop()

	select {
	case e := <-errs:
		assert.Equal(t, "Scheduled job broken failed", e.Message)
	case <-time.After(time.Second):
		t.Fatal("no error event")
	}
}

type fakeEngine struct {
	ref       time.Time
	alerts    []*models.Alert
	evalErr   error
	persisted []*models.Alert
}

func (f *fakeEngine) EvaluateAll(_ context.Context, ref time.Time, _ ...*models.Alert) ([]*models.Alert, error) {
	f.ref = ref
	return f.alerts, f.evalErr
}

func (f *fakeEngine) Persist(_ context.Context, alerts []*models.Alert) (int, error) {
	f.persisted = alerts
	return len(alerts), nil
}

func TestRulesJob_PersistsPartialResults(t *testing.T) {
	now := time.Date(2025, 2, 5, 10, 0, 0, 0, time.UTC)
	unpaid := models.NewAlert(models.AlertUnpaidStaff, models.PriorityMedium, "unpaid", "", now)
	engine := &fakeEngine{alerts: []*models.Alert{unpaid}, evalErr: errors.New("rule high_loss: timeout")}

	job := scheduler.RulesJob(time.Hour, engine, func() time.Time { return now })
	err := job.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, "rules", job.Name)
	assert.Equal(t, now, engine.ref)
	assert.Equal(t, []*models.Alert{unpaid}, engine.persisted)
}

type fakeSweeper struct{ calls int }

func (f *fakeSweeper) Sweep(context.Context) (int64, error) {
	f.calls++
	return 2, nil
}

type fakePruner struct{ months int }

func (f *fakePruner) PruneOlderThan(_ context.Context, months int) (int64, error) {
	f.months = months
	return 0, nil
}

func TestMaintenanceJobs(t *testing.T) {
	sweeper := &fakeSweeper{}
	pruner := &fakePruner{}

	require.NoError(t, scheduler.SweepJob(time.Minute, sweeper).Run(context.Background()))
	require.NoError(t, scheduler.PruneJob(time.Hour, pruner, 24).Run(context.Background()))

	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 24, pruner.months)
}
