package events_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/farm-bi/internal/events"
	"github.com/OldStager01/farm-bi/pkg/models"
)

func receive(t *testing.T, ch <-chan *models.Event) *models.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestEventBus_SubscribeByType(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()

	closes := bus.Subscribe(models.EventTypeCloseCompleted, models.EventTypeCloseFailed)
	all := bus.SubscribeAll()
	pub := events.NewPublisher(bus).WithTraceID("trace-1")

	p := models.NewPeriod(2025, 1)
	pub.CloseStarted(p, "ana")
	pub.CloseFailed(p, "snapshot", errors.New("disk full"))

	e := receive(t, closes)
	assert.Equal(t, models.EventTypeCloseFailed, e.Type)
	assert.Equal(t, models.SeverityCritical, e.Severity)
	assert.Equal(t, "2025-01", e.Period)
	assert.Equal(t, "trace-1", e.TraceID)

	assert.Equal(t, models.EventTypeCloseStarted, receive(t, all).Type)
	assert.Equal(t, models.EventTypeCloseFailed, receive(t, all).Type)
}

func TestEventBus_FullChannelDrops(t *testing.T) {
	bus := events.NewEventBus(1)
	defer bus.Close()

	ch := bus.SubscribeAll()
	pub := events.NewPublisher(bus)
	pub.BackupRequested(models.NewPeriod(2025, 1))
	pub.BackupRequested(models.NewPeriod(2025, 2))

	assert.Equal(t, "2025-01", receive(t, ch).Period)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %v", e)
	default:
	}
}

func TestEventBus_CloseClosesChannelsOnce(t *testing.T) {
	bus := events.NewEventBus(1)
	multi := bus.Subscribe(models.EventTypeAlertRaised, models.EventTypeError)
	all := bus.SubscribeAll()

	require.NotPanics(t, bus.Close)
	require.NotPanics(t, bus.Close)

	_, ok := <-multi
	assert.False(t, ok)
	_, ok = <-all
	assert.False(t, ok)

	bus.Publish(models.NewEvent(models.EventTypeError, "", "after close"))
}

func TestPublisher_AlertSeverity(t *testing.T) {
	bus := events.NewEventBus(5)
	defer bus.Close()
	ch := bus.Subscribe(models.EventTypeAlertRaised)
	pub := events.NewPublisher(bus)

	pub.AlertRaised(models.NewAlert(models.AlertAbnormalSpend, models.PriorityHigh, "spend", "", time.Now()))
	pub.AlertRaised(models.NewAlert(models.AlertStaleReview, models.PriorityLow, "review", "", time.Now()))

	assert.Equal(t, models.SeverityCritical, receive(t, ch).Severity)
	assert.Equal(t, models.SeverityInfo, receive(t, ch).Severity)
}

func TestPublisher_NilIsNoop(t *testing.T) {
	var pub *events.Publisher
	assert.NotPanics(t, func() { pub.BackupRequested(models.NewPeriod(2025, 1)) })
}

func TestEventLogger_StopsOnClosedChannel(t *testing.T) {
	bus := events.NewEventBus(5)
	l := events.NewEventLogger(bus.SubscribeAll())
	l.Start()

	events.NewPublisher(bus).CloseStarted(models.NewPeriod(2025, 1), "ana")
	bus.Close()

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event logger did not stop")
	}
}

func TestEventLogger_StopTwice(t *testing.T) {
	bus := events.NewEventBus(5)
	defer bus.Close()
	l := events.NewEventLogger(bus.SubscribeAll())
	l.Start()

	l.Stop()
	assert.NotPanics(t, l.Stop)
}
