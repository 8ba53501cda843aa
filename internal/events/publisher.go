package events

import (
	"fmt"

	"github.com/OldStager01/farm-bi/pkg/models"
)

type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) WithTraceID(traceID string) *Publisher {
	if p == nil {
		return nil
	}
	return &Publisher{
		bus:     p.bus,
		traceID: traceID,
	}
}

func (p *Publisher) publish(event *models.Event) {
	if p == nil || p.bus == nil {
		return
	}
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

func (p *Publisher) CloseStarted(period models.Period, actor string) {
	event := models.NewEvent(models.EventTypeCloseStarted, period.String(), "Monthly close started").
		WithData(map[string]interface{}{"actor": actor})
	p.publish(event)
}

func (p *Publisher) CloseCompleted(period models.Period, report interface{}) {
	event := models.NewEvent(models.EventTypeCloseCompleted, period.String(), "Monthly close completed").
		WithData(report)
	p.publish(event)
}

func (p *Publisher) CloseFailed(period models.Period, step string, err error) {
	msg := fmt.Sprintf("Monthly close failed at %s", step)
	event := models.NewEvent(models.EventTypeCloseFailed, period.String(), msg).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"step":  step,
			"error": err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) StepDegraded(period models.Period, step string, err error) {
	msg := fmt.Sprintf("Close step %s degraded", step)
	event := models.NewEvent(models.EventTypeStepDegraded, period.String(), msg).
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{
			"step":  step,
			"error": err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) SnapshotGenerated(snapshot *models.Snapshot) {
	msg := fmt.Sprintf("Snapshot v%d generated", snapshot.Version)
	event := models.NewEvent(models.EventTypeSnapshotGenerated, snapshot.Period().String(), msg).
		WithData(map[string]interface{}{
			"version":      snapshot.Version,
			"content_hash": snapshot.ContentHash,
			"generated_by": snapshot.GeneratedBy,
		})
	p.publish(event)
}

func (p *Publisher) CacheInvalidated(period models.Period, removed int64) {
	msg := fmt.Sprintf("Invalidated %d cache entries", removed)
	event := models.NewEvent(models.EventTypeCacheInvalidated, period.String(), msg)
	p.publish(event)
}

func (p *Publisher) AlertRaised(alert *models.Alert) {
	event := models.NewEvent(models.EventTypeAlertRaised, "", alert.Title).
		WithSeverity(alertSeverity(alert.Priority)).
		WithData(alert)
	p.publish(event)
}

func (p *Publisher) BackupRequested(period models.Period) {
	event := models.NewEvent(models.EventTypeBackupRequested, period.String(), "Backup requested")
	p.publish(event)
}

func (p *Publisher) Error(period, message string, err error) {
	event := models.NewEvent(models.EventTypeError, period, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}

func alertSeverity(priority models.AlertPriority) models.EventSeverity {
	switch priority {
	case models.PriorityHigh:
		return models.SeverityCritical
	case models.PriorityMedium:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}
