package models

import "time"

type EventType string

const (
	EventTypeCloseStarted      EventType = "close_started"
	EventTypeCloseCompleted    EventType = "close_completed"
	EventTypeCloseFailed       EventType = "close_failed"
	EventTypeStepDegraded      EventType = "step_degraded"
	EventTypeSnapshotGenerated EventType = "snapshot_generated"
	EventTypeCacheInvalidated  EventType = "cache_invalidated"
	EventTypeAlertRaised       EventType = "alert_raised"
	EventTypeBackupRequested   EventType = "backup_requested"
	EventTypeError             EventType = "error"
)

type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// Event represents an internal system event
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	Period    string        `json:"period,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Data      interface{}   `json:"data,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

func NewEvent(eventType EventType, period, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  SeverityInfo,
		Period:    period,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity EventSeverity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}
