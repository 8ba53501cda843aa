package events

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/pkg/models"
)

// EventLogger mirrors bus traffic into the structured log, one line per
// event, at a level derived from its severity.
type EventLogger struct {
	events <-chan *models.Event
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewEventLogger(events <-chan *models.Event) *EventLogger {
	return &EventLogger{
		events: events,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (l *EventLogger) Start() {
	go l.run()
}

// Stop ends the loop and waits for it. Safe to call more than once.
func (l *EventLogger) Stop() {
	l.once.Do(func() { close(l.stop) })
	<-l.done
}

func (l *EventLogger) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case event, ok := <-l.events:
			if !ok {
				return
			}
			write(event)
		}
	}
}

func write(event *models.Event) {
	fields := logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	}
	if event.Period != "" {
		fields["period"] = event.Period
	}
	if event.TraceID != "" {
		fields["trace_id"] = event.TraceID
	}
	if event.Data != nil {
		fields["data"] = event.Data
	}
	entry := logger.WithFields(fields)

	switch event.Severity {
	case models.SeverityCritical:
		entry.Error(event.Message)
	case models.SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}
}
