package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/pkg/models"
)

type MessageType string

const (
	MessageTypeClose        MessageType = "close"
	MessageTypeDegraded     MessageType = "step_degraded"
	MessageTypeSnapshot     MessageType = "snapshot"
	MessageTypeCache        MessageType = "cache"
	MessageTypeAlert        MessageType = "alert"
	MessageTypeError        MessageType = "error"
	MessageTypeSubscription MessageType = "subscription_update"
)

type OutgoingMessage struct {
	Type      MessageType `json:"type"`
	Event     string      `json:"event,omitempty"`
	Period    string      `json:"period,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Severity  string      `json:"severity,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func NewMessage(msgType MessageType, period string, data interface{}) *OutgoingMessage {
	return &OutgoingMessage{
		Type:      msgType,
		Period:    period,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func (m *OutgoingMessage) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventBridge forwards bus events to websocket clients.
type EventBridge struct {
	hub        *Hub
	eventsChan <-chan *models.Event
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewEventBridge(hub *Hub, eventsChan <-chan *models.Event) *EventBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventBridge{
		hub:        hub,
		eventsChan: eventsChan,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (b *EventBridge) Start() {
	go b.run()
	logger.Info("WebSocket event bridge started")
}

func (b *EventBridge) Stop() {
	b.cancel()
	<-b.done
	logger.Info("WebSocket event bridge stopped")
}

func (b *EventBridge) run() {
	defer close(b.done)
	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventsChan:
			if !ok {
				logger.Info("Event channel closed, stopping bridge")
				return
			}
			b.forward(event)
		}
	}
}

func (b *EventBridge) forward(event *models.Event) {
	msgType := messageType(event.Type)
	if msgType == "" {
		return
	}

	msg := &OutgoingMessage{
		Type:      msgType,
		Event:     string(event.Type),
		Period:    event.Period,
		Timestamp: event.Timestamp,
		Severity:  string(event.Severity),
		Message:   event.Message,
		Data:      event.Data,
	}
	data, err := msg.JSON()
	if err != nil {
		logger.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}
	b.hub.Broadcast(event.Period, data)
}

func messageType(t models.EventType) MessageType {
	switch t {
	case models.EventTypeCloseStarted, models.EventTypeCloseCompleted, models.EventTypeCloseFailed:
		return MessageTypeClose
	case models.EventTypeStepDegraded:
		return MessageTypeDegraded
	case models.EventTypeSnapshotGenerated:
		return MessageTypeSnapshot
	case models.EventTypeCacheInvalidated:
		return MessageTypeCache
	case models.EventTypeAlertRaised:
		return MessageTypeAlert
	case models.EventTypeError:
		return MessageTypeError
	default:
		return ""
	}
}
