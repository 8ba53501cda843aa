package events

import (
	"sync"

	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/internal/metrics"
	"github.com/OldStager01/farm-bi/pkg/models"
)

type subscription struct {
	ch    chan *models.Event
	types map[models.EventType]struct{} // nil receives every type
}

func (s subscription) wants(t models.EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// EventBus fans events out to buffered subscriber channels. Publishing never
// blocks: a full channel drops the event for that subscriber only.
type EventBus struct {
	mu         sync.RWMutex
	subs       []subscription
	bufferSize int
	closed     bool
}

func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{bufferSize: bufferSize}
}

// Subscribe returns a channel receiving only the given types. After Close
// it returns an already closed channel.
func (b *EventBus) Subscribe(eventTypes ...models.EventType) <-chan *models.Event {
	types := make(map[models.EventType]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = struct{}{}
	}
	return b.add(types)
}

func (b *EventBus) SubscribeAll() <-chan *models.Event {
	return b.add(nil)
}

func (b *EventBus) add(types map[models.EventType]struct{}) <-chan *models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *models.Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, subscription{ch: ch, types: types})
	return ch
}

func (b *EventBus) Publish(event *models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, s := range b.subs {
		if !s.wants(event.Type) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			metrics.EventsDropped.WithLabelValues(string(event.Type)).Inc()
			logger.WithField("event_type", event.Type).Warn("Subscriber buffer full, event dropped")
		}
	}
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
}
