// internal/events/event_bus.go
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types published by the service
const (
	SessionConnected        = "session.connected"
	SessionDisconnected     = "session.disconnected"
	SessionConnectFailed    = "session.connect_failed"
	ClassificationStarted   = "classification.started"
	ClassificationCompleted = "classification.completed"
	ClassificationFailed    = "classification.failed"
)

// AllEvents subscribes to every event type
const AllEvents = "*"

// Event represents a system event
type Event struct {
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// Subscription receives events until cancelled
type Subscription struct {
	C     <-chan Event
	ch    chan Event
	types []string
	bus   *EventBus
	once  sync.Once
}

// Cancel stops delivery and closes C
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.unsubscribe(s)
	})
}

// EventBus manages event distribution
type EventBus struct {
	subscribers map[string][]*Subscription
	events      chan Event
	mutex       sync.RWMutex
	logger      *zap.Logger
	stopped     bool
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]*Subscription),
		events:      make(chan Event, 1000),
		logger:      logger,
	}
}

// Start distributes events until ctx is done, then closes every subscription
func (eb *EventBus) Start(ctx context.Context) {
	for {
		select {
		case event := <-eb.events:
			eb.distributeEvent(event)
		case <-ctx.Done():
			eb.shutdown()
			return
		}
	}
}

// Publish publishes an event without blocking
func (eb *EventBus) Publish(eventType, source string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", event.Type),
		)
	}
}

// Subscribe subscribes to the given event types, or to all when none are given
func (eb *EventBus) Subscribe(eventTypes ...string) *Subscription {
	if len(eventTypes) == 0 {
		eventTypes = []string{AllEvents}
	}

	ch := make(chan Event, 100)
	sub := &Subscription{C: ch, ch: ch, types: eventTypes, bus: eb}

	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.stopped {
		close(ch)
		return sub
	}
	for _, eventType := range eventTypes {
		eb.subscribers[eventType] = append(eb.subscribers[eventType], sub)
	}
	return sub
}

func (eb *EventBus) unsubscribe(sub *Subscription) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.stopped {
		return
	}
	for _, eventType := range sub.types {
		subs := eb.subscribers[eventType]
		for i, s := range subs {
			if s == sub {
				eb.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	close(sub.ch)
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event Event) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	deliver := func(subs []*Subscription) {
		for _, sub := range subs {
			select {
			case sub.ch <- event:
			default:
				// Subscriber is slow, skip
			}
		}
	}

	deliver(eb.subscribers[event.Type])
	deliver(eb.subscribers[AllEvents])
}

func (eb *EventBus) shutdown() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.stopped {
		return
	}
	eb.stopped = true

	closed := make(map[*Subscription]bool)
	for _, subs := range eb.subscribers {
		for _, sub := range subs {
			if !closed[sub] {
				close(sub.ch)
				closed[sub] = true
			}
		}
	}
	eb.subscribers = make(map[string][]*Subscription)
}
