package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventEpochStarted       EventType = "EPOCH_STARTED"
	EventEpochCompleted     EventType = "EPOCH_COMPLETED"
	EventEpochTimedOut      EventType = "EPOCH_TIMED_OUT"
	EventTriggerSkipped     EventType = "TRIGGER_SKIPPED"
	EventSignalCreated      EventType = "SIGNAL_CREATED"
	EventSignalApproved     EventType = "SIGNAL_APPROVED"
	EventSignalExpired      EventType = "SIGNAL_EXPIRED"
	EventBrokerUnauthorized EventType = "BROKER_UNAUTHORIZED"
	EventBrokerRecovered    EventType = "BROKER_RECOVERED"
	EventSchedulerStarted   EventType = "SCHEDULER_STARTED"
	EventSchedulerStopped   EventType = "SCHEDULER_STOPPED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all matching subscribers. Delivery is
// synchronous; subscribers must not block.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := b.subscribers[event.Type]
	all := b.allSubs
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(event)
	}
	for _, sub := range all {
		sub(event)
	}
}

// Emit is shorthand for publishing an event with data fields
func (b *Bus) Emit(eventType EventType, data map[string]interface{}) {
	b.Publish(Event{Type: eventType, Data: data})
}
