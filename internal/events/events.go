// Package events provides a buffered publish/subscribe bus for scheduler
// state changes. UI layers subscribe to drive status displays; nothing in
// the dispatch path ever blocks on a slow subscriber.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sr-857/astraguard-client/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	// Request lifecycle
	EventRequestQueued     EventType = "request_queued"     // No free slot, parked in the admission queue
	EventRequestDispatched EventType = "request_dispatched" // Acquired a slot, admission checks passed
	EventRequestCompleted  EventType = "request_completed"  // 2xx response delivered to the caller
	EventRequestFailed     EventType = "request_failed"     // Rejected or errored (any error class)

	// Scheduler state
	EventHealthChanged EventType = "health_changed" // Backend health status transitioned
	EventBackoffArmed  EventType = "backoff_armed"  // Server 429 set the global quiet-until clock

	// UI surface
	EventNotification EventType = "notification" // Ephemeral user-facing notice
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// RequestEvent represents request lifecycle transitions.
type RequestEvent struct {
	BaseEvent
	Method   string
	Endpoint string // Stripped endpoint key
	Priority int
	Queued   int // Queue length after this transition
	Active   int // In-flight count after this transition
	Err      error
}

// HealthEvent represents a backend health status transition.
type HealthEvent struct {
	BaseEvent
	OldStatus string
	NewStatus string
	CPUUsage  float64
	Memory    float64
	Anomaly   float64
}

// BackoffEvent is published when a 429 arms the global backoff clock.
type BackoffEvent struct {
	BaseEvent
	RetryAfter time.Duration // As requested by the server
	Until      time.Time     // Effective quiet-until after multiplier and cap
}

// NotificationEvent carries an ephemeral user-facing notice.
type NotificationEvent struct {
	BaseEvent
	Message  string
	Severity string // "info", "warning", "error"
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with the specified buffer size.
// Size 0 selects the default; oversized requests are capped.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. Events to
// full subscriber buffers are dropped and counted.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// Unsubscribe removes a subscription channel from a specific event type.
// This prevents memory leaks from abandoned subscriptions.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to
// full subscriber buffers.
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}

// PublishRequest is a convenience method for request lifecycle events.
func (eb *EventBus) PublishRequest(eventType EventType, method, endpoint string, priority, queued, active int, err error) {
	eb.Publish(&RequestEvent{
		BaseEvent: BaseEvent{EventType: eventType, Time: time.Now()},
		Method:    method,
		Endpoint:  endpoint,
		Priority:  priority,
		Queued:    queued,
		Active:    active,
		Err:       err,
	})
}

// PublishNotification is a convenience method for notification events.
func (eb *EventBus) PublishNotification(message, severity string) {
	eb.Publish(&NotificationEvent{
		BaseEvent: BaseEvent{EventType: EventNotification, Time: time.Now()},
		Message:   message,
		Severity:  severity,
	})
}
