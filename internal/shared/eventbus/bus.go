package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storage-sync-worker/internal/shared/logger"
)

// Event represents a generic event
type Event interface {
	Type() string
	Data() interface{}
	Timestamp() time.Time
	Source() string
}

// Handler defines the event handler function type
type Handler func(ctx context.Context, event Event) error

// Publisher is the publishing half of the bus, which is all the sync loops need.
type Publisher interface {
	PublishAndForget(ctx context.Context, event Event)
}

// EventBus is an in-memory, synchronous event bus.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   logger.Logger
}

// NewEventBus creates a new event bus instance
func NewEventBus(log logger.Logger) *EventBus {
	if log == nil {
		log = &noopLogger{}
	}
	return &EventBus{
		handlers: make(map[string][]Handler),
		logger:   log,
	}
}

// Subscribe adds a handler for a specific event type
func (eb *EventBus) Subscribe(eventType string, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	eb.logger.Debugf("Subscribed handler for event type: %s", eventType)
}

// SubscribeAll adds handler for every event type listed.
func (eb *EventBus) SubscribeAll(handler Handler, eventTypes ...string) {
	for _, eventType := range eventTypes {
		eb.Subscribe(eventType, handler)
	}
}

// Publish runs every handler registered for the event type, in subscription
// order. All handlers run; the first error is returned.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	handlers := eb.handlers[event.Type()]
	eb.mu.RUnlock()

	var firstErr error
	for i, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			eb.logger.Errorf("Handler %d failed for event %s: %v", i, event.Type(), err)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler %d: %w", i, err)
			}
		}
	}
	return firstErr
}

// PublishAndForget publishes an event and logs, rather than returns, any handler error.
func (eb *EventBus) PublishAndForget(ctx context.Context, event Event) {
	if err := eb.Publish(ctx, event); err != nil {
		eb.logger.Errorf("Failed to publish event %s: %v", event.Type(), err)
	}
}

// BasicEvent implements the Event interface
type BasicEvent struct {
	eventType string
	data      interface{}
	timestamp time.Time
	source    string
}

// NewBasicEventWithSource creates a new event; source is the logical collection name.
func NewBasicEventWithSource(eventType string, data interface{}, source string) Event {
	return &BasicEvent{
		eventType: eventType,
		data:      data,
		timestamp: time.Now(),
		source:    source,
	}
}

func (e *BasicEvent) Type() string {
	return e.eventType
}

func (e *BasicEvent) Data() interface{} {
	return e.data
}

func (e *BasicEvent) Timestamp() time.Time {
	return e.timestamp
}

func (e *BasicEvent) Source() string {
	return e.source
}

// Event types published by the sync loops. Source() is always the collection name.
const (
	EventTypeChangeApplied = "change.applied"
	EventTypeChangeFailed  = "change.failed"
	EventTypeChangeSkipped = "change.skipped"
	EventTypeFeedOpened    = "feed.opened"
	EventTypeFeedFault     = "feed.fault"
	EventTypeRecordsPruned = "records.pruned"
	EventTypePruneFault    = "prune.fault"
)

// AllEventTypes lists every sync event type.
var AllEventTypes = []string{
	EventTypeChangeApplied,
	EventTypeChangeFailed,
	EventTypeChangeSkipped,
	EventTypeFeedOpened,
	EventTypeFeedFault,
	EventTypeRecordsPruned,
	EventTypePruneFault,
}

// noopLogger implements logger.Logger but does nothing (for nil logger)
type noopLogger struct{}

func (n *noopLogger) Debug(args ...interface{})                 {}
func (n *noopLogger) Info(args ...interface{})                  {}
func (n *noopLogger) Warn(args ...interface{})                  {}
func (n *noopLogger) Error(args ...interface{})                 {}
func (n *noopLogger) Fatal(args ...interface{})                 {}
func (n *noopLogger) Debugf(format string, args ...interface{}) {}
func (n *noopLogger) Infof(format string, args ...interface{})  {}
func (n *noopLogger) Warnf(format string, args ...interface{})  {}
func (n *noopLogger) Errorf(format string, args ...interface{}) {}
func (n *noopLogger) Fatalf(format string, args ...interface{}) {}
func (n *noopLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return n
}
func (n *noopLogger) WithError(err error) logger.Logger {
	return n
}
func (n *noopLogger) WithContext(ctx context.Context) logger.Logger {
	return n
}
func (n *noopLogger) WithComponent(component string) logger.Logger {
	return n
}
