package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DummyEvent implements Event for testing
type DummyEvent struct {
	typeStr   string
	data      interface{}
	timestamp time.Time
	source    string
}

func (e *DummyEvent) Type() string         { return e.typeStr }
func (e *DummyEvent) Data() interface{}    { return e.data }
func (e *DummyEvent) Timestamp() time.Time { return e.timestamp }
func (e *DummyEvent) Source() string       { return e.source }

func TestEventBus_SubscribePublish(t *testing.T) {
	bus := NewEventBus(nil)
	var called bool
	bus.Subscribe(EventTypeChangeApplied, func(ctx context.Context, event Event) error {
		called = true
		assert.Equal(t, EventTypeChangeApplied, event.Type())
		assert.Equal(t, "orders", event.Source())
		return nil
	})
	err := bus.Publish(context.Background(), NewBasicEventWithSource(EventTypeChangeApplied, nil, "orders"))
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestEventBus_NoSubscribers(t *testing.T) {
	bus := NewEventBus(nil)
	assert.NoError(t, bus.Publish(context.Background(), &DummyEvent{typeStr: "none"}))
}

func TestEventBus_HandlersRunInOrderDespiteErrors(t *testing.T) {
	bus := NewEventBus(nil)
	var calls []int
	bus.Subscribe("x", func(ctx context.Context, event Event) error {
		calls = append(calls, 1)
		return errors.New("first failed")
	})
	bus.Subscribe("x", func(ctx context.Context, event Event) error {
		calls = append(calls, 2)
		return nil
	})

	err := bus.Publish(context.Background(), &DummyEvent{typeStr: "x", timestamp: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Equal(t, []int{1, 2}, calls)
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus(nil)
	seen := map[string]int{}
	bus.SubscribeAll(func(ctx context.Context, event Event) error {
		seen[event.Type()]++
		return nil
	}, AllEventTypes...)

	for _, et := range AllEventTypes {
		require.NoError(t, bus.Publish(context.Background(), NewBasicEventWithSource(et, nil, "orders")))
	}
	for _, et := range AllEventTypes {
		assert.Equal(t, 1, seen[et], et)
	}
}

func TestEventBus_PublishAndForgetSwallowsErrors(t *testing.T) {
	bus := NewEventBus(nil)
	bus.Subscribe("x", func(ctx context.Context, event Event) error { return errors.New("fail") })
	assert.NotPanics(t, func() {
		bus.PublishAndForget(context.Background(), &DummyEvent{typeStr: "x"})
	})
}
