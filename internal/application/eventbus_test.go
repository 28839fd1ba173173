package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

func TestEventBusLastRegistrationWins(t *testing.T) {
	bus := NewEventBus(testLogger(t))
	var calls []string

	bus.Register(Callbacks{OnNewOrder: func(context.Context, domain.OrderNotification) { calls = append(calls, "first") }})
	bus.Register(Callbacks{OnNewOrder: func(context.Context, domain.OrderNotification) { calls = append(calls, "second") }})

	bus.Publish(context.Background(), domain.EventNewOrder, domain.OrderNotification{})
	assert.Equal(t, []string{"second"}, calls)
}

func TestEventBusDisposerRemovesOnlyItsOwnRegistration(t *testing.T) {
	bus := NewEventBus(testLogger(t))
	var calls []string

	disposeA := bus.Register(Callbacks{
		OnNewOrder:     func(context.Context, domain.OrderNotification) { calls = append(calls, "a-new") },
		OnOrderUpdated: func(context.Context, domain.OrderNotification) { calls = append(calls, "a-updated") },
	})
	disposeB := bus.Register(Callbacks{
		OnNewOrder: func(context.Context, domain.OrderNotification) { calls = append(calls, "b-new") },
	})

	// A no longer owns onNewOrder; disposing it must leave B in place.
	disposeA()
	disposeA()

	bus.Publish(context.Background(), domain.EventNewOrder, domain.OrderNotification{})
	bus.Publish(context.Background(), domain.EventOrderUpdated, domain.OrderNotification{})
	assert.Equal(t, []string{"b-new"}, calls)
	assert.False(t, bus.HasSlot(SlotOrderUpdated))

	disposeB()
	assert.False(t, bus.HasSlot(SlotNewOrder))
}

func TestEventBusClear(t *testing.T) {
	bus := NewEventBus(testLogger(t))
	noop := func(context.Context, domain.OrderNotification) {}
	bus.Register(Callbacks{OnNewOrder: noop, OnOrderCreated: noop})

	bus.Clear(SlotNewOrder)

	assert.False(t, bus.HasSlot(SlotNewOrder))
	assert.True(t, bus.HasSlot(SlotOrderCreated))
}

func TestEventBusSlotRunsBeforeSubscribersInOrder(t *testing.T) {
	bus := NewEventBus(testLogger(t))
	var calls []string

	bus.Subscribe(domain.EventOrderCreated, func(context.Context, domain.OrderNotification) { calls = append(calls, "sub-1") })
	bus.Subscribe(domain.EventOrderCreated, func(context.Context, domain.OrderNotification) { calls = append(calls, "sub-2") })
	bus.Register(Callbacks{OnOrderCreated: func(context.Context, domain.OrderNotification) { calls = append(calls, "slot") }})

	bus.Publish(context.Background(), domain.EventOrderCreated, domain.OrderNotification{})
	assert.Equal(t, []string{"slot", "sub-1", "sub-2"}, calls)
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(testLogger(t))
	count := 0
	dispose := bus.Subscribe(domain.EventNewOrder, func(context.Context, domain.OrderNotification) { count++ })
	other := bus.Subscribe(domain.EventNewOrder, func(context.Context, domain.OrderNotification) {})
	assert.Equal(t, 2, bus.SubscriberCount(domain.EventNewOrder))

	dispose()
	dispose()
	bus.Publish(context.Background(), domain.EventNewOrder, domain.OrderNotification{})

	assert.Equal(t, 0, count)
	assert.Equal(t, 1, bus.SubscriberCount(domain.EventNewOrder))
	other()
	assert.Equal(t, 0, bus.SubscriberCount(domain.EventNewOrder))
}

func TestEventBusRecoversPanickingHandler(t *testing.T) {
	bus := NewEventBus(testLogger(t))
	reached := false
	bus.Register(Callbacks{OnNewOrder: func(context.Context, domain.OrderNotification) { panic("view crashed") }})
	bus.Subscribe(domain.EventNewOrder, func(context.Context, domain.OrderNotification) { reached = true })

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), domain.EventNewOrder, domain.OrderNotification{})
	})
	assert.True(t, reached)
}

func TestSlotForEvent(t *testing.T) {
	slot, ok := SlotForEvent(domain.EventOrderUpdated)
	assert.True(t, ok)
	assert.Equal(t, SlotOrderUpdated, slot)

	_, ok = SlotForEvent("chat-message")
	assert.False(t, ok)
}
