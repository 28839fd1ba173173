package application

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/samber/lo"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/metrics"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

// SlotName names a single-callback slot on the EventBus.
type SlotName string

const (
	SlotNewOrder     SlotName = "onNewOrder"
	SlotOrderUpdated SlotName = "onOrderUpdated"
	SlotOrderCreated SlotName = "onOrderCreated"
)

// OrderHandler receives a decoded order event. The context carries the
// establishment and event ids.
type OrderHandler func(ctx context.Context, n domain.OrderNotification)

// Callbacks is a set of slot registrations. Nil fields are left untouched.
type Callbacks struct {
	OnNewOrder     OrderHandler
	OnOrderUpdated OrderHandler
	OnOrderCreated OrderHandler
}

func (cb Callbacks) bySlot() map[SlotName]OrderHandler {
	m := make(map[SlotName]OrderHandler, 3)
	if cb.OnNewOrder != nil {
		m[SlotNewOrder] = cb.OnNewOrder
	}
	if cb.OnOrderUpdated != nil {
		m[SlotOrderUpdated] = cb.OnOrderUpdated
	}
	if cb.OnOrderCreated != nil {
		m[SlotOrderCreated] = cb.OnOrderCreated
	}
	return m
}

// SlotForEvent maps an inbound event to its callback slot.
func SlotForEvent(event domain.EventName) (SlotName, bool) {
	switch event {
	case domain.EventNewOrder:
		return SlotNewOrder, true
	case domain.EventOrderUpdated:
		return SlotOrderUpdated, true
	case domain.EventOrderCreated:
		return SlotOrderCreated, true
	}
	return "", false
}

type handlerEntry struct {
	id uint64
	fn OrderHandler
}

// EventBus holds one callback per slot (last registration wins) plus any
// number of ordered subscribers per event. It is owned by the application
// root and passed to whoever needs it.
type EventBus struct {
	logger domain.Logger

	mu     sync.RWMutex
	nextID uint64
	slots  map[SlotName]handlerEntry
	subs   map[domain.EventName][]handlerEntry
}

// NewEventBus creates an empty EventBus.
func NewEventBus(logger domain.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		slots:  make(map[SlotName]handlerEntry),
		subs:   make(map[domain.EventName][]handlerEntry),
	}
}

// Register merges cb into the slots, replacing earlier registrations.
// The returned func clears only the slots this registration still owns.
func (b *EventBus) Register(cb Callbacks) (dispose func()) {
	handlers := cb.bySlot()

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	for name, fn := range handlers {
		b.slots[name] = handlerEntry{id: id, fn: fn}
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for name := range handlers {
				if entry, ok := b.slots[name]; ok && entry.id == id {
					delete(b.slots, name)
				}
			}
		})
	}
}

// Clear removes the named slots regardless of who registered them.
func (b *EventBus) Clear(names ...SlotName) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range names {
		delete(b.slots, name)
	}
}

// HasSlot reports whether a callback is registered for name.
func (b *EventBus) HasSlot(name SlotName) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.slots[name]
	return ok
}

// Subscribe adds fn to the subscribers of event. Subscribers run in
// subscription order after the slot callback. The disposer is idempotent.
func (b *EventBus) Subscribe(event domain.EventName, fn OrderHandler) (dispose func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[event] = append(b.subs[event], handlerEntry{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			remaining := lo.Reject(b.subs[event], func(e handlerEntry, _ int) bool { return e.id == id })
			if len(remaining) == 0 {
				delete(b.subs, event)
				return
			}
			b.subs[event] = remaining
		})
	}
}

// SubscriberCount returns the number of live subscribers for event.
func (b *EventBus) SubscriberCount(event domain.EventName) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

// Publish invokes the slot callback for event and then every subscriber,
// synchronously. A panicking handler is logged and the rest still run.
func (b *EventBus) Publish(ctx context.Context, event domain.EventName, n domain.OrderNotification) {
	b.mu.RLock()
	var handlers []OrderHandler
	if slot, ok := SlotForEvent(event); ok {
		if entry, ok := b.slots[slot]; ok {
			handlers = append(handlers, entry.fn)
		}
	}
	handlers = append(handlers, lo.Map(b.subs[event], func(e handlerEntry, _ int) OrderHandler { return e.fn })...)
	b.mu.RUnlock()

	for _, fn := range handlers {
		b.invoke(ctx, event, fn, n)
	}
}

func (b *EventBus) invoke(ctx context.Context, event domain.EventName, fn OrderHandler, n domain.OrderNotification) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncrementHandlerPanic(event)
			b.logger.Error(ctx, "Panic recovered in order event handler",
				"event", string(event),
				"panic_info", fmt.Sprintf("%v", r),
				"stacktrace", string(debug.Stack()),
			)
		}
	}()
	fn(ctx, n)
}
