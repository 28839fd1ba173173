package application

import (
	"context"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/metrics"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

// Dispatcher decodes order events, fires the local side effects and hands
// the decoded payload to the EventBus.
type Dispatcher struct {
	logger domain.Logger
	bus    *EventBus
	push   *PushNotifier
	audio  domain.AudioNotifier
}

// NewDispatcher creates a Dispatcher. audio may be nil when sound is disabled.
func NewDispatcher(logger domain.Logger, bus *EventBus, push *PushNotifier, audio domain.AudioNotifier) *Dispatcher {
	return &Dispatcher{
		logger: logger,
		bus:    bus,
		push:   push,
		audio:  audio,
	}
}

// Dispatch implements EventDispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, establishmentID string, ev domain.InboundEvent) {
	switch ev.Name {
	case domain.EventNewOrder, domain.EventOrderUpdated, domain.EventOrderCreated:
	default:
		d.logger.Debug(ctx, "Ignoring unhandled socket event", "event", string(ev.Name))
		return
	}

	n := domain.DecodeOrderNotification(ev.FirstArg())
	d.logger.Info(ctx, "Order event received",
		"event", string(ev.Name),
		"order_id", n.OrderID,
		"order_code", n.OrderCode,
		"item_count", n.ItemCount,
	)

	d.push.Notify(ctx, establishmentID, ev.Name, n)
	if ev.Name == domain.EventNewOrder {
		d.playCue(ctx)
	}
	d.bus.Publish(ctx, ev.Name, n)
}

func (d *Dispatcher) playCue(ctx context.Context) {
	if d.audio == nil {
		return
	}
	if err := d.audio.PlayNewOrderCue(ctx); err != nil {
		metrics.IncrementAudioCue("failed")
		d.logger.Warn(ctx, "New order audio cue failed", "error", err.Error())
	}
}
