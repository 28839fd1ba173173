package application

import (
	"context"

	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/contextkeys"
)

var mirroredEvents = []domain.EventName{
	domain.EventNewOrder,
	domain.EventOrderUpdated,
	domain.EventOrderCreated,
}

// AttachMirror subscribes mirror to every order event on bus. The returned
// func removes all of its subscriptions.
func AttachMirror(logger domain.Logger, bus *EventBus, mirror domain.EventMirror) (dispose func()) {
	disposers := make([]func(), 0, len(mirroredEvents))
	for _, event := range mirroredEvents {
		event := event
		disposers = append(disposers, bus.Subscribe(event, func(ctx context.Context, n domain.OrderNotification) {
			estabID, _ := ctx.Value(contextkeys.EstablishmentIDKey).(string)
			if err := mirror.Mirror(ctx, estabID, event, n); err != nil {
				logger.Warn(ctx, "Failed to mirror order event", "event", string(event), "error", err.Error())
			}
		}))
	}
	return func() {
		for _, d := range disposers {
			d()
		}
	}
}
