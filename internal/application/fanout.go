package application

import (
	"context"
	"sync"
	"time"

	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/safego"
)

const (
	toastFanoutBuffer   = 16
	toastPublishTimeout = 2 * time.Second
)

type toastUpdate struct {
	establishmentID string
	toast           domain.Toast
}

// AttachToastPublisher forwards every presenter transition to pub from a
// single background goroutine, so observers never wait on the network. When
// the queue is full the oldest pending transition is dropped. establishment
// reports the current establishment; transitions without one are skipped.
// The returned func detaches and waits for the worker.
func AttachToastPublisher(logger domain.Logger, presenter *Presenter, establishment func() string, pub domain.ToastPublisher) (dispose func()) {
	ctx, cancel := context.WithCancel(context.Background())
	queue := make(chan toastUpdate, toastFanoutBuffer)
	var wg sync.WaitGroup

	wg.Add(1)
	safego.Execute(ctx, logger, "ToastFanout", func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-queue:
				pubCtx, pubCancel := context.WithTimeout(ctx, toastPublishTimeout)
				if err := pub.PublishToast(pubCtx, u.establishmentID, u.toast); err != nil {
					logger.Warn(ctx, "Failed to publish toast transition", "establishment_id", u.establishmentID, "error", err.Error())
				}
				pubCancel()
			}
		}
	})

	detach := presenter.OnChange(func(t domain.Toast) {
		estab := establishment()
		if estab == "" {
			return
		}
		u := toastUpdate{establishmentID: estab, toast: t}
		for {
			select {
			case queue <- u:
				return
			default:
			}
			select {
			case <-queue:
				logger.Debug(ctx, "Toast fan-out queue full; dropped oldest transition")
			default:
			}
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			detach()
			cancel()
			wg.Wait()
		})
	}
}
