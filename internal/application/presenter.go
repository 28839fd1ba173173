package application

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/metrics"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

// OrdersRoute is the dashboard orders view.
const OrdersRoute = "/pedidos"

// ErrNoToast is returned by ViewOrder when nothing is on screen.
var ErrNoToast = errors.New("no toast visible")

// Presenter is the new-order toast state machine: hidden or visible, one
// toast at a time, auto-hidden a fixed duration after the latest arrival.
type Presenter struct {
	logger    domain.Logger
	clock     Clock
	duration  time.Duration
	navigator domain.Navigator

	// emitMu orders transitions with their observer callbacks.
	emitMu sync.Mutex

	mu        sync.Mutex
	toast     domain.Toast
	gen       uint64
	timer     Timer
	observers map[uint64]func(domain.Toast)
	nextObsID uint64
}

// NewPresenter creates a hidden Presenter.
func NewPresenter(logger domain.Logger, clock Clock, duration time.Duration, navigator domain.Navigator) *Presenter {
	return &Presenter{
		logger:    logger,
		clock:     clock,
		duration:  duration,
		navigator: navigator,
		toast:     domain.Toast{State: domain.ToastHidden},
		observers: make(map[uint64]func(domain.Toast)),
	}
}

// HandleNewOrder is the onNewOrder callback.
func (p *Presenter) HandleNewOrder(ctx context.Context, n domain.OrderNotification) {
	p.Show(ctx, n)
}

// Show displays n, replacing any visible toast and restarting the timer.
func (p *Presenter) Show(ctx context.Context, n domain.OrderNotification) domain.Toast {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	gen := p.gen
	now := p.clock.Now()
	order := n
	p.toast = domain.Toast{
		ID:        uuid.NewString(),
		State:     domain.ToastVisible,
		Order:     &order,
		ShownAt:   now,
		ExpiresAt: now.Add(p.duration),
	}
	p.timer = p.clock.AfterFunc(p.duration, func() { p.expire(gen) })
	snapshot := p.toast
	observers := lo.Values(p.observers)
	p.mu.Unlock()

	metrics.IncrementToastShown()
	p.logger.Info(ctx, "Showing new order toast", "order_id", n.OrderID, "order_code", n.OrderCode, "toast_id", snapshot.ID)
	emitToast(observers, snapshot)
	return snapshot
}

// Dismiss hides the toast on user request.
func (p *Presenter) Dismiss(ctx context.Context) domain.Toast {
	snapshot, _ := p.hide(ctx, 0, domain.HideReasonDismissed)
	return snapshot
}

// OnNavigate hides the toast when the UI moves to the orders view or below it.
func (p *Presenter) OnNavigate(ctx context.Context, route string) {
	if !IsOrdersRoute(route) {
		return
	}
	p.hide(ctx, 0, domain.HideReasonNavigated)
}

// ViewOrder hides the toast and routes the UI to the displayed order.
func (p *Presenter) ViewOrder(ctx context.Context) (string, error) {
	snapshot, hidden := p.hide(ctx, 0, domain.HideReasonViewed)
	if !hidden {
		return "", ErrNoToast
	}

	route := OrdersRoute
	if snapshot.Order != nil && snapshot.Order.OrderID != "" {
		route = OrdersRoute + "/" + url.PathEscape(snapshot.Order.OrderID)
	}
	if p.navigator != nil {
		if err := p.navigator.Navigate(ctx, route); err != nil {
			p.logger.Error(ctx, "Failed to navigate to order", "route", route, "error", err.Error())
			return route, err
		}
	}
	return route, nil
}

// Current returns the present toast snapshot.
func (p *Presenter) Current() domain.Toast {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toast
}

// OnChange registers fn for every transition. fn must not call Show,
// Dismiss, OnNavigate or ViewOrder.
func (p *Presenter) OnChange(fn func(domain.Toast)) (dispose func()) {
	p.mu.Lock()
	p.nextObsID++
	id := p.nextObsID
	p.observers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}
}

// Close stops the pending timer.
func (p *Presenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
}

func (p *Presenter) expire(gen uint64) {
	p.hide(context.Background(), gen, domain.HideReasonExpired)
}

// hide moves visible to hidden. A non-zero gen only matches the toast it
// was scheduled for. It returns the toast as it was before hiding.
func (p *Presenter) hide(ctx context.Context, gen uint64, reason string) (domain.Toast, bool) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	if !p.toast.Visible() || (gen != 0 && gen != p.gen) {
		p.mu.Unlock()
		return p.toast, false
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
	before := p.toast
	p.toast = domain.Toast{State: domain.ToastHidden, HideReason: reason}
	snapshot := p.toast
	observers := lo.Values(p.observers)
	p.mu.Unlock()

	metrics.IncrementToastHidden(reason)
	p.logger.Info(ctx, "Hiding new order toast", "toast_id", before.ID, "reason", reason)
	emitToast(observers, snapshot)
	return before, true
}

func emitToast(observers []func(domain.Toast), t domain.Toast) {
	for _, fn := range observers {
		fn(t)
	}
}

// IsOrdersRoute reports whether route is the orders view or one of its children.
func IsOrdersRoute(route string) bool {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	if route == "" {
		return false
	}
	cleaned := path.Clean("/" + strings.TrimPrefix(route, "/"))
	return cleaned == OrdersRoute || strings.HasPrefix(cleaned, OrdersRoute+"/")
}
