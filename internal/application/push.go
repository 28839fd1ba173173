package application

import (
	"context"
	"errors"
	"fmt"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/metrics"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

// PushNotifier sends OS-level notifications for order events when the
// workstation has already granted permission. It never asks for permission.
type PushNotifier struct {
	logger         domain.Logger
	configProvider config.Provider
	sessions       domain.SessionStore
	sender         domain.PushSender
}

// NewPushNotifier creates a PushNotifier. sessions may be nil, in which case
// only the configured permission is consulted.
func NewPushNotifier(logger domain.Logger, configProvider config.Provider, sessions domain.SessionStore, sender domain.PushSender) *PushNotifier {
	return &PushNotifier{
		logger:         logger,
		configProvider: configProvider,
		sessions:       sessions,
		sender:         sender,
	}
}

// Permission resolves the effective permission: the configured value when
// set, otherwise the one stored with the dashboard session.
func (p *PushNotifier) Permission(ctx context.Context, establishmentID string) domain.PushPermission {
	if configured := p.configProvider.Get().Notification.PushPermission; configured != "" {
		return domain.PushPermission(configured)
	}
	if p.sessions == nil {
		return domain.PermissionDefault
	}
	perm, err := p.sessions.NotificationPermission(ctx, establishmentID)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			p.logger.Warn(ctx, "Failed to read stored notification permission", "error", err.Error())
		}
		return domain.PermissionDefault
	}
	return perm
}

// Notify sends the notification for event, or does nothing unless permission is granted.
func (p *PushNotifier) Notify(ctx context.Context, establishmentID string, event domain.EventName, n domain.OrderNotification) {
	if perm := p.Permission(ctx, establishmentID); perm != domain.PermissionGranted {
		metrics.IncrementPush("skipped")
		p.logger.Debug(ctx, "Push notification skipped; permission not granted", "permission", string(perm), "event", string(event))
		return
	}

	cfg := p.configProvider.Get()
	title, body := PushText(event, n)
	msg := domain.PushNotification{
		Title:           title,
		Body:            body,
		Icon:            cfg.Notification.Icon,
		Badge:           cfg.Notification.Badge,
		Tag:             fmt.Sprintf("%s-%s", event, n.OrderID),
		Event:           event,
		OrderID:         n.OrderID,
		EstablishmentID: establishmentID,
	}
	if err := p.sender.Send(ctx, msg); err != nil {
		metrics.IncrementPush("failed")
		p.logger.Error(ctx, "Failed to send push notification", "event", string(event), "order_id", n.OrderID, "error", err.Error())
		return
	}
	metrics.IncrementPush("sent")
}

// PushText returns the event-specific title and body.
func PushText(event domain.EventName, n domain.OrderNotification) (title, body string) {
	switch event {
	case domain.EventNewOrder:
		return "Novo Pedido!", fmt.Sprintf("Pedido #%s de %s - R$ %s", n.OrderCode, n.CustomerName, formatBRL(n.Total))
	case domain.EventOrderUpdated:
		return "Pedido Atualizado", fmt.Sprintf("Pedido #%s foi atualizado", n.OrderCode)
	case domain.EventOrderCreated:
		return "Pedido Criado", fmt.Sprintf("Pedido #%s criado para %s", n.OrderCode, n.CustomerName)
	}
	return "TalaGás", fmt.Sprintf("Pedido #%s", n.OrderCode)
}

// formatBRL renders v with two decimals and a comma separator.
func formatBRL(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	return s[:len(s)-3] + "," + s[len(s)-2:]
}
