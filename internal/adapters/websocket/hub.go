package websocket

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/metrics"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

// Hub tracks the UI stream connections and broadcasts to all of them. It is
// the domain.Navigator used by the presenter.
type Hub struct {
	logger domain.Logger
	mu     sync.RWMutex
	conns  map[string]domain.ManagedConnection
}

// NewHub creates an empty hub.
func NewHub(logger domain.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[string]domain.ManagedConnection),
	}
}

// Register adds a connection.
func (h *Hub) Register(id string, conn domain.ManagedConnection) {
	_ = h.RegisterWithGreeting(id, conn, nil)
}

// RegisterWithGreeting runs greet and adds conn while holding the hub lock,
// so no broadcast can fall between the greeting snapshot and registration.
// greet must only queue writes. On a greet error conn is not added.
func (h *Hub) RegisterWithGreeting(id string, conn domain.ManagedConnection, greet func() error) error {
	h.mu.Lock()
	if greet != nil {
		if err := greet(); err != nil {
			h.mu.Unlock()
			return err
		}
	}
	_, existed := h.conns[id]
	h.conns[id] = conn
	h.mu.Unlock()
	if !existed {
		metrics.IncrementUIStreamConnections()
	}
	return nil
}

// Deregister removes a connection.
func (h *Hub) Deregister(id string) {
	h.mu.Lock()
	_, existed := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if existed {
		metrics.DecrementUIStreamConnections()
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast queues msg on every connection.
func (h *Hub) Broadcast(msg domain.BaseMessage) {
	h.mu.RLock()
	conns := lo.Values(h.conns)
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug(conn.Context(), "Skipping UI stream client", "type", msg.Type, "error", err.Error())
		}
	}
}

// BroadcastToast is a presenter observer.
func (h *Hub) BroadcastToast(t domain.Toast) {
	h.Broadcast(domain.NewToastMessage(t))
}

// BroadcastStatus is a connection state observer.
func (h *Hub) BroadcastStatus(s domain.ConnectionStatus) {
	h.Broadcast(domain.NewStatusMessage(statusPayload(s)))
}

// Navigate implements domain.Navigator.
func (h *Hub) Navigate(ctx context.Context, route string) error {
	h.logger.Info(ctx, "Navigating dashboard", "route", route, "clients", h.Count())
	h.Broadcast(domain.NewNavigateMessage(route))
	return nil
}

// CloseAll closes every connection with StatusGoingAway.
func (h *Hub) CloseAll(reason string) {
	h.mu.RLock()
	conns := lo.Values(h.conns)
	h.mu.RUnlock()
	for _, conn := range conns {
		_ = conn.Close(domain.StatusGoingAway, reason)
	}
}

func statusPayload(s domain.ConnectionStatus) domain.StatusPayload {
	return domain.StatusPayload{
		State:             s.State,
		EstablishmentID:   s.EstablishmentID,
		ReconnectAttempts: s.ReconnectAttempts,
	}
}
