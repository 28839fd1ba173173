package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/contextkeys"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/safego"
)

// ToastController is the presenter surface driven by UI clients.
type ToastController interface {
	Current() domain.Toast
	Dismiss(ctx context.Context) domain.Toast
	ViewOrder(ctx context.Context) (string, error)
	OnNavigate(ctx context.Context, route string)
}

// StatusSource reports the order connection status.
type StatusSource interface {
	Status() domain.ConnectionStatus
}

// Handler upgrades dashboard UI clients onto the toast stream.
type Handler struct {
	logger         domain.Logger
	configProvider config.Provider
	hub            *Hub
	toasts         ToastController
	status         StatusSource
}

// NewHandler creates a new toast stream Handler.
func NewHandler(logger domain.Logger, cfgProvider config.Provider, hub *Hub, toasts ToastController, status StatusSource) *Handler {
	return &Handler{
		logger:         logger,
		configProvider: cfgProvider,
		hub:            hub,
		toasts:         toasts,
		status:         status,
	}
}

// ServeHTTP is the entry point for WebSocket upgrade requests. It expects to
// run behind the API key middleware.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{"json.v1"},
	})
	if err != nil {
		h.logger.Error(r.Context(), "WebSocket upgrade failed", "error", err.Error())
		return
	}

	id := uuid.NewString()
	// The connection outlives the upgrade request; keep its values only.
	connCtx := context.WithValue(context.WithoutCancel(r.Context()), contextkeys.SocketIDKey, id)
	connCtx, cancel := context.WithCancel(connCtx)
	conn := NewConnection(connCtx, cancel, id, c, r.RemoteAddr, h.logger, h.configProvider)

	h.logger.Info(connCtx, "UI stream client connected", "remote_addr", conn.RemoteAddr(), "subprotocol", c.Subprotocol())

	if err := h.hub.RegisterWithGreeting(id, conn, func() error { return h.greet(conn) }); err != nil {
		h.logger.Warn(connCtx, "Failed to greet UI stream client", "error", err.Error())
		_ = conn.Close(websocket.StatusInternalError, "greeting failed")
		return
	}

	h.manageConnection(connCtx, conn)
}

func (h *Handler) greet(conn *Connection) error {
	if err := conn.WriteJSON(domain.NewReadyMessage()); err != nil {
		return err
	}
	if h.status != nil {
		if err := conn.WriteJSON(domain.NewStatusMessage(statusPayload(h.status.Status()))); err != nil {
			return err
		}
	}
	if t := h.toasts.Current(); t.Visible() {
		return conn.WriteJSON(domain.NewToastMessage(t))
	}
	return nil
}

// manageConnection runs the read loop and pinger until the client goes away.
func (h *Handler) manageConnection(connCtx context.Context, conn *Connection) {
	defer func() {
		h.hub.Deregister(conn.ID())
		_ = conn.Close(websocket.StatusNormalClosure, "connection ended")
		h.logger.Info(connCtx, "UI stream client disconnected", "remote_addr", conn.RemoteAddr())
	}()

	if conn.pingInterval > 0 {
		safego.Execute(connCtx, h.logger, "UIStreamPinger-"+conn.ID(), func() {
			ticker := time.NewTicker(conn.pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := conn.Ping(connCtx); err != nil {
						if connCtx.Err() == nil {
							h.logger.Warn(connCtx, "UI stream ping failed", "error", err.Error())
						}
						conn.cancelConnCtxFunc()
						return
					}
				case <-connCtx.Done():
					return
				}
			}
		})
	}

	for {
		msgType, p, err := conn.ReadMessage(connCtx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				h.logger.Debug(connCtx, "UI stream closed by peer", "status_code", int(status))
			case errors.Is(err, context.Canceled) || connCtx.Err() != nil:
			default:
				h.logger.Debug(connCtx, "UI stream read ended", "error", err.Error())
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		h.handleMessage(connCtx, conn, p)
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *Connection, p []byte) {
	var msg domain.InboundMessage
	if err := json.Unmarshal(p, &msg); err != nil {
		h.replyError(ctx, conn, domain.NewErrorResponse(domain.ErrBadRequest, "Invalid message format", err.Error()))
		return
	}

	switch msg.Type {
	case domain.MessageTypeDismiss:
		h.toasts.Dismiss(ctx)
	case domain.MessageTypeView:
		if _, err := h.toasts.ViewOrder(ctx); err != nil {
			h.replyError(ctx, conn, domain.NewErrorResponse(domain.ErrNotFound, "No order toast is visible", err.Error()))
		}
	case domain.MessageTypeNavigation:
		var nav domain.NavigatePayload
		if err := json.Unmarshal(msg.Payload, &nav); err != nil || nav.Route == "" {
			h.replyError(ctx, conn, domain.NewErrorResponse(domain.ErrBadRequest, "Invalid navigation payload", "payload.route is required"))
			return
		}
		h.toasts.OnNavigate(ctx, nav.Route)
	default:
		h.replyError(ctx, conn, domain.NewErrorResponse(domain.ErrBadRequest, "Unhandled message type", "Type: "+msg.Type))
	}
}

func (h *Handler) replyError(ctx context.Context, conn *Connection, errResp domain.ErrorResponse) {
	h.logger.Warn(ctx, "Rejected UI stream message", "code", string(errResp.Code), "message", errResp.Message)
	if err := conn.WriteJSON(domain.NewErrorMessage(errResp)); err != nil {
		h.logger.Debug(ctx, "Failed to send error message to UI stream client", "error", err.Error())
	}
}
