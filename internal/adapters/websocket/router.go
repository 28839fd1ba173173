package websocket

import (
	"context"
	"net/http"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/middleware"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

// ToastStreamPattern is the UI stream route.
const ToastStreamPattern = "GET /ws/toasts"

// Router registers the UI stream endpoint behind API key auth.
type Router struct {
	logger         domain.Logger
	configProvider config.Provider
	wsHandler      http.Handler
}

// NewRouter creates a new WebSocket router.
func NewRouter(logger domain.Logger, cfgProvider config.Provider, wsHandler *Handler) *Router {
	return &Router{
		logger:         logger,
		configProvider: cfgProvider,
		wsHandler:      wsHandler,
	}
}

// RegisterRoutes sets up the WebSocket endpoint with the necessary middleware.
func (r *Router) RegisterRoutes(ctx context.Context, mux *http.ServeMux) {
	mux.Handle(ToastStreamPattern, middleware.APIKeyAuthMiddleware(r.configProvider, r.logger)(r.wsHandler))
	r.logger.Info(ctx, "WebSocket endpoint registered", "pattern", ToastStreamPattern)
}
