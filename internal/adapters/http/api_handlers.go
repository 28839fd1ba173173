package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/middleware"
	"gitlab.com/talagas/dashboard/order-notifier/internal/application"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

// ConnectionController is the order connection surface used by the API.
type ConnectionController interface {
	Init(ctx context.Context, establishmentID string) error
	Status() domain.ConnectionStatus
}

// ToastController is the presenter surface used by the API.
type ToastController interface {
	Current() domain.Toast
	Dismiss(ctx context.Context) domain.Toast
	ViewOrder(ctx context.Context) (string, error)
	OnNavigate(ctx context.Context, route string)
}

// EstablishmentRequest is the payload for POST /api/establishment.
type EstablishmentRequest struct {
	EstablishmentID string `json:"establishment_id"`
}

// NavigationRequest is the payload for POST /api/navigation.
type NavigationRequest struct {
	Route string `json:"route"`
}

// RouteResponse is returned by POST /api/toast/view.
type RouteResponse struct {
	Route string `json:"route"`
}

// APIHandler serves the local dashboard API.
type APIHandler struct {
	logger         domain.Logger
	configProvider config.Provider
	conn           ConnectionController
	toasts         ToastController
}

// NewAPIHandler creates the local API handler set.
func NewAPIHandler(logger domain.Logger, cfgProvider config.Provider, conn ConnectionController, toasts ToastController) *APIHandler {
	return &APIHandler{
		logger:         logger,
		configProvider: cfgProvider,
		conn:           conn,
		toasts:         toasts,
	}
}

// RegisterRoutes mounts every /api route behind API key auth.
func (h *APIHandler) RegisterRoutes(ctx context.Context, mux *http.ServeMux) {
	auth := middleware.APIKeyAuthMiddleware(h.configProvider, h.logger)
	routes := map[string]http.HandlerFunc{
		"GET /api/status":         h.GetStatus,
		"POST /api/establishment": h.PostEstablishment,
		"GET /api/toast":          h.GetToast,
		"POST /api/toast/dismiss": h.PostDismiss,
		"POST /api/toast/view":    h.PostView,
		"POST /api/navigation":    h.PostNavigation,
	}
	for pattern, fn := range routes {
		mux.Handle(pattern, auth(fn))
	}
	h.logger.Info(ctx, "Local API endpoints registered", "count", len(routes))
}

// GetStatus returns the order connection status.
func (h *APIHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.conn.Status())
}

// PostEstablishment initialises the connection for an establishment.
func (h *APIHandler) PostEstablishment(w http.ResponseWriter, r *http.Request) {
	var req EstablishmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn(r.Context(), "Failed to decode establishment payload", "error", err.Error())
		domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	estab := strings.TrimSpace(req.EstablishmentID)
	if err := h.conn.Init(r.Context(), estab); err != nil {
		switch {
		case errors.Is(err, domain.ErrEstablishmentRequired):
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid payload", "establishment_id is required.").WriteJSON(w, http.StatusBadRequest)
		case errors.Is(err, domain.ErrDisposed):
			domain.NewErrorResponse(domain.ErrDisposedCode, "Connection is shutting down", err.Error()).WriteJSON(w, http.StatusConflict)
		default:
			h.logger.Error(r.Context(), "Failed to initialise order connection", "establishment_id", estab, "error", err.Error())
			domain.NewErrorResponse(domain.ErrInternal, "Failed to initialise connection", err.Error()).WriteJSON(w, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, h.conn.Status())
}

// GetToast returns the current toast snapshot.
func (h *APIHandler) GetToast(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.toasts.Current())
}

// PostDismiss hides the toast.
func (h *APIHandler) PostDismiss(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.toasts.Dismiss(r.Context()))
}

// PostView hides the toast and navigates to the order.
func (h *APIHandler) PostView(w http.ResponseWriter, r *http.Request) {
	route, err := h.toasts.ViewOrder(r.Context())
	if errors.Is(err, application.ErrNoToast) {
		domain.NewErrorResponse(domain.ErrNotFound, "No order toast is visible", "").WriteJSON(w, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error(r.Context(), "Failed to navigate to order", "error", err.Error())
		domain.NewErrorResponse(domain.ErrInternal, "Failed to navigate", err.Error()).WriteJSON(w, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, RouteResponse{Route: route})
}

// PostNavigation reports a dashboard route change.
func (h *APIHandler) PostNavigation(w http.ResponseWriter, r *http.Request) {
	var req NavigationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Route == "" {
		domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", "route is required.").WriteJSON(w, http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	h.toasts.OnNavigate(r.Context(), req.Route)
	writeJSON(w, http.StatusOK, h.toasts.Current())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
