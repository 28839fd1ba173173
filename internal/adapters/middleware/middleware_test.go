package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/logger"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/contextkeys"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	if id, _ := r.Context().Value(contextkeys.RequestIDKey).(string); id != "" {
		w.Header().Set("X-Seen-Request-ID", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.APIKey = "s3cret"
	mw := APIKeyAuthMiddleware(config.NewStaticProvider(cfg), logger.NewFromZap(zaptest.NewLogger(t)))
	h := mw(http.HandlerFunc(okHandler))

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"header", "/api/status", "s3cret", http.StatusNoContent},
		{"query", "/ws/toasts?x-api-key=s3cret", "", http.StatusNoContent},
		{"missing", "/api/status", "", http.StatusUnauthorized},
		{"wrong", "/api/status", "nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(apiKeyHeaderName, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAPIKeyAuthMiddlewareNotConfigured(t *testing.T) {
	mw := APIKeyAuthMiddleware(config.NewStaticProvider(config.Defaults()), logger.NewFromZap(zaptest.NewLogger(t)))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(apiKeyHeaderName, "anything")
	mw(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	h := RequestIDMiddleware(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(XRequestIDHeader, "req-1")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Header().Get(XRequestIDHeader))
	assert.Equal(t, "req-1", rec.Header().Get("X-Seen-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get(XRequestIDHeader))
}
