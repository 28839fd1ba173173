package socketio

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/metrics"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/crypto"
)

// Dialer opens Socket.IO sessions to the order server, trying the configured
// transports in order. It implements domain.SocketDialer.
type Dialer struct {
	logger         domain.Logger
	configProvider config.Provider
	sessions       domain.SessionStore
	httpClient     *http.Client
}

// NewDialer creates a Dialer. sessions may be nil, in which case the
// CONNECT packet carries no auth token.
func NewDialer(logger domain.Logger, configProvider config.Provider, sessions domain.SessionStore, httpClient *http.Client) *Dialer {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Dialer{
		logger:         logger,
		configProvider: configProvider,
		sessions:       sessions,
		httpClient:     httpClient,
	}
}

// Dial implements domain.SocketDialer.
func (d *Dialer) Dial(ctx context.Context, establishmentID string) (domain.Socket, error) {
	cfg := d.configProvider.Get().Socket
	endpoint, err := endpointURL(cfg.URL, cfg.Path)
	if err != nil {
		return nil, err
	}

	auth := d.auth(ctx, establishmentID)
	header := http.Header{}
	header.Set("User-Agent", "talagas-order-notifier")

	transports := cfg.Transports
	if len(transports) == 0 {
		transports = []string{domain.TransportWebSocket, domain.TransportPolling}
	}

	var errs []error
	for _, name := range transports {
		t, open, err := openTransport(ctx, name, d.httpClient, endpoint, header)
		if err == nil {
			var s *session
			s, err = connect(ctx, d.logger, t, open, auth)
			if err != nil {
				_ = t.Close()
			} else {
				metrics.IncrementDial(name, "success")
				d.logger.Debug(ctx, "Socket.IO session established", "transport", name, "engine_sid", open.SID, "socket_sid", s.ID())
				return s, nil
			}
		}

		metrics.IncrementDial(name, "failure")
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
		if ctx.Err() != nil {
			break
		}
		d.logger.Debug(ctx, "Socket transport failed, trying next", "transport", name, "error", err.Error())
	}
	return nil, errors.Join(errs...)
}

// auth reads the dashboard session token for the CONNECT packet.
func (d *Dialer) auth(ctx context.Context, establishmentID string) map[string]string {
	if d.sessions == nil {
		return nil
	}
	token, err := d.sessions.Token(ctx, establishmentID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			d.logger.Warn(ctx, "No dashboard session stored; connecting without token", "establishment_id", establishmentID)
		} else {
			d.logger.Error(ctx, "Failed to read dashboard session token", "establishment_id", establishmentID, "error", err.Error())
		}
		return nil
	}
	d.logger.Debug(ctx, "Using dashboard session token", "token_fingerprint", crypto.Fingerprint(token))
	return map[string]string{"token": token}
}
