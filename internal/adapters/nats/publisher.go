package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/contextkeys"
)

// Message headers set on every published message.
const (
	HeaderEvent           = "Talagas-Event"
	HeaderEstablishmentID = "Talagas-Establishment"
	HeaderEventID         = "Talagas-Event-Id"
	HeaderWorkstationID   = "Talagas-Workstation"
)

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// PublisherAdapter delivers push notifications to the workstation notification
// daemon and mirrors order events for other consumers, both over core NATS.
type PublisherAdapter struct {
	nc          *nats.Conn
	pub         msgPublisher
	logger      domain.Logger
	cfgProvider config.Provider
}

// NewPublisherAdapter connects to NATS. The returned cleanup drains the connection.
func NewPublisherAdapter(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*PublisherAdapter, func(), error) {
	cfg := cfgProvider.Get()
	natsCfg := cfg.NATS

	appLogger.Info(ctx, "Attempting to connect to NATS server", "url", natsCfg.URL)

	nc, err := nats.Connect(natsCfg.URL,
		nats.Name(fmt.Sprintf("%s-publisher-%s", cfg.App.ServiceName, cfg.Server.WorkstationID)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			appLogger.Error(ctx, "NATS error", "error", err.Error())
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS connection closed")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			appLogger.Warn(ctx, "NATS disconnected", "error", err)
		}),
	)
	if err != nil {
		appLogger.Error(ctx, "Failed to connect to NATS", "url", natsCfg.URL, "error", err.Error())
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsCfg.URL, err)
	}

	adapter := newPublisherAdapter(nc, cfgProvider, appLogger)
	cleanup := func() {
		appLogger.Info(context.Background(), "Closing NATS connection...")
		adapter.Close()
	}
	return adapter, cleanup, nil
}

func newPublisherAdapter(pub msgPublisher, cfgProvider config.Provider, logger domain.Logger) *PublisherAdapter {
	a := &PublisherAdapter{pub: pub, logger: logger, cfgProvider: cfgProvider}
	if nc, ok := pub.(*nats.Conn); ok {
		a.nc = nc
	}
	return a
}

// Close drains and closes the NATS connection.
func (a *PublisherAdapter) Close() {
	if a.nc == nil || a.nc.IsClosed() {
		return
	}
	if err := a.nc.Drain(); err != nil {
		a.logger.Error(context.Background(), "Error draining NATS connection", "error", err.Error())
	}
}

// Connected reports whether the underlying connection is up.
func (a *PublisherAdapter) Connected() bool {
	return a.nc != nil && a.nc.IsConnected()
}

// PushSubject returns <push_subject_prefix>.<establishment>.
func PushSubject(prefix, establishmentID string) string {
	return prefix + "." + subjectToken(establishmentID)
}

// MirrorSubject returns <mirror_subject_prefix>.<establishment>.<event>.
func MirrorSubject(prefix, establishmentID string, event domain.EventName) string {
	return prefix + "." + subjectToken(establishmentID) + "." + subjectToken(string(event))
}

// subjectToken keeps a value inside a single subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// Send implements domain.PushSender.
func (a *PublisherAdapter) Send(ctx context.Context, n domain.PushNotification) error {
	subject := PushSubject(a.cfgProvider.Get().NATS.PushSubjectPrefix, n.EstablishmentID)
	return a.publish(ctx, subject, n.EstablishmentID, n.Event, n)
}

// MirrorMessage is the body published on the mirror subject.
type MirrorMessage struct {
	Event           domain.EventName         `json:"event"`
	EstablishmentID string                   `json:"establishment_id"`
	Order           domain.OrderNotification `json:"order"`
	ReceivedAt      time.Time                `json:"received_at"`
}

// Mirror implements domain.EventMirror.
func (a *PublisherAdapter) Mirror(ctx context.Context, establishmentID string, event domain.EventName, n domain.OrderNotification) error {
	subject := MirrorSubject(a.cfgProvider.Get().NATS.MirrorSubjectPrefix, establishmentID, event)
	return a.publish(ctx, subject, establishmentID, event, MirrorMessage{
		Event:           event,
		EstablishmentID: establishmentID,
		Order:           n,
		ReceivedAt:      time.Now().UTC(),
	})
}

func (a *PublisherAdapter) publish(ctx context.Context, subject, establishmentID string, event domain.EventName, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message for subject %s: %w", subject, err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(HeaderEvent, string(event))
	msg.Header.Set(HeaderEstablishmentID, establishmentID)
	if ws := a.cfgProvider.Get().Server.WorkstationID; ws != "" {
		msg.Header.Set(HeaderWorkstationID, ws)
	}
	if eventID, ok := ctx.Value(contextkeys.EventIDKey).(string); ok && eventID != "" {
		msg.Header.Set(HeaderEventID, eventID)
	}

	if err := a.pub.PublishMsg(msg); err != nil {
		a.logger.Error(ctx, "Failed to publish NATS message", "subject", subject, "error", err.Error())
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	a.logger.Debug(ctx, "Published NATS message", "subject", subject, "bytes", len(data))
	return nil
}
