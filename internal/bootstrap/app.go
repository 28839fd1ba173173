package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	apphttp "gitlab.com/talagas/dashboard/order-notifier/internal/adapters/http"
	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/middleware"
	"gitlab.com/talagas/dashboard/order-notifier/internal/application"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/safego"
)

// NOTE: The App struct and NewApp function are defined in providers.go for Wire.

// attach connects the components that observe each other and returns the
// matching disposers.
func (a *App) attach(ctx context.Context) []func() {
	disposers := []func(){
		a.bus.Register(application.Callbacks{OnNewOrder: a.presenter.HandleNewOrder}),
		a.presenter.OnChange(a.hub.BroadcastToast),
		a.connection.OnStateChange(a.hub.BroadcastStatus),
		a.connection.OnStateChange(a.grpcServer.SetConnectionStatus),
		application.AttachToastPublisher(a.logger, a.presenter, a.connection.EstablishmentID, a.toastPublisher),
	}
	if a.configProvider.Get().NATS.MirrorEnabled {
		disposers = append(disposers, application.AttachMirror(a.logger, a.bus, a.natsPublisher))
		a.logger.Info(ctx, "Order event mirror enabled", "subject_prefix", a.configProvider.Get().NATS.MirrorSubjectPrefix)
	}
	return disposers
}

func (a *App) readinessChecks() []apphttp.DependencyCheck {
	return []apphttp.DependencyCheck{
		{Name: "socket", Check: func(context.Context) (string, error) {
			state := a.connection.State()
			if state != domain.StateConnected {
				return string(state), fmt.Errorf("order socket is %s", state)
			}
			return string(state), nil
		}},
		{Name: "redis", Check: func(ctx context.Context) (string, error) {
			if err := a.redisClient.Ping(ctx).Err(); err != nil {
				return "disconnected", err
			}
			return "connected", nil
		}},
		{Name: "nats", Check: func(context.Context) (string, error) {
			if !a.natsPublisher.Connected() {
				return "disconnected", errors.New("nats not connected")
			}
			return "connected", nil
		}},
	}
}

// Run starts the application, listens for HTTP requests, and handles graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	appCfg := a.configProvider.Get()
	a.logger.Info(ctx, "Starting application", "service_name", appCfg.App.ServiceName, "version", appCfg.App.Version)

	disposers := a.attach(ctx)

	a.httpServeMux.Handle("GET /health", apphttp.HealthHandler(a.logger))
	a.httpServeMux.Handle("GET /ready", apphttp.ReadyHandler(a.logger, a.readinessChecks()...))
	a.httpServeMux.Handle("GET /metrics", promhttp.Handler())
	a.wsRouter.RegisterRoutes(ctx, a.httpServeMux)
	a.apiHandler.RegisterRoutes(ctx, a.httpServeMux)
	a.httpServer.Handler = middleware.RequestIDMiddleware(a.httpServeMux)

	if err := a.grpcServer.Start(); err != nil {
		a.logger.Warn(ctx, "gRPC health server not started", "error", err.Error())
	}

	if estab := appCfg.App.EstablishmentID; estab != "" {
		if err := a.connection.Init(ctx, estab); err != nil {
			a.logger.Error(ctx, "Failed to initialise order connection", "establishment_id", estab, "error", err.Error())
		}
	} else {
		a.logger.Info(ctx, "No establishment configured; waiting for POST /api/establishment")
	}

	safego.Execute(ctx, a.logger, "SignalListenerAndGracefulShutdown", func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)
		select {
		case sig := <-quit:
			a.logger.Info(context.Background(), "Shutdown signal received, initiating graceful shutdown...", "signal", sig.String())
		case <-ctx.Done():
			a.logger.Info(context.Background(), "Application context cancelled, initiating graceful shutdown...")
		}

		shutdownTimeout := 15 * time.Second
		if secs := a.configProvider.Get().App.ShutdownTimeoutSeconds; secs > 0 {
			shutdownTimeout = time.Duration(secs) * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.connection.Dispose(shutdownCtx); err != nil {
			a.logger.Error(shutdownCtx, "Order connection did not stop cleanly", "error", err.Error())
		}
		for i := len(disposers) - 1; i >= 0; i-- {
			disposers[i]()
		}

		a.hub.CloseAll("Server is shutting down")
		a.grpcServer.GracefulStop()

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(context.Background(), "HTTP server graceful shutdown failed", "error", err.Error())
		}
		a.logger.Info(context.Background(), "HTTP server shut down.")
	})

	a.logger.Info(ctx, fmt.Sprintf("HTTP server listening on port %d", appCfg.Server.HTTPPort))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error(ctx, "HTTP server ListenAndServe error", "error", err.Error())
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	a.logger.Info(ctx, "Application shut down gracefully or server closed.")
	return nil
}
