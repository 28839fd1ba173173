package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appaudio "gitlab.com/talagas/dashboard/order-notifier/internal/adapters/audio"
	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	appgrpc "gitlab.com/talagas/dashboard/order-notifier/internal/adapters/grpc"
	apphttp "gitlab.com/talagas/dashboard/order-notifier/internal/adapters/http"
	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/logger"
	appnats "gitlab.com/talagas/dashboard/order-notifier/internal/adapters/nats"
	appredis "gitlab.com/talagas/dashboard/order-notifier/internal/adapters/redis"
	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/socketio"
	wsadapter "gitlab.com/talagas/dashboard/order-notifier/internal/adapters/websocket"
	"gitlab.com/talagas/dashboard/order-notifier/internal/application"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

// InitialZapLoggerProvider provides a basic *zap.Logger instance, primarily for config initialization.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		logger, err = zap.NewDevelopment()
		if err != nil {
			logger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger (production and development failed, falling back to example): %v\n", err)
		}
	}

	cleanup := func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return logger, cleanup, nil
}

// App struct is defined here for Wire to use.
type App struct {
	configProvider config.Provider
	logger         domain.Logger
	httpServeMux   *http.ServeMux
	httpServer     *http.Server
	grpcServer     *appgrpc.Server
	redisClient    *redis.Client
	natsPublisher  *appnats.PublisherAdapter
	toastPublisher *appredis.ToastPubSubAdapter
	apiHandler     *apphttp.APIHandler
	wsRouter       *wsadapter.Router
	hub            *wsadapter.Hub
	bus            *application.EventBus
	presenter      *application.Presenter
	connection     *application.Connection
}

// NewApp is the constructor for App, also for Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	grpcSrv *appgrpc.Server,
	redisClient *redis.Client,
	natsPublisher *appnats.PublisherAdapter,
	toastPublisher *appredis.ToastPubSubAdapter,
	apiHandler *apphttp.APIHandler,
	wsRouter *wsadapter.Router,
	hub *wsadapter.Hub,
	bus *application.EventBus,
	presenter *application.Presenter,
	connection *application.Connection,
) (*App, func(), error) {
	app := &App{
		configProvider: cfgProvider,
		logger:         appLogger,
		httpServeMux:   mux,
		httpServer:     server,
		grpcServer:     grpcSrv,
		redisClient:    redisClient,
		natsPublisher:  natsPublisher,
		toastPublisher: toastPublisher,
		apiHandler:     apiHandler,
		wsRouter:       wsRouter,
		hub:            hub,
		bus:            bus,
		presenter:      presenter,
		connection:     connection,
	}

	cleanup := func() {
		app.logger.Info(context.Background(), "Running app cleanup...")
		if app.grpcServer != nil {
			app.grpcServer.GracefulStop()
		}
	}
	return app, cleanup, nil
}

// ConfigProvider provides the application configuration.
func ConfigProvider(appCtx context.Context, logger *zap.Logger, file config.File) (config.Provider, error) {
	return config.NewViperProvider(appCtx, logger, file)
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	return logger.NewZapAdapter(cfgProvider, cfgProvider.Get().App.ServiceName)
}

// HTTPServeMuxProvider provides the main HTTP multiplexer.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPGracefulServerProvider provides a new HTTP server configured for graceful shutdown.
func HTTPGracefulServerProvider(cfgProvider config.Provider, mux *http.ServeMux) *http.Server {
	appCfg := cfgProvider.Get()

	readTimeout := 10 * time.Second
	writeTimeout := 10 * time.Second
	idleTimeout := 60 * time.Second
	if appCfg.App.WriteTimeoutSeconds > 0 {
		writeTimeout = time.Duration(appCfg.App.WriteTimeoutSeconds) * time.Second
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// RedisClientProvider provides a Redis client and a cleanup function.
func RedisClientProvider(cfgProvider config.Provider, appLogger domain.Logger) (*redis.Client, func(), error) {
	appCfg := cfgProvider.Get()
	client := redis.NewClient(&redis.Options{
		Addr:     appCfg.Redis.Address,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
	})
	_, err := client.Ping(context.Background()).Result()
	if err != nil {
		appLogger.Error(context.Background(), "Failed to connect to Redis", "error", err.Error(), "address", appCfg.Redis.Address)
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", appCfg.Redis.Address, err)
	}
	cleanup := func() {
		client.Close()
		appLogger.Info(context.Background(), "Redis connection closed")
	}
	appLogger.Info(context.Background(), "Successfully connected to Redis", "address", appCfg.Redis.Address)
	return client, cleanup, nil
}

// SessionStoreProvider provides the Redis-backed session store.
func SessionStoreProvider(redisClient *redis.Client, logger domain.Logger, cfgProvider config.Provider) *appredis.SessionStoreAdapter {
	return appredis.NewSessionStoreAdapter(redisClient, logger, cfgProvider)
}

// ToastPublisherProvider provides the Redis toast pub/sub adapter.
func ToastPublisherProvider(redisClient *redis.Client, logger domain.Logger, cfgProvider config.Provider) *appredis.ToastPubSubAdapter {
	return appredis.NewToastPubSubAdapter(redisClient, logger, cfgProvider)
}

// NatsPublisherProvider provides the NATS push and mirror publisher.
func NatsPublisherProvider(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*appnats.PublisherAdapter, func(), error) {
	return appnats.NewPublisherAdapter(ctx, cfgProvider, appLogger)
}

// AudioNotifierProvider provides the new-order cue player, or nil when audio is disabled.
func AudioNotifierProvider(cfgProvider config.Provider, logger domain.Logger) (domain.AudioNotifier, func()) {
	cfg := cfgProvider.Get().Notification
	if !cfg.AudioEnabled {
		logger.Info(context.Background(), "Audio cue disabled by configuration")
		return nil, func() {}
	}
	n := appaudio.NewNotifier(logger, appaudio.NewPlayerFromConfig(cfg))
	return n, n.Close
}

// SocketDialerProvider provides the Socket.IO dialer.
func SocketDialerProvider(logger domain.Logger, cfgProvider config.Provider, sessions domain.SessionStore) *socketio.Dialer {
	return socketio.NewDialer(logger, cfgProvider, sessions, &http.Client{})
}

// EventBusProvider provides the callback registry.
func EventBusProvider(logger domain.Logger) *application.EventBus {
	return application.NewEventBus(logger)
}

// PushNotifierProvider provides the push notifier.
func PushNotifierProvider(logger domain.Logger, cfgProvider config.Provider, sessions domain.SessionStore, sender domain.PushSender) *application.PushNotifier {
	return application.NewPushNotifier(logger, cfgProvider, sessions, sender)
}

// DispatcherProvider provides the inbound event dispatcher.
func DispatcherProvider(logger domain.Logger, bus *application.EventBus, push *application.PushNotifier, audio domain.AudioNotifier) *application.Dispatcher {
	return application.NewDispatcher(logger, bus, push, audio)
}

// ConnectionProvider provides the order connection. It is disposed by App.Run.
func ConnectionProvider(logger domain.Logger, cfgProvider config.Provider, dialer domain.SocketDialer, dispatcher application.EventDispatcher) *application.Connection {
	return application.NewConnection(logger, dialer, dispatcher, application.ConnectionOptionsFromConfig(cfgProvider.Get()))
}

// HubProvider provides the UI stream hub.
func HubProvider(logger domain.Logger) *wsadapter.Hub {
	return wsadapter.NewHub(logger)
}

// PresenterProvider provides the toast presenter.
func PresenterProvider(logger domain.Logger, cfgProvider config.Provider, navigator domain.Navigator) (*application.Presenter, func()) {
	duration := time.Duration(cfgProvider.Get().Notification.ToastDurationSeconds) * time.Second
	if duration <= 0 {
		duration = 10 * time.Second
	}
	p := application.NewPresenter(logger, application.NewSystemClock(), duration, navigator)
	return p, p.Close
}

// WebsocketHandlerProvider provides the toast stream handler.
func WebsocketHandlerProvider(logger domain.Logger, cfgProvider config.Provider, hub *wsadapter.Hub, presenter *application.Presenter, conn *application.Connection) *wsadapter.Handler {
	return wsadapter.NewHandler(logger, cfgProvider, hub, presenter, conn)
}

// WebsocketRouterProvider provides the websocket router.
func WebsocketRouterProvider(logger domain.Logger, cfgProvider config.Provider, wsHandler *wsadapter.Handler) *wsadapter.Router {
	return wsadapter.NewRouter(logger, cfgProvider, wsHandler)
}

// APIHandlerProvider provides the local API handlers.
func APIHandlerProvider(logger domain.Logger, cfgProvider config.Provider, conn *application.Connection, presenter *application.Presenter) *apphttp.APIHandler {
	return apphttp.NewAPIHandler(logger, cfgProvider, conn, presenter)
}

// GRPCServerProvider provides the gRPC health server.
func GRPCServerProvider(appCtx context.Context, logger domain.Logger, cfgProvider config.Provider) (*appgrpc.Server, error) {
	return appgrpc.NewServer(appCtx, logger, cfgProvider)
}

// ProviderSet is the Wire provider set for the entire application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	HTTPServeMuxProvider,
	HTTPGracefulServerProvider,

	// Infrastructure Adapters
	RedisClientProvider,
	SessionStoreProvider,
	wire.Bind(new(domain.SessionStore), new(*appredis.SessionStoreAdapter)),
	ToastPublisherProvider,
	NatsPublisherProvider,
	wire.Bind(new(domain.PushSender), new(*appnats.PublisherAdapter)),
	AudioNotifierProvider,
	SocketDialerProvider,
	wire.Bind(new(domain.SocketDialer), new(*socketio.Dialer)),

	// Application Services
	EventBusProvider,
	PushNotifierProvider,
	DispatcherProvider,
	wire.Bind(new(application.EventDispatcher), new(*application.Dispatcher)),
	ConnectionProvider,
	HubProvider,
	wire.Bind(new(domain.Navigator), new(*wsadapter.Hub)),
	PresenterProvider,

	// Transport
	WebsocketHandlerProvider,
	WebsocketRouterProvider,
	APIHandlerProvider,
	GRPCServerProvider,
	NewApp,
)
