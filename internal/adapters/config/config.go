package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "TALAGAS_NOTIFIER"

// ServerConfig holds the local API listeners.
// Note: Fields should be exported (start with uppercase) to be unmarshalled by Viper.
type ServerConfig struct {
	HTTPPort      int    `mapstructure:"http_port"`
	GRPCPort      int    `mapstructure:"grpc_port"`
	WorkstationID string `mapstructure:"workstation_id"` // Identifies this dashboard process in logs and published toasts
}

// SocketConfig holds the order socket (Socket.IO) client configuration.
type SocketConfig struct {
	URL                    string   `mapstructure:"url"`  // e.g. https://api.talagas.com.br
	Path                   string   `mapstructure:"path"` // Engine.IO endpoint path
	Transports             []string `mapstructure:"transports"`
	ReconnectionAttempts   int      `mapstructure:"reconnection_attempts"`
	ReconnectionDelayMs    int      `mapstructure:"reconnection_delay_ms"`
	ReconnectionDelayMaxMs int      `mapstructure:"reconnection_delay_max_ms"`
	RandomizationFactor    float64  `mapstructure:"randomization_factor"`
	ConnectTimeoutSeconds  int      `mapstructure:"connect_timeout_seconds"`
	WriteTimeoutSeconds    int      `mapstructure:"write_timeout_seconds"`
}

// NATSConfig holds NATS-related configurations.
type NATSConfig struct {
	URL                 string `mapstructure:"url"`
	PushSubjectPrefix   string `mapstructure:"push_subject_prefix"`
	MirrorSubjectPrefix string `mapstructure:"mirror_subject_prefix"`
	MirrorEnabled       bool   `mapstructure:"mirror_enabled"`
}

// RedisConfig holds Redis-related configurations.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"` // Optional
	DB       int    `mapstructure:"db"`       // Optional
}

// NotificationConfig holds toast, push and audio settings.
type NotificationConfig struct {
	PushPermission       string   `mapstructure:"push_permission"` // granted | denied | default; empty reads the stored session permission
	Icon                 string   `mapstructure:"icon"`
	Badge                string   `mapstructure:"badge"`
	ToastDurationSeconds int      `mapstructure:"toast_duration_seconds"`
	AudioEnabled         bool     `mapstructure:"audio_enabled"`
	AudioCommand         string   `mapstructure:"audio_command"` // External player fed the WAV on stdin, e.g. aplay
	AudioArgs            []string `mapstructure:"audio_args"`
	AudioOutputFile      string   `mapstructure:"audio_output_file"` // When set, the cue is written here instead of played
}

// LogConfig holds logging-related configurations.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig holds authentication-related configurations.
type AuthConfig struct {
	APIKey      string `mapstructure:"api_key"`       // Shared with the dashboard UI, should come from ENV
	TokenAESKey string `mapstructure:"token_aes_key"` // Hex key for encrypted session tokens; empty means tokens are stored in clear
}

// AppConfig holds application-specific configurations.
type AppConfig struct {
	ServiceName            string `mapstructure:"service_name"`
	Version                string `mapstructure:"version"`
	EstablishmentID        string `mapstructure:"establishment_id"` // Optional; connects at startup when set
	PingIntervalSeconds    int    `mapstructure:"ping_interval_seconds"`
	WriteTimeoutSeconds    int    `mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// Config holds all configuration for the application.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Socket       SocketConfig       `mapstructure:"socket"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Notification NotificationConfig `mapstructure:"notification"`
	Log          LogConfig          `mapstructure:"log"`
	Auth         AuthConfig         `mapstructure:"auth"`
	App          AppConfig          `mapstructure:"app"`
}

// Provider defines an interface for accessing application configuration.
// This allows for easy mocking in tests and decouples the app from Viper.
type Provider interface {
	Get() *Config
}

// File is an explicit config file path, usually from the --config flag.
// Empty means VIPER_CONFIG_NAME / VIPER_CONFIG_PATH lookup.
type File string

// viperProvider implements the Provider interface using Viper.
type viperProvider struct {
	config atomic.Pointer[Config]
	logger *zap.Logger // Using zap.Logger directly for config internal logging, not domain.Logger to avoid circular deps
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8090)
	v.SetDefault("server.grpc_port", 50061)
	v.SetDefault("server.workstation_id", "")

	v.SetDefault("socket.url", "http://localhost:3001")
	v.SetDefault("socket.path", "/socket.io/")
	v.SetDefault("socket.transports", []string{"websocket", "polling"})
	v.SetDefault("socket.reconnection_attempts", 10)
	v.SetDefault("socket.reconnection_delay_ms", 1000)
	v.SetDefault("socket.reconnection_delay_max_ms", 5000)
	v.SetDefault("socket.randomization_factor", 0.5)
	v.SetDefault("socket.connect_timeout_seconds", 20)
	v.SetDefault("socket.write_timeout_seconds", 5)

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.push_subject_prefix", "talagas.push")
	v.SetDefault("nats.mirror_subject_prefix", "talagas.orders")
	v.SetDefault("nats.mirror_enabled", true)

	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("notification.push_permission", "")
	v.SetDefault("notification.icon", "/icons/icon-192x192.png")
	v.SetDefault("notification.badge", "/icons/badge-72x72.png")
	v.SetDefault("notification.toast_duration_seconds", 10)
	v.SetDefault("notification.audio_enabled", true)
	v.SetDefault("notification.audio_command", "aplay")
	v.SetDefault("notification.audio_args", []string{"-q", "-"})
	v.SetDefault("notification.audio_output_file", "")

	v.SetDefault("log.level", "info")

	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.token_aes_key", "")

	v.SetDefault("app.service_name", "talagas-order-notifier")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.establishment_id", "")
	v.SetDefault("app.ping_interval_seconds", 20)
	v.SetDefault("app.write_timeout_seconds", 10)
	v.SetDefault("app.shutdown_timeout_seconds", 15)
}

func newViper(file File) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(string(file))
	} else {
		v.SetConfigName(getEnv("VIPER_CONFIG_NAME", "config"))
		v.SetConfigType("yaml")
		v.AddConfigPath(getEnv("VIPER_CONFIG_PATH", "."))
		v.AddConfigPath(".") // Also look in current directory for local dev
	}

	// Configure Viper to read from environment variables
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")) // e.g., socket.url becomes TALAGAS_NOTIFIER_SOCKET_URL
	return v
}

// Load reads the configuration once without installing reload hooks.
func Load(file File) (*Config, error) {
	v := newViper(file)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// NewViperProvider creates and initializes a new configuration provider using Viper.
// It loads configuration from file and environment variables, and sets up hot-reloading.
// appCtx is the application lifecycle context used for graceful shutdown of background tasks.
func NewViperProvider(appCtx context.Context, logger *zap.Logger, file File) (Provider, error) {
	v := newViper(file)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("Config file not found; relying on defaults and environment variables", zap.Error(err))
		} else {
			logger.Error("Failed to read config file", zap.Error(err))
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	p := &viperProvider{
		logger: logger,
	}
	p.config.Store(cfg)

	// Set up SIGHUP for hot-reloading configuration
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	go func() {
		defer signal.Stop(sigChan)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in SIGHUP handler goroutine",
					zap.String("goroutine_name", "SIGHUPConfigReloader"),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		for {
			select {
			case sig := <-sigChan:
				p.logger.Info("SIGHUP received, attempting to reload configuration...", zap.String("signal", sig.String()))
				if err := v.ReadInConfig(); err != nil {
					p.logger.Error("Failed to re-read config file on SIGHUP", zap.Error(err))
					continue
				}
				p.reload(v, "SIGHUP")
			case <-appCtx.Done():
				p.logger.Info("SIGHUPConfigReloader goroutine shutting down due to context cancellation.")
				return
			}
		}
	}()

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("Panic recovered in OnConfigChange callback",
						zap.String("event_name", e.Name),
						zap.String("event_op", e.Op.String()),
						zap.Any("panic_info", r),
						zap.String("stacktrace", string(debug.Stack())),
					)
				}
			}()
			p.logger.Info("Config file changed", zap.String("name", e.Name), zap.String("op", e.Op.String()))
			p.reload(v, "file_change")
		})
		v.WatchConfig()
	}

	p.logger.Info("Configuration loaded successfully", zap.String("config_file_used", v.ConfigFileUsed()))

	return p, nil
}

func (p *viperProvider) reload(v *viper.Viper, trigger string) {
	newCfg := &Config{}
	if err := v.Unmarshal(newCfg); err != nil {
		p.logger.Error("Failed to unmarshal reloaded config", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	p.config.Store(newCfg)
	p.logger.Info("Configuration reloaded successfully", zap.String("trigger", trigger))
}

// Get returns the current configuration.
func (p *viperProvider) Get() *Config {
	return p.config.Load()
}

// StaticProvider serves a fixed configuration. Used by tests and tools.
type StaticProvider struct {
	Config *Config
}

// NewStaticProvider wraps cfg in a Provider.
func NewStaticProvider(cfg *Config) *StaticProvider {
	return &StaticProvider{Config: cfg}
}

// Get returns the wrapped configuration.
func (p *StaticProvider) Get() *Config {
	return p.Config
}

// Defaults returns a Config populated only from defaults.
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg) // defaults always decode
	return cfg
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
