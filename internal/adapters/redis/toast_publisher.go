package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/rediskeys"
)

// ToastMessage is the pub/sub body published on toast:<establishment>.
type ToastMessage struct {
	WorkstationID   string       `json:"workstation_id,omitempty"`
	EstablishmentID string       `json:"establishment_id"`
	Toast           domain.Toast `json:"toast"`
}

// ToastPubSubAdapter implements domain.ToastPublisher using Redis pub/sub.
type ToastPubSubAdapter struct {
	redisClient    *redis.Client
	logger         domain.Logger
	configProvider config.Provider
}

// NewToastPubSubAdapter creates a new adapter for Redis pub/sub.
func NewToastPubSubAdapter(redisClient *redis.Client, logger domain.Logger, configProvider config.Provider) *ToastPubSubAdapter {
	return &ToastPubSubAdapter{
		redisClient:    redisClient,
		logger:         logger,
		configProvider: configProvider,
	}
}

// PublishToast publishes a toast transition for the establishment.
func (a *ToastPubSubAdapter) PublishToast(ctx context.Context, establishmentID string, t domain.Toast) error {
	channel := rediskeys.ToastChannelKey(establishmentID)
	payloadBytes, err := json.Marshal(ToastMessage{
		WorkstationID:   a.configProvider.Get().Server.WorkstationID,
		EstablishmentID: establishmentID,
		Toast:           t,
	})
	if err != nil {
		a.logger.Error(ctx, "Failed to marshal toast for publishing", "channel", channel, "error", err.Error())
		return fmt.Errorf("failed to marshal toast: %w", err)
	}

	if err = a.redisClient.Publish(ctx, channel, string(payloadBytes)).Err(); err != nil {
		a.logger.Error(ctx, "Failed to publish toast to Redis", "channel", channel, "error", err.Error())
		return fmt.Errorf("failed to publish to Redis channel '%s': %w", channel, err)
	}
	a.logger.Debug(ctx, "Published toast transition", "channel", channel, "state", string(t.State))
	return nil
}
