package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/crypto"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/rediskeys"
)

// SessionStoreAdapter implements domain.SessionStore on the keys the
// dashboard login flow writes. It never writes.
type SessionStoreAdapter struct {
	redisClient    *redis.Client
	logger         domain.Logger
	configProvider config.Provider
}

// NewSessionStoreAdapter creates a new SessionStoreAdapter.
func NewSessionStoreAdapter(redisClient *redis.Client, logger domain.Logger, configProvider config.Provider) *SessionStoreAdapter {
	return &SessionStoreAdapter{
		redisClient:    redisClient,
		logger:         logger,
		configProvider: configProvider,
	}
}

// Token returns the session token, decrypting it when auth.token_aes_key is set.
func (a *SessionStoreAdapter) Token(ctx context.Context, establishmentID string) (string, error) {
	key := rediskeys.SessionTokenKey(establishmentID)
	val, err := a.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		a.logger.Debug(ctx, "Session token not found", "key", key)
		return "", domain.ErrSessionNotFound
	}
	if err != nil {
		a.logger.Error(ctx, "Failed to get session token from Redis", "key", key, "error", err.Error())
		return "", fmt.Errorf("redis GET for session key '%s' failed: %w", key, err)
	}

	aesKey := a.configProvider.Get().Auth.TokenAESKey
	if aesKey == "" {
		return val, nil
	}
	plain, err := crypto.DecryptAESGCM(aesKey, val)
	if err != nil {
		a.logger.Error(ctx, "Failed to decrypt stored session token", "key", key, "error", err.Error())
		return "", fmt.Errorf("decrypt session token for key '%s': %w", key, err)
	}
	return string(plain), nil
}

// NotificationPermission returns the stored permission, PermissionDefault when absent or unrecognised.
func (a *SessionStoreAdapter) NotificationPermission(ctx context.Context, establishmentID string) (domain.PushPermission, error) {
	key := rediskeys.NotificationPermissionKey(establishmentID)
	val, err := a.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return domain.PermissionDefault, nil
	}
	if err != nil {
		a.logger.Error(ctx, "Failed to get notification permission from Redis", "key", key, "error", err.Error())
		return domain.PermissionDefault, fmt.Errorf("redis GET for permission key '%s' failed: %w", key, err)
	}

	switch perm := domain.PushPermission(strings.ToLower(strings.TrimSpace(val))); perm {
	case domain.PermissionGranted, domain.PermissionDenied, domain.PermissionDefault:
		return perm, nil
	default:
		a.logger.Warn(ctx, "Unrecognised stored notification permission; treating as default", "key", key, "value", val)
		return domain.PermissionDefault, nil
	}
}
