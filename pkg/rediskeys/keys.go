package rediskeys

import (
	"fmt"
)

// SessionTokenKey generates the Redis key holding the dashboard session token of an establishment.
func SessionTokenKey(establishmentID string) string {
	return fmt.Sprintf("session:%s:token", establishmentID)
}

// NotificationPermissionKey generates the Redis key holding the stored push permission.
func NotificationPermissionKey(establishmentID string) string {
	return fmt.Sprintf("session:%s:notification_permission", establishmentID)
}

// ToastChannelKey generates the Redis pub/sub channel for toast transitions.
func ToastChannelKey(establishmentID string) string {
	return fmt.Sprintf("toast:%s", establishmentID)
}
