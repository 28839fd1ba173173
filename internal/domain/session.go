package domain

import "context"

// SessionStore reads the dashboard session saved by the login flow.
// Session storage itself is owned elsewhere; this side only reads.
type SessionStore interface {
	// Token returns the session token for the establishment or ErrSessionNotFound.
	Token(ctx context.Context, establishmentID string) (string, error)
	// NotificationPermission returns the stored push permission, PermissionDefault when absent.
	NotificationPermission(ctx context.Context, establishmentID string) (PushPermission, error)
}
