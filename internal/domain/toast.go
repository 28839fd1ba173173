package domain

import (
	"context"
	"time"
)

// ToastState is the visibility of the new-order toast.
type ToastState string

const (
	ToastHidden  ToastState = "hidden"
	ToastVisible ToastState = "visible"
)

// Reasons a toast transitions to hidden.
const (
	HideReasonDismissed = "dismissed"
	HideReasonExpired   = "expired"
	HideReasonNavigated = "navigated"
	HideReasonViewed    = "viewed"
)

// Toast is a snapshot of the presenter state.
type Toast struct {
	ID         string             `json:"id,omitempty"`
	State      ToastState         `json:"state"`
	Order      *OrderNotification `json:"order,omitempty"`
	ShownAt    time.Time          `json:"shown_at,omitempty"`
	ExpiresAt  time.Time          `json:"expires_at,omitempty"`
	HideReason string             `json:"hide_reason,omitempty"`
}

// Visible reports whether the toast is on screen.
func (t Toast) Visible() bool {
	return t.State == ToastVisible
}

// ToastPublisher fans toast transitions out to other dashboard processes.
type ToastPublisher interface {
	PublishToast(ctx context.Context, establishmentID string, t Toast) error
}
