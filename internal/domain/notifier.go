package domain

import "context"

// PushPermission mirrors the three notification permission states of the host.
type PushPermission string

const (
	PermissionGranted PushPermission = "granted"
	PermissionDenied  PushPermission = "denied"
	PermissionDefault PushPermission = "default"
)

// PushNotification is a single OS-level notification request.
type PushNotification struct {
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	Icon            string    `json:"icon,omitempty"`
	Badge           string    `json:"badge,omitempty"`
	Tag             string    `json:"tag,omitempty"`
	Event           EventName `json:"event"`
	OrderID         string    `json:"order_id,omitempty"`
	EstablishmentID string    `json:"establishment_id,omitempty"`
}

// PushSender delivers push notifications to the workstation.
type PushSender interface {
	Send(ctx context.Context, n PushNotification) error
}

// AudioNotifier plays the short new-order cue. Implementations must not block
// the caller for the duration of playback.
type AudioNotifier interface {
	PlayNewOrderCue(ctx context.Context) error
}

// Navigator performs a client-side route change in the dashboard UI.
type Navigator interface {
	Navigate(ctx context.Context, route string) error
}

// EventMirror republishes received order events to other consumers.
type EventMirror interface {
	Mirror(ctx context.Context, establishmentID string, event EventName, n OrderNotification) error
}
