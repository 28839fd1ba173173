package domain

import (
	"encoding/json"

	"github.com/coder/websocket"
)

// MessageType defines the type of a message on the UI toast stream.
const (
	MessageTypeReady    = "ready"
	MessageTypeToast    = "toast"
	MessageTypeNavigate = "navigate"
	MessageTypeStatus   = "status"
	MessageTypeError    = "error"

	// Sent by the dashboard UI.
	MessageTypeDismiss    = "dismiss"
	MessageTypeView       = "view"
	MessageTypeNavigation = "navigation"

	StatusGoingAway websocket.StatusCode = 1001 // Standard code for server going away
)

// BaseMessage is the envelope for every message sent on the UI toast stream.
type BaseMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// InboundMessage is a message received from the dashboard UI.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NavigatePayload tells the UI to perform a client-side route change.
type NavigatePayload struct {
	Route string `json:"route"`
}

// StatusPayload reports the order connection status for the header indicator.
type StatusPayload struct {
	State             ConnectionState `json:"state"`
	EstablishmentID   string          `json:"establishment_id,omitempty"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
}

// NewReadyMessage creates a new message of type "ready".
func NewReadyMessage() BaseMessage {
	return BaseMessage{
		Type: MessageTypeReady,
	}
}

// NewToastMessage wraps a toast snapshot.
func NewToastMessage(t Toast) BaseMessage {
	return BaseMessage{
		Type:    MessageTypeToast,
		Payload: t,
	}
}

// NewNavigateMessage creates a new message of type "navigate".
func NewNavigateMessage(route string) BaseMessage {
	return BaseMessage{
		Type:    MessageTypeNavigate,
		Payload: NavigatePayload{Route: route},
	}
}

// NewStatusMessage creates a new message of type "status".
func NewStatusMessage(s StatusPayload) BaseMessage {
	return BaseMessage{
		Type:    MessageTypeStatus,
		Payload: s,
	}
}

// NewErrorMessage creates a new message of type "error".
func NewErrorMessage(errResp ErrorResponse) BaseMessage {
	return BaseMessage{
		Type:    MessageTypeError,
		Payload: errResp,
	}
}
