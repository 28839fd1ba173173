package domain

import (
	"context"
)

// ConnectionState is the lifecycle state of the order socket.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateError        ConnectionState = "error"
)

// Transport names in preference order.
const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

// Socket is one established Socket.IO session on the default namespace.
// A Socket is single-use: once Events is closed the session is gone and a
// new one must be dialed.
type Socket interface {
	// ID returns the Socket.IO session id assigned by the server.
	ID() string
	// Transport reports the transport carrying this session.
	Transport() string
	// Emit sends an EVENT packet with the given name and arguments.
	Emit(ctx context.Context, event EventName, args ...any) error
	// Events delivers inbound EVENT packets in receipt order. It is closed
	// when the session ends for any reason.
	Events() <-chan InboundEvent
	// Err returns the reason the session ended, nil while it is alive or
	// after a local Close.
	Err() error
	// Close ends the session. It is safe to call more than once.
	Close() error
}

// SocketDialer opens a Socket for the given establishment.
type SocketDialer interface {
	Dial(ctx context.Context, establishmentID string) (Socket, error)
}

// ConnectionStatus is a point-in-time view of the order connection.
type ConnectionStatus struct {
	State             ConnectionState `json:"state"`
	EstablishmentID   string          `json:"establishment_id"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
	JoinedRooms       []string        `json:"joined_rooms"`
}
