package contextkeys

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for storing and retrieving a request ID.
	RequestIDKey contextKey = "request_id"

	// EventIDKey is the context key for storing and retrieving an inbound socket event ID.
	EventIDKey contextKey = "event_id"

	// EstablishmentIDKey is the context key for the establishment the connection is bound to.
	EstablishmentIDKey contextKey = "establishment_id"

	// SocketIDKey is the context key for the Socket.IO session id of the live socket.
	SocketIDKey contextKey = "socket_id"
)

// String makes contextKey satisfy fmt.Stringer to help with debugging/logging of keys themselves.
func (c contextKey) String() string {
	return string(c)
}
