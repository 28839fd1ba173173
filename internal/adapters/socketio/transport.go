package socketio

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

// transport moves raw Engine.IO packets. Implementations are not safe for
// concurrent writes; the session serializes them.
type transport interface {
	Name() string
	// Read blocks for the next batch of packets.
	Read(ctx context.Context) ([]string, error)
	// Write sends packets in order.
	Write(ctx context.Context, packets ...string) error
	Close() error
}

// openTransport dials the named transport and completes the Engine.IO open handshake.
func openTransport(ctx context.Context, name string, client *http.Client, endpoint *url.URL, header http.Header) (transport, OpenPayload, error) {
	switch name {
	case domain.TransportWebSocket:
		return dialWebSocket(ctx, client, endpoint, header)
	case domain.TransportPolling:
		return dialPolling(ctx, client, endpoint, header)
	}
	return nil, OpenPayload{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedTransport, name)
}

// endpointURL builds the Engine.IO endpoint from the server base URL and path.
func endpointURL(base, path string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid socket url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return nil, fmt.Errorf("invalid socket url %q: unsupported scheme %q", base, u.Scheme)
	}
	if path == "" {
		path = "/socket.io/"
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return u, nil
}

// transportURL adds the Engine.IO query parameters for a transport.
func transportURL(endpoint *url.URL, name, sid string) string {
	u := *endpoint
	q := u.Query()
	q.Set("EIO", EngineProtocol)
	q.Set("transport", name)
	if sid != "" {
		q.Set("sid", sid)
	}
	u.RawQuery = q.Encode()
	if name == domain.TransportWebSocket {
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
	}
	return u.String()
}
