package socketio

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

const wsReadLimit = 1 << 20

type websocketTransport struct {
	conn *websocket.Conn
}

func dialWebSocket(ctx context.Context, client *http.Client, endpoint *url.URL, header http.Header) (transport, OpenPayload, error) {
	conn, _, err := websocket.Dial(ctx, transportURL(endpoint, domain.TransportWebSocket, ""), &websocket.DialOptions{
		HTTPClient: client,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, OpenPayload{}, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(wsReadLimit)

	t := &websocketTransport{conn: conn}
	packets, err := t.Read(ctx)
	if err != nil {
		conn.CloseNow()
		return nil, OpenPayload{}, fmt.Errorf("%w: reading open packet: %v", domain.ErrHandshake, err)
	}
	open, err := parseOpen(packets[0])
	if err != nil {
		conn.CloseNow()
		return nil, OpenPayload{}, err
	}
	if open.MaxPayload > wsReadLimit {
		conn.SetReadLimit(int64(open.MaxPayload))
	}
	return t, open, nil
}

func (t *websocketTransport) Name() string {
	return domain.TransportWebSocket
}

func (t *websocketTransport) Read(ctx context.Context) ([]string, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageText {
		// Binary attachments are not part of the order events contract.
		return []string{string([]byte{engineNoop})}, nil
	}
	return []string{string(data)}, nil
}

func (t *websocketTransport) Write(ctx context.Context, packets ...string) error {
	for _, pkt := range packets {
		if err := t.conn.Write(ctx, websocket.MessageText, []byte(pkt)); err != nil {
			return err
		}
	}
	return nil
}

func (t *websocketTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "client disconnect")
}
