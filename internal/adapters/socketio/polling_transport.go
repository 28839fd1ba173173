package socketio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

const maxPollBody = 4 << 20

var errTransportClosed = errors.New("transport closed")

type pollingTransport struct {
	client   *http.Client
	endpoint *url.URL
	header   http.Header
	sid      string
	closed   atomic.Bool
	// pending holds packets that arrived with the handshake response.
	pending []string
}

func dialPolling(ctx context.Context, client *http.Client, endpoint *url.URL, header http.Header) (transport, OpenPayload, error) {
	t := &pollingTransport{client: client, endpoint: endpoint, header: header}

	packets, err := t.get(ctx)
	if err != nil {
		return nil, OpenPayload{}, fmt.Errorf("polling handshake: %w", err)
	}
	if len(packets) == 0 {
		return nil, OpenPayload{}, fmt.Errorf("%w: empty polling handshake", domain.ErrHandshake)
	}
	open, err := parseOpen(packets[0])
	if err != nil {
		return nil, OpenPayload{}, err
	}
	t.sid = open.SID
	t.pending = packets[1:]
	return t, open, nil
}

func (t *pollingTransport) Name() string {
	return domain.TransportPolling
}

func (t *pollingTransport) Read(ctx context.Context) ([]string, error) {
	if t.closed.Load() {
		return nil, errTransportClosed
	}
	if len(t.pending) > 0 {
		packets := t.pending
		t.pending = nil
		return packets, nil
	}
	return t.get(ctx)
}

func (t *pollingTransport) Write(ctx context.Context, packets ...string) error {
	if t.closed.Load() {
		return errTransportClosed
	}
	return t.post(ctx, packets)
}

// Close sends the Engine.IO close packet. Further reads and writes fail.
func (t *pollingTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return t.post(ctx, []string{string([]byte{engineClose})})
}

func (t *pollingTransport) get(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transportURL(t.endpoint, domain.TransportPolling, t.sid), nil)
	if err != nil {
		return nil, err
	}
	t.applyHeader(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPollBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("polling GET: unexpected status %d: %s", resp.StatusCode, truncate(string(body)))
	}
	return splitPayload(string(body)), nil
}

func (t *pollingTransport) post(ctx context.Context, packets []string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, transportURL(t.endpoint, domain.TransportPolling, t.sid), strings.NewReader(joinPayload(packets)))
	if err != nil {
		return err
	}
	t.applyHeader(req)
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPollBody))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polling POST: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (t *pollingTransport) applyHeader(req *http.Request) {
	for k, vs := range t.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}
