package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/logger"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

const testAPIKey = "ui-key"

type fakeToasts struct {
	mu        sync.Mutex
	current   domain.Toast
	dismissed int
	viewed    int
	routes    []string
	viewErr   error
}

func (f *fakeToasts) Current() domain.Toast {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeToasts) Dismiss(ctx context.Context) domain.Toast {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed++
	f.current = domain.Toast{State: domain.ToastHidden}
	return f.current
}

func (f *fakeToasts) ViewOrder(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewed++
	return "/pedidos/o1", f.viewErr
}

func (f *fakeToasts) OnNavigate(ctx context.Context, route string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, route)
}

func (f *fakeToasts) snapshot() (int, int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dismissed, f.viewed, append([]string(nil), f.routes...)
}

type fakeStatus struct{}

func (fakeStatus) Status() domain.ConnectionStatus {
	return domain.ConnectionStatus{State: domain.StateConnected, EstablishmentID: "42"}
}

type streamFixture struct {
	hub    *Hub
	toasts *fakeToasts
	srv    *httptest.Server
}

func newStreamFixture(t *testing.T, toasts *fakeToasts) *streamFixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.Auth.APIKey = testAPIKey
	cfg.App.PingIntervalSeconds = 0
	provider := config.NewStaticProvider(cfg)
	log := logger.NewFromZap(zaptest.NewLogger(t))

	hub := NewHub(log)
	mux := http.NewServeMux()
	NewRouter(log, provider, NewHandler(log, provider, hub, toasts, fakeStatus{})).RegisterRoutes(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.CloseAll("test done")
		srv.Close()
	})
	return &streamFixture{hub: hub, toasts: toasts, srv: srv}
}

func (f *streamFixture) dial(t *testing.T, key string) (*websocket.Conn, *http.Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/toasts"
	if key != "" {
		url += "?x-api-key=" + key
	}
	return websocket.Dial(ctx, url, nil)
}

func readMsg(t *testing.T, c *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func msgType(t *testing.T, msg map[string]json.RawMessage) string {
	var s string
	require.NoError(t, json.Unmarshal(msg["type"], &s))
	return s
}

func writeMsg(t *testing.T, c *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

func TestToastStreamRequiresAPIKey(t *testing.T) {
	f := newStreamFixture(t, &fakeToasts{})
	_, resp, err := f.dial(t, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestToastStreamGreetingAndBroadcast(t *testing.T) {
	toasts := &fakeToasts{current: domain.Toast{
		ID:    "t1",
		State: domain.ToastVisible,
		Order: &domain.OrderNotification{OrderID: "o1", OrderCode: "1001"},
	}}
	f := newStreamFixture(t, toasts)

	c, _, err := f.dial(t, testAPIKey)
	require.NoError(t, err)
	defer c.CloseNow()

	assert.Equal(t, domain.MessageTypeReady, msgType(t, readMsg(t, c)))

	status := readMsg(t, c)
	require.Equal(t, domain.MessageTypeStatus, msgType(t, status))
	var sp domain.StatusPayload
	require.NoError(t, json.Unmarshal(status["payload"], &sp))
	assert.Equal(t, domain.StateConnected, sp.State)
	assert.Equal(t, "42", sp.EstablishmentID)

	toast := readMsg(t, c)
	require.Equal(t, domain.MessageTypeToast, msgType(t, toast))
	var tp domain.Toast
	require.NoError(t, json.Unmarshal(toast["payload"], &tp))
	assert.Equal(t, "t1", tp.ID)

	require.Eventually(t, func() bool { return f.hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.hub.Navigate(context.Background(), "/pedidos/o1"))
	nav := readMsg(t, c)
	require.Equal(t, domain.MessageTypeNavigate, msgType(t, nav))
	var np domain.NavigatePayload
	require.NoError(t, json.Unmarshal(nav["payload"], &np))
	assert.Equal(t, "/pedidos/o1", np.Route)

	f.hub.BroadcastToast(domain.Toast{State: domain.ToastHidden, HideReason: domain.HideReasonDismissed})
	assert.Equal(t, domain.MessageTypeToast, msgType(t, readMsg(t, c)))
}

func TestToastStreamClientCommands(t *testing.T) {
	f := newStreamFixture(t, &fakeToasts{})
	c, _, err := f.dial(t, testAPIKey)
	require.NoError(t, err)
	defer c.CloseNow()

	readMsg(t, c) // ready
	readMsg(t, c) // status

	writeMsg(t, c, map[string]any{"type": "dismiss"})
	writeMsg(t, c, map[string]any{"type": "view"})
	writeMsg(t, c, map[string]any{"type": "navigation", "payload": map[string]string{"route": "/pedidos"}})

	require.Eventually(t, func() bool {
		d, v, routes := f.toasts.snapshot()
		return d == 1 && v == 1 && len(routes) == 1 && routes[0] == "/pedidos"
	}, 2*time.Second, 5*time.Millisecond)

	writeMsg(t, c, map[string]any{"type": "bogus"})
	errMsg := readMsg(t, c)
	require.Equal(t, domain.MessageTypeError, msgType(t, errMsg))
	var er domain.ErrorResponse
	require.NoError(t, json.Unmarshal(errMsg["payload"], &er))
	assert.Equal(t, domain.ErrBadRequest, er.Code)
}

func TestHubDeregistersOnClientClose(t *testing.T) {
	f := newStreamFixture(t, &fakeToasts{})
	c, _, err := f.dial(t, testAPIKey)
	require.NoError(t, err)
	readMsg(t, c)

	require.Eventually(t, func() bool { return f.hub.Count() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return f.hub.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

type recordingConn struct {
	mu    sync.Mutex
	types []string
}

func (c *recordingConn) Close(websocket.StatusCode, string) error { return nil }
func (c *recordingConn) RemoteAddr() string                       { return "test" }
func (c *recordingConn) Context() context.Context                 { return context.Background() }

func (c *recordingConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, v.(domain.BaseMessage).Type)
	return nil
}

func (c *recordingConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.types...)
}

func TestHubBroadcastDuringGreetingReachesNewClient(t *testing.T) {
	hub := NewHub(logger.NewFromZap(zaptest.NewLogger(t)))
	conn := &recordingConn{}
	broadcastDone := make(chan struct{})

	err := hub.RegisterWithGreeting("c1", conn, func() error {
		require.NoError(t, conn.WriteJSON(domain.NewReadyMessage()))
		go func() {
			defer close(broadcastDone)
			hub.BroadcastToast(domain.Toast{ID: "t2", State: domain.ToastVisible})
		}()
		select {
		case <-broadcastDone:
			t.Error("broadcast completed before the client was registered")
		case <-time.After(20 * time.Millisecond):
		}
		return nil
	})
	require.NoError(t, err)
	<-broadcastDone

	assert.Equal(t, []string{domain.MessageTypeReady, domain.MessageTypeToast}, conn.written())
	assert.Equal(t, 1, hub.Count())
}

func TestHubGreetingFailureSkipsRegistration(t *testing.T) {
	hub := NewHub(logger.NewFromZap(zaptest.NewLogger(t)))
	err := hub.RegisterWithGreeting("c1", &recordingConn{}, func() error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, hub.Count())
}
