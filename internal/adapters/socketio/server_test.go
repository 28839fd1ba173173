package socketio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// eioServer is a minimal Engine.IO v4 / Socket.IO v5 server for client tests.
type eioServer struct {
	t *testing.T

	wantToken        string
	disableWebSocket bool
	pingInterval     time.Duration

	mu       sync.Mutex
	nextID   int
	auths    []string
	received []string
	pongs    int
	outboxes map[string]chan string
	closed   map[string]bool
}

func newEIOServer(t *testing.T) (*eioServer, *httptest.Server) {
	s := &eioServer{
		t:            t,
		pingInterval: 200 * time.Millisecond,
		outboxes:     make(map[string]chan string),
		closed:       make(map[string]bool),
	}
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *eioServer) openPacket(sid string) string {
	return fmt.Sprintf(`0{"sid":%q,"upgrades":[],"pingInterval":%d,"pingTimeout":%d,"maxPayload":1000000}`,
		sid, s.pingInterval.Milliseconds(), s.pingInterval.Milliseconds())
}

func (s *eioServer) newSession() (string, chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sid := fmt.Sprintf("eio-%d", s.nextID)
	box := make(chan string, 64)
	s.outboxes[sid] = box
	return sid, box
}

// broadcast queues a raw Engine.IO packet for every live session.
func (s *eioServer) broadcast(pkt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, box := range s.outboxes {
		if !s.closed[sid] {
			box <- pkt
		}
	}
}

func (s *eioServer) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func (s *eioServer) Auths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auths...)
}

func (s *eioServer) Pongs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pongs
}

// handlePacket processes one client packet and returns any immediate replies.
func (s *eioServer) handlePacket(sid, pkt string) (replies []string, closeSession bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case pkt == "1":
		s.closed[sid] = true
		return nil, true
	case pkt == "3":
		s.pongs++
	case strings.HasPrefix(pkt, "40"):
		s.auths = append(s.auths, strings.TrimPrefix(pkt, "40"))
		var auth struct {
			Token string `json:"token"`
		}
		_ = json.Unmarshal([]byte(strings.TrimPrefix(pkt, "40")), &auth)
		if s.wantToken != "" && auth.Token != s.wantToken {
			return []string{`44{"message":"invalid token"}`}, false
		}
		return []string{`40{"sid":"sock-` + sid + `"}`}, false
	default:
		s.received = append(s.received, pkt)
		if pkt == "41" {
			s.closed[sid] = true
			return nil, true
		}
	}
	return nil, false
}

func (s *eioServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/socket.io/" || r.URL.Query().Get("EIO") != "4" {
		http.Error(w, "bad endpoint", http.StatusBadRequest)
		return
	}
	switch r.URL.Query().Get("transport") {
	case "websocket":
		s.serveWebSocket(w, r)
	case "polling":
		s.servePolling(w, r)
	default:
		http.Error(w, "unknown transport", http.StatusBadRequest)
	}
}

func (s *eioServer) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.disableWebSocket {
		http.Error(w, "websocket disabled", http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sid, box := s.newSession()
	if err := conn.Write(ctx, websocket.MessageText, []byte(s.openPacket(sid))); err != nil {
		return
	}

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case pkt := <-box:
				if conn.Write(ctx, websocket.MessageText, []byte(pkt)) != nil {
					return
				}
			case <-ticker.C:
				if conn.Write(ctx, websocket.MessageText, []byte("2")) != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		replies, done := s.handlePacket(sid, string(data))
		for _, reply := range replies {
			box <- reply
		}
		if done {
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (s *eioServer) servePolling(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "handshake must be GET", http.StatusBadRequest)
			return
		}
		sid, _ = s.newSession()
		io.WriteString(w, s.openPacket(sid))
		return
	}

	s.mu.Lock()
	box, ok := s.outboxes[sid]
	closed := s.closed[sid]
	s.mu.Unlock()
	if !ok || closed {
		http.Error(w, "unknown sid", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		for _, pkt := range splitPayload(string(body)) {
			replies, _ := s.handlePacket(sid, pkt)
			for _, reply := range replies {
				box <- reply
			}
		}
		io.WriteString(w, "ok")
	case http.MethodGet:
		var batch []string
		select {
		case pkt := <-box:
			batch = append(batch, pkt)
		case <-time.After(s.pingInterval):
			batch = append(batch, "2")
		case <-r.Context().Done():
			return
		}
		for drained := false; !drained; {
			select {
			case pkt := <-box:
				batch = append(batch, pkt)
			default:
				drained = true
			}
		}
		io.WriteString(w, joinPayload(batch))
	}
}
