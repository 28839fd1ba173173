package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/contextkeys"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/safego"
)

const (
	closeTimeout      = 2 * time.Second
	eventBuffer       = 64
	defaultPingWindow = 45 * time.Second
)

// ErrServerDisconnect is reported when the server ends the Socket.IO session.
var ErrServerDisconnect = errors.New("server closed the socket")

// session is a connected Socket.IO client on the default namespace. It
// implements domain.Socket.
type session struct {
	logger    domain.Logger
	t         transport
	engineSID string
	socketSID string
	// pingWindow bounds the silence tolerated before the link is considered dead.
	pingWindow time.Duration

	events chan domain.InboundEvent

	writeMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closing   atomic.Bool
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// connect performs the Socket.IO CONNECT exchange over an opened transport
// and starts the read loop.
func connect(ctx context.Context, logger domain.Logger, t transport, open OpenPayload, auth map[string]string) (*session, error) {
	window := time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	if window <= 0 {
		window = defaultPingWindow
	}

	s := &session{
		logger:     logger,
		t:          t,
		engineSID:  open.SID,
		pingWindow: window,
	}

	pkt, err := encodeConnect(auth)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding auth: %v", domain.ErrHandshake, err)
	}
	if err := t.Write(ctx, pkt); err != nil {
		return nil, fmt.Errorf("%w: sending connect: %v", domain.ErrHandshake, err)
	}

	var early []domain.InboundEvent
	for s.socketSID == "" {
		packets, err := t.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: awaiting connect ack: %v", domain.ErrHandshake, err)
		}
		for _, raw := range packets {
			if len(raw) == 0 {
				continue
			}
			switch raw[0] {
			case enginePing:
				if err := t.Write(ctx, string([]byte{enginePong})); err != nil {
					return nil, fmt.Errorf("%w: pong during handshake: %v", domain.ErrHandshake, err)
				}
			case engineClose:
				return nil, fmt.Errorf("%w: server closed during handshake", domain.ErrHandshake)
			case engineMessage:
				p, err := parseSocketPacket(raw[1:])
				if err != nil || p.Namespace != "/" {
					continue
				}
				switch p.Type {
				case socketConnect:
					var ack struct {
						SID string `json:"sid"`
					}
					_ = json.Unmarshal(p.Data, &ack)
					s.socketSID = ack.SID
					if s.socketSID == "" {
						s.socketSID = open.SID
					}
				case socketConnectError:
					return nil, fmt.Errorf("%w: %s", domain.ErrHandshake, connectError(p.Data))
				case socketEvent:
					// Events may trail the ack in the same polling batch.
					if ev, err := decodeEvent(p.Data); err == nil {
						early = append(early, ev)
					}
				}
			}
		}
	}

	s.events = make(chan domain.InboundEvent, eventBuffer+len(early))
	for _, ev := range early {
		s.events <- ev
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	logCtx := context.WithValue(s.ctx, contextkeys.SocketIDKey, s.socketSID)
	safego.Execute(logCtx, logger, "SocketIOReadLoop", func() {
		defer s.wg.Done()
		s.readLoop(logCtx)
	})
	return s, nil
}

func (s *session) ID() string {
	return s.socketSID
}

func (s *session) Transport() string {
	return s.t.Name()
}

func (s *session) Events() <-chan domain.InboundEvent {
	return s.events
}

func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Emit sends an EVENT packet.
func (s *session) Emit(ctx context.Context, event domain.EventName, args ...any) error {
	if s.ctx.Err() != nil {
		return domain.ErrNotConnected
	}
	pkt, err := encodeEvent(event, args...)
	if err != nil {
		return err
	}
	return s.write(ctx, pkt)
}

// Close sends DISCONNECT, closes the transport and waits for the read loop.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if s.ctx.Err() == nil {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			_ = s.write(ctx, encodeDisconnect())
			cancel()
		}
		err = s.t.Close()
		s.cancel()
		s.wg.Wait()
		if s.Err() != nil {
			err = nil // the link was already gone
		}
	})
	return err
}

func (s *session) write(ctx context.Context, packets ...string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.t.Write(ctx, packets...)
}

func (s *session) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *session) readLoop(ctx context.Context) {
	defer close(s.events)
	defer s.cancel()

	for {
		readCtx, cancel := context.WithTimeout(ctx, s.pingWindow)
		packets, err := s.t.Read(readCtx)
		timedOut := readCtx.Err() == context.DeadlineExceeded
		cancel()
		if err != nil {
			if ctx.Err() != nil || s.closing.Load() {
				return // local close
			}
			if timedOut {
				err = fmt.Errorf("ping timeout after %s: %w", s.pingWindow, err)
			}
			s.fail(err)
			return
		}

		for _, raw := range packets {
			if done := s.handle(ctx, raw); done {
				return
			}
		}
	}
}

// handle processes one Engine.IO packet and reports whether the session ended.
func (s *session) handle(ctx context.Context, raw string) bool {
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case enginePing:
		writeCtx, cancel := context.WithTimeout(ctx, closeTimeout)
		defer cancel()
		if err := s.write(writeCtx, string([]byte{enginePong})); err != nil && ctx.Err() == nil {
			s.fail(fmt.Errorf("pong: %w", err))
			return true
		}
	case engineClose:
		s.fail(ErrServerDisconnect)
		return true
	case engineMessage:
		p, err := parseSocketPacket(raw[1:])
		if err != nil {
			s.logger.Warn(ctx, "Dropping malformed socket packet", "error", err.Error(), "packet", truncate(raw))
			return false
		}
		if p.Namespace != "/" {
			return false
		}
		switch p.Type {
		case socketEvent:
			ev, err := decodeEvent(p.Data)
			if err != nil {
				s.logger.Warn(ctx, "Dropping malformed socket event", "error", err.Error(), "packet", truncate(raw))
				return false
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return true
			}
		case socketDisconnect:
			s.fail(ErrServerDisconnect)
			return true
		case socketConnectError:
			s.fail(fmt.Errorf("%w: %s", domain.ErrHandshake, connectError(p.Data)))
			return true
		case socketBinaryEvent, socketBinaryAck:
			s.logger.Debug(ctx, "Ignoring binary socket packet")
		}
	}
	return false
}
