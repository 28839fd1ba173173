package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/safego"
)

const (
	defaultBufferSize   = 32
	defaultWriteTimeout = 10 * time.Second
)

// Connection wraps a websocket.Conn with a buffered writer goroutine. When the
// buffer is full the oldest queued message is dropped; the UI only needs the
// latest toast and status.
type Connection struct {
	id                string
	wsConn            *websocket.Conn
	logger            domain.Logger
	mu                sync.Mutex // Protects wsConn
	connCtx           context.Context
	cancelConnCtxFunc context.CancelFunc
	writeTimeout      time.Duration
	pingInterval      time.Duration
	remoteAddrStr     string

	messageBuffer chan []byte
	writerWg      sync.WaitGroup
	closeOnce     sync.Once
	closeErr      error
}

// NewConnection creates a managed connection and starts its writer.
func NewConnection(
	connCtx context.Context,
	cancelFunc context.CancelFunc,
	id string,
	wsConn *websocket.Conn,
	remoteAddr string,
	logger domain.Logger,
	cfgProvider config.Provider,
) *Connection {
	appCfg := cfgProvider.Get().App
	writeTimeout := time.Duration(appCfg.WriteTimeoutSeconds) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	c := &Connection{
		id:                id,
		wsConn:            wsConn,
		logger:            logger,
		connCtx:           connCtx,
		cancelConnCtxFunc: cancelFunc,
		writeTimeout:      writeTimeout,
		pingInterval:      time.Duration(appCfg.PingIntervalSeconds) * time.Second,
		remoteAddrStr:     remoteAddr,
		messageBuffer:     make(chan []byte, defaultBufferSize),
	}
	c.startWriter()
	return c
}

func (c *Connection) startWriter() {
	c.writerWg.Add(1)
	safego.Execute(c.connCtx, c.logger, fmt.Sprintf("UIStreamWriter-%s", c.id), func() {
		defer c.writerWg.Done()
		for {
			select {
			case <-c.connCtx.Done():
				return
			case msgBytes := <-c.messageBuffer:
				ctxToWrite, cancel := context.WithTimeout(c.connCtx, c.writeTimeout)
				err := c.wsConn.Write(ctxToWrite, websocket.MessageText, msgBytes)
				cancel()
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						c.logger.Warn(c.connCtx, "Failed to write message to UI stream", "error", err.Error())
					}
					c.cancelConnCtxFunc()
					return
				}
			}
		}
	})
}

// ID identifies the connection inside the hub.
func (c *Connection) ID() string {
	return c.id
}

// Context returns the context associated with this connection.
func (c *Connection) Context() context.Context {
	return c.connCtx
}

// Close stops the writer and closes the WebSocket. Safe to call more than once.
func (c *Connection) Close(statusCode websocket.StatusCode, reason string) error {
	c.closeOnce.Do(func() {
		c.logger.Debug(c.connCtx, "Closing UI stream connection", "status_code", int(statusCode), "reason", reason)
		c.cancelConnCtxFunc()
		c.writerWg.Wait()

		c.mu.Lock()
		defer c.mu.Unlock()
		c.closeErr = c.wsConn.Close(statusCode, reason)
	})
	return c.closeErr
}

// WriteJSON marshals v and queues it, dropping the oldest queued message when
// the buffer is full.
func (c *Connection) WriteJSON(v interface{}) error {
	msgBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	for {
		if err := c.connCtx.Err(); err != nil {
			return err
		}
		select {
		case c.messageBuffer <- msgBytes:
			return nil
		default:
		}
		select {
		case <-c.messageBuffer:
			c.logger.Debug(c.connCtx, "UI stream buffer full; dropped oldest message")
		default:
		}
	}
}

// ReadMessage reads a data message. Control frames are handled by the library.
func (c *Connection) ReadMessage(ctx context.Context) (websocket.MessageType, []byte, error) {
	return c.wsConn.Read(ctx)
}

// RemoteAddr returns the remote network address string of the client.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddrStr
}

// Ping sends a ping and waits for the pong.
func (c *Connection) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return c.wsConn.Ping(ctx)
}
