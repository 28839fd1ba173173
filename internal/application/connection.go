package application

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/smallnest/chanx"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/metrics"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/contextkeys"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/safego"
)

// EventDispatcher handles inbound socket events, one at a time, in receipt order.
type EventDispatcher interface {
	Dispatch(ctx context.Context, establishmentID string, ev domain.InboundEvent)
}

// ConnectionOptions tunes the reconnect policy and socket timeouts.
type ConnectionOptions struct {
	MaxReconnects       int
	InitialDelay        time.Duration
	MaxDelay            time.Duration
	RandomizationFactor float64
	ConnectTimeout      time.Duration
	WriteTimeout        time.Duration
}

// ConnectionOptionsFromConfig maps the socket section of the config.
func ConnectionOptionsFromConfig(cfg *config.Config) ConnectionOptions {
	return ConnectionOptions{
		MaxReconnects:       cfg.Socket.ReconnectionAttempts,
		InitialDelay:        time.Duration(cfg.Socket.ReconnectionDelayMs) * time.Millisecond,
		MaxDelay:            time.Duration(cfg.Socket.ReconnectionDelayMaxMs) * time.Millisecond,
		RandomizationFactor: cfg.Socket.RandomizationFactor,
		ConnectTimeout:      time.Duration(cfg.Socket.ConnectTimeoutSeconds) * time.Second,
		WriteTimeout:        time.Duration(cfg.Socket.WriteTimeoutSeconds) * time.Second,
	}
}

func (o ConnectionOptions) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.InitialDelay
	eb.MaxInterval = o.MaxDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = o.RandomizationFactor
	eb.MaxElapsedTime = 0 // bounded by attempt count only
	eb.Reset()
	maxRetries := o.MaxReconnects
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithMaxRetries(&cappedBackOff{BackOff: eb, max: o.MaxDelay}, uint64(maxRetries))
}

// cappedBackOff clamps delays after jitter has been applied.
type cappedBackOff struct {
	backoff.BackOff
	max time.Duration
}

func (b *cappedBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d != backoff.Stop && b.max > 0 && d > b.max {
		return b.max
	}
	return d
}

type queuedEvent struct {
	establishmentID string
	event           domain.InboundEvent
}

// Connection owns the single order socket of the process. It dials, keeps
// the establishment room joined, reconnects with capped backoff and hands
// inbound events to the dispatcher. Create it once at the application root
// and call Dispose once at shutdown.
type Connection struct {
	logger     domain.Logger
	dialer     domain.SocketDialer
	dispatcher EventDispatcher
	opts       ConnectionOptions

	mu        sync.Mutex
	state     domain.ConnectionState
	attempts  int
	estabID   string
	joined    map[string]struct{}
	socket    domain.Socket
	running   bool
	runGen    uint64
	disposed  bool
	cancelRun context.CancelFunc
	observers map[uint64]func(domain.ConnectionStatus)
	nextObsID uint64

	// joinMu serializes room emissions so leave/join pairs never interleave.
	joinMu      sync.Mutex
	wg          sync.WaitGroup
	disposeOnce sync.Once
}

// NewConnection creates an idle Connection. Nothing is dialed until Init.
func NewConnection(logger domain.Logger, dialer domain.SocketDialer, dispatcher EventDispatcher, opts ConnectionOptions) *Connection {
	return &Connection{
		logger:     logger,
		dialer:     dialer,
		dispatcher: dispatcher,
		opts:       opts,
		state:      domain.StateDisconnected,
		joined:     make(map[string]struct{}),
		observers:  make(map[uint64]func(domain.ConnectionStatus)),
	}
}

// Init binds the connection to establishmentID and starts the run loop.
// When the loop is already live only the room join is (re-)issued.
func (c *Connection) Init(ctx context.Context, establishmentID string) error {
	if establishmentID == "" {
		return domain.ErrEstablishmentRequired
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		c.logger.Warn(ctx, "Init called on a disposed connection; ignoring", "establishment_id", establishmentID)
		return domain.ErrDisposed
	}
	if c.running {
		c.mu.Unlock()
		return c.JoinRoom(ctx, establishmentID)
	}

	c.estabID = establishmentID
	c.attempts = 0
	c.running = true
	c.runGen++
	gen := c.runGen
	// The loop outlives the caller's request.
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancelRun = cancel
	queue := chanx.NewUnboundedChan[queuedEvent](runCtx, 64)
	c.wg.Add(2)
	c.mu.Unlock()

	c.logger.Info(ctx, "Starting order connection", "establishment_id", establishmentID)

	safego.Execute(runCtx, c.logger, "OrderConnectionDispatch", func() {
		defer c.wg.Done()
		defer cancel()
		c.dispatchLoop(runCtx, queue.Out)
	})
	safego.Execute(runCtx, c.logger, "OrderConnectionRun", func() {
		defer c.wg.Done()
		defer close(queue.In)
		c.run(runCtx, gen, queue.In)
	})
	return nil
}

// JoinRoom makes id the bound establishment. It is idempotent per id: a room
// already joined on the live socket is not joined again. Switching rooms
// leaves the previous one first. While disconnected only the binding changes;
// the join is sent on the next successful connect.
func (c *Connection) JoinRoom(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrEstablishmentRequired
	}

	c.joinMu.Lock()
	defer c.joinMu.Unlock()

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return domain.ErrDisposed
	}
	c.estabID = id
	sock := c.socket
	_, already := c.joined[id]
	stale := lo.Without(lo.Keys(c.joined), id)
	c.mu.Unlock()

	if sock == nil {
		c.logger.Debug(ctx, "Socket not connected; room join deferred to next connect", "establishment_id", id)
		c.notify()
		return nil
	}
	if already && len(stale) == 0 {
		return nil
	}

	sort.Strings(stale)
	for _, old := range stale {
		if err := c.emit(ctx, sock, domain.EventLeaveEstablishment, old); err != nil {
			c.logger.Error(ctx, "Failed to leave establishment room", "room", old, "error", err.Error())
			return err
		}
		c.mu.Lock()
		delete(c.joined, old)
		c.mu.Unlock()
		c.logger.Info(ctx, "Left establishment room", "room", old)
	}
	if !already {
		if err := c.emit(ctx, sock, domain.EventJoinEstablishment, id); err != nil {
			c.logger.Error(ctx, "Failed to join establishment room", "room", id, "error", err.Error())
			return err
		}
		c.mu.Lock()
		c.joined[id] = struct{}{}
		c.mu.Unlock()
		c.logger.Info(ctx, "Joined establishment room", "room", id)
	}
	c.notify()
	return nil
}

// Dispose closes the transport and stops the run loop. Only the first call
// has an effect; it waits for the loop to exit or ctx to expire.
func (c *Connection) Dispose(ctx context.Context) error {
	var err error
	c.disposeOnce.Do(func() {
		c.mu.Lock()
		c.disposed = true
		cancel := c.cancelRun
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("waiting for order connection to stop: %w", ctx.Err())
		}

		c.setState(domain.StateDisconnected)
		c.logger.Info(ctx, "Order connection disposed")
	})
	return err
}

// State returns the current lifecycle state.
func (c *Connection) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectAttempts returns the number of reconnect attempts since the last successful connect.
func (c *Connection) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// EstablishmentID returns the bound establishment.
func (c *Connection) EstablishmentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estabID
}

// JoinedRooms returns the rooms joined on the live socket, sorted.
func (c *Connection) JoinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joinedLocked()
}

// Connected reports whether a socket is live.
func (c *Connection) Connected() bool {
	return c.State() == domain.StateConnected
}

// Status returns a snapshot for status indicators.
func (c *Connection) Status() domain.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// OnStateChange registers fn to receive a status snapshot after every
// transition. The disposer is idempotent.
func (c *Connection) OnStateChange(fn func(domain.ConnectionStatus)) (dispose func()) {
	c.mu.Lock()
	c.nextObsID++
	id := c.nextObsID
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Connection) joinedLocked() []string {
	rooms := lo.Keys(c.joined)
	sort.Strings(rooms)
	return rooms
}

func (c *Connection) statusLocked() domain.ConnectionStatus {
	return domain.ConnectionStatus{
		State:             c.state,
		EstablishmentID:   c.estabID,
		ReconnectAttempts: c.attempts,
		JoinedRooms:       c.joinedLocked(),
	}
}

func (c *Connection) setState(state domain.ConnectionState) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()
	if changed {
		metrics.SetConnectionState(state)
	}
	c.notify()
}

func (c *Connection) notify() {
	c.mu.Lock()
	status := c.statusLocked()
	observers := lo.Values(c.observers)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(status)
	}
}

func (c *Connection) emit(ctx context.Context, sock domain.Socket, event domain.EventName, arg string) error {
	emitCtx := ctx
	if c.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		emitCtx, cancel = context.WithTimeout(ctx, c.opts.WriteTimeout)
		defer cancel()
	}
	return sock.Emit(emitCtx, event, arg)
}

func (c *Connection) run(ctx context.Context, gen uint64, in chan<- queuedEvent) {
	bo := c.opts.newBackOff()
	defer func() {
		c.mu.Lock()
		c.stopRunLocked(gen)
		c.mu.Unlock()
	}()

	for {
		c.setState(domain.StateConnecting)
		sock, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn(ctx, "Order socket dial failed", "error", err.Error(), "reconnect_attempts", c.ReconnectAttempts())
			c.setState(domain.StateError)
			if !c.waitBackOff(ctx, gen, bo) {
				return
			}
			continue
		}

		bo.Reset()
		sockCtx := context.WithValue(ctx, contextkeys.SocketIDKey, sock.ID())
		c.onConnected(sockCtx, sock)
		err = c.pump(ctx, sock, in)
		c.onDisconnected(sockCtx, sock, err)

		if ctx.Err() != nil {
			return
		}
		if !c.waitBackOff(ctx, gen, bo) {
			return
		}
	}
}

// stopRunLocked clears the running flag if loop gen is still the current one.
func (c *Connection) stopRunLocked(gen uint64) bool {
	if c.runGen != gen {
		return false
	}
	c.running = false
	c.cancelRun = nil
	return true
}

func (c *Connection) dial(ctx context.Context) (domain.Socket, error) {
	dialCtx := ctx
	if c.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
	}
	return c.dialer.Dial(dialCtx, c.EstablishmentID())
}

// waitBackOff sleeps for the next reconnect delay and counts the attempt.
// It returns false when attempts are exhausted or ctx is done.
func (c *Connection) waitBackOff(ctx context.Context, gen uint64, bo backoff.BackOff) bool {
	delay := bo.NextBackOff()
	if delay == backoff.Stop {
		// The loop is marked stopped in the same critical section that
		// publishes the final state, so a later Init always starts over.
		c.mu.Lock()
		attempts := c.attempts
		owned := c.stopRunLocked(gen)
		if owned {
			c.state = domain.StateDisconnected
		}
		c.mu.Unlock()
		c.logger.Warn(ctx, "Reconnect attempts exhausted; order connection stays down until re-initialised",
			"reconnect_attempts", attempts)
		if owned {
			metrics.SetConnectionState(domain.StateDisconnected)
			c.notify()
		}
		return false
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()
	metrics.IncrementReconnectAttempt()
	c.logger.Info(ctx, "Reconnecting order socket", "attempt", attempt, "delay", delay.String())
	return true
}

func (c *Connection) onConnected(ctx context.Context, sock domain.Socket) {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()

	c.mu.Lock()
	c.socket = sock
	c.attempts = 0
	c.joined = make(map[string]struct{})
	room := c.estabID
	c.mu.Unlock()

	c.logger.Info(ctx, "Order socket connected", "transport", sock.Transport(), "establishment_id", room)
	c.setState(domain.StateConnected)

	if err := c.emit(ctx, sock, domain.EventJoinEstablishment, room); err != nil {
		c.logger.Error(ctx, "Failed to join establishment room after connect", "room", room, "error", err.Error())
		return
	}
	c.mu.Lock()
	c.joined[room] = struct{}{}
	c.mu.Unlock()
	c.logger.Info(ctx, "Joined establishment room", "room", room)
	c.notify()
}

func (c *Connection) onDisconnected(ctx context.Context, sock domain.Socket, reason error) {
	c.joinMu.Lock()
	c.mu.Lock()
	c.socket = nil
	c.joined = make(map[string]struct{})
	c.mu.Unlock()
	c.joinMu.Unlock()

	if err := sock.Close(); err != nil {
		c.logger.Debug(ctx, "Error closing order socket", "error", err.Error())
	}
	if reason != nil && ctx.Err() == nil {
		c.logger.Warn(ctx, "Order socket disconnected", "reason", reason.Error())
	} else {
		c.logger.Info(ctx, "Order socket closed")
	}
	c.setState(domain.StateDisconnected)
}

// pump forwards socket events into the queue until the socket ends or ctx is done.
func (c *Connection) pump(ctx context.Context, sock domain.Socket, in chan<- queuedEvent) error {
	events := sock.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return sock.Err()
			}
			metrics.IncrementInboundEvent(ev.Name)
			qe := queuedEvent{establishmentID: c.EstablishmentID(), event: ev}
			select {
			case in <- qe:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (c *Connection) dispatchLoop(ctx context.Context, out <-chan queuedEvent) {
	for qe := range out {
		if ctx.Err() != nil {
			continue
		}
		c.dispatchOne(ctx, qe)
	}
}

func (c *Connection) dispatchOne(ctx context.Context, qe queuedEvent) {
	evCtx := context.WithValue(ctx, contextkeys.EventIDKey, uuid.NewString())
	evCtx = context.WithValue(evCtx, contextkeys.EstablishmentIDKey, qe.establishmentID)
	defer func() {
		if r := recover(); r != nil {
			metrics.IncrementHandlerPanic(qe.event.Name)
			c.logger.Error(evCtx, "Panic recovered while dispatching order event",
				"event", string(qe.event.Name),
				"panic_info", fmt.Sprintf("%v", r),
				"stacktrace", string(debug.Stack()),
			)
		}
	}()
	c.dispatcher.Dispatch(evCtx, qe.establishmentID, qe.event)
}
