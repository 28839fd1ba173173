package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

func newTestConnection(t *testing.T, dialer *fakeDialer, dispatcher EventDispatcher) *Connection {
	t.Helper()
	if dispatcher == nil {
		dispatcher = &recordingDispatcher{}
	}
	c := NewConnection(testLogger(t), dialer, dispatcher, fastOptions())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		require.NoError(t, c.Dispose(ctx))
	})
	return c
}

func waitConnected(t *testing.T, c *Connection) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State() == domain.StateConnected && len(c.JoinedRooms()) == 1
	}, waitFor, tick)
}

func TestConnectionInitTwiceKeepsOneTransportAndJoinsOnce(t *testing.T) {
	sock := newFakeSocket("sid-1")
	dialer := &fakeDialer{script: []func() (domain.Socket, error){succeed(sock)}}
	c := newTestConnection(t, dialer, nil)

	require.NoError(t, c.Init(context.Background(), "estab-a"))
	waitConnected(t, c)
	require.NoError(t, c.Init(context.Background(), "estab-a"))

	assert.Equal(t, 1, dialer.Dials())
	assert.Equal(t, []emission{{Event: domain.EventJoinEstablishment, Arg: "estab-a"}}, sock.Emitted())
	assert.Equal(t, []string{"estab-a"}, c.JoinedRooms())
}

func TestConnectionSwitchingEstablishmentLeavesThenJoins(t *testing.T) {
	sock := newFakeSocket("sid-1")
	dialer := &fakeDialer{script: []func() (domain.Socket, error){succeed(sock)}}
	c := newTestConnection(t, dialer, nil)

	require.NoError(t, c.Init(context.Background(), "estab-a"))
	waitConnected(t, c)
	require.NoError(t, c.Init(context.Background(), "estab-b"))

	assert.Equal(t, []emission{
		{Event: domain.EventJoinEstablishment, Arg: "estab-a"},
		{Event: domain.EventLeaveEstablishment, Arg: "estab-a"},
		{Event: domain.EventJoinEstablishment, Arg: "estab-b"},
	}, sock.Emitted())
	assert.Equal(t, []string{"estab-b"}, c.JoinedRooms())
	assert.Equal(t, "estab-b", c.EstablishmentID())
	assert.Equal(t, 1, dialer.Dials())
}

func TestConnectionJoinFailureIsRetriedOnNextJoin(t *testing.T) {
	sock := newFakeSocket("sid-1")
	sock.emitErr = errors.New("write timeout")
	dialer := &fakeDialer{script: []func() (domain.Socket, error){succeed(sock)}}
	c := newTestConnection(t, dialer, nil)

	require.NoError(t, c.Init(context.Background(), "estab-a"))
	require.Eventually(t, func() bool { return c.State() == domain.StateConnected }, waitFor, tick)
	assert.Empty(t, c.JoinedRooms())

	sock.mu.Lock()
	sock.emitErr = nil
	sock.mu.Unlock()

	require.NoError(t, c.JoinRoom(context.Background(), "estab-a"))
	assert.Equal(t, []string{"estab-a"}, c.JoinedRooms())
}

func TestConnectionGivesUpAfterMaxReconnects(t *testing.T) {
	dialer := &fakeDialer{}
	c := newTestConnection(t, dialer, nil)

	var states []domain.ConnectionState
	statesCh := make(chan domain.ConnectionState, 128)
	dispose := c.OnStateChange(func(s domain.ConnectionStatus) { statesCh <- s.State })
	defer dispose()

	require.NoError(t, c.Init(context.Background(), "estab-a"))

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return !c.running
	}, waitFor, tick)

	assert.Equal(t, 11, dialer.Dials(), "one initial dial plus ten reconnects")
	assert.Equal(t, 10, c.ReconnectAttempts())
	assert.Equal(t, domain.StateDisconnected, c.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 11, dialer.Dials(), "no retries after exhaustion")

	close(statesCh)
	for s := range statesCh {
		states = append(states, s)
	}
	assert.Contains(t, states, domain.StateError)
	assert.Equal(t, domain.StateDisconnected, states[len(states)-1])
}

func TestConnectionInitAfterExhaustionStartsOver(t *testing.T) {
	dialer := &fakeDialer{}
	c := newTestConnection(t, dialer, nil)

	require.NoError(t, c.Init(context.Background(), "estab-a"))
	require.Eventually(t, func() bool { return dialer.Dials() == 11 && c.State() == domain.StateDisconnected }, waitFor, tick)
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return !c.running
	}, waitFor, tick)

	sock := newFakeSocket("sid-2")
	dialer.mu.Lock()
	dialer.script = []func() (domain.Socket, error){succeed(sock)}
	dialer.mu.Unlock()

	require.NoError(t, c.Init(context.Background(), "estab-a"))
	waitConnected(t, c)
	assert.Equal(t, 0, c.ReconnectAttempts())
}

func TestConnectionReconnectResetsCounterAndRejoins(t *testing.T) {
	first := newFakeSocket("sid-1")
	second := newFakeSocket("sid-2")
	dialer := &fakeDialer{script: []func() (domain.Socket, error){
		fail(), fail(), succeed(first), fail(), succeed(second),
	}}
	c := newTestConnection(t, dialer, nil)

	require.NoError(t, c.Init(context.Background(), "estab-a"))
	waitConnected(t, c)
	assert.Equal(t, 0, c.ReconnectAttempts())

	first.drop(errors.New("transport close"))
	require.Eventually(t, func() bool { return dialer.Socket(1) != nil }, waitFor, tick)
	waitConnected(t, c)

	assert.Equal(t, 5, dialer.Dials())
	assert.Equal(t, 0, c.ReconnectAttempts())
	assert.Equal(t, []emission{{Event: domain.EventJoinEstablishment, Arg: "estab-a"}}, second.Emitted())
	assert.Equal(t, 1, first.Closes())
}

func TestConnectionJoinWhileDisconnectedIsDeferred(t *testing.T) {
	sock := newFakeSocket("sid-1")
	dialer := &fakeDialer{}
	c := newTestConnection(t, dialer, nil)

	require.NoError(t, c.JoinRoom(context.Background(), "estab-b"))
	assert.Equal(t, "estab-b", c.EstablishmentID())
	assert.Empty(t, c.JoinedRooms())

	dialer.script = []func() (domain.Socket, error){succeed(sock)}
	require.NoError(t, c.Init(context.Background(), "estab-c"))
	waitConnected(t, c)
	assert.Equal(t, []emission{{Event: domain.EventJoinEstablishment, Arg: "estab-c"}}, sock.Emitted())
}

func TestConnectionDispatchesEventsInReceiptOrder(t *testing.T) {
	sock := newFakeSocket("sid-1")
	dialer := &fakeDialer{script: []func() (domain.Socket, error){succeed(sock)}}
	rec := &recordingDispatcher{}
	c := newTestConnection(t, dialer, rec)

	require.NoError(t, c.Init(context.Background(), "estab-a"))
	waitConnected(t, c)

	names := []domain.EventName{domain.EventNewOrder, domain.EventOrderUpdated, domain.EventNewOrder, domain.EventOrderCreated}
	for i, name := range names {
		sock.events <- domain.InboundEvent{Name: name, Args: []json.RawMessage{json.RawMessage(`{"_id":"` + string(rune('a'+i)) + `"}`)}}
	}

	require.Eventually(t, func() bool { return len(rec.Events()) == len(names) }, waitFor, tick)
	for i, qe := range rec.Events() {
		assert.Equal(t, names[i], qe.event.Name)
		assert.Equal(t, "estab-a", qe.establishmentID)
		assert.JSONEq(t, `{"_id":"`+string(rune('a'+i))+`"}`, string(qe.event.FirstArg()))
	}
}

type panickingDispatcher struct {
	rec *recordingDispatcher
}

func (p panickingDispatcher) Dispatch(ctx context.Context, establishmentID string, ev domain.InboundEvent) {
	if ev.Name == "boom" {
		panic("handler exploded")
	}
	p.rec.Dispatch(ctx, establishmentID, ev)
}

func TestConnectionSurvivesDispatcherPanic(t *testing.T) {
	sock := newFakeSocket("sid-1")
	dialer := &fakeDialer{script: []func() (domain.Socket, error){succeed(sock)}}
	rec := &recordingDispatcher{}
	c := newTestConnection(t, dialer, panickingDispatcher{rec: rec})

	require.NoError(t, c.Init(context.Background(), "estab-a"))
	waitConnected(t, c)

	sock.events <- domain.InboundEvent{Name: "boom"}
	sock.events <- domain.InboundEvent{Name: domain.EventNewOrder}

	require.Eventually(t, func() bool { return len(rec.Events()) == 1 }, waitFor, tick)
}

func TestConnectionDisposeClosesSocketExactlyOnce(t *testing.T) {
	sock := newFakeSocket("sid-1")
	dialer := &fakeDialer{script: []func() (domain.Socket, error){succeed(sock)}}
	c := NewConnection(testLogger(t), dialer, &recordingDispatcher{}, fastOptions())

	require.NoError(t, c.Init(context.Background(), "estab-a"))
	waitConnected(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, c.Dispose(ctx))
	require.NoError(t, c.Dispose(ctx))

	assert.Equal(t, 1, sock.Closes())
	assert.Equal(t, domain.StateDisconnected, c.State())
	assert.ErrorIs(t, c.Init(context.Background(), "estab-a"), domain.ErrDisposed)
	assert.ErrorIs(t, c.JoinRoom(context.Background(), "estab-a"), domain.ErrDisposed)
	assert.Equal(t, 1, dialer.Dials())
}

func TestConnectionDisposeWithoutInit(t *testing.T) {
	c := NewConnection(testLogger(t), &fakeDialer{}, &recordingDispatcher{}, fastOptions())
	require.NoError(t, c.Dispose(context.Background()))
	assert.Equal(t, domain.StateDisconnected, c.State())
}

func TestConnectionRejectsEmptyEstablishment(t *testing.T) {
	c := newTestConnection(t, &fakeDialer{}, nil)
	assert.ErrorIs(t, c.Init(context.Background(), ""), domain.ErrEstablishmentRequired)
	assert.ErrorIs(t, c.JoinRoom(context.Background(), ""), domain.ErrEstablishmentRequired)
}

func TestConnectionOptionsBackOffStopsAfterMaxReconnects(t *testing.T) {
	opts := fastOptions()
	opts.MaxReconnects = 3
	bo := opts.newBackOff()
	for i := 0; i < 3; i++ {
		d := bo.NextBackOff()
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, opts.MaxDelay)
	}
	assert.Equal(t, time.Duration(-1), bo.NextBackOff())
}

func TestConnectionOptionsBackOffNeverExceedsMaxDelay(t *testing.T) {
	opts := ConnectionOptionsFromConfig(config.Defaults())
	require.Greater(t, opts.RandomizationFactor, 0.0)

	var longest time.Duration
	for run := 0; run < 200; run++ {
		bo := opts.newBackOff()
		for i := 0; i < opts.MaxReconnects; i++ {
			d := bo.NextBackOff()
			require.NotEqual(t, time.Duration(-1), d)
			if d > longest {
				longest = d
			}
		}
	}
	assert.LessOrEqual(t, longest, opts.MaxDelay)
	assert.Equal(t, opts.MaxDelay, longest, "late attempts sit at the cap")
}

func TestConnectionInitRightAfterExhaustionReconnects(t *testing.T) {
	dialer := &fakeDialer{}
	c := newTestConnection(t, dialer, nil)
	opts := fastOptions()
	opts.MaxReconnects = 0
	c.opts = opts

	require.NoError(t, c.Init(context.Background(), "estab-a"))
	require.Eventually(t, func() bool {
		return dialer.Dials() == 1 && c.State() == domain.StateDisconnected
	}, waitFor, tick)

	require.NoError(t, c.Init(context.Background(), "estab-a"))
	require.Eventually(t, func() bool { return dialer.Dials() == 2 }, waitFor, tick)
}
