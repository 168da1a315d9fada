package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDialRefused = errors.New("connection refused")

type fakeConn struct {
	in      chan []byte
	written chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 16),
		written: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	case c.written <- data:
		return nil
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// scriptedDialer hands out results in order. Once the script runs out every
// dial fails.
type scriptedDialer struct {
	mu     sync.Mutex
	script []any // *fakeConn or error
	dials  int
}

func (d *scriptedDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if len(d.script) == 0 {
		return nil, errDialRefused
	}
	next := d.script[0]
	d.script = d.script[1:]
	if err, ok := next.(error); ok {
		return nil, err
	}
	return next.(*fakeConn), nil
}

func (d *scriptedDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func recvSignal(t *testing.T, ch <-chan Signal) Signal {
	t.Helper()
	select {
	case sig, ok := <-ch:
		require.True(t, ok, "signal channel closed")
		return sig
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal")
		return nil
	}
}

// expectState skips frames until the next state change and checks it.
func expectState(t *testing.T, ch <-chan Signal, want State, reconnect bool) {
	t.Helper()
	for {
		sig := recvSignal(t, ch)
		if sc, ok := sig.(StateChanged); ok {
			assert.Equal(t, want, sc.State)
			assert.Equal(t, reconnect, sc.Reconnect)
			return
		}
	}
}

func startManager(t *testing.T, dialer Dialer, cfg Config, clock clockwork.Clock) (*Manager, context.CancelFunc, <-chan error) {
	t.Helper()
	m := NewManager(dialer, cfg, clock)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()
	t.Cleanup(cancel)
	return m, cancel, errCh
}

func TestManagerDeliversFramesInOrder(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptedDialer{script: []any{conn}}
	m, cancel, errCh := startManager(t, dialer, DefaultConfig(), clockwork.NewFakeClock())

	expectState(t, m.Signals(), Connecting, false)
	expectState(t, m.Signals(), Connected, false)
	assert.Equal(t, Connected, m.State())

	conn.in <- []byte("one")
	conn.in <- []byte("two")
	conn.in <- []byte("three")
	for _, want := range []string{"one", "two", "three"} {
		sig := recvSignal(t, m.Signals())
		msg, ok := sig.(Message)
		require.True(t, ok, "expected Message, got %T", sig)
		assert.Equal(t, want, string(msg.Data))
	}

	require.NoError(t, m.Send([]byte(`{"type":"leave_room"}`)))
	select {
	case data := <-conn.written:
		assert.Equal(t, `{"type":"leave_room"}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("frame was not written")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestManagerSendWhenDisconnected(t *testing.T) {
	m := NewManager(&scriptedDialer{}, DefaultConfig(), clockwork.NewFakeClock())
	assert.ErrorIs(t, m.Send([]byte("x")), ErrNotConnected)
	assert.Equal(t, Disconnected, m.State())
}

func TestManagerRetriesWithBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	conn := newFakeConn()
	dialer := &scriptedDialer{script: []any{errDialRefused, errDialRefused, conn}}
	m, _, _ := startManager(t, dialer, DefaultConfig(), clock)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	expectState(t, m.Signals(), Connecting, false)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, dialer.count())
	clock.Advance(time.Second)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, dialer.count())
	clock.Advance(time.Second)
	assert.Equal(t, 2, dialer.count(), "second backoff is two seconds")
	clock.Advance(time.Second)

	// Every failed dial reports Disconnected before the next attempt.
	for _, want := range []State{Disconnected, Connecting, Disconnected, Connecting, Connected} {
		expectState(t, m.Signals(), want, false)
	}
	assert.Equal(t, 3, dialer.count())
}

func TestManagerGivesUp(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	m, _, errCh := startManager(t, &scriptedDialer{}, cfg, clock)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < cfg.MaxAttempts-1; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(cfg.MaxDelay)
	}

	var failed *Failed
	for sig := range m.Signals() {
		if f, ok := sig.(Failed); ok {
			failed = &f
		}
	}
	require.NotNil(t, failed)
	assert.ErrorIs(t, failed.Err, ErrRetriesExhausted)
	assert.Equal(t, Disconnected, m.State())

	err := <-errCh
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestManagerReconnectIsFlagged(t *testing.T) {
	clock := clockwork.NewFakeClock()
	first, second := newFakeConn(), newFakeConn()
	dialer := &scriptedDialer{script: []any{first, second}}
	m, _, _ := startManager(t, dialer, DefaultConfig(), clock)

	expectState(t, m.Signals(), Connecting, false)
	expectState(t, m.Signals(), Connected, false)

	first.Close()
	expectState(t, m.Signals(), Disconnected, false)
	assert.ErrorIs(t, m.Send([]byte("x")), ErrNotConnected)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(DefaultConfig().InitialDelay)

	expectState(t, m.Signals(), Connecting, false)
	expectState(t, m.Signals(), Connected, true)
}

func TestManagerRetryBudgetResetsAfterConnect(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	first := newFakeConn()
	dialer := &scriptedDialer{script: []any{errDialRefused, first, errDialRefused, newFakeConn()}}
	m, _, _ := startManager(t, dialer, cfg, clock)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	expectState(t, m.Signals(), Connecting, false)
	expectState(t, m.Signals(), Disconnected, false)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(cfg.InitialDelay)
	expectState(t, m.Signals(), Connecting, false)
	expectState(t, m.Signals(), Connected, false)

	first.Close()
	expectState(t, m.Signals(), Disconnected, false)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(cfg.InitialDelay)
	expectState(t, m.Signals(), Connecting, false)

	// One failure after the outage is within budget again.
	expectState(t, m.Signals(), Disconnected, false)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(cfg.InitialDelay)
	expectState(t, m.Signals(), Connecting, false)
	expectState(t, m.Signals(), Connected, true)
}

func TestBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cfg.backoff(tc.attempt), "attempt %d", tc.attempt)
	}
}
