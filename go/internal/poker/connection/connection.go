package connection

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// State is the transport-level connectivity of the client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Conn is one live link to the authority. ReadMessage blocks until a frame
// arrives or the link fails. Close unblocks any pending ReadMessage.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a new Conn to the authority.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Signal is anything the Manager reports to its consumer.
type Signal interface {
	isSignal()
}

// Message is an inbound frame, delivered in arrival order.
type Message struct {
	Data []byte
}

// StateChanged reports a connectivity transition. Reconnect is set on every
// Connected after the first one.
type StateChanged struct {
	State     State
	Reconnect bool
}

// Failed is emitted once when the Manager gives up.
type Failed struct {
	Err error
}

func (Message) isSignal()      {}
func (StateChanged) isSignal() {}
func (Failed) isSignal()       {}

// Config holds retry and buffering settings for the Manager
type Config struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	SendBufferSize   int
	SignalBufferSize int
}

// DefaultConfig returns the retry policy of the reference web client.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      5,
		InitialDelay:     1 * time.Second,
		MaxDelay:         5 * time.Second,
		SendBufferSize:   256,
		SignalBufferSize: 1024,
	}
}

// backoff returns the wait before retry number attempt (1-based).
func (c Config) backoff(attempt int) time.Duration {
	d := c.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}
