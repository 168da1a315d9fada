package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Manager owns the link to the authority. It dials, redials on loss with
// bounded backoff, and turns the link into an ordered stream of Signals.
type Manager struct {
	dialer  Dialer
	config  Config
	clock   clockwork.Clock
	signals chan Signal

	mu    sync.RWMutex
	state State
	send  chan []byte // write pump input of the live connection, nil when down
}

// NewManager creates a connection manager
func NewManager(dialer Dialer, config Config, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = DefaultConfig().SendBufferSize
	}
	if config.SignalBufferSize <= 0 {
		config.SignalBufferSize = DefaultConfig().SignalBufferSize
	}

	return &Manager{
		dialer:  dialer,
		config:  config,
		clock:   clock,
		signals: make(chan Signal, config.SignalBufferSize),
		state:   Disconnected,
	}
}

// Signals returns the ordered signal stream. It is closed when Run returns.
func (m *Manager) Signals() <-chan Signal {
	return m.signals
}

// State returns the current connectivity.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Send queues a frame on the live connection.
func (m *Manager) Send(data []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.send == nil {
		return ErrNotConnected
	}
	select {
	case m.send <- data:
		return nil
	default:
		log.Warn().Int("bytes", len(data)).Msg("send buffer full, dropping frame")
		return ErrSendBufferFull
	}
}

// Run connects and keeps the connection alive until ctx is cancelled or the
// retry budget for one outage is spent.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.signals)

	log.Info().Msg("connection manager started")

	attempt := 0
	everConnected := false
	for {
		m.setState(ctx, Connecting)

		conn, err := m.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				m.setState(ctx, Disconnected)
				return ctx.Err()
			}

			attempt++
			log.Warn().Err(err).
				Int("attempt", attempt).
				Int("max_attempts", m.config.MaxAttempts).
				Msg("failed to connect to authority")

			if attempt >= m.config.MaxAttempts {
				m.setState(ctx, Disconnected)
				failure := fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempt, err)
				log.Error().Err(failure).Msg("giving up on authority connection")
				m.emit(ctx, Failed{Err: failure})
				return failure
			}

			m.setState(ctx, Disconnected)
			if err := m.wait(ctx, m.config.backoff(attempt)); err != nil {
				return err
			}
			continue
		}

		attempt = 0
		m.serve(ctx, conn, everConnected)
		everConnected = true

		if ctx.Err() != nil {
			log.Info().Msg("connection manager shutting down")
			return ctx.Err()
		}

		// Leave a gap before redialing so a server that accepts and drops
		// immediately cannot spin us.
		if err := m.wait(ctx, m.config.InitialDelay); err != nil {
			return err
		}
	}
}

// serve pumps one connection until it fails or ctx is cancelled.
func (m *Manager) serve(ctx context.Context, conn Conn, reconnect bool) {
	connID := uuid.NewString()
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	send := make(chan []byte, m.config.SendBufferSize)
	m.mu.Lock()
	m.state = Connected
	m.send = send
	m.mu.Unlock()

	log.Info().
		Str("connection_id", connID).
		Bool("reconnect", reconnect).
		Msg("connected to authority")
	m.emit(ctx, StateChanged{State: Connected, Reconnect: reconnect})

	writerDone := make(chan struct{})
	go m.writePump(connCtx, cancel, conn, send, connID, writerDone)

	// Closing the conn is the only way to unblock a pending read.
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if connCtx.Err() == nil {
				log.Warn().Err(err).Str("connection_id", connID).Msg("connection to authority lost")
			}
			break
		}
		if !m.emit(ctx, Message{Data: data}) {
			break
		}
	}

	cancel()
	<-writerDone

	m.setState(ctx, Disconnected)
}

// writePump is the only writer on conn.
func (m *Manager) writePump(ctx context.Context, cancel context.CancelFunc, conn Conn, send <-chan []byte, connID string, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-send:
			if err := conn.WriteMessage(data); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", connID).
					Msg("failed to write frame to authority")
				cancel()
				return
			}
		}
	}
}

func (m *Manager) setState(ctx context.Context, state State) {
	m.mu.Lock()
	changed := m.state != state
	m.state = state
	if state != Connected {
		m.send = nil
	}
	m.mu.Unlock()

	if changed {
		log.Debug().Str("state", state.String()).Msg("connection state changed")
		m.emit(ctx, StateChanged{State: state})
	}
}

// emit delivers a signal without dropping. It gives up only on shutdown.
func (m *Manager) emit(ctx context.Context, sig Signal) bool {
	select {
	case m.signals <- sig:
		return true
	default:
	}

	select {
	case m.signals <- sig:
		return true
	case <-ctx.Done():
		return false
	}
}

// wait sleeps for d on the manager's clock.
func (m *Manager) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := m.clock.NewTimer(d)
	defer stopAndDrainTimer(timer)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
