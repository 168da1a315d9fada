package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

var errConnClosed = errors.New("connection closed")

// NATSConfig holds configuration for the NATS transport
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	ClientName    string
	Timeout       time.Duration
	BufferSize    int
}

// DefaultNATSConfig returns a NATS configuration pointing at url
func DefaultNATSConfig(url string) NATSConfig {
	if url == "" {
		url = nats.DefaultURL
	}
	return NATSConfig{
		URL:           url,
		SubjectPrefix: "poker",
		ClientName:    "pokersync",
		Timeout:       5 * time.Second,
		BufferSize:    256,
	}
}

// CommandSubject is where the client publishes its commands.
func (c NATSConfig) CommandSubject() string {
	return c.SubjectPrefix + ".commands"
}

// NATSDialer reaches the authority through a NATS server. Each connection
// listens on a private inbox and sends commands with that inbox as the reply
// subject, so the authority can address events back to this client.
type NATSDialer struct {
	config NATSConfig
}

func NewNATSDialer(config NATSConfig) *NATSDialer {
	return &NATSDialer{config: config}
}

func (d *NATSDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bufferSize := d.config.BufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	c := &natsConn{
		subject: d.config.CommandSubject(),
		inbox:   nats.NewInbox(),
		msgs:    make(chan *nats.Msg, bufferSize),
		done:    make(chan struct{}),
	}

	// The Manager owns retries, so a NATS-level disconnect ends this link.
	opts := []nats.Option{
		nats.Name(d.config.ClientName),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
			if err == nil {
				err = nats.ErrConnectionClosed
			}
			c.fail(err)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			c.fail(nats.ErrConnectionClosed)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
			if errors.Is(err, nats.ErrSlowConsumer) {
				c.fail(err)
			}
		}),
	}
	if d.config.Timeout > 0 {
		opts = append(opts, nats.Timeout(d.config.Timeout))
	}

	nc, err := nats.Connect(d.config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", d.config.URL, err)
	}

	sub, err := nc.ChanSubscribe(c.inbox, c.msgs)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", c.inbox, err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to flush subscription: %w", err)
	}

	c.nc = nc
	c.sub = sub

	log.Debug().
		Str("url", nc.ConnectedUrl()).
		Str("inbox", c.inbox).
		Str("subject", c.subject).
		Msg("NATS link established")
	return c, nil
}

type natsConn struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	inbox   string
	msgs    chan *nats.Msg

	done     chan struct{}
	failOnce sync.Once
	err      error
}

func (c *natsConn) fail(err error) {
	c.failOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *natsConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.msgs:
		return msg.Data, nil
	case <-c.done:
		return nil, c.err
	}
}

func (c *natsConn) WriteMessage(data []byte) error {
	select {
	case <-c.done:
		return c.err
	default:
	}
	return c.nc.PublishRequest(c.subject, c.inbox, data)
}

func (c *natsConn) Close() error {
	c.fail(errConnClosed)
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.nc.Close()
	return nil
}
