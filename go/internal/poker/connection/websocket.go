package connection

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketConfig holds configuration for the WebSocket transport
type WebSocketConfig struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
}

// DefaultWebSocketConfig returns default WebSocket configuration for url
func DefaultWebSocketConfig(url string) WebSocketConfig {
	return WebSocketConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   1 << 20, // room_state grows with history
		ReadBufferSize:   4096,
		WriteBufferSize:  1024,
	}
}

// WebSocketDialer connects to the authority over a WebSocket.
type WebSocketDialer struct {
	config WebSocketConfig
	dialer *websocket.Dialer
}

func NewWebSocketDialer(config WebSocketConfig) *WebSocketDialer {
	return &WebSocketDialer{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.config.URL, d.config.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s (%s): %w", d.config.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", d.config.URL, err)
	}

	c := &wsConn{
		conn:   conn,
		config: d.config,
		done:   make(chan struct{}),
	}

	if d.config.MaxMessageSize > 0 {
		conn.SetReadLimit(d.config.MaxMessageSize)
	}
	c.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	if d.config.PingInterval > 0 {
		go c.pingLoop()
	}

	log.Debug().Str("url", d.config.URL).Msg("WebSocket connection established")
	return c, nil
}

type wsConn struct {
	conn      *websocket.Conn
	config    WebSocketConfig
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("unexpected WebSocket close")
			}
			return nil, err
		}
		c.extendReadDeadline()
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	if c.config.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) extendReadDeadline() {
	if c.config.ReadTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
}

// pingLoop keeps the link alive. WriteControl is safe alongside the write pump.
func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}
