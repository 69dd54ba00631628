// Package conn owns the single websocket to the upstream push feed.
//
// A Client is a dumb pipe: it dials, serializes writes, pumps inbound
// frames onto a channel, and reports failures on an error channel. All
// subscription and reconnect policy lives above it in the engine.
package conn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single websocket connection.
type Client interface {
	// Connect establishes the websocket connection.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection. A closed client cannot
	// be reconnected; the engine creates a fresh one per attempt.
	Close() error

	// Send writes one text frame to the connection.
	Send(data []byte) error

	// Ping writes a transport-level ping control frame.
	Ping() error

	// Messages returns the channel of inbound frames.
	Messages() <-chan Message

	// Errors returns the channel of connection failures.
	Errors() <-chan error

	// IsConnected returns the current connection state.
	IsConnected() bool
}

// client implements the Client interface over gorilla/websocket.
type client struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	messages chan Message
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu           sync.RWMutex
	connected    bool
	closed       bool
	lastActivity time.Time
}

// NewClient creates a websocket client.
func NewClient(cfg Config, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan Message, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect dials the upstream and starts the read and watchdog loops.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastActivity = time.Now()
	c.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	go c.readLoop()
	if c.cfg.StaleAfter > 0 {
		go c.watchdog()
	}

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	return nil
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}
	return nil
}

// Send writes one text frame.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Ping writes a transport ping control frame.
func (c *client) Ping() error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	return conn.WriteControl(
		websocket.PingMessage,
		[]byte("keepalive"),
		time.Now().Add(c.cfg.WriteTimeout),
	)
}

func (c *client) Messages() <-chan Message {
	return c.messages
}

func (c *client) Errors() <-chan error {
	return c.errors
}

func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// reportError delivers err unless Close already ran.
func (c *client) reportError(err error) {
	select {
	case <-c.done:
	default:
		select {
		case c.errors <- err:
		default:
		}
	}
}

// readLoop pumps inbound frames onto the messages channel.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			c.reportError(err)
			return
		}

		c.touch()

		msg := Message{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("message buffer full, dropping frame")
		}
	}
}

// watchdog declares the connection dead when no traffic of any kind
// has arrived within StaleAfter. The engine's heartbeat generates
// traffic on an idle but healthy socket, so silence means half-open.
func (c *client) watchdog() {
	ticker := time.NewTicker(c.cfg.StaleAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			last := c.lastActivity
			c.mu.RUnlock()

			if time.Since(last) > c.cfg.StaleAfter {
				c.logger.Warn("no traffic received, connection stale",
					"last_activity", last,
					"stale_after", c.cfg.StaleAfter,
				)
				c.reportError(ErrStale)
				return
			}
		}
	}
}
