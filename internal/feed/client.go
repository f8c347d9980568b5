package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single WebSocket connection to the feed provider. The
// connector discards and replaces the whole Client on failure rather
// than reusing it.
type Client interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// Messages returns a channel of raw inbound frames, each with a
	// local receive timestamp.
	Messages() <-chan TimestampedMessage

	// Errors returns a channel of connection errors.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

const dialTimeout = 10 * time.Second

// client watches liveness through the read deadline: every inbound
// frame or pong pushes the deadline forward, so a quiet connection
// times out as stale without a separate staleness timer. The stream
// normally carries a steady flow of quote/trade frames; the keepalive
// ping only matters when every subscribed symbol goes silent.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	inbound chan TimestampedMessage
	errs    chan error
	done    chan struct{}

	// Serializes data writes. Control frames go through WriteControl,
	// which gorilla allows concurrently with WriteMessage.
	writeMu sync.Mutex

	stateMu   sync.RWMutex
	connected bool
	closed    bool
}

// NewClient creates a new WebSocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &client{
		cfg:     cfg,
		logger:  logger,
		inbound: make(chan TimestampedMessage, cfg.BufferSize),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Connect dials the feed and starts the read and keepalive loops.
func (c *client) Connect(ctx context.Context) error {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return ErrAlreadyClosed
	}
	c.stateMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout))
	})
	// Some providers ping from their side too; answer and count it
	// as liveness.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout))
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(c.cfg.WriteTimeout),
		)
	})

	c.stateMu.Lock()
	c.conn = conn
	c.connected = true
	c.stateMu.Unlock()

	go c.readLoop(conn)
	go c.keepaliveLoop(conn)

	c.logger.Debug("stream connected", "url", c.cfg.URL)
	return nil
}

// Close gracefully closes the connection. Safe to call more than once.
func (c *client) Close() error {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.stateMu.Unlock()

	close(c.done)

	if conn == nil {
		return nil
	}
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteTimeout),
	)
	return conn.Close()
}

// Send writes one text frame.
func (c *client) Send(data []byte) error {
	c.stateMu.RLock()
	conn, up := c.conn, c.connected
	c.stateMu.RUnlock()

	if !up {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the inbound frame channel.
func (c *client) Messages() <-chan TimestampedMessage {
	return c.inbound
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errs
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connected
}

// readLoop reads frames until the connection fails or is closed. Each
// frame refreshes the read deadline; a full inbound buffer drops the
// frame rather than stalling the connection.
func (c *client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			c.fail(err)
			return
		}

		conn.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout))

		select {
		case c.inbound <- TimestampedMessage{Data: data, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		default:
			c.logger.Warn("inbound buffer full, dropping frame", "bytes", len(data))
		}
	}
}

// fail marks the client disconnected and reports the error unless the
// client was closed deliberately. Read-deadline expiry means nothing
// arrived for a full PingTimeout and is surfaced as staleness.
func (c *client) fail(err error) {
	c.stateMu.Lock()
	wasClosed := c.closed
	c.connected = false
	c.stateMu.Unlock()

	if wasClosed {
		return
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		err = fmt.Errorf("%w: nothing received for %s", ErrStaleConnection, c.cfg.PingTimeout)
	}

	select {
	case c.errs <- err:
	default:
	}
}

// keepaliveLoop pings the server so the pong handler keeps pushing the
// read deadline forward while the stream is quiet. A failed ping write
// just stops the loop; the read loop reports the connection failure.
func (c *client) keepaliveLoop(conn *websocket.Conn) {
	interval := c.cfg.PingTimeout / 3
	if interval <= 0 {
		interval = 20 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("keepalive ping failed", "error", err)
				return
			}
		}
	}
}
