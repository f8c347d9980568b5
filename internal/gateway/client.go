package gateway

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dmaher/quotehub/internal/model"
)

// ErrSendBufferFull indicates a slow consumer whose outbound queue is
// saturated. The event is dropped; the connection stays open.
var ErrSendBufferFull = errors.New("send buffer full")

const (
	clientWriteTimeout = 10 * time.Second
	clientPingInterval = 30 * time.Second
)

// Client is one downstream WebSocket subscriber. It implements
// registry.Subscriber: the dispatcher pushes quotes into its buffered
// send queue, and a single write pump serializes all writes to the
// connection.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan Event
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, sendBufferSize int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if sendBufferSize <= 0 {
		sendBufferSize = 256
	}
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan Event, sendBufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// ID returns the client's unique handle.
func (c *Client) ID() string { return c.id }

// SendQuote queues a quote update. Never blocks: a saturated queue
// drops the event and reports ErrSendBufferFull.
func (c *Client) SendQuote(q model.Quote) error {
	return c.enqueue(Event{
		Type:   EventQuoteUpdate,
		Symbol: q.Symbol,
		Quote:  &q,
	})
}

// SendFeedStatus notifies the client of an upstream feed transition.
func (c *Client) SendFeedStatus(connected bool) {
	eventType := EventMarketDataDisconnected
	if connected {
		eventType = EventMarketDataConnected
	}
	if err := c.enqueue(Event{Type: eventType}); err != nil {
		c.logger.Warn("feed status event dropped",
			"client", c.id,
			"error", err,
		)
	}
}

// SendEvent queues an arbitrary event.
func (c *Client) SendEvent(ev Event) error {
	return c.enqueue(ev)
}

func (c *Client) enqueue(ev Event) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}

	select {
	case c.send <- ev:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close shuts the write pump down and closes the connection. Safe to
// call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump serializes writes to the connection: queued events plus
// periodic pings. Runs until Close or a write failure.
func (c *Client) writePump() {
	ticker := time.NewTicker(clientPingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Debug("client write failed",
					"client", c.id,
					"error", err,
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
