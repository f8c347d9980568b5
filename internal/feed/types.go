package feed

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("feed not connected")
	ErrStaleConnection = errors.New("connection stale")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps raw frame bytes with a receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from the WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Record kinds the upstream feed delivers. Every inbound frame is a
// JSON array of records, each tagged with a "T" discriminator.
const (
	kindAuthSuccess = "auth-success"
	kindAuthError   = "auth-error"
	kindSuccess     = "success"
	kindError       = "error"
	kindQuote       = "quote"
	kindTrade       = "trade"
	kindSubAck      = "subscription-ack"
)

// envelope carries just the discriminator, decoded first to pick the
// concrete record type.
type envelope struct {
	Type string `json:"T"`
}

// controlRecord is an auth/command acknowledgement or provider error.
// Provider errors are informational; they never terminate the loop.
type controlRecord struct {
	Type    string `json:"T"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"msg,omitempty"`
}

// quoteRecord is a live NBBO update for one symbol.
type quoteRecord struct {
	Type      string    `json:"T"`
	Symbol    string    `json:"S"`
	BidPrice  float64   `json:"bp"`
	AskPrice  float64   `json:"ap"`
	BidSize   float64   `json:"bs"`
	AskSize   float64   `json:"as"`
	Timestamp time.Time `json:"t"`
}

// tradeRecord is a live trade print for one symbol.
type tradeRecord struct {
	Type      string    `json:"T"`
	Symbol    string    `json:"S"`
	Price     float64   `json:"p"`
	Size      int64     `json:"s"`
	Timestamp time.Time `json:"t"`
}

// subAckRecord confirms the current upstream subscription set.
type subAckRecord struct {
	Type   string   `json:"T"`
	Quotes []string `json:"quotes"`
	Trades []string `json:"trades"`
}

// authFrame is the first outbound message after connecting.
type authFrame struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// commandFrame subscribes or unsubscribes symbols on both the quote
// and trade channels.
type commandFrame struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Quotes []string `json:"quotes"`
	Trades []string `json:"trades"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // Feed WebSocket URL
	PingTimeout  time.Duration // Max quiet time (no frames or pongs) before the connection is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   10000,
	}
}

// ConnectorConfig configures the upstream feed connector.
type ConnectorConfig struct {
	URL            string        // Feed WebSocket URL
	Key            string        // Provider API key
	Secret         string        // Provider API secret
	ReconnectDelay time.Duration // Fixed wait between reconnect attempts
	PingTimeout    time.Duration // Max quiet time before the client reports staleness
	WriteTimeout   time.Duration // Passed through to the client
	BufferSize     int           // Client message buffer size
}

// DefaultConnectorConfig returns sensible defaults.
func DefaultConnectorConfig() ConnectorConfig {
	return ConnectorConfig{
		ReconnectDelay: 5 * time.Second,
		PingTimeout:    60 * time.Second,
		WriteTimeout:   5 * time.Second,
		BufferSize:     10000,
	}
}
