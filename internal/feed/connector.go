package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmaher/quotehub/internal/cache"
	"github.com/dmaher/quotehub/internal/dispatch"
	"github.com/dmaher/quotehub/internal/model"
	"github.com/dmaher/quotehub/internal/registry"
)

// QuoteSink receives every merged live quote, in addition to fan-out.
// The recorder implements this; nil disables the tap.
type QuoteSink interface {
	Enqueue(model.Quote)
}

// Connector owns the single upstream streaming connection: connect,
// authenticate, receive loop, subscribe/unsubscribe commands, and
// reconnection with resubscription. The transport handle is never
// exposed; all sends go through connector methods that check liveness.
type Connector struct {
	cfg        ConnectorConfig
	reg        *registry.Registry
	cache      *cache.Cache
	dispatcher *dispatch.Dispatcher
	sink       QuoteSink
	logger     *slog.Logger

	// Replaceable for tests.
	newClient func(ClientConfig, *slog.Logger) Client

	// Replaceable transport handle, guarded by mu.
	mu     sync.Mutex
	client Client

	statusMu  sync.Mutex
	statusFns []func(connected bool)

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// Option configures a Connector.
type Option func(*Connector)

// WithQuoteSink taps every merged live quote into sink.
func WithQuoteSink(sink QuoteSink) Option {
	return func(c *Connector) {
		c.sink = sink
	}
}

// NewConnector creates an upstream feed connector.
func NewConnector(
	cfg ConnectorConfig,
	reg *registry.Registry,
	qc *cache.Cache,
	dispatcher *dispatch.Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Connector {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connector{
		cfg:        cfg,
		reg:        reg,
		cache:      qc,
		dispatcher: dispatcher,
		logger:     logger,
		newClient:  NewClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnStatusChange registers a listener for connect/disconnect
// transitions. Must be called before Start.
func (c *Connector) OnStatusChange(fn func(connected bool)) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.statusFns = append(c.statusFns, fn)
}

// Start opens the connection, launches the receive loop, and sends the
// authentication message. On failure the connection is not retried
// here; the caller decides between failing fast and calling
// ScheduleReconnect.
func (c *Connector) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		return fmt.Errorf("connect feed: %w", err)
	}
	return nil
}

// ScheduleReconnect begins the fixed-delay reconnect loop in the
// background. Used after a failed Start.
func (c *Connector) ScheduleReconnect() {
	c.wg.Add(1)
	go c.reconnectLoop()
}

// Stop cancels the receive loop and any pending reconnect delay,
// closes the transport, and waits for in-flight work to finish.
// Idempotent.
func (c *Connector) Stop(ctx context.Context) error {
	c.mu.Lock()
	alreadyStopped := c.stopped
	c.stopped = true
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if client != nil {
		client.Close()
	}
	if alreadyStopped {
		return nil
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("feed connector stopped")
		return nil
	case <-ctx.Done():
		c.logger.Warn("feed connector stop timed out")
		return ctx.Err()
	}
}

// IsConnected reports whether the upstream transport is currently live.
func (c *Connector) IsConnected() bool {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	return client != nil && client.IsConnected()
}

// SubscribeUpstream sends a subscribe command for the given symbols on
// both the quote and trade channels. No-op error if the transport is
// down; the reconnect path resubscribes the full registry set anyway.
func (c *Connector) SubscribeUpstream(symbols []string) error {
	return c.sendCommand("subscribe", symbols)
}

// UnsubscribeUpstream sends an unsubscribe command for the given symbols.
func (c *Connector) UnsubscribeUpstream(symbols []string) error {
	return c.sendCommand("unsubscribe", symbols)
}

func (c *Connector) sendCommand(action string, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}

	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(commandFrame{
		Action: action,
		Quotes: symbols,
		Trades: symbols,
	})
	if err != nil {
		return fmt.Errorf("marshal %s command: %w", action, err)
	}

	if err := client.Send(data); err != nil {
		return fmt.Errorf("send %s command: %w", action, err)
	}

	c.logger.Debug("sent upstream command", "action", action, "symbols", symbols)
	return nil
}

// connect dials a fresh client, authenticates, and starts its receive
// loop.
func (c *Connector) connect() error {
	clientCfg := ClientConfig{
		URL:          c.cfg.URL,
		PingTimeout:  c.cfg.PingTimeout,
		WriteTimeout: c.cfg.WriteTimeout,
		BufferSize:   c.cfg.BufferSize,
	}

	client := c.newClient(clientCfg, c.logger)
	if err := client.Connect(c.ctx); err != nil {
		return err
	}

	auth, err := json.Marshal(authFrame{
		Action: "auth",
		Key:    c.cfg.Key,
		Secret: c.cfg.Secret,
	})
	if err != nil {
		client.Close()
		return fmt.Errorf("marshal auth: %w", err)
	}
	if err := client.Send(auth); err != nil {
		client.Close()
		return fmt.Errorf("send auth: %w", err)
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		client.Close()
		return ErrAlreadyClosed
	}
	c.client = client
	c.mu.Unlock()

	c.wg.Add(1)
	go c.receiveLoop(client)

	c.logger.Info("feed connected", "url", c.cfg.URL)
	c.notifyStatus(true)

	return nil
}

// receiveLoop reads frames from one client until it fails or the
// connector stops. On transport failure the client is discarded and
// the reconnect loop takes over.
func (c *Connector) receiveLoop(client Client) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return

		case err := <-client.Errors():
			c.logger.Warn("feed connection error", "error", err)
			c.handleDisconnect(client)
			return

		case msg, ok := <-client.Messages():
			if !ok {
				c.handleDisconnect(client)
				return
			}
			c.handleFrame(msg.Data)
		}
	}
}

// handleDisconnect discards the failed client, notifies subscribers,
// and begins reconnecting. Subscriber state is untouched: registrations
// survive the outage and resume on reconnect.
func (c *Connector) handleDisconnect(client Client) {
	select {
	case <-c.ctx.Done():
		return
	default:
	}

	client.Close()

	c.mu.Lock()
	if c.client == client {
		c.client = nil
	}
	c.mu.Unlock()

	c.notifyStatus(false)

	c.wg.Add(1)
	go c.reconnectLoop()
}

// reconnectLoop retries indefinitely with a fixed delay until the
// connection is restored or the connector stops. The pending delay is
// cancelled by Stop.
func (c *Connector) reconnectLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}

		c.logger.Info("attempting feed reconnection")

		if err := c.connect(); err != nil {
			c.logger.Warn("feed reconnection failed", "error", err)
			continue
		}

		c.resubscribe()
		return
	}
}

// resubscribe re-issues one deduplicated subscribe command covering
// every symbol that currently has at least one subscriber.
func (c *Connector) resubscribe() {
	symbols := c.reg.ActiveSymbols()
	if len(symbols) == 0 {
		return
	}

	if err := c.SubscribeUpstream(symbols); err != nil {
		c.logger.Warn("resubscription failed", "count", len(symbols), "error", err)
		return
	}
	c.logger.Info("resubscribed after reconnect", "count", len(symbols))
}

// handleFrame decodes one inbound frame: a JSON array of records, each
// dispatched by its "T" discriminator. Malformed frames and records
// are logged and skipped; the loop never aborts on bad input.
func (c *Connector) handleFrame(data []byte) {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		c.logger.Warn("malformed feed frame", "error", err)
		return
	}

	for _, raw := range records {
		c.handleRecord(raw)
	}
}

func (c *Connector) handleRecord(raw json.RawMessage) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("undecodable feed record", "error", err)
		return
	}

	switch env.Type {
	case kindAuthSuccess, kindSuccess:
		var rec controlRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			c.logger.Info("feed control message", "type", rec.Type, "msg", rec.Message)
		}

	case kindAuthError, kindError:
		var rec controlRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			c.logger.Error("feed error message",
				"type", rec.Type,
				"code", rec.Code,
				"msg", rec.Message,
			)
		}

	case kindQuote:
		var rec quoteRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			c.logger.Warn("undecodable quote record", "error", err)
			return
		}
		symbol := model.NormalizeSymbol(rec.Symbol)
		q := c.cache.ApplyQuote(symbol, rec.BidPrice, rec.AskPrice, rec.BidSize, rec.AskSize, rec.Timestamp)
		c.publish(symbol, q)

	case kindTrade:
		var rec tradeRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			c.logger.Warn("undecodable trade record", "error", err)
			return
		}
		symbol := model.NormalizeSymbol(rec.Symbol)
		q := c.cache.ApplyTrade(symbol, rec.Price, rec.Size, rec.Timestamp)
		c.publish(symbol, q)

	case kindSubAck:
		var rec subAckRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			c.logger.Debug("subscription ack",
				"quotes", len(rec.Quotes),
				"trades", len(rec.Trades),
			)
		}

	default:
		c.logger.Debug("skipping unrecognized feed record", "type", env.Type)
	}
}

func (c *Connector) publish(symbol string, q model.Quote) {
	c.dispatcher.Publish(symbol, q)
	if c.sink != nil {
		c.sink.Enqueue(q)
	}
}

func (c *Connector) notifyStatus(connected bool) {
	c.statusMu.Lock()
	fns := append(([]func(bool))(nil), c.statusFns...)
	c.statusMu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}
