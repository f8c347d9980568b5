package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmaher/quotehub/internal/cache"
	"github.com/dmaher/quotehub/internal/dispatch"
	"github.com/dmaher/quotehub/internal/model"
	"github.com/dmaher/quotehub/internal/registry"
)

// fakeClient is a scriptable in-memory Client.
type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	closed     bool
	sent       [][]byte
	connectErr error

	messages chan TimestampedMessage
	errors   chan error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		messages: make(chan TimestampedMessage, 100),
		errors:   make(chan error, 1),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.connected = false
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	cp := append([]byte(nil), data...)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeClient) Messages() <-chan TimestampedMessage { return f.messages }
func (f *fakeClient) Errors() <-chan error                { return f.errors }

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// deliver injects a raw frame as if read from the wire.
func (f *fakeClient) deliver(frame string) {
	f.messages <- TimestampedMessage{Data: []byte(frame), ReceivedAt: time.Now()}
}

// fail injects a transport error, ending the receive loop.
func (f *fakeClient) fail(err error) {
	f.errors <- err
}

func (f *fakeClient) sentFrames() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, data := range f.sent {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// collector implements registry.Subscriber and records pushes.
type collector struct {
	id string

	mu       sync.Mutex
	quotes   []model.Quote
	statuses []bool
}

func (c *collector) ID() string { return c.id }

func (c *collector) SendQuote(q model.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes = append(c.quotes, q)
	return nil
}

func (c *collector) SendFeedStatus(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = append(c.statuses, connected)
}

func (c *collector) received() []model.Quote {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Quote(nil), c.quotes...)
}

type harness struct {
	connector *Connector
	reg       *registry.Registry
	cache     *cache.Cache

	// When set, every subsequent dial fails.
	failDial atomic.Bool

	mu      sync.Mutex
	clients []*fakeClient
}

// clientAt waits for the nth client to be dialed.
func (h *harness) clientAt(t *testing.T, n int) *fakeClient {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		if len(h.clients) > n {
			c := h.clients[n]
			h.mu.Unlock()
			return c
		}
		h.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client %d never dialed", n)
	return nil
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	reg := registry.New()
	qc := cache.New()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))

	h := &harness{reg: reg, cache: qc}

	cfg := DefaultConnectorConfig()
	cfg.URL = "wss://feed.test/stream"
	cfg.Key = "test-key"
	cfg.Secret = "test-secret"
	cfg.ReconnectDelay = 10 * time.Millisecond

	h.connector = NewConnector(cfg, reg, qc, dispatch.New(reg, logger), logger, opts...)
	h.connector.newClient = func(ClientConfig, *slog.Logger) Client {
		c := newFakeClient()
		if h.failDial.Load() {
			c.connectErr = errors.New("dial refused")
		}
		h.mu.Lock()
		h.clients = append(h.clients, c)
		h.mu.Unlock()
		return c
	}
	return h
}

// testWriter routes slog output through t.Log.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnector_AuthSentOnConnect(t *testing.T) {
	h := newHarness(t)

	if err := h.connector.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.connector.Stop(context.Background())

	client := h.clientAt(t, 0)
	frames := client.sentFrames()
	if len(frames) != 1 {
		t.Fatalf("got %d frames after connect, want 1 auth frame", len(frames))
	}
	if frames[0]["action"] != "auth" {
		t.Errorf("first frame action = %v, want auth", frames[0]["action"])
	}
	if frames[0]["key"] != "test-key" || frames[0]["secret"] != "test-secret" {
		t.Errorf("auth frame credentials = %v/%v", frames[0]["key"], frames[0]["secret"])
	}
}

func TestConnector_TradeAndQuoteFanOut(t *testing.T) {
	h := newHarness(t)

	if err := h.connector.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.connector.Stop(context.Background())

	h1 := &collector{id: "h1"}
	h2 := &collector{id: "h2"}
	h.reg.Add("AAPL", h1)
	h.reg.Add("AAPL", h2)

	client := h.clientAt(t, 0)
	client.deliver(`[{"T":"trade","S":"AAPL","p":150.00,"s":100,"t":"2024-01-16T14:30:00Z"}]`)

	waitFor(t, "both subscribers to receive the trade", func() bool {
		return len(h1.received()) == 1 && len(h2.received()) == 1
	})

	for _, sub := range []*collector{h1, h2} {
		got := sub.received()[0]
		if got.Price != 150.00 {
			t.Errorf("%s Price = %v, want 150.00", sub.id, got.Price)
		}
		if got.Volume != 100 {
			t.Errorf("%s Volume = %d, want 100", sub.id, got.Volume)
		}
	}

	// A quote event merges bid/ask without erasing the trade fields.
	client.deliver(`[{"T":"quote","S":"AAPL","bp":149.95,"ap":150.05,"bs":3,"as":2,"t":"2024-01-16T14:30:01Z"}]`)

	waitFor(t, "quote event delivery", func() bool {
		return len(h1.received()) == 2
	})

	got := h1.received()[1]
	if got.BidPrice != 149.95 || got.AskPrice != 150.05 {
		t.Errorf("bid/ask = %v/%v, want 149.95/150.05", got.BidPrice, got.AskPrice)
	}
	if got.Price != 150.00 || got.Volume != 100 {
		t.Errorf("trade fields erased by quote: price=%v volume=%d", got.Price, got.Volume)
	}
}

func TestConnector_BatchedRecords(t *testing.T) {
	h := newHarness(t)

	if err := h.connector.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.connector.Stop(context.Background())

	h1 := &collector{id: "h1"}
	h.reg.Add("AAPL", h1)
	h.reg.Add("MSFT", h1)

	client := h.clientAt(t, 0)
	client.deliver(`[
		{"T":"trade","S":"AAPL","p":150.00,"s":10,"t":"2024-01-16T14:30:00Z"},
		{"T":"trade","S":"MSFT","p":410.00,"s":20,"t":"2024-01-16T14:30:00Z"}
	]`)

	waitFor(t, "both records in the batch to dispatch", func() bool {
		return len(h1.received()) == 2
	})
}

func TestConnector_MalformedAndUnknownRecordsSkipped(t *testing.T) {
	h := newHarness(t)

	if err := h.connector.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.connector.Stop(context.Background())

	h1 := &collector{id: "h1"}
	h.reg.Add("AAPL", h1)

	client := h.clientAt(t, 0)
	// Not an array at all.
	client.deliver(`{"T":"trade"}`)
	// Unknown kind, error control message, then a valid trade: the loop
	// must survive all of them.
	client.deliver(`[
		{"T":"mystery","S":"AAPL"},
		{"T":"error","code":406,"msg":"connection limit exceeded"},
		{"T":"trade","S":"AAPL","p":151.00,"s":5,"t":"2024-01-16T14:30:00Z"}
	]`)

	waitFor(t, "valid trade after garbage", func() bool {
		return len(h1.received()) == 1
	})
	if got := h1.received()[0].Price; got != 151.00 {
		t.Errorf("Price = %v, want 151.00", got)
	}
}

func TestConnector_SubscribeUpstream(t *testing.T) {
	h := newHarness(t)

	if err := h.connector.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.connector.Stop(context.Background())

	if err := h.connector.SubscribeUpstream([]string{"AAPL"}); err != nil {
		t.Fatalf("SubscribeUpstream failed: %v", err)
	}

	client := h.clientAt(t, 0)
	frames := client.sentFrames()
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want auth + subscribe", len(frames))
	}
	sub := frames[1]
	if sub["action"] != "subscribe" {
		t.Errorf("action = %v, want subscribe", sub["action"])
	}
	quotes, _ := sub["quotes"].([]any)
	trades, _ := sub["trades"].([]any)
	if len(quotes) != 1 || quotes[0] != "AAPL" {
		t.Errorf("quotes = %v, want [AAPL]", quotes)
	}
	if len(trades) != 1 || trades[0] != "AAPL" {
		t.Errorf("trades = %v, want [AAPL]", trades)
	}
}

func TestConnector_SendWhileDisconnected(t *testing.T) {
	h := newHarness(t)

	if err := h.connector.SubscribeUpstream([]string{"AAPL"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SubscribeUpstream while down = %v, want ErrNotConnected", err)
	}
}

func TestConnector_ReconnectResubscribesRegistrySymbols(t *testing.T) {
	h := newHarness(t)

	var statusMu sync.Mutex
	var statuses []bool
	h.connector.OnStatusChange(func(connected bool) {
		statusMu.Lock()
		statuses = append(statuses, connected)
		statusMu.Unlock()
	})

	if err := h.connector.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.connector.Stop(context.Background())

	// Three symbols, with A and B held by multiple handles: the
	// resubscription must still contain each exactly once.
	sub1 := &collector{id: "h1"}
	sub2 := &collector{id: "h2"}
	h.reg.Add("A", sub1)
	h.reg.Add("A", sub2)
	h.reg.Add("B", sub1)
	h.reg.Add("B", sub2)
	h.reg.Add("C", sub1)

	client0 := h.clientAt(t, 0)
	client0.fail(errors.New("read: connection reset"))

	client1 := h.clientAt(t, 1)
	waitFor(t, "resubscribe frame on the new connection", func() bool {
		return len(client1.sentFrames()) >= 2
	})

	frames := client1.sentFrames()
	if frames[0]["action"] != "auth" {
		t.Errorf("reconnect first frame = %v, want auth", frames[0]["action"])
	}
	sub := frames[1]
	if sub["action"] != "subscribe" {
		t.Fatalf("reconnect second frame = %v, want subscribe", sub["action"])
	}

	raw, _ := sub["quotes"].([]any)
	var symbols []string
	for _, v := range raw {
		symbols = append(symbols, v.(string))
	}
	sort.Strings(symbols)
	want := []string{"A", "B", "C"}
	if len(symbols) != len(want) {
		t.Fatalf("resubscribed symbols = %v, want %v", symbols, want)
	}
	for i := range want {
		if symbols[i] != want[i] {
			t.Fatalf("resubscribed symbols = %v, want %v", symbols, want)
		}
	}

	// Subscribers observed a disconnect/reconnect transition.
	statusMu.Lock()
	defer statusMu.Unlock()
	if len(statuses) < 3 || statuses[len(statuses)-2] != false || statuses[len(statuses)-1] != true {
		t.Errorf("status transitions = %v, want ... false, true", statuses)
	}
}

func TestConnector_StopCancelsPendingReconnect(t *testing.T) {
	h := newHarness(t)

	if err := h.connector.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Fail the connection, then make every redial fail so the
	// reconnect loop stays pending.
	h.failDial.Store(true)

	client0 := h.clientAt(t, 0)
	client0.fail(errors.New("read: connection reset"))

	// Stop must cancel the retry delay and return promptly.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.connector.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Idempotent.
	if err := h.connector.Stop(ctx); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

func TestConnector_QuoteSinkTap(t *testing.T) {
	sink := &captureSink{}
	h := newHarness(t, WithQuoteSink(sink))

	if err := h.connector.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.connector.Stop(context.Background())

	client := h.clientAt(t, 0)
	client.deliver(`[{"T":"trade","S":"AAPL","p":150.00,"s":100,"t":"2024-01-16T14:30:00Z"}]`)

	waitFor(t, "sink to receive the quote", func() bool {
		return len(sink.all()) == 1
	})
	if got := sink.all()[0]; got.Symbol != "AAPL" || got.Price != 150.00 {
		t.Errorf("sink quote = %+v, want AAPL @150.00", got)
	}
}

type captureSink struct {
	mu     sync.Mutex
	quotes []model.Quote
}

func (s *captureSink) Enqueue(q model.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, q)
}

func (s *captureSink) all() []model.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Quote(nil), s.quotes...)
}
