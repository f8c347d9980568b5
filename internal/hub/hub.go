// Package hub is the public entry point downstream connection
// management calls into. It composes the registry, cache, feed
// connector, and enrichment resolver, and enforces the upstream
// reference-counting invariant: one upstream subscribe per 0 to 1
// subscriber transition, one unsubscribe per 1 to 0.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmaher/quotehub/internal/cache"
	"github.com/dmaher/quotehub/internal/model"
	"github.com/dmaher/quotehub/internal/registry"
)

// ErrInvalidSymbol rejects blank or whitespace-only symbols.
var ErrInvalidSymbol = errors.New("invalid symbol")

// FeedControl is the slice of the upstream connector the hub drives.
type FeedControl interface {
	SubscribeUpstream(symbols []string) error
	UnsubscribeUpstream(symbols []string) error
	IsConnected() bool
}

// Enricher resolves an initial snapshot for a cold symbol.
type Enricher interface {
	Resolve(ctx context.Context, symbol string) (model.Quote, error)
}

// Hub multiplexes downstream subscribers onto upstream symbol
// subscriptions.
type Hub struct {
	reg      *registry.Registry
	cache    *cache.Cache
	feed     FeedControl
	enricher Enricher
	logger   *slog.Logger

	enrichTimeout time.Duration
}

// Option configures a Hub.
type Option func(*Hub)

// WithEnrichTimeout bounds each cold-start enrichment attempt.
func WithEnrichTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.enrichTimeout = d
	}
}

// New creates a Hub.
func New(
	reg *registry.Registry,
	qc *cache.Cache,
	feed FeedControl,
	enricher Enricher,
	logger *slog.Logger,
	opts ...Option,
) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		reg:           reg,
		cache:         qc,
		feed:          feed,
		enricher:      enricher,
		logger:        logger,
		enrichTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers sub for a symbol. On the symbol's first
// subscriber an upstream subscribe command is issued. The subscriber
// receives an initial snapshot: immediately from the cache when one
// exists, otherwise asynchronously once enrichment resolves. A failed
// enrichment delivers nothing; the subscriber waits for live data.
func (h *Hub) Subscribe(symbol string, sub registry.Subscriber) error {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return ErrInvalidSymbol
	}

	first := h.reg.Add(symbol, sub)
	h.logger.Debug("subscriber added",
		"symbol", symbol,
		"subscriber", sub.ID(),
		"first", first,
	)

	if first && h.feed.IsConnected() {
		if err := h.feed.SubscribeUpstream([]string{symbol}); err != nil {
			// Not fatal: the reconnect path resubscribes from the
			// registry, which already holds this symbol.
			h.logger.Warn("upstream subscribe failed",
				"symbol", symbol,
				"error", err,
			)
		}
	}

	if q, ok := h.cache.Get(symbol); ok {
		if err := sub.SendQuote(q); err != nil {
			h.logger.Warn("initial snapshot delivery failed",
				"symbol", symbol,
				"subscriber", sub.ID(),
				"error", err,
			)
		}
		return nil
	}

	go h.enrichAndPush(symbol, sub)
	return nil
}

// SubscribeMultiple registers sub for each of the given symbols.
// Invalid symbols are skipped; the first error other than validation
// is returned after attempting the rest.
func (h *Hub) SubscribeMultiple(symbols []string, sub registry.Subscriber) error {
	var firstErr error
	for _, symbol := range symbols {
		if err := h.Subscribe(symbol, sub); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Unsubscribe removes sub's registration for a symbol. When the
// symbol's last subscriber leaves, an upstream unsubscribe is issued.
func (h *Hub) Unsubscribe(symbol, subID string) error {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return ErrInvalidSymbol
	}

	nowEmpty := h.reg.Remove(symbol, subID)
	h.logger.Debug("subscriber removed",
		"symbol", symbol,
		"subscriber", subID,
		"empty", nowEmpty,
	)

	if nowEmpty && h.feed.IsConnected() {
		if err := h.feed.UnsubscribeUpstream([]string{symbol}); err != nil {
			h.logger.Warn("upstream unsubscribe failed",
				"symbol", symbol,
				"error", err,
			)
		}
	}
	return nil
}

// UnsubscribeAll removes every registration held by a subscriber.
// Used on downstream disconnect.
func (h *Hub) UnsubscribeAll(subID string) {
	symbols := h.reg.SymbolsOf(subID)
	for _, symbol := range symbols {
		if err := h.Unsubscribe(symbol, subID); err != nil {
			h.logger.Warn("cleanup unsubscribe failed",
				"symbol", symbol,
				"subscriber", subID,
				"error", err,
			)
		}
	}
	if len(symbols) > 0 {
		h.logger.Info("subscriber cleaned up",
			"subscriber", subID,
			"symbols", len(symbols),
		)
	}
}

// IsConnected reports upstream transport state.
func (h *Hub) IsConnected() bool {
	return h.feed.IsConnected()
}

// Status is a read-only operational snapshot.
type Status struct {
	Connected      bool           `json:"connected"`
	TrackedSymbols int            `json:"trackedSymbols"`
	CachedQuotes   int            `json:"cachedQuotes"`
	Subscribers    map[string]int `json:"subscribers"`
}

// Status returns current hub state for operational visibility.
func (h *Hub) Status() Status {
	counts := h.reg.Counts()
	return Status{
		Connected:      h.feed.IsConnected(),
		TrackedSymbols: len(counts),
		CachedQuotes:   h.cache.Len(),
		Subscribers:    counts,
	}
}

// enrichAndPush resolves a cold-start snapshot and delivers it to the
// one subscriber that triggered it. Concurrent triggers for the same
// symbol share a single resolution inside the enricher.
func (h *Hub) enrichAndPush(symbol string, sub registry.Subscriber) {
	ctx, cancel := context.WithTimeout(context.Background(), h.enrichTimeout)
	defer cancel()

	q, err := h.enricher.Resolve(ctx, symbol)
	if err != nil {
		h.logger.Warn("cold-start enrichment failed",
			"symbol", symbol,
			"subscriber", sub.ID(),
			"error", err,
		)
		return
	}

	if err := sub.SendQuote(q); err != nil {
		h.logger.Warn("enriched snapshot delivery failed",
			"symbol", symbol,
			"subscriber", sub.ID(),
			"error", err,
		)
	}
}
