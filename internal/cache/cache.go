// Package cache holds the last known quote per symbol.
//
// Writes are field-level merges: trade events update price/volume
// without clearing bid/ask state from earlier quote events, and vice
// versa. Each merge is a single atomic read-modify-write under the
// symbol's shard lock, so concurrent trade and quote updates for the
// same symbol cannot lose fields.
package cache

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/dmaher/quotehub/internal/model"
)

const shardCount = 32

// Cache is a sharded last-value quote store. Unrelated symbols hash to
// different shards and do not contend.
type Cache struct {
	shards [shardCount]shard
}

type shard struct {
	mu     sync.RWMutex
	quotes map[string]model.Quote
}

// New creates an empty cache.
func New() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i].quotes = make(map[string]model.Quote)
	}
	return c
}

func (c *Cache) shardFor(symbol string) *shard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return &c.shards[h.Sum32()%shardCount]
}

// Update atomically applies fn to the current quote for symbol (or a
// zero-value quote if absent), stores the result, and returns it.
func (c *Cache) Update(symbol string, fn func(*model.Quote)) model.Quote {
	s := c.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.quotes[symbol]
	q.Symbol = symbol
	fn(&q)
	s.quotes[symbol] = q
	return q
}

// Get returns the cached quote for symbol, if any.
func (c *Cache) Get(symbol string) (model.Quote, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[symbol]
	return q, ok
}

// Len returns the number of cached symbols.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		c.shards[i].mu.RLock()
		n += len(c.shards[i].quotes)
		c.shards[i].mu.RUnlock()
	}
	return n
}

// ApplyTrade merges a live trade event: last price, cumulative volume.
func (c *Cache) ApplyTrade(symbol string, price float64, size int64, ts time.Time) model.Quote {
	return c.Update(symbol, func(q *model.Quote) {
		q.Price = price
		q.Volume += size
		q.Timestamp = ts
		q.DataSource = model.SourceLiveFeed
		recomputeChange(q)
	})
}

// ApplyQuote merges a live quote event: bid/ask prices and sizes.
func (c *Cache) ApplyQuote(symbol string, bid, ask, bidSize, askSize float64, ts time.Time) model.Quote {
	return c.Update(symbol, func(q *model.Quote) {
		q.BidPrice = bid
		q.AskPrice = ask
		q.BidSize = bidSize
		q.AskSize = askSize
		q.Timestamp = ts
		q.DataSource = model.SourceLiveFeed
	})
}

// ApplySnapshot merges an enrichment snapshot. Live data always wins:
// a field already populated by the feed is never overwritten, since the
// snapshot was fetched before any event that raced with it. Only gaps
// are filled.
func (c *Cache) ApplySnapshot(snap model.Quote) model.Quote {
	return c.Update(snap.Symbol, func(q *model.Quote) {
		fillIfZero(&q.Price, snap.Price)
		fillIfZero(&q.BidPrice, snap.BidPrice)
		fillIfZero(&q.AskPrice, snap.AskPrice)
		fillIfZero(&q.BidSize, snap.BidSize)
		fillIfZero(&q.AskSize, snap.AskSize)
		fillIfZero(&q.DayHigh, snap.DayHigh)
		fillIfZero(&q.DayLow, snap.DayLow)
		fillIfZero(&q.PreviousClose, snap.PreviousClose)
		if q.Volume == 0 {
			q.Volume = snap.Volume
		}
		if q.Timestamp.IsZero() {
			q.Timestamp = snap.Timestamp
		}
		if q.DataSource == "" {
			q.DataSource = snap.DataSource
		}
		recomputeChange(q)
	})
}

func fillIfZero(dst *float64, v float64) {
	if *dst == 0 {
		*dst = v
	}
}

// recomputeChange derives change/changePercent from the last price and
// previous close, when both are known.
func recomputeChange(q *model.Quote) {
	if q.Price == 0 || q.PreviousClose == 0 {
		return
	}
	q.Change = q.Price - q.PreviousClose
	q.ChangePercent = q.Change / q.PreviousClose * 100
}
