// Package registry tracks which downstream subscribers want which
// symbols. It is the source of truth for upstream subscription state:
// a symbol needs an upstream subscription exactly while it has at
// least one subscriber.
package registry

import (
	"hash/fnv"
	"sync"

	"github.com/dmaher/quotehub/internal/model"
)

// Subscriber is a downstream handle quotes are pushed to. Implementations
// must be safe for concurrent use; SendQuote failures are isolated by
// the dispatcher and must not panic.
type Subscriber interface {
	ID() string
	SendQuote(model.Quote) error
	SendFeedStatus(connected bool)
}

const shardCount = 32

// Registry is a sharded bidirectional mapping between symbols and
// subscribers. Both sides of an edge are updated under their shard
// locks, held together in a fixed order (symbol side, then handle
// side), so the two maps never disagree about an edge.
type Registry struct {
	symbols [shardCount]symbolShard
	handles [shardCount]handleShard
}

type symbolShard struct {
	mu   sync.RWMutex
	subs map[string]map[string]Subscriber // symbol -> subscriber ID -> handle
}

type handleShard struct {
	mu      sync.RWMutex
	entries map[string]*handleEntry // subscriber ID -> entry
}

type handleEntry struct {
	sub     Subscriber
	symbols map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.symbols {
		r.symbols[i].subs = make(map[string]map[string]Subscriber)
	}
	for i := range r.handles {
		r.handles[i].entries = make(map[string]*handleEntry)
	}
	return r
}

func shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

// Add inserts the (symbol, subscriber) edge and reports whether this
// was the symbol's first subscriber (the 0->1 transition that requires
// an upstream subscribe). Re-adding an existing edge reports false.
func (r *Registry) Add(symbol string, sub Subscriber) (first bool) {
	ss := &r.symbols[shardIndex(symbol)]
	hs := &r.handles[shardIndex(sub.ID())]

	ss.mu.Lock()
	defer ss.mu.Unlock()
	hs.mu.Lock()
	defer hs.mu.Unlock()

	inner := ss.subs[symbol]
	if inner == nil {
		inner = make(map[string]Subscriber)
		ss.subs[symbol] = inner
	}
	if _, exists := inner[sub.ID()]; exists {
		return false
	}
	first = len(inner) == 0
	inner[sub.ID()] = sub

	entry := hs.entries[sub.ID()]
	if entry == nil {
		entry = &handleEntry{sub: sub, symbols: make(map[string]struct{})}
		hs.entries[sub.ID()] = entry
	}
	entry.symbols[symbol] = struct{}{}

	return first
}

// Remove deletes the (symbol, subscriberID) edge and reports whether
// the symbol now has zero subscribers (the 1->0 transition that
// requires an upstream unsubscribe). Removing a missing edge reports
// false.
func (r *Registry) Remove(symbol, subID string) (nowEmpty bool) {
	ss := &r.symbols[shardIndex(symbol)]
	hs := &r.handles[shardIndex(subID)]

	ss.mu.Lock()
	defer ss.mu.Unlock()
	hs.mu.Lock()
	defer hs.mu.Unlock()

	inner := ss.subs[symbol]
	if inner == nil {
		return false
	}
	if _, exists := inner[subID]; !exists {
		return false
	}
	delete(inner, subID)
	if len(inner) == 0 {
		delete(ss.subs, symbol)
		nowEmpty = true
	}

	if entry := hs.entries[subID]; entry != nil {
		delete(entry.symbols, symbol)
		if len(entry.symbols) == 0 {
			delete(hs.entries, subID)
		}
	}

	return nowEmpty
}

// SymbolsOf returns a snapshot of the symbols a subscriber holds.
// Used on disconnect: each returned symbol must then be passed through
// Remove so 1->0 transitions are detected per symbol.
func (r *Registry) SymbolsOf(subID string) []string {
	hs := &r.handles[shardIndex(subID)]
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	entry := hs.entries[subID]
	if entry == nil {
		return nil
	}
	out := make([]string, 0, len(entry.symbols))
	for sym := range entry.symbols {
		out = append(out, sym)
	}
	return out
}

// SubscribersOf returns a snapshot of the subscribers for a symbol.
func (r *Registry) SubscribersOf(symbol string) []Subscriber {
	ss := &r.symbols[shardIndex(symbol)]
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	inner := ss.subs[symbol]
	if len(inner) == 0 {
		return nil
	}
	out := make([]Subscriber, 0, len(inner))
	for _, sub := range inner {
		out = append(out, sub)
	}
	return out
}

// ActiveSymbols returns every symbol with at least one subscriber.
// The connector resubscribes exactly this set after a reconnect.
func (r *Registry) ActiveSymbols() []string {
	var out []string
	for i := range r.symbols {
		ss := &r.symbols[i]
		ss.mu.RLock()
		for sym := range ss.subs {
			out = append(out, sym)
		}
		ss.mu.RUnlock()
	}
	return out
}

// AllSubscribers returns every registered subscriber, deduplicated.
func (r *Registry) AllSubscribers() []Subscriber {
	var out []Subscriber
	for i := range r.handles {
		hs := &r.handles[i]
		hs.mu.RLock()
		for _, entry := range hs.entries {
			out = append(out, entry.sub)
		}
		hs.mu.RUnlock()
	}
	return out
}

// Counts returns the subscriber count per symbol, for status reporting.
func (r *Registry) Counts() map[string]int {
	out := make(map[string]int)
	for i := range r.symbols {
		ss := &r.symbols[i]
		ss.mu.RLock()
		for sym, inner := range ss.subs {
			out[sym] = len(inner)
		}
		ss.mu.RUnlock()
	}
	return out
}
