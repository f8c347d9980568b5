// Package dispatch fans quote updates out to downstream subscribers.
package dispatch

import (
	"log/slog"

	"github.com/dmaher/quotehub/internal/model"
	"github.com/dmaher/quotehub/internal/registry"
)

// Dispatcher pushes quotes to every subscriber registered for a
// symbol. Delivery failures are isolated per subscriber.
type Dispatcher struct {
	reg    *registry.Registry
	logger *slog.Logger
}

// New creates a Dispatcher.
func New(reg *registry.Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{reg: reg, logger: logger}
}

// Publish delivers a quote to each current subscriber of its symbol.
// An empty subscriber set is expected after an unsubscribe races an
// in-flight upstream message; it is logged, not an error.
func (d *Dispatcher) Publish(symbol string, q model.Quote) {
	subs := d.reg.SubscribersOf(symbol)
	if len(subs) == 0 {
		d.logger.Debug("quote with no subscribers", "symbol", symbol)
		return
	}

	for _, sub := range subs {
		if err := sub.SendQuote(q); err != nil {
			d.logger.Warn("quote delivery failed",
				"symbol", symbol,
				"subscriber", sub.ID(),
				"error", err,
			)
			// Keep delivering to the rest.
		}
	}
}

// PublishFeedStatus notifies every registered subscriber of an
// upstream connect/disconnect transition.
func (d *Dispatcher) PublishFeedStatus(connected bool) {
	subs := d.reg.AllSubscribers()
	d.logger.Info("broadcasting feed status",
		"connected", connected,
		"subscribers", len(subs),
	)
	for _, sub := range subs {
		sub.SendFeedStatus(connected)
	}
}
