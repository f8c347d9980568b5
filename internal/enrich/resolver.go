package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmaher/quotehub/internal/cache"
	"github.com/dmaher/quotehub/internal/model"
	"github.com/dmaher/quotehub/internal/session"
)

// SessionClock reports the current trading session.
type SessionClock interface {
	Now() session.State
}

// Resolver produces an initial cached quote for a cold symbol.
type Resolver struct {
	primary *Client
	chart   *ChartClient
	clock   SessionClock
	cache   *cache.Cache
	logger  *slog.Logger

	barsTimeframe string
	barsLimit     int

	group singleflight.Group
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	BarsTimeframe string // Aggregate timeframe for the backfill fetch
	BarsLimit     int    // Number of recent bars to request
}

// NewResolver creates an enrichment resolver.
func NewResolver(
	primary *Client,
	chart *ChartClient,
	clock SessionClock,
	qc *cache.Cache,
	cfg ResolverConfig,
	logger *slog.Logger,
) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BarsTimeframe == "" {
		cfg.BarsTimeframe = "1Min"
	}
	if cfg.BarsLimit <= 0 {
		cfg.BarsLimit = 10
	}
	return &Resolver{
		primary:       primary,
		chart:         chart,
		clock:         clock,
		cache:         qc,
		logger:        logger,
		barsTimeframe: cfg.BarsTimeframe,
		barsLimit:     cfg.BarsLimit,
	}
}

// Resolve walks the source chain for a symbol, merges the winning
// snapshot into the cache, and returns the merged quote. Concurrent
// calls for the same symbol share one resolution. On total source
// exhaustion no cache entry is created and an error is returned.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (model.Quote, error) {
	v, err, shared := r.group.Do(symbol, func() (any, error) {
		return r.resolve(ctx, symbol)
	})
	if err != nil {
		return model.Quote{}, err
	}
	if shared {
		r.logger.Debug("enrichment shared with concurrent request", "symbol", symbol)
	}
	return v.(model.Quote), nil
}

func (r *Resolver) resolve(ctx context.Context, symbol string) (model.Quote, error) {
	state := r.clock.Now()

	// Pre/post/closed sessions: the chart source carries the session
	// price the primary latest-quote endpoint does not.
	if state != session.Regular {
		q, err := r.chart.Snapshot(ctx, symbol)
		if err == nil {
			merged := r.cache.ApplySnapshot(q)
			r.logger.Info("enriched from chart source",
				"symbol", symbol,
				"session", state,
				"price", merged.Price,
			)
			return merged, nil
		}
		r.logger.Warn("chart enrichment failed, falling back",
			"symbol", symbol,
			"session", state,
			"error", err,
		)
	}

	q, err := r.primary.LatestQuote(ctx, symbol)
	if err != nil {
		r.logger.Warn("primary quote enrichment failed",
			"symbol", symbol,
			"error", err,
		)
		return r.resolveFromBars(ctx, symbol)
	}

	// Best-effort backfill of day range, volume, and previous close.
	if bars, err := r.primary.Bars(ctx, symbol, r.barsTimeframe, r.barsLimit); err == nil {
		fillFromBars(&q, bars)
	} else {
		r.logger.Debug("bars backfill unavailable", "symbol", symbol, "error", err)
	}

	merged := r.cache.ApplySnapshot(q)
	r.logger.Info("enriched from primary source",
		"symbol", symbol,
		"price", merged.Price,
	)
	return merged, nil
}

// resolveFromBars is the last resort: synthesize a quote from the
// latest bar's close, with zeroed bid/ask and change fields.
func (r *Resolver) resolveFromBars(ctx context.Context, symbol string) (model.Quote, error) {
	bars, err := r.primary.Bars(ctx, symbol, r.barsTimeframe, r.barsLimit)
	if err != nil {
		return model.Quote{}, fmt.Errorf("all enrichment sources failed for %s: %w", symbol, err)
	}

	last := bars[len(bars)-1]
	q := model.Quote{
		Symbol:     symbol,
		Price:      last.Close,
		Timestamp:  last.Timestamp,
		DataSource: model.SourceBars,
	}
	fillFromBars(&q, bars)

	merged := r.cache.ApplySnapshot(q)
	r.logger.Info("enriched from bars only",
		"symbol", symbol,
		"price", merged.Price,
	)
	return merged, nil
}

// fillFromBars derives day high/low, summed volume, and a previous
// close from a short recent-bar window. Existing non-zero fields on q
// are kept.
func fillFromBars(q *model.Quote, bars []model.Bar) {
	if len(bars) == 0 {
		return
	}

	high, low := bars[0].High, bars[0].Low
	var volume int64
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
		volume += b.Volume
	}

	if q.DayHigh == 0 {
		q.DayHigh = high
	}
	if q.DayLow == 0 {
		q.DayLow = low
	}
	if q.Volume == 0 {
		q.Volume = volume
	}
	if q.PreviousClose == 0 {
		q.PreviousClose = bars[0].Open
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now().UTC()
	}
}
