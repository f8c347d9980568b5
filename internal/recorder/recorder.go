// Package recorder persists live quote events to PostgreSQL in
// batches. It is an optional tap on the feed pipeline: when disabled,
// nothing is constructed and the hot path carries no recording cost.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmaher/quotehub/internal/config"
	"github.com/dmaher/quotehub/internal/model"
)

// Metrics counts recorder activity.
type Metrics struct {
	Inserts int64
	Errors  int64
	Flushes int64
	Dropped int64
}

// Recorder buffers quote events and writes them in batches on a flush
// interval or when the batch size is reached.
type Recorder struct {
	cfg    config.RecorderConfig
	db     *pgxpool.Pool
	logger *slog.Logger

	buffer *quoteBuffer

	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsMu sync.Mutex
	metrics   Metrics
}

// New creates a Recorder writing to db.
func New(cfg config.RecorderConfig, db *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:    cfg,
		db:     db,
		logger: logger,
		buffer: newQuoteBuffer(cfg.BufferSize),
	}
}

// Enqueue accepts a live quote event. Never blocks; events arriving
// after Stop are dropped and counted.
func (r *Recorder) Enqueue(q model.Quote) {
	if !r.buffer.push(q) {
		r.metricsMu.Lock()
		r.metrics.Dropped++
		r.metricsMu.Unlock()
	}
}

// Start launches the batch and flush loops.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.batchLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("quote recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop drains and flushes remaining events, then shuts down.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping quote recorder")

	r.buffer.close()

	if r.cancel != nil {
		r.cancel()
	}
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("quote recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("quote recorder stop timed out")
	}

	// Final flush of whatever is still buffered.
	for r.buffer.len() > 0 {
		if !r.flush(context.Background()) {
			break
		}
	}
	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	return r.metrics
}

// batchLoop flushes early whenever a full batch is buffered.
func (r *Recorder) batchLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}

		if r.buffer.len() >= r.cfg.BatchSize {
			r.flush(r.ctx)
		}
	}
}

// flushLoop flushes on the configured interval.
func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush(r.ctx)
		}
	}
}

// flush drains one batch and writes it. Returns false when the write
// failed (the batch is lost, counted as an error).
func (r *Recorder) flush(ctx context.Context) bool {
	batch := r.buffer.drain(r.cfg.BatchSize)
	if len(batch) == 0 {
		return true
	}

	start := time.Now()

	if err := r.batchInsert(ctx, batch); err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.metricsMu.Lock()
		r.metrics.Errors++
		r.metricsMu.Unlock()
		return false
	}

	r.metricsMu.Lock()
	r.metrics.Inserts += int64(len(batch))
	r.metrics.Flushes++
	r.metricsMu.Unlock()

	r.logger.Debug("flushed quote events",
		"count", len(batch),
		"duration", time.Since(start),
	)
	return true
}

// batchInsert writes one batch using pgx.Batch.
func (r *Recorder) batchInsert(ctx context.Context, quotes []model.Quote) error {
	batch := &pgx.Batch{}
	recordedAt := time.Now().UTC()

	for _, q := range quotes {
		batch.Queue(`
			INSERT INTO quote_events (symbol, price, bid_price, ask_price, bid_size, ask_size, volume, data_source, event_ts, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, q.Symbol, q.Price, q.BidPrice, q.AskPrice, q.BidSize, q.AskSize, q.Volume, q.DataSource, q.Timestamp, recordedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range quotes {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
