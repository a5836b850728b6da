package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/bitforex-stream/internal/model"
	"github.com/rickgao/bitforex-stream/internal/stream"
)

// TickerRecorder decodes ticker channel updates and writes them to the
// tickers table.
type TickerRecorder struct {
	cfg    Config
	logger *slog.Logger

	// Input from stream dispatch
	input *GrowableBuffer[model.Ticker]

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []tickerRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewTickerRecorder creates a new TickerRecorder.
func NewTickerRecorder(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *TickerRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &TickerRecorder{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  NewGrowableBuffer[model.Ticker](cfg.BufferSize),
		batch:  make([]tickerRow, 0, cfg.BatchSize),
	}
}

// Handler returns the update handler feeding this recorder.
func (r *TickerRecorder) Handler() stream.UpdateHandler {
	return stream.UpdateHandlerFunc(func(ctx context.Context, u stream.Update) error {
		pair, err := paramValue(u.Params, "businessType")
		if err != nil {
			return err
		}
		tick, err := decodeTicker(pair, u.Payload, u.ReceivedAt.UnixMicro())
		if err != nil {
			return fmt.Errorf("decode ticker: %w", err)
		}
		r.input.Send(tick)
		return nil
	})
}

// Start begins consuming tickers and writing to the database.
func (r *TickerRecorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("ticker recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder, draining the input buffer and
// flushing whatever is batched.
func (r *TickerRecorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping ticker recorder")

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
		r.logger.Info("ticker recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("ticker recorder stop timed out")
	}

	if rest := r.input.DrainTo(0); len(rest) > 0 {
		r.batchMu.Lock()
		for _, tick := range rest {
			r.batch = append(r.batch, r.transform(tick))
		}
		r.batchMu.Unlock()
	}
	r.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (r *TickerRecorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// BufferStats returns counters for the input buffer.
func (r *TickerRecorder) BufferStats() BufferStats {
	return r.input.Stats()
}

// consumeLoop reads from the input buffer and accumulates batches.
func (r *TickerRecorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			tick, ok := r.input.TryReceive()
			if !ok {
				select {
				case <-r.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			r.handleMessage(tick)
		}
	}
}

// flushLoop periodically flushes the batch.
func (r *TickerRecorder) flushLoop() {
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

// handleMessage transforms and adds a ticker to the batch.
func (r *TickerRecorder) handleMessage(tick model.Ticker) {
	row := r.transform(tick)

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.ctx)
	}
}

// transform converts a model.Ticker to a tickerRow.
func (r *TickerRecorder) transform(tick model.Ticker) tickerRow {
	return tickerRow{
		ExchangeTs: tick.ExchangeTS,
		ReceivedAt: tick.ReceivedAt,
		Pair:       tick.Pair,
		Buy:        tick.Buy.String(),
		Sell:       tick.Sell.String(),
		High:       tick.High.String(),
		Low:        tick.Low.String(),
		Last:       tick.Last.String(),
		Vol:        tick.Vol.String(),
	}
}

// flush writes the current batch to the database.
func (r *TickerRecorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of the current batch
	batch := r.batch
	r.batch = make([]tickerRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, batch)
	if err != nil {
		r.logger.Error("ticker batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch) - conflicts)
	r.metrics.Conflicts += int64(conflicts)
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed tickers",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
// Reconnects replay the current ticker, so (pair, exchange_ts) collisions
// are expected.
func (r *TickerRecorder) batchInsert(ctx context.Context, rows []tickerRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO tickers (exchange_ts, received_at, pair, buy, sell, high, low, last, vol)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (pair, exchange_ts) DO NOTHING
		`, row.ExchangeTs, row.ReceivedAt, row.Pair, row.Buy, row.Sell, row.High, row.Low, row.Last, row.Vol)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
