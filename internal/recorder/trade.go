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

// TradeRecorder decodes trade channel updates and writes them to the
// trades table.
type TradeRecorder struct {
	cfg    Config
	logger *slog.Logger

	// Input from stream dispatch
	input *GrowableBuffer[model.Trade]

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []tradeRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewTradeRecorder creates a new TradeRecorder.
func NewTradeRecorder(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *TradeRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradeRecorder{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  NewGrowableBuffer[model.Trade](cfg.BufferSize),
		batch:  make([]tradeRow, 0, cfg.BatchSize),
	}
}

// Handler returns the update handler feeding this recorder. It can be
// attached to any number of trade subscriptions.
func (r *TradeRecorder) Handler() stream.UpdateHandler {
	return stream.UpdateHandlerFunc(func(ctx context.Context, u stream.Update) error {
		pair, err := paramValue(u.Params, "businessType")
		if err != nil {
			return err
		}
		trades, err := decodeTrades(pair, u.Payload, u.ReceivedAt.UnixMicro())
		if err != nil {
			return fmt.Errorf("decode trades: %w", err)
		}
		for _, trade := range trades {
			r.input.Send(trade)
		}
		return nil
	})
}

// Start begins consuming decoded trades and writing to the database.
func (r *TradeRecorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("trade recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder, draining the input buffer and
// flushing whatever is batched.
func (r *TradeRecorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping trade recorder")

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
		r.logger.Info("trade recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("trade recorder stop timed out")
	}

	if rest := r.input.DrainTo(0); len(rest) > 0 {
		r.batchMu.Lock()
		for _, trade := range rest {
			r.batch = append(r.batch, r.transform(trade))
		}
		r.batchMu.Unlock()
	}
	r.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (r *TradeRecorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// BufferStats returns counters for the input buffer.
func (r *TradeRecorder) BufferStats() BufferStats {
	return r.input.Stats()
}

// consumeLoop reads from the input buffer and accumulates batches.
func (r *TradeRecorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			trade, ok := r.input.TryReceive()
			if !ok {
				select {
				case <-r.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			r.handleMessage(trade)
		}
	}
}

// flushLoop periodically flushes the batch.
func (r *TradeRecorder) flushLoop() {
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

// handleMessage transforms and adds a trade to the batch.
func (r *TradeRecorder) handleMessage(trade model.Trade) {
	row := r.transform(trade)

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.ctx)
	}
}

// transform converts a model.Trade to a tradeRow.
func (r *TradeRecorder) transform(t model.Trade) tradeRow {
	return tradeRow{
		TradeID:    t.ID.String(),
		ExchangeTs: t.ExchangeTS,
		ReceivedAt: t.ReceivedAt,
		Pair:       t.Pair,
		Price:      t.Price.String(),
		Amount:     t.Amount.String(),
		Buy:        t.Buy,
	}
}

// flush writes the current batch to the database.
func (r *TradeRecorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of the current batch
	batch := r.batch
	r.batch = make([]tradeRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, batch)
	if err != nil {
		r.logger.Error("trade batch insert failed", "error", err, "count", len(batch))
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

	r.logger.Debug("flushed trades",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch. Bitforex resends the last N
// trades on every push, so duplicates are routine; the conflict target is
// the trade's natural key, not the generated UUID.
func (r *TradeRecorder) batchInsert(ctx context.Context, rows []tradeRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO trades (trade_id, exchange_ts, received_at, pair, price, amount, buy)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (pair, exchange_ts, price, amount, buy) DO NOTHING
		`, row.TradeID, row.ExchangeTs, row.ReceivedAt, row.Pair, row.Price, row.Amount, row.Buy)
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
