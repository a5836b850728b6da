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

// CandleRecorder decodes kline channel updates and writes them to the
// candles table. Unlike the other recorders it upserts: Bitforex re-pushes
// the open bar on every tick, and the stored row should converge to the
// bar's closed state.
type CandleRecorder struct {
	cfg    Config
	logger *slog.Logger

	// Input from stream dispatch
	input *GrowableBuffer[model.Candle]

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []candleRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewCandleRecorder creates a new CandleRecorder.
func NewCandleRecorder(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *CandleRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CandleRecorder{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  NewGrowableBuffer[model.Candle](cfg.BufferSize),
		batch:  make([]candleRow, 0, cfg.BatchSize),
	}
}

// Handler returns the update handler feeding this recorder.
func (r *CandleRecorder) Handler() stream.UpdateHandler {
	return stream.UpdateHandlerFunc(func(ctx context.Context, u stream.Update) error {
		pair, err := paramValue(u.Params, "businessType")
		if err != nil {
			return err
		}
		kType, err := paramValue(u.Params, "kType")
		if err != nil {
			return err
		}
		candles, err := decodeCandles(pair, model.CandleInterval(kType), u.Payload, u.ReceivedAt.UnixMicro())
		if err != nil {
			return fmt.Errorf("decode candles: %w", err)
		}
		for _, candle := range candles {
			r.input.Send(candle)
		}
		return nil
	})
}

// Start begins consuming candles and writing to the database.
func (r *CandleRecorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("candle recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder, draining the input buffer and
// flushing whatever is batched.
func (r *CandleRecorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping candle recorder")

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
		r.logger.Info("candle recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("candle recorder stop timed out")
	}

	if rest := r.input.DrainTo(0); len(rest) > 0 {
		r.batchMu.Lock()
		for _, candle := range rest {
			r.batch = append(r.batch, r.transform(candle))
		}
		r.batchMu.Unlock()
	}
	r.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (r *CandleRecorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// BufferStats returns counters for the input buffer.
func (r *CandleRecorder) BufferStats() BufferStats {
	return r.input.Stats()
}

// consumeLoop reads from the input buffer and accumulates batches.
func (r *CandleRecorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			candle, ok := r.input.TryReceive()
			if !ok {
				select {
				case <-r.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			r.handleMessage(candle)
		}
	}
}

// flushLoop periodically flushes the batch.
func (r *CandleRecorder) flushLoop() {
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

// handleMessage transforms and adds a candle to the batch.
func (r *CandleRecorder) handleMessage(candle model.Candle) {
	row := r.transform(candle)

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.ctx)
	}
}

// transform converts a model.Candle to a candleRow.
func (r *CandleRecorder) transform(candle model.Candle) candleRow {
	return candleRow{
		OpenTs:      candle.OpenTS,
		ReceivedAt:  candle.ReceivedAt,
		Pair:        candle.Pair,
		Interval:    candle.Interval.String(),
		Open:        candle.Open.String(),
		High:        candle.High.String(),
		Low:         candle.Low.String(),
		Close:       candle.Close.String(),
		Vol:         candle.Vol.String(),
		CurrencyVol: candle.CurrencyVol.String(),
	}
}

// flush writes the current batch to the database.
func (r *CandleRecorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of the current batch
	batch := r.batch
	r.batch = make([]candleRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	if err := r.batchUpsert(ctx, batch); err != nil {
		r.logger.Error("candle batch upsert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	// Upserts count as inserts; the live bar rewrites itself until it
	// closes, so there is no separate conflict count.
	r.metrics.Inserts += int64(len(batch))
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed candles",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchUpsert writes rows using pgx.Batch, replacing the bar in place on
// (pair, interval, open_ts) collisions.
func (r *CandleRecorder) batchUpsert(ctx context.Context, rows []candleRow) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO candles (open_ts, received_at, pair, interval, open, high, low, close, vol, currency_vol)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (pair, interval, open_ts) DO UPDATE SET
				received_at = EXCLUDED.received_at,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close,
				vol = EXCLUDED.vol,
				currency_vol = EXCLUDED.currency_vol
		`, row.OpenTs, row.ReceivedAt, row.Pair, row.Interval, row.Open, row.High, row.Low, row.Close, row.Vol, row.CurrencyVol)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
