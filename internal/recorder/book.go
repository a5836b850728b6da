package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/bitforex-stream/internal/model"
	"github.com/rickgao/bitforex-stream/internal/stream"
)

// BookRecorder decodes depth10 channel updates and writes full order book
// snapshots to the book_snapshots table. Bitforex sends the whole book on
// every update, so there is no delta tracking.
type BookRecorder struct {
	cfg    Config
	logger *slog.Logger

	// Input from stream dispatch
	input *GrowableBuffer[model.BookSnapshot]

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []bookRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewBookRecorder creates a new BookRecorder.
func NewBookRecorder(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *BookRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookRecorder{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  NewGrowableBuffer[model.BookSnapshot](cfg.BufferSize),
		batch:  make([]bookRow, 0, cfg.BatchSize),
	}
}

// Handler returns the update handler feeding this recorder.
func (r *BookRecorder) Handler() stream.UpdateHandler {
	return stream.UpdateHandlerFunc(func(ctx context.Context, u stream.Update) error {
		pair, err := paramValue(u.Params, "businessType")
		if err != nil {
			return err
		}
		snap, err := decodeBook(pair, u.Payload, u.ReceivedAt.UnixMicro())
		if err != nil {
			return fmt.Errorf("decode book: %w", err)
		}
		r.input.Send(snap)
		return nil
	})
}

// Start begins consuming snapshots and writing to the database.
func (r *BookRecorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("book recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder, draining the input buffer and
// flushing whatever is batched.
func (r *BookRecorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping book recorder")

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
		r.logger.Info("book recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("book recorder stop timed out")
	}

	if rest := r.input.DrainTo(0); len(rest) > 0 {
		r.batchMu.Lock()
		for _, snap := range rest {
			r.batch = append(r.batch, r.transform(snap))
		}
		r.batchMu.Unlock()
	}
	r.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (r *BookRecorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// BufferStats returns counters for the input buffer.
func (r *BookRecorder) BufferStats() BufferStats {
	return r.input.Stats()
}

// consumeLoop reads from the input buffer and accumulates batches.
func (r *BookRecorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			snap, ok := r.input.TryReceive()
			if !ok {
				select {
				case <-r.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			r.handleMessage(snap)
		}
	}
}

// flushLoop periodically flushes the batch.
func (r *BookRecorder) flushLoop() {
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

// handleMessage transforms and adds a snapshot to the batch.
func (r *BookRecorder) handleMessage(snap model.BookSnapshot) {
	row := r.transform(snap)

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.ctx)
	}
}

// bookLevelJSON is the JSONB form of a price level. Prices go through
// strings so numeric precision survives the jsonb round trip.
type bookLevelJSON struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// levelsToJSONB converts book levels to JSONB bytes.
func levelsToJSONB(levels []model.BookLevel) []byte {
	out := make([]bookLevelJSON, len(levels))
	for i, level := range levels {
		out[i] = bookLevelJSON{
			Price:  level.Price.String(),
			Amount: level.Amount.String(),
		}
	}
	data, _ := json.Marshal(out)
	return data
}

// transform converts a model.BookSnapshot to a bookRow.
func (r *BookRecorder) transform(snap model.BookSnapshot) bookRow {
	return bookRow{
		ReceivedAt: snap.ReceivedAt,
		Pair:       snap.Pair,
		Bids:       levelsToJSONB(snap.Bids),
		Asks:       levelsToJSONB(snap.Asks),
		BestBid:    snap.BestBid().String(),
		BestAsk:    snap.BestAsk().String(),
	}
}

// flush writes the current batch to the database.
func (r *BookRecorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of the current batch
	batch := r.batch
	r.batch = make([]bookRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, batch)
	if err != nil {
		r.logger.Error("book batch insert failed", "error", err, "count", len(batch))
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

	r.logger.Debug("flushed book snapshots",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (r *BookRecorder) batchInsert(ctx context.Context, rows []bookRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO book_snapshots (received_at, pair, bids, asks, best_bid, best_ask)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (pair, received_at) DO NOTHING
		`, row.ReceivedAt, row.Pair, row.Bids, row.Asks, row.BestBid, row.BestAsk)
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
