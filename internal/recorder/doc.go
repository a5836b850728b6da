// Package recorder persists decoded market data updates into TimescaleDB.
//
// One recorder per channel:
//   - TradeRecorder (trades hypertable)
//   - BookRecorder (book_snapshots hypertable)
//   - TickerRecorder (tickers hypertable)
//   - CandleRecorder (candles hypertable)
//
// Each recorder exposes a stream.UpdateHandler that decodes the raw
// frame payload and feeds a growable in-memory buffer, so dispatch
// never blocks on the database. A consumer goroutine drains the buffer
// into batches flushed with pgx.Batch.
//
// Trades, books and tickers are append-only with ON CONFLICT DO NOTHING
// (Bitforex resends recent trades on every push, so duplicates are
// expected and counted). Candles are the exception: the live bar is
// re-pushed until it closes, so candle rows are upserted in place.
package recorder
