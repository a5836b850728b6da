package recorder

import (
	"time"
)

// Config contains configuration shared by all recorders.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize is the initial capacity of the input buffer. The buffer
	// grows on demand, so this only sets the starting footprint.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     1000,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Numeric row fields below are carried as decimal strings. pgx sends them
// in text format and Postgres casts to the numeric column type, which
// keeps sub-satoshi precision without a float round trip.

// tradeRow represents a row for the trades table.
type tradeRow struct {
	TradeID    string // UUID, generated on decode
	ExchangeTs int64  // Microseconds
	ReceivedAt int64  // Microseconds
	Pair       string // Business type, e.g. "coin-btc-eth"
	Price      string
	Amount     string
	Buy        bool // TRUE = buy, FALSE = sell
}

// bookRow represents a row for the book_snapshots table.
type bookRow struct {
	ReceivedAt int64 // Microseconds; depth frames carry no exchange time
	Pair       string
	Bids       []byte // JSONB: [{"price": "...", "amount": "..."}, ...]
	Asks       []byte // JSONB
	BestBid    string
	BestAsk    string
}

// tickerRow represents a row for the tickers table.
type tickerRow struct {
	ExchangeTs int64
	ReceivedAt int64
	Pair       string
	Buy        string
	Sell       string
	High       string
	Low        string
	Last       string
	Vol        string
}

// candleRow represents a row for the candles table.
type candleRow struct {
	OpenTs      int64 // Bar open time, microseconds
	ReceivedAt  int64
	Pair        string
	Interval    string
	Open        string
	High        string
	Low         string
	Close       string
	Vol         string
	CurrencyVol string
}

// Metrics holds cumulative counters for a recorder.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}
