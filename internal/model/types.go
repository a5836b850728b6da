package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade side constants (Bitforex direction field: 1 = buy, 2 = sell).
const (
	DirectionBuy  = 1
	DirectionSell = 2
)

// Trade represents an executed trade from the trade channel.
type Trade struct {
	ID         uuid.UUID       // Row ID (generated on decode; Bitforex sends none)
	Pair       string          // Business type (e.g. "coin-btc-eth")
	Price      decimal.Decimal // Trade price in quote currency
	Amount     decimal.Decimal // Trade amount in base currency
	Buy        bool            // true = buy (direction 1), false = sell (direction 2)
	ExchangeTS int64           // Bitforex trade timestamp (µs since epoch)
	ReceivedAt int64           // Local receive timestamp (µs since epoch)
}

// BookLevel represents a single price level in an order book.
type BookLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// BookSnapshot represents a full depth10 order book state.
// Bitforex sends complete snapshots on every update, not deltas.
type BookSnapshot struct {
	Pair       string      // Business type
	Bids       []BookLevel // Sorted best-first by the exchange
	Asks       []BookLevel
	ReceivedAt int64 // Local receive timestamp (µs since epoch); depth frames carry no exchange time
}

// BestBid returns the top bid price, or zero if the side is empty.
func (s BookSnapshot) BestBid() decimal.Decimal {
	if len(s.Bids) == 0 {
		return decimal.Decimal{}
	}
	return s.Bids[0].Price
}

// BestAsk returns the top ask price, or zero if the side is empty.
func (s BookSnapshot) BestAsk() decimal.Decimal {
	if len(s.Asks) == 0 {
		return decimal.Decimal{}
	}
	return s.Asks[0].Price
}

// Ticker represents a 24h rolling ticker update.
type Ticker struct {
	Pair       string
	Buy        decimal.Decimal // Best bid
	Sell       decimal.Decimal // Best ask
	High       decimal.Decimal // 24h high
	Low        decimal.Decimal // 24h low
	Last       decimal.Decimal // Last trade price
	Vol        decimal.Decimal // 24h base volume
	ExchangeTS int64           // Bitforex quote timestamp (µs since epoch)
	ReceivedAt int64           // Local receive timestamp (µs since epoch)
}

// Candle represents a single kline bar.
type Candle struct {
	Pair        string
	Interval    CandleInterval
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Vol         decimal.Decimal // Base currency volume
	CurrencyVol decimal.Decimal // Quote currency volume
	OpenTS      int64           // Bar open time (µs since epoch)
	ReceivedAt  int64           // Local receive timestamp (µs since epoch)
}
