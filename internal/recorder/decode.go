package recorder

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/bitforex-stream/internal/model"
	"github.com/rickgao/bitforex-stream/internal/stream"
)

// Wire shapes of the data member of each frame. Bitforex sends prices and
// amounts as JSON numbers; decimal.Decimal parses them without a float
// detour. Timestamps arrive as epoch milliseconds.

type wireTrade struct {
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Direction int             `json:"direction"`
	Time      int64           `json:"time"`
}

type wireBook struct {
	Bids []model.BookLevel `json:"bids"`
	Asks []model.BookLevel `json:"asks"`
}

type wireTicker struct {
	Buy  decimal.Decimal `json:"buy"`
	Sell decimal.Decimal `json:"sell"`
	High decimal.Decimal `json:"high"`
	Low  decimal.Decimal `json:"low"`
	Last decimal.Decimal `json:"last"`
	Vol  decimal.Decimal `json:"vol"`
	Date int64           `json:"date"`
}

type wireCandle struct {
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Vol         decimal.Decimal `json:"vol"`
	CurrencyVol decimal.Decimal `json:"currencyVol"`
	Time        int64           `json:"time"`
}

// paramValue returns the named subscription parameter from an update.
func paramValue(params stream.Params, key string) (string, error) {
	for _, p := range params {
		if p.Key == key {
			return p.Value, nil
		}
	}
	return "", fmt.Errorf("update missing %q parameter", key)
}

// decodeTrades decodes a trade frame payload. Bitforex pushes carry no
// trade ID, so each row gets a generated UUID; deduplication happens at
// insert time on the trade's natural key.
func decodeTrades(pair string, payload []byte, receivedAt int64) ([]model.Trade, error) {
	var wire []wireTrade
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("trade payload: %w", err)
	}
	trades := make([]model.Trade, len(wire))
	for i, w := range wire {
		trades[i] = model.Trade{
			ID:         uuid.New(),
			Pair:       pair,
			Price:      w.Price,
			Amount:     w.Amount,
			Buy:        w.Direction == model.DirectionBuy,
			ExchangeTS: w.Time * 1000,
			ReceivedAt: receivedAt,
		}
	}
	return trades, nil
}

// decodeBook decodes a depth10 frame payload into a full book snapshot.
func decodeBook(pair string, payload []byte, receivedAt int64) (model.BookSnapshot, error) {
	var wire wireBook
	if err := json.Unmarshal(payload, &wire); err != nil {
		return model.BookSnapshot{}, fmt.Errorf("depth payload: %w", err)
	}
	return model.BookSnapshot{
		Pair:       pair,
		Bids:       wire.Bids,
		Asks:       wire.Asks,
		ReceivedAt: receivedAt,
	}, nil
}

// decodeTicker decodes a ticker frame payload.
func decodeTicker(pair string, payload []byte, receivedAt int64) (model.Ticker, error) {
	var wire wireTicker
	if err := json.Unmarshal(payload, &wire); err != nil {
		return model.Ticker{}, fmt.Errorf("ticker payload: %w", err)
	}
	return model.Ticker{
		Pair:       pair,
		Buy:        wire.Buy,
		Sell:       wire.Sell,
		High:       wire.High,
		Low:        wire.Low,
		Last:       wire.Last,
		Vol:        wire.Vol,
		ExchangeTS: wire.Date * 1000,
		ReceivedAt: receivedAt,
	}, nil
}

// decodeCandles decodes a kline frame payload. The payload is the last N
// bars, oldest first; the final element is usually the still-open bar.
func decodeCandles(pair string, interval model.CandleInterval, payload []byte, receivedAt int64) ([]model.Candle, error) {
	var wire []wireCandle
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("kline payload: %w", err)
	}
	candles := make([]model.Candle, len(wire))
	for i, w := range wire {
		candles[i] = model.Candle{
			Pair:        pair,
			Interval:    interval,
			Open:        w.Open,
			High:        w.High,
			Low:         w.Low,
			Close:       w.Close,
			Vol:         w.Vol,
			CurrencyVol: w.CurrencyVol,
			OpenTS:      w.Time * 1000,
			ReceivedAt:  receivedAt,
		}
	}
	return candles, nil
}
