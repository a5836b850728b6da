package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/bitforex-stream/internal/model"
	"github.com/rickgao/bitforex-stream/internal/stream"
)

func TestCandleRecorder_Transform(t *testing.T) {
	r := NewCandleRecorder(DefaultConfig(), nil, nil)

	candle := model.Candle{
		Pair:        "coin-usdt-btc",
		Interval:    model.Interval5Min,
		Open:        decimal.RequireFromString("9053.23"),
		High:        decimal.RequireFromString("9056.1"),
		Low:         decimal.RequireFromString("9053.22"),
		Close:       decimal.RequireFromString("9055.5"),
		Vol:         decimal.RequireFromString("0.066"),
		CurrencyVol: decimal.RequireFromString("602.74"),
		OpenTS:      1589721600000000,
		ReceivedAt:  1589721875200000,
	}

	row := r.transform(candle)

	if row.Pair != "coin-usdt-btc" {
		t.Errorf("Pair = %s, want coin-usdt-btc", row.Pair)
	}
	if row.Interval != "5min" {
		t.Errorf("Interval = %s, want 5min", row.Interval)
	}
	if row.Open != "9053.23" {
		t.Errorf("Open = %s, want 9053.23", row.Open)
	}
	if row.High != "9056.1" {
		t.Errorf("High = %s, want 9056.1", row.High)
	}
	if row.Low != "9053.22" {
		t.Errorf("Low = %s, want 9053.22", row.Low)
	}
	if row.Close != "9055.5" {
		t.Errorf("Close = %s, want 9055.5", row.Close)
	}
	if row.Vol != "0.066" {
		t.Errorf("Vol = %s, want 0.066", row.Vol)
	}
	if row.CurrencyVol != "602.74" {
		t.Errorf("CurrencyVol = %s, want 602.74", row.CurrencyVol)
	}
	if row.OpenTs != 1589721600000000 {
		t.Errorf("OpenTs = %d, want 1589721600000000", row.OpenTs)
	}
	if row.ReceivedAt != 1589721875200000 {
		t.Errorf("ReceivedAt = %d, want 1589721875200000", row.ReceivedAt)
	}
}

func TestCandleRecorder_Handler(t *testing.T) {
	r := NewCandleRecorder(DefaultConfig(), nil, nil)
	h := r.Handler()

	u := stream.Update{
		Channel: stream.ChannelKline,
		Params: stream.Params{
			{Key: "businessType", Value: "coin-usdt-btc"},
			{Key: "size", Value: "2"},
			{Key: "kType", Value: "1min"},
		},
		Payload:    []byte(`[{"open":9053.23,"high":9054.83,"low":9053.22,"close":9054.83,"vol":0.066,"currencyVol":602.74,"time":1589721600000},{"open":9054.83,"high":9056.1,"low":9054.0,"close":9055.5,"vol":0.031,"currencyVol":280.7,"time":1589721660000}]`),
		ReceivedAt: time.Now(),
	}

	if err := h.HandleUpdate(context.Background(), u); err != nil {
		t.Fatalf("HandleUpdate() error = %v", err)
	}

	if r.input.Len() != 2 {
		t.Fatalf("buffered %d candles, want 2", r.input.Len())
	}

	candle, ok := r.input.TryReceive()
	if !ok {
		t.Fatal("TryReceive() returned false")
	}
	if candle.Interval != model.Interval1Min {
		t.Errorf("Interval = %q, want 1min", candle.Interval)
	}
	if candle.OpenTS != 1589721600000000 {
		t.Errorf("OpenTS = %d, want 1589721600000000", candle.OpenTS)
	}
}

func TestCandleRecorder_Handler_MissingInterval(t *testing.T) {
	r := NewCandleRecorder(DefaultConfig(), nil, nil)
	h := r.Handler()

	u := stream.Update{
		Channel:    stream.ChannelKline,
		Params:     stream.Params{{Key: "businessType", Value: "coin-usdt-btc"}},
		Payload:    []byte(`[]`),
		ReceivedAt: time.Now(),
	}

	if err := h.HandleUpdate(context.Background(), u); err == nil {
		t.Error("kline update without kType should return an error")
	}
}

func TestCandleRecorder_Lifecycle(t *testing.T) {
	cfg := Config{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
		BufferSize:    10,
	}
	r := NewCandleRecorder(cfg, nil, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := r.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
