package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/bitforex-stream/internal/model"
	"github.com/rickgao/bitforex-stream/internal/stream"
)

func TestTickerRecorder_Transform(t *testing.T) {
	r := NewTickerRecorder(DefaultConfig(), nil, nil)

	tick := model.Ticker{
		Pair:       "coin-usdt-btc",
		Buy:        decimal.RequireFromString("9041.49"),
		Sell:       decimal.RequireFromString("9042.64"),
		High:       decimal.RequireFromString("9070.83"),
		Low:        decimal.RequireFromString("8925"),
		Last:       decimal.RequireFromString("9041.95"),
		Vol:        decimal.RequireFromString("179.24449"),
		ExchangeTS: 1589721875000000,
		ReceivedAt: 1589721875200000,
	}

	row := r.transform(tick)

	if row.Pair != "coin-usdt-btc" {
		t.Errorf("Pair = %s, want coin-usdt-btc", row.Pair)
	}
	if row.Buy != "9041.49" {
		t.Errorf("Buy = %s, want 9041.49", row.Buy)
	}
	if row.Sell != "9042.64" {
		t.Errorf("Sell = %s, want 9042.64", row.Sell)
	}
	if row.High != "9070.83" {
		t.Errorf("High = %s, want 9070.83", row.High)
	}
	if row.Low != "8925" {
		t.Errorf("Low = %s, want 8925", row.Low)
	}
	if row.Last != "9041.95" {
		t.Errorf("Last = %s, want 9041.95", row.Last)
	}
	if row.Vol != "179.24449" {
		t.Errorf("Vol = %s, want 179.24449", row.Vol)
	}
	if row.ExchangeTs != 1589721875000000 {
		t.Errorf("ExchangeTs = %d, want 1589721875000000", row.ExchangeTs)
	}
	if row.ReceivedAt != 1589721875200000 {
		t.Errorf("ReceivedAt = %d, want 1589721875200000", row.ReceivedAt)
	}
}

func TestTickerRecorder_Transform_ZeroValues(t *testing.T) {
	r := NewTickerRecorder(DefaultConfig(), nil, nil)

	row := r.transform(model.Ticker{Pair: "coin-btc-eth"})

	if row.Last != "0" {
		t.Errorf("Last = %s, want 0 for zero value", row.Last)
	}
	if row.Vol != "0" {
		t.Errorf("Vol = %s, want 0 for zero value", row.Vol)
	}
}

func TestTickerRecorder_Handler(t *testing.T) {
	r := NewTickerRecorder(DefaultConfig(), nil, nil)
	h := r.Handler()

	receivedAt := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	u := stream.Update{
		Channel:    stream.ChannelTicker,
		Params:     stream.Params{{Key: "businessType", Value: "coin-usdt-btc"}},
		Payload:    []byte(`{"buy":9041.49,"sell":9042.64,"high":9070.83,"low":8925.0,"last":9041.95,"vol":179.24449,"date":1589721875000}`),
		ReceivedAt: receivedAt,
	}

	if err := h.HandleUpdate(context.Background(), u); err != nil {
		t.Fatalf("HandleUpdate() error = %v", err)
	}

	tick, ok := r.input.TryReceive()
	if !ok {
		t.Fatal("no ticker buffered")
	}
	if tick.Pair != "coin-usdt-btc" {
		t.Errorf("Pair = %q, want coin-usdt-btc", tick.Pair)
	}
	if tick.ExchangeTS != 1589721875000000 {
		t.Errorf("ExchangeTS = %d, want 1589721875000000", tick.ExchangeTS)
	}
	if tick.ReceivedAt != receivedAt.UnixMicro() {
		t.Errorf("ReceivedAt = %d, want %d", tick.ReceivedAt, receivedAt.UnixMicro())
	}
}

func TestTickerRecorder_HandleMessage_AddsToBatch(t *testing.T) {
	cfg := Config{
		BatchSize:     100,
		FlushInterval: time.Hour,
		BufferSize:    10,
	}
	r := NewTickerRecorder(cfg, nil, nil)

	r.handleMessage(model.Ticker{Pair: "coin-btc-eth"})

	r.batchMu.Lock()
	batchLen := len(r.batch)
	r.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestTickerRecorder_Lifecycle(t *testing.T) {
	cfg := Config{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
		BufferSize:    10,
	}
	r := NewTickerRecorder(cfg, nil, nil)

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

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want 1000", cfg.BatchSize)
	}
	if cfg.FlushInterval != time.Second {
		t.Errorf("FlushInterval = %v, want 1s", cfg.FlushInterval)
	}
	if cfg.BufferSize != 10000 {
		t.Errorf("BufferSize = %d, want 10000", cfg.BufferSize)
	}
}
