package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/bitforex-stream/internal/model"
	"github.com/rickgao/bitforex-stream/internal/stream"
)

func TestTradeRecorder_Transform(t *testing.T) {
	r := NewTradeRecorder(DefaultConfig(), nil, nil)

	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	trade := model.Trade{
		ID:         id,
		Pair:       "coin-usdt-btc",
		Price:      decimal.RequireFromString("9042.64"),
		Amount:     decimal.RequireFromString("0.0719"),
		Buy:        true,
		ExchangeTS: 1589721935000000,
		ReceivedAt: 1589721936500000,
	}

	row := r.transform(trade)

	if row.TradeID != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("TradeID = %s, want %s", row.TradeID, id)
	}
	if row.Pair != "coin-usdt-btc" {
		t.Errorf("Pair = %s, want coin-usdt-btc", row.Pair)
	}
	if row.Price != "9042.64" {
		t.Errorf("Price = %s, want 9042.64", row.Price)
	}
	if row.Amount != "0.0719" {
		t.Errorf("Amount = %s, want 0.0719", row.Amount)
	}
	if row.Buy != true {
		t.Errorf("Buy = %v, want true", row.Buy)
	}
	if row.ExchangeTs != 1589721935000000 {
		t.Errorf("ExchangeTs = %d, want 1589721935000000", row.ExchangeTs)
	}
	if row.ReceivedAt != 1589721936500000 {
		t.Errorf("ReceivedAt = %d, want 1589721936500000", row.ReceivedAt)
	}
}

func TestTradeRecorder_Handler(t *testing.T) {
	r := NewTradeRecorder(DefaultConfig(), nil, nil)
	h := r.Handler()

	receivedAt := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	u := stream.Update{
		Channel: stream.ChannelTrade,
		Params: stream.Params{
			{Key: "businessType", Value: "coin-usdt-btc"},
			{Key: "size", Value: "20"},
		},
		Payload:    []byte(`[{"price":9042.64,"amount":0.0719,"direction":1,"time":1589721935000},{"price":9041.0,"amount":0.5,"direction":2,"time":1589721936000}]`),
		ReceivedAt: receivedAt,
	}

	if err := h.HandleUpdate(context.Background(), u); err != nil {
		t.Fatalf("HandleUpdate() error = %v", err)
	}

	if r.input.Len() != 2 {
		t.Fatalf("buffered %d trades, want 2", r.input.Len())
	}

	trade, ok := r.input.TryReceive()
	if !ok {
		t.Fatal("TryReceive() returned false")
	}
	if trade.Pair != "coin-usdt-btc" {
		t.Errorf("Pair = %q, want coin-usdt-btc", trade.Pair)
	}
	if !trade.Buy {
		t.Error("first trade should be a buy")
	}
	if trade.ReceivedAt != receivedAt.UnixMicro() {
		t.Errorf("ReceivedAt = %d, want %d", trade.ReceivedAt, receivedAt.UnixMicro())
	}
}

func TestTradeRecorder_Handler_Malformed(t *testing.T) {
	r := NewTradeRecorder(DefaultConfig(), nil, nil)
	h := r.Handler()

	u := stream.Update{
		Channel:    stream.ChannelTrade,
		Params:     stream.Params{{Key: "businessType", Value: "coin-usdt-btc"}},
		Payload:    []byte(`{not json`),
		ReceivedAt: time.Now(),
	}
	if err := h.HandleUpdate(context.Background(), u); err == nil {
		t.Error("malformed payload should return an error")
	}

	u.Payload = []byte(`[]`)
	u.Params = stream.Params{{Key: "size", Value: "20"}}
	if err := h.HandleUpdate(context.Background(), u); err == nil {
		t.Error("update without businessType should return an error")
	}

	if r.input.Len() != 0 {
		t.Errorf("buffered %d trades, want 0", r.input.Len())
	}
}

func TestTradeRecorder_Lifecycle(t *testing.T) {
	cfg := Config{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
		BufferSize:    10,
	}

	// No database: this exercises the goroutine lifecycle only
	r := NewTradeRecorder(cfg, nil, nil)

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := r.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestTradeRecorder_HandleMessage_AddsToBatch(t *testing.T) {
	cfg := Config{
		BatchSize:     100, // Large batch so no auto-flush
		FlushInterval: time.Hour,
		BufferSize:    10,
	}
	r := NewTradeRecorder(cfg, nil, nil)

	r.handleMessage(model.Trade{
		ID:   uuid.New(),
		Pair: "coin-btc-eth",
	})

	r.batchMu.Lock()
	batchLen := len(r.batch)
	r.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestTradeRecorder_Stats(t *testing.T) {
	r := NewTradeRecorder(DefaultConfig(), nil, nil)

	stats := r.Stats()
	if stats.Inserts != 0 {
		t.Errorf("initial Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("initial Errors = %d, want 0", stats.Errors)
	}

	bufStats := r.BufferStats()
	if bufStats.TotalIn != 0 {
		t.Errorf("initial TotalIn = %d, want 0", bufStats.TotalIn)
	}
}
