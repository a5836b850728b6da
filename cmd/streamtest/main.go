// streamtest connects to the Bitforex websocket and prints updates to the
// console. Usage:
//
//	go run ./cmd/streamtest --pairs BTC/USDT,ETH/BTC --channels trade,ticker
//
// No configuration file or database is needed; this is a wire-level
// debugging tool.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/bitforex-stream/internal/model"
	"github.com/rickgao/bitforex-stream/internal/stream"
)

func main() {
	url := flag.String("url", stream.DefaultURL, "websocket URL")
	pairs := flag.String("pairs", "BTC/USDT", "comma-separated BASE/QUOTE pairs")
	channels := flag.String("channels", "trade,ticker", "comma-separated channels (depth10, ticker, kline, trade)")
	size := flag.String("size", "20", "size parameter for trade and kline channels")
	depth := flag.String("depth", "0", "dType parameter for the depth10 channel")
	interval := flag.String("interval", "1min", "kType parameter for the kline channel")
	maxPerConn := flag.Int("max-per-conn", 0, "max subscriptions per connection (0 = unlimited)")
	ackOnTraffic := flag.Bool("ack-on-traffic", false, "treat any inbound frame as a heartbeat ack")
	verbose := flag.Bool("verbose", false, "print full payload JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := stream.DefaultConfig()
	cfg.URL = *url
	cfg.MaxPerConnection = *maxPerConn
	cfg.AckOnTraffic = *ackOnTraffic

	mux := stream.NewMultiplexer(cfg, stream.WithLogger(logger))

	printer := stream.UpdateHandlerFunc(func(ctx context.Context, u stream.Update) error {
		printUpdate(u, *verbose)
		return nil
	})

	var subs []*stream.Subscription
	for _, rawPair := range strings.Split(*pairs, ",") {
		base, quote, ok := strings.Cut(strings.TrimSpace(rawPair), "/")
		if !ok {
			logger.Error("pair is not BASE/QUOTE", "pair", rawPair)
			os.Exit(1)
		}
		pair := model.NewPair(base, quote)

		for _, channel := range strings.Split(*channels, ",") {
			switch strings.TrimSpace(channel) {
			case stream.ChannelTrade:
				subs = append(subs, stream.NewTradeSubscription(pair, *size, printer))
			case stream.ChannelOrderBook:
				subs = append(subs, stream.NewOrderBookSubscription(pair, *depth, printer))
			case stream.ChannelTicker:
				subs = append(subs, stream.NewTickerSubscription(pair, printer))
			case stream.ChannelKline:
				subs = append(subs, stream.NewKlineSubscription(pair, *size, model.CandleInterval(*interval), printer))
			default:
				logger.Error("unknown channel", "channel", channel)
				os.Exit(1)
			}
		}
	}

	if err := mux.ComposeSubscriptions(subs...); err != nil {
		logger.Error("failed to compose subscriptions", "error", err)
		os.Exit(1)
	}

	logger.Info("starting subscriptions", "count", len(subs), "url", *url)
	if err := mux.StartSubscriptions(ctx); err != nil {
		logger.Error("failed to start subscriptions", "error", err)
		os.Exit(1)
	}

	// Surface sessions that die mid-run
	go func() {
		for se := range mux.Errors() {
			logger.Error("session terminated",
				"session_id", se.SessionID,
				"group", se.Group,
				"attempts", se.Attempts,
				"error", se.Err,
			)
		}
	}()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := mux.Stats()
				logger.Info("stats",
					"groups", st.Groups,
					"frames", st.Frames,
					"dispatched", st.Dispatched,
					"dropped", st.Dropped,
					"reconnects", st.Reconnects,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	if err := mux.Close(shutdownCtx); err != nil {
		logger.Warn("close", "error", err)
	}

	logger.Info("shutdown complete")
}

func printUpdate(u stream.Update, verbose bool) {
	tag := strings.ToUpper(u.Channel)

	if verbose {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, u.Payload, "", "  "); err != nil {
			pretty.Write(u.Payload)
		}
		fmt.Printf("[%s] %s\n%s\n", tag, u.Params, pretty.Bytes())
		return
	}

	payload := string(u.Payload)
	if len(payload) > 160 {
		payload = payload[:160] + "..."
	}
	fmt.Printf("[%s] %s %s\n", tag, u.Params, payload)
}
