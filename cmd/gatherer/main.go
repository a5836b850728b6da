package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/bitforex-stream/internal/config"
	"github.com/rickgao/bitforex-stream/internal/database"
	"github.com/rickgao/bitforex-stream/internal/metrics"
	"github.com/rickgao/bitforex-stream/internal/model"
	"github.com/rickgao/bitforex-stream/internal/recorder"
	"github.com/rickgao/bitforex-stream/internal/stream"
	"github.com/rickgao/bitforex-stream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gatherer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"ws_url", cfg.Exchange.WSURL,
		"subscriptions", len(cfg.Subscriptions),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Timescale)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// One recorder per channel type in use
	recCfg := recorder.Config{
		BatchSize:     cfg.Recorder.BatchSize,
		FlushInterval: cfg.Recorder.FlushInterval,
		BufferSize:    cfg.Recorder.BufferSize,
	}
	recs := buildRecorders(cfg.Subscriptions, recCfg, pool, logger)

	// Multiplexer over the Bitforex websocket
	mux := stream.NewMultiplexer(streamConfig(cfg),
		stream.WithLogger(logger),
		stream.WithCredentials(stream.Credentials{APIKey: cfg.Exchange.APIKey}),
	)

	if err := composeSubscriptions(mux, cfg.Subscriptions, recs); err != nil {
		logger.Error("failed to compose subscriptions", "error", err)
		os.Exit(1)
	}

	// Metrics and health endpoint
	collector := metrics.NewCollector(mux)
	recs.register(collector)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHTTPHandler(pool, mux, registry, cfg.Metrics.Path),
	}

	go func() {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Start recorders before the stream so no update finds a dead buffer
	if err := recs.start(ctx); err != nil {
		logger.Error("failed to start recorders", "error", err)
		os.Exit(1)
	}

	logger.Info("starting subscriptions")
	if err := mux.StartSubscriptions(ctx); err != nil {
		logger.Error("failed to start subscriptions", "error", err)
		os.Exit(1)
	}

	// Surface sessions that exhaust their reconnect budget mid-run
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

	logger.Info("gatherer running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Stream first so dispatch stops, then recorders flush what is left
	if err := mux.Close(shutdownCtx); err != nil {
		logger.Warn("stream close", "error", err)
	}
	recs.stop(shutdownCtx)
	httpServer.Shutdown(shutdownCtx)

	logger.Info("gatherer stopped")
}

// streamConfig maps the YAML stream section onto the multiplexer config.
func streamConfig(cfg *config.GathererConfig) stream.Config {
	return stream.Config{
		URL:                  cfg.Exchange.WSURL,
		ConnectTimeout:       cfg.Stream.ConnectTimeout,
		SubscribeTimeout:     cfg.Stream.SubscribeTimeout,
		WriteTimeout:         cfg.Stream.WriteTimeout,
		HeartbeatInterval:    cfg.Stream.HeartbeatInterval,
		HeartbeatTimeout:     cfg.Stream.HeartbeatTimeout,
		AckOnTraffic:         cfg.Stream.AckOnTraffic,
		MaxPerConnection:     cfg.Stream.MaxPerConnection,
		ReconnectBaseWait:    cfg.Stream.ReconnectBaseDelay,
		ReconnectMaxWait:     cfg.Stream.ReconnectMaxDelay,
		ReconnectMultiplier:  cfg.Stream.ReconnectMultiplier,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		BufferSize:           cfg.Stream.BufferSize,
	}
}

// recorders holds one recorder per channel type that appears in the
// configured subscriptions. Unused channels stay nil.
type recorders struct {
	trade  *recorder.TradeRecorder
	book   *recorder.BookRecorder
	ticker *recorder.TickerRecorder
	candle *recorder.CandleRecorder
}

func buildRecorders(subs []config.SubscriptionConfig, cfg recorder.Config, db *pgxpool.Pool, logger *slog.Logger) *recorders {
	rs := &recorders{}
	for _, sc := range subs {
		switch sc.Channel {
		case stream.ChannelTrade:
			if rs.trade == nil {
				rs.trade = recorder.NewTradeRecorder(cfg, db, logger)
			}
		case stream.ChannelOrderBook:
			if rs.book == nil {
				rs.book = recorder.NewBookRecorder(cfg, db, logger)
			}
		case stream.ChannelTicker:
			if rs.ticker == nil {
				rs.ticker = recorder.NewTickerRecorder(cfg, db, logger)
			}
		case stream.ChannelKline:
			if rs.candle == nil {
				rs.candle = recorder.NewCandleRecorder(cfg, db, logger)
			}
		}
	}
	return rs
}

func (rs *recorders) start(ctx context.Context) error {
	if rs.trade != nil {
		if err := rs.trade.Start(ctx); err != nil {
			return err
		}
	}
	if rs.book != nil {
		if err := rs.book.Start(ctx); err != nil {
			return err
		}
	}
	if rs.ticker != nil {
		if err := rs.ticker.Start(ctx); err != nil {
			return err
		}
	}
	if rs.candle != nil {
		if err := rs.candle.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (rs *recorders) stop(ctx context.Context) {
	if rs.trade != nil {
		rs.trade.Stop(ctx)
	}
	if rs.book != nil {
		rs.book.Stop(ctx)
	}
	if rs.ticker != nil {
		rs.ticker.Stop(ctx)
	}
	if rs.candle != nil {
		rs.candle.Stop(ctx)
	}
}

func (rs *recorders) register(c *metrics.Collector) {
	if rs.trade != nil {
		c.AddRecorder(stream.ChannelTrade, rs.trade)
	}
	if rs.book != nil {
		c.AddRecorder(stream.ChannelOrderBook, rs.book)
	}
	if rs.ticker != nil {
		c.AddRecorder(stream.ChannelTicker, rs.ticker)
	}
	if rs.candle != nil {
		c.AddRecorder(stream.ChannelKline, rs.candle)
	}
}

// composeSubscriptions registers the configured subscriptions with the
// multiplexer. Subscriptions sharing a bundle label go through
// ComposeBundle so they land on one connection; the rest are composed
// flat and packed by the planner.
func composeSubscriptions(mux *stream.Multiplexer, subs []config.SubscriptionConfig, recs *recorders) error {
	var flat []*stream.Subscription
	bundles := make(map[string][]*stream.Subscription)
	var bundleOrder []string

	for i, sc := range subs {
		sub, err := buildSubscription(sc, recs)
		if err != nil {
			return fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
		if sc.Bundle == "" {
			flat = append(flat, sub)
			continue
		}
		if _, seen := bundles[sc.Bundle]; !seen {
			bundleOrder = append(bundleOrder, sc.Bundle)
		}
		bundles[sc.Bundle] = append(bundles[sc.Bundle], sub)
	}

	for _, label := range bundleOrder {
		if err := mux.ComposeBundle(bundles[label]...); err != nil {
			return fmt.Errorf("bundle %q: %w", label, err)
		}
	}
	if len(flat) > 0 {
		if err := mux.ComposeSubscriptions(flat...); err != nil {
			return err
		}
	}
	return nil
}

func buildSubscription(sc config.SubscriptionConfig, recs *recorders) (*stream.Subscription, error) {
	base, quote, ok := strings.Cut(sc.Pair, "/")
	if !ok {
		return nil, fmt.Errorf("pair %q is not BASE/QUOTE", sc.Pair)
	}
	pair := model.NewPair(base, quote)

	switch sc.Channel {
	case stream.ChannelTrade:
		return stream.NewTradeSubscription(pair, sc.Size, recs.trade.Handler()), nil
	case stream.ChannelOrderBook:
		return stream.NewOrderBookSubscription(pair, sc.Depth, recs.book.Handler()), nil
	case stream.ChannelTicker:
		return stream.NewTickerSubscription(pair, recs.ticker.Handler()), nil
	case stream.ChannelKline:
		return stream.NewKlineSubscription(pair, sc.Size, model.CandleInterval(sc.Interval), recs.candle.Handler()), nil
	default:
		return nil, fmt.Errorf("unknown channel %q", sc.Channel)
	}
}

// createHTTPHandler serves the Prometheus scrape endpoint and a JSON
// health check.
func createHTTPHandler(pool *pgxpool.Pool, mux *stream.Multiplexer, registry *prometheus.Registry, metricsPath string) http.Handler {
	httpMux := http.NewServeMux()

	httpMux.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}

		// Check stream sessions
		st := mux.Stats()
		sessions := make(map[string]int, len(st.Sessions))
		for state, count := range st.Sessions {
			sessions[state.String()] = count
		}
		health.Components["stream"] = map[string]interface{}{
			"groups":        st.Groups,
			"subscriptions": st.Subscriptions,
			"sessions":      sessions,
			"dropped":       st.Dropped,
			"reconnects":    st.Reconnects,
		}
		if st.Sessions[stream.StateFailed] > 0 && health.Status == "healthy" {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return httpMux
}
