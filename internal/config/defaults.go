package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL                = "wss://www.bitforex.com/mkapi/coinGroup1/ws"
	DefaultConnectTimeout       = 10 * time.Second
	DefaultSubscribeTimeout     = 5 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultHeartbeatTimeout     = 10 * time.Second
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 60 * time.Second
	DefaultReconnectMultiplier  = 2.0
	DefaultMaxReconnectAttempts = 10
	DefaultStreamBufferSize     = 1000
	DefaultOrderBookDepth       = "0"
	DefaultTradeSize            = "20"
	DefaultKlineSize            = "1"
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 1000
	DefaultFlushInterval        = 1 * time.Second
	DefaultRecorderBufferSize   = 10000
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
)

func (c *GathererConfig) applyDefaults() {
	// Exchange defaults
	if c.Exchange.WSURL == "" {
		c.Exchange.WSURL = DefaultWSURL
	}

	// Stream defaults
	if c.Stream.ConnectTimeout == 0 {
		c.Stream.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Stream.SubscribeTimeout == 0 {
		c.Stream.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.HeartbeatInterval == 0 {
		c.Stream.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Stream.HeartbeatTimeout == 0 {
		c.Stream.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.ReconnectMultiplier == 0 {
		c.Stream.ReconnectMultiplier = DefaultReconnectMultiplier
	}
	if c.Stream.MaxReconnectAttempts == 0 {
		c.Stream.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBufferSize
	}

	// Per-subscription defaults
	for i := range c.Subscriptions {
		s := &c.Subscriptions[i]
		switch s.Channel {
		case "depth10":
			if s.Depth == "" {
				s.Depth = DefaultOrderBookDepth
			}
		case "trade":
			if s.Size == "" {
				s.Size = DefaultTradeSize
			}
		case "kline":
			if s.Size == "" {
				s.Size = DefaultKlineSize
			}
		}
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultRecorderBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
