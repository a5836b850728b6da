package config

import "time"

// GathererConfig is the root configuration for a gatherer instance.
type GathererConfig struct {
	Instance      InstanceConfig       `yaml:"instance"`
	Exchange      ExchangeConfig       `yaml:"exchange"`
	Stream        StreamConfig         `yaml:"stream"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Database      DatabaseConfig       `yaml:"database"`
	Recorder      RecorderConfig       `yaml:"recorder"`
	Metrics       MetricsConfig        `yaml:"metrics"`
}

// InstanceConfig identifies this gatherer.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// ExchangeConfig holds Bitforex endpoint settings. The API key is carried
// for private channels; the public market data channels never send it.
type ExchangeConfig struct {
	WSURL  string `yaml:"ws_url"`
	APIKey string `yaml:"api_key"`
}

// StreamConfig holds websocket multiplexer settings.
type StreamConfig struct {
	MaxPerConnection     int           `yaml:"max_per_connection"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	SubscribeTimeout     time.Duration `yaml:"subscribe_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeat_timeout"`
	AckOnTraffic         bool          `yaml:"ack_on_traffic"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	ReconnectMultiplier  float64       `yaml:"reconnect_multiplier"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	BufferSize           int           `yaml:"buffer_size"`
}

// SubscriptionConfig declares one market data subscription.
//
// Channel selects the Bitforex channel (depth10, ticker, kline, trade);
// Pair is BASE/QUOTE ("ETH/BTC"). Depth applies to depth10, Size to trade
// and kline, Interval to kline. Subscriptions sharing a non-empty Bundle
// label are pinned to one connection.
type SubscriptionConfig struct {
	Channel  string `yaml:"channel"`
	Pair     string `yaml:"pair"`
	Depth    string `yaml:"depth"`
	Size     string `yaml:"size"`
	Interval string `yaml:"interval"`
	Bundle   string `yaml:"bundle"`
}

// DatabaseConfig holds the TimescaleDB connection for time-series data.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RecorderConfig holds batch recorder settings.
type RecorderConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
