package stream

import "time"

// DefaultURL is the Bitforex market-data websocket endpoint.
const DefaultURL = "wss://www.bitforex.com/mkapi/coinGroup1/ws"

// Config configures the multiplexer and every session it runs.
type Config struct {
	URL string // WebSocket URL

	ConnectTimeout   time.Duration // Deadline for dial + upgrade
	SubscribeTimeout time.Duration // Write deadline for subscribe frames
	WriteTimeout     time.Duration // Write deadline for all other sends

	HeartbeatInterval time.Duration // Time between ping_p frames
	HeartbeatTimeout  time.Duration // Max wait for an ack after a ping
	AckOnTraffic      bool          // Treat any inbound frame as a heartbeat ack

	MaxPerConnection int // Max subscriptions per flat-composed connection (0 = unlimited)

	ReconnectBaseWait    time.Duration // First reconnect delay
	ReconnectMaxWait     time.Duration // Delay cap
	ReconnectMultiplier  float64       // Delay growth per attempt (1 = fixed)
	MaxReconnectAttempts int           // Consecutive failures before a session fails (0 = unlimited)

	BufferSize int // Per-session inbound frame buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:                  DefaultURL,
		ConnectTimeout:       10 * time.Second,
		SubscribeTimeout:     5 * time.Second,
		WriteTimeout:         5 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		HeartbeatTimeout:     10 * time.Second,
		ReconnectBaseWait:    1 * time.Second,
		ReconnectMaxWait:     60 * time.Second,
		ReconnectMultiplier:  2,
		MaxReconnectAttempts: 10,
		BufferSize:           1000,
	}
}

// withDefaults fills zero timing and buffer fields from DefaultConfig.
// MaxPerConnection and MaxReconnectAttempts keep their zero values,
// which mean unlimited.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.URL == "" {
		c.URL = def.URL
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = def.SubscribeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.ReconnectBaseWait <= 0 {
		c.ReconnectBaseWait = def.ReconnectBaseWait
	}
	if c.ReconnectMaxWait <= 0 {
		c.ReconnectMaxWait = def.ReconnectMaxWait
	}
	if c.ReconnectMultiplier < 1 {
		c.ReconnectMultiplier = def.ReconnectMultiplier
	}
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	return c
}

// Credentials carries the opaque API key handed to sessions at start.
// The public market-data channels never transmit it; private channels
// would include it in their subscribe parameters.
type Credentials struct {
	APIKey string
}

// reconnectDelay returns the backoff before reconnect attempt n (1-based):
// base * multiplier^(n-1), capped at max. A multiplier of 1 or less gives a
// fixed delay. Pure function of its inputs.
func reconnectDelay(base, max time.Duration, multiplier float64, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if multiplier < 1 {
		multiplier = 1
	}

	wait := float64(base)
	for i := 1; i < attempt; i++ {
		wait *= multiplier
		if max > 0 && wait >= float64(max) {
			return max
		}
	}
	if max > 0 && wait > float64(max) {
		return max
	}
	return time.Duration(wait)
}
