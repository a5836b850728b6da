package stream

import (
	"testing"
	"time"
)

func TestReconnectDelay(t *testing.T) {
	cases := []struct {
		name       string
		base, max  time.Duration
		multiplier float64
		attempt    int
		want       time.Duration
	}{
		{"first attempt", time.Second, time.Minute, 2, 1, time.Second},
		{"second doubles", time.Second, time.Minute, 2, 2, 2 * time.Second},
		{"fourth", time.Second, time.Minute, 2, 4, 8 * time.Second},
		{"capped at max", time.Second, time.Minute, 2, 20, time.Minute},
		{"fixed when multiplier one", 5 * time.Second, time.Minute, 1, 7, 5 * time.Second},
		{"multiplier below one treated as one", time.Second, time.Minute, 0, 3, time.Second},
		{"zero base", 0, time.Minute, 2, 3, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := reconnectDelay(tc.base, tc.max, tc.multiplier, tc.attempt)
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	def := DefaultConfig()

	cfg := Config{}.withDefaults()
	if cfg.URL != def.URL {
		t.Errorf("URL = %s, want %s", cfg.URL, def.URL)
	}
	if cfg.HeartbeatInterval != def.HeartbeatInterval {
		t.Errorf("HeartbeatInterval = %v, want %v", cfg.HeartbeatInterval, def.HeartbeatInterval)
	}
	if cfg.BufferSize != def.BufferSize {
		t.Errorf("BufferSize = %d, want %d", cfg.BufferSize, def.BufferSize)
	}

	// Zero caps mean unlimited and must survive defaulting.
	if cfg.MaxPerConnection != 0 {
		t.Errorf("MaxPerConnection = %d, want 0", cfg.MaxPerConnection)
	}
	if cfg.MaxReconnectAttempts != 0 {
		t.Errorf("MaxReconnectAttempts = %d, want 0", cfg.MaxReconnectAttempts)
	}

	// Explicit values survive.
	cfg = Config{URL: "ws://example.test/ws", BufferSize: 5}.withDefaults()
	if cfg.URL != "ws://example.test/ws" {
		t.Errorf("URL overwritten: %s", cfg.URL)
	}
	if cfg.BufferSize != 5 {
		t.Errorf("BufferSize overwritten: %d", cfg.BufferSize)
	}
}
