package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rickgao/bitforex-stream/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *GathererConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Exchange.WSURL == "" {
		return errors.New("exchange.ws_url is required")
	}

	if c.Stream.MaxPerConnection < 0 {
		return errors.New("stream.max_per_connection must be >= 0")
	}
	if c.Stream.ReconnectMultiplier < 1 {
		return fmt.Errorf("stream.reconnect_multiplier must be >= 1, got %g", c.Stream.ReconnectMultiplier)
	}
	if c.Stream.MaxReconnectAttempts < 0 {
		return errors.New("stream.max_reconnect_attempts must be >= 0")
	}

	if len(c.Subscriptions) == 0 {
		return errors.New("at least one subscription is required")
	}
	for i := range c.Subscriptions {
		if err := c.Subscriptions[i].validate(fmt.Sprintf("subscriptions[%d]", i)); err != nil {
			return err
		}
	}

	if err := c.Database.Timescale.validate("database.timescale"); err != nil {
		return err
	}

	if c.Recorder.BatchSize < 1 {
		return errors.New("recorder.batch_size must be >= 1")
	}
	if c.Recorder.BufferSize < 1 {
		return errors.New("recorder.buffer_size must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (s *SubscriptionConfig) validate(prefix string) error {
	switch s.Channel {
	case "depth10", "ticker", "kline", "trade":
	case "":
		return fmt.Errorf("%s.channel is required", prefix)
	default:
		return fmt.Errorf("%s.channel %q is not one of depth10, ticker, kline, trade", prefix, s.Channel)
	}

	base, quote, ok := strings.Cut(s.Pair, "/")
	if !ok || base == "" || quote == "" {
		return fmt.Errorf("%s.pair %q must be BASE/QUOTE", prefix, s.Pair)
	}

	if s.Channel == "kline" {
		if s.Interval == "" {
			return fmt.Errorf("%s.interval is required for kline", prefix)
		}
		if !model.CandleInterval(s.Interval).Valid() {
			return fmt.Errorf("%s.interval %q is not a valid kline interval", prefix, s.Interval)
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
