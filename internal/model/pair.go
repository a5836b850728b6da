package model

import (
	"fmt"
	"strings"
)

// Pair identifies a traded currency pair.
type Pair struct {
	Base  string // e.g. "ETH"
	Quote string // e.g. "BTC"
}

// NewPair creates a Pair from base and quote currency symbols.
func NewPair(base, quote string) Pair {
	return Pair{Base: base, Quote: quote}
}

// BusinessType returns the Bitforex wire identifier for the pair.
// Pair{ETH, BTC} encodes as "coin-btc-eth".
func (p Pair) BusinessType() string {
	return "coin-" + strings.ToLower(p.Quote) + "-" + strings.ToLower(p.Base)
}

// String returns the wire identifier.
func (p Pair) String() string {
	return p.BusinessType()
}

// ParsePair parses a Bitforex business type ("coin-btc-eth") back into a Pair.
// Symbols come back upper-cased.
func ParsePair(businessType string) (Pair, error) {
	parts := strings.Split(businessType, "-")
	if len(parts) != 3 || parts[0] != "coin" || parts[1] == "" || parts[2] == "" {
		return Pair{}, fmt.Errorf("invalid business type %q (want coin-<quote>-<base>)", businessType)
	}
	return Pair{
		Base:  strings.ToUpper(parts[2]),
		Quote: strings.ToUpper(parts[1]),
	}, nil
}

// CandleInterval is a Bitforex kline interval (kType parameter).
type CandleInterval string

const (
	Interval1Min   CandleInterval = "1min"
	Interval5Min   CandleInterval = "5min"
	Interval15Min  CandleInterval = "15min"
	Interval30Min  CandleInterval = "30min"
	Interval1Hour  CandleInterval = "1hour"
	Interval2Hour  CandleInterval = "2hour"
	Interval4Hour  CandleInterval = "4hour"
	Interval12Hour CandleInterval = "12hour"
	Interval1Day   CandleInterval = "1day"
	Interval1Week  CandleInterval = "1week"
	Interval1Month CandleInterval = "1month"
)

// Valid reports whether the interval is one Bitforex accepts.
func (i CandleInterval) Valid() bool {
	switch i {
	case Interval1Min, Interval5Min, Interval15Min, Interval30Min,
		Interval1Hour, Interval2Hour, Interval4Hour, Interval12Hour,
		Interval1Day, Interval1Week, Interval1Month:
		return true
	}
	return false
}

func (i CandleInterval) String() string {
	return string(i)
}
