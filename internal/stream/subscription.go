package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rickgao/bitforex-stream/internal/model"
)

// Bitforex channel names.
const (
	ChannelOrderBook = "depth10"
	ChannelTicker    = "ticker"
	ChannelKline     = "kline"
	ChannelTrade     = "trade"
)

// Param is a single subscription parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered list of subscription parameters. Order is preserved
// on the wire; identity and inbound matching use the canonical form.
type Params []Param

// MarshalJSON encodes the parameters as a JSON object in declared order.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// canonical returns a key-sorted "k=v&k=v" encoding. Inbound param echoes
// arrive as JSON objects with no defined order, so matching goes through
// this form on both sides.
func (p Params) canonical() string {
	pairs := make([]string, len(p))
	for i, kv := range p {
		pairs[i] = kv.Key + "=" + kv.Value
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// String returns the parameters in declared order, for logs.
func (p Params) String() string {
	pairs := make([]string, len(p))
	for i, kv := range p {
		pairs[i] = kv.Key + "=" + kv.Value
	}
	return strings.Join(pairs, "&")
}

// UpdateHandler receives decoded updates for a subscription.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u Update) error
}

// UpdateHandlerFunc is a function adapter for UpdateHandler.
type UpdateHandlerFunc func(ctx context.Context, u Update) error

func (f UpdateHandlerFunc) HandleUpdate(ctx context.Context, u Update) error {
	return f(ctx, u)
}

// Subscription is a single channel subscription with its parameters and
// the handlers its updates are dispatched to. Immutable once composed.
type Subscription struct {
	channel  string
	params   Params
	handlers []UpdateHandler
}

// NewSubscription creates a subscription for an arbitrary channel.
// The channel-specific constructors below cover the known Bitforex channels.
func NewSubscription(channel string, params Params, handlers ...UpdateHandler) *Subscription {
	p := make(Params, len(params))
	copy(p, params)
	h := make([]UpdateHandler, len(handlers))
	copy(h, handlers)
	return &Subscription{channel: channel, params: p, handlers: h}
}

// NewOrderBookSubscription subscribes to depth10 order book snapshots.
// depth is the Bitforex dType parameter ("0" for the raw book).
func NewOrderBookSubscription(pair model.Pair, depth string, handlers ...UpdateHandler) *Subscription {
	return NewSubscription(ChannelOrderBook, Params{
		{Key: "businessType", Value: pair.BusinessType()},
		{Key: "dType", Value: depth},
	}, handlers...)
}

// NewTradeSubscription subscribes to executed trades. size is the number of
// recent trades the server includes per push.
func NewTradeSubscription(pair model.Pair, size string, handlers ...UpdateHandler) *Subscription {
	return NewSubscription(ChannelTrade, Params{
		{Key: "businessType", Value: pair.BusinessType()},
		{Key: "size", Value: size},
	}, handlers...)
}

// NewTickerSubscription subscribes to the 24h rolling ticker.
func NewTickerSubscription(pair model.Pair, handlers ...UpdateHandler) *Subscription {
	return NewSubscription(ChannelTicker, Params{
		{Key: "businessType", Value: pair.BusinessType()},
	}, handlers...)
}

// NewKlineSubscription subscribes to candlestick updates for the given
// interval. size is the number of bars the server includes per push.
func NewKlineSubscription(pair model.Pair, size string, interval model.CandleInterval, handlers ...UpdateHandler) *Subscription {
	return NewSubscription(ChannelKline, Params{
		{Key: "businessType", Value: pair.BusinessType()},
		{Key: "size", Value: size},
		{Key: "kType", Value: interval.String()},
	}, handlers...)
}

// Channel returns the channel name.
func (s *Subscription) Channel() string {
	return s.channel
}

// Params returns a copy of the subscription parameters.
func (s *Subscription) Params() Params {
	p := make(Params, len(s.params))
	copy(p, s.params)
	return p
}

// Key returns the identity of the subscription: channel plus canonical
// parameters. Two subscriptions with equal keys are duplicates.
func (s *Subscription) Key() string {
	return subscriptionKey(s.channel, s.params.canonical())
}

func subscriptionKey(channel, canonicalParams string) string {
	return channel + "?" + canonicalParams
}
