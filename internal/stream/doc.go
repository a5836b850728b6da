// Package stream multiplexes Bitforex market data subscriptions over
// websocket connections.
//
// Callers register subscriptions with ComposeSubscriptions (packed up to
// the per-connection cap) or ComposeBundle (pinned to one shared
// connection), then call StartSubscriptions to open every planned
// session at once. Each session subscribes in registration order, keeps
// the connection alive with the exchange's ping_p/pong_p heartbeat, and
// reconnects with exponential backoff when the connection drops.
// Inbound frames are matched back to their subscription by channel and
// parameter echo and dispatched synchronously to the subscription's
// handlers in arrival order.
package stream
