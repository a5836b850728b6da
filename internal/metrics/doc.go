// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Session states, frame and dispatch rates, reconnect counts
//   - Recorder insert/conflict/error counters per channel
//   - Recorder buffer depth and capacity
//
// The Collector reads component statistics at scrape time rather than
// owning counters itself.
package metrics
