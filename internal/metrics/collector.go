package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/bitforex-stream/internal/recorder"
	"github.com/rickgao/bitforex-stream/internal/stream"
)

// StreamSource is the multiplexer surface the collector reads.
type StreamSource interface {
	Stats() stream.Stats
}

// RecorderSource is the stats surface shared by all recorders.
type RecorderSource interface {
	Stats() recorder.Metrics
	BufferStats() recorder.BufferStats
}

var (
	descGroups = prometheus.NewDesc(
		"bitforex_stream_connection_groups",
		"Planned WebSocket connection groups.",
		nil, nil,
	)
	descSubscriptions = prometheus.NewDesc(
		"bitforex_stream_subscriptions",
		"Composed channel subscriptions.",
		nil, nil,
	)
	descSessions = prometheus.NewDesc(
		"bitforex_stream_sessions",
		"Socket sessions by state.",
		[]string{"state"}, nil,
	)
	descFrames = prometheus.NewDesc(
		"bitforex_stream_frames_total",
		"Raw frames read across all sessions.",
		nil, nil,
	)
	descDispatched = prometheus.NewDesc(
		"bitforex_stream_updates_dispatched_total",
		"Updates delivered to subscription handlers.",
		nil, nil,
	)
	descDropped = prometheus.NewDesc(
		"bitforex_stream_frames_dropped_total",
		"Frames dropped as malformed, unmatched or on buffer overflow.",
		nil, nil,
	)
	descReconnects = prometheus.NewDesc(
		"bitforex_stream_reconnects_total",
		"Reconnect cycles across all sessions.",
		nil, nil,
	)

	descInserts = prometheus.NewDesc(
		"bitforex_recorder_rows_inserted_total",
		"Rows written to the database.",
		[]string{"channel"}, nil,
	)
	descConflicts = prometheus.NewDesc(
		"bitforex_recorder_conflicts_total",
		"Rows skipped as duplicates at insert time.",
		[]string{"channel"}, nil,
	)
	descInsertErrors = prometheus.NewDesc(
		"bitforex_recorder_insert_errors_total",
		"Failed batch inserts.",
		[]string{"channel"}, nil,
	)
	descFlushes = prometheus.NewDesc(
		"bitforex_recorder_flushes_total",
		"Batch flushes to the database.",
		[]string{"channel"}, nil,
	)
	descDecoded = prometheus.NewDesc(
		"bitforex_recorder_decoded_total",
		"Decoded rows accepted into the recorder buffer.",
		[]string{"channel"}, nil,
	)
	descBufferDepth = prometheus.NewDesc(
		"bitforex_recorder_buffer_depth",
		"Rows waiting in the recorder buffer.",
		[]string{"channel"}, nil,
	)
	descBufferCapacity = prometheus.NewDesc(
		"bitforex_recorder_buffer_capacity",
		"Current capacity of the recorder buffer.",
		[]string{"channel"}, nil,
	)
)

// Collector exposes multiplexer and recorder statistics as Prometheus
// metrics. Counters live in the components themselves; the collector
// snapshots them at scrape time, so there is nothing to increment here.
type Collector struct {
	stream StreamSource

	mu        sync.Mutex
	recorders map[string]RecorderSource
}

// NewCollector creates a collector reading from the given multiplexer.
func NewCollector(stream StreamSource) *Collector {
	return &Collector{
		stream:    stream,
		recorders: make(map[string]RecorderSource),
	}
}

// AddRecorder registers a recorder under its channel label.
func (c *Collector) AddRecorder(channel string, rec RecorderSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorders[channel] = rec
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descGroups
	ch <- descSubscriptions
	ch <- descSessions
	ch <- descFrames
	ch <- descDispatched
	ch <- descDropped
	ch <- descReconnects
	ch <- descInserts
	ch <- descConflicts
	ch <- descInsertErrors
	ch <- descFlushes
	ch <- descDecoded
	ch <- descBufferDepth
	ch <- descBufferCapacity
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.stream.Stats()

	ch <- prometheus.MustNewConstMetric(descGroups, prometheus.GaugeValue, float64(st.Groups))
	ch <- prometheus.MustNewConstMetric(descSubscriptions, prometheus.GaugeValue, float64(st.Subscriptions))
	for state, count := range st.Sessions {
		ch <- prometheus.MustNewConstMetric(descSessions, prometheus.GaugeValue, float64(count), state.String())
	}
	ch <- prometheus.MustNewConstMetric(descFrames, prometheus.CounterValue, float64(st.Frames))
	ch <- prometheus.MustNewConstMetric(descDispatched, prometheus.CounterValue, float64(st.Dispatched))
	ch <- prometheus.MustNewConstMetric(descDropped, prometheus.CounterValue, float64(st.Dropped))
	ch <- prometheus.MustNewConstMetric(descReconnects, prometheus.CounterValue, float64(st.Reconnects))

	c.mu.Lock()
	defer c.mu.Unlock()
	for channel, rec := range c.recorders {
		m := rec.Stats()
		b := rec.BufferStats()
		ch <- prometheus.MustNewConstMetric(descInserts, prometheus.CounterValue, float64(m.Inserts), channel)
		ch <- prometheus.MustNewConstMetric(descConflicts, prometheus.CounterValue, float64(m.Conflicts), channel)
		ch <- prometheus.MustNewConstMetric(descInsertErrors, prometheus.CounterValue, float64(m.Errors), channel)
		ch <- prometheus.MustNewConstMetric(descFlushes, prometheus.CounterValue, float64(m.Flushes), channel)
		ch <- prometheus.MustNewConstMetric(descDecoded, prometheus.CounterValue, float64(b.TotalIn), channel)
		ch <- prometheus.MustNewConstMetric(descBufferDepth, prometheus.GaugeValue, float64(b.Count), channel)
		ch <- prometheus.MustNewConstMetric(descBufferCapacity, prometheus.GaugeValue, float64(b.Capacity), channel)
	}
}
