// Package metrics defines the Prometheus instrumentation for the telemetry
// pipeline: generation counters, session gauges, store occupancy, and trend
// query timings.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for VitalStream
type Metrics struct {
	// Counters
	ReadingsGenerated *prometheus.CounterVec
	EmitFailures      prometheus.Counter
	AppendFailures    prometheus.Counter
	SessionsStarted   prometheus.Counter
	TrendQueries      *prometheus.CounterVec

	// Gauges
	SessionsActive prometheus.Gauge
	StoreRecords   prometheus.Gauge
	StoreBytes     prometheus.Gauge
	StoreEvictions prometheus.Gauge

	// Histograms
	TrendQueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	return &Metrics{
		ReadingsGenerated: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalstream_readings_generated_total",
				Help: "Total number of synthetic readings generated",
			},
			[]string{"patient"},
		),

		EmitFailures: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "vitalstream_emit_failures_total",
				Help: "Total number of readings that could not be delivered to a subscriber",
			},
		),

		AppendFailures: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "vitalstream_store_append_failures_total",
				Help: "Total number of readings that could not be persisted",
			},
		),

		SessionsStarted: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "vitalstream_sessions_started_total",
				Help: "Total number of live stream sessions opened",
			},
		),

		TrendQueries: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalstream_trend_queries_total",
				Help: "Total number of trend queries by outcome",
			},
			[]string{"metric", "range", "status"},
		),

		SessionsActive: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "vitalstream_sessions_active",
				Help: "Number of currently connected live stream sessions",
			},
		),

		StoreRecords: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "vitalstream_store_records",
				Help: "Current number of readings held by the history store",
			},
		),

		StoreBytes: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "vitalstream_store_bytes",
				Help: "Current byte footprint of the history store",
			},
		),

		StoreEvictions: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "vitalstream_store_evictions",
				Help: "Cumulative number of readings evicted by the history store",
			},
		),

		TrendQueryDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitalstream_trend_query_duration_seconds",
				Help:    "Trend query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
	}
}

// RecordReading records one generated reading for a patient
func (m *Metrics) RecordReading(patientID string) {
	m.ReadingsGenerated.WithLabelValues(patientID).Inc()
}

// SessionOpened tracks a new live stream session
func (m *Metrics) SessionOpened() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// SessionClosed tracks a terminated live stream session
func (m *Metrics) SessionClosed() {
	m.SessionsActive.Dec()
}

// UpdateStoreStats publishes the history store's current occupancy
func (m *Metrics) UpdateStoreStats(records int, bytes int64, evictions uint64) {
	m.StoreRecords.Set(float64(records))
	m.StoreBytes.Set(float64(bytes))
	m.StoreEvictions.Set(float64(evictions))
}

// RecordTrendQuery records one served or failed trend query
func (m *Metrics) RecordTrendQuery(metric, trendRange, status string, duration time.Duration) {
	m.TrendQueries.WithLabelValues(metric, trendRange, status).Inc()
	m.TrendQueryDuration.WithLabelValues(metric).Observe(duration.Seconds())
}
