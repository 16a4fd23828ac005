// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsReceived  *prometheus.CounterVec // by notification kind
	EventsDropped   *prometheus.CounterVec // by notification kind
	EventsRecorded  *prometheus.CounterVec // by event type
	InsertFailures  *prometheus.CounterVec // by failing step
	PublishFailures prometheus.Counter

	// Histograms (seconds)
	InsertDuration prometheus.Observer

	// Gauges
	DBOpenConnections  prometheus.Gauge
	DBInUseConnections prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{Name: "guild_events_received_total", Help: "Gateway notifications received"}, []string{"kind"})
		EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "guild_events_dropped_total", Help: "Notifications dropped as out of scope or unclassified"}, []string{"kind"})
		EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{Name: "guild_events_recorded_total", Help: "Event records stored"}, []string{"type"})
		InsertFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "guild_event_insert_failures_total", Help: "Event inserts that failed"}, []string{"op"})
		PublishFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "guild_event_publish_failures_total", Help: "Stored events that could not be published"})
		InsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "guild_event_insert_duration_seconds", Help: "Event insert duration seconds", Buckets: prometheus.DefBuckets})
		DBOpenConnections = promauto.NewGauge(prometheus.GaugeOpts{Name: "guild_db_open_connections", Help: "Open connections in the database pool"})
		DBInUseConnections = promauto.NewGauge(prometheus.GaugeOpts{Name: "guild_db_in_use_connections", Help: "Database pool connections currently in use"})
	})
}

// UpdateDatabasePoolMetrics records the pool's open and in-use connection counts.
func UpdateDatabasePoolMetrics(open, inUse int) {
	if DBOpenConnections != nil {
		DBOpenConnections.Set(float64(open))
	}
	if DBInUseConnections != nil {
		DBInUseConnections.Set(float64(inUse))
	}
}

// IncVec increments the labelled counter if metrics are initialized.
func IncVec(vec *prometheus.CounterVec, label string) {
	if vec != nil {
		vec.WithLabelValues(label).Inc()
	}
}

// IncPublishFailures counts a failed publish if metrics are initialized.
func IncPublishFailures() {
	if PublishFailures != nil {
		PublishFailures.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
