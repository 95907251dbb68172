// Package observability provides Prometheus metrics for the sync and analytics engines.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Sync metrics
	SyncRuns           *prometheus.CounterVec
	SyncDuration       *prometheus.HistogramVec
	SyncDropped        prometheus.Counter
	PagesFetched       *prometheus.CounterVec
	ReadingsFetched    prometheus.Counter
	StoredReadings     prometheus.Gauge
	LastSuccessfulSync prometheus.Gauge

	// Analytics metrics
	AnalyticsBuilds        prometheus.Counter
	AnalyticsBuildDuration prometheus.Histogram
	FullDays               prometheus.Gauge
}

// NewMetrics registers all collectors on reg (the default registerer when nil).
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "energy_consumption"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SyncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by mode and result",
		}, []string{"mode", "result"}),
		SyncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of sync runs",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"mode"}),
		SyncDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "dropped_triggers_total",
			Help:      "Sync triggers dropped because a run was already in flight",
		}),
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pages_fetched_total",
			Help:      "Pages requested from the remote source by direction and result",
		}, []string{"direction", "result"}),
		ReadingsFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "readings_fetched_total",
			Help:      "Readings received from the remote source",
		}),
		StoredReadings: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "readings",
			Help:      "Readings currently held by the store",
		}),
		LastSuccessfulSync: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful sync run",
		}),
		AnalyticsBuilds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "builds_total",
			Help:      "Analytics snapshot rebuilds",
		}),
		AnalyticsBuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "build_duration_seconds",
			Help:      "Duration of analytics snapshot rebuilds",
			Buckets:   prometheus.DefBuckets,
		}),
		FullDays: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "full_days",
			Help:      "Full days in the current analytics snapshot",
		}),
	}
}

// ObserveSync records the outcome of one sync run.
func (m *Metrics) ObserveSync(mode, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(mode, result).Inc()
	m.SyncDuration.WithLabelValues(mode).Observe(d.Seconds())
	if result == "success" {
		m.LastSuccessfulSync.SetToCurrentTime()
	}
}

// ObservePage records one page request.
func (m *Metrics) ObservePage(direction string, readings int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PagesFetched.WithLabelValues(direction, "error").Inc()
		return
	}
	m.PagesFetched.WithLabelValues(direction, "success").Inc()
	m.ReadingsFetched.Add(float64(readings))
}

// DropTrigger counts a trigger rejected by the single-flight guard.
func (m *Metrics) DropTrigger() {
	if m == nil {
		return
	}
	m.SyncDropped.Inc()
}

// SetStored updates the stored readings gauge.
func (m *Metrics) SetStored(n int) {
	if m == nil {
		return
	}
	m.StoredReadings.Set(float64(n))
}

// ObserveBuild records one analytics rebuild.
func (m *Metrics) ObserveBuild(fullDays int, d time.Duration) {
	if m == nil {
		return
	}
	m.AnalyticsBuilds.Inc()
	m.AnalyticsBuildDuration.Observe(d.Seconds())
	m.FullDays.Set(float64(fullDays))
}
