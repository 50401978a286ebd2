// Package metrics exposes Prometheus instrumentation for the ledger and the
// fair lifecycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recording paths of a sale.
const (
	PathOnline   = "online"
	PathQueued   = "queued"
	PathFallback = "fallback"
)

// LedgerMetrics tracks sale recording and offline replay.
type LedgerMetrics struct {
	recorded *prometheus.CounterVec
	drained  prometheus.Counter
	pending  prometheus.Gauge
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	recorded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feria_sales_recorded_total",
		Help: "Sales accepted by the ledger, by recording path.",
	}, []string{"path"})
	drained := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feria_sales_drained_total",
		Help: "Queued sales replayed to the store.",
	})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feria_sales_pending",
		Help: "Sales waiting in the local queue.",
	})
	reg.MustRegister(recorded, drained, pending)
	return &LedgerMetrics{recorded: recorded, drained: drained, pending: pending}
}

// IncRecorded counts one sale on the given path.
func (m *LedgerMetrics) IncRecorded(path string) {
	if m == nil || m.recorded == nil {
		return
	}
	m.recorded.WithLabelValues(normalizeLabel(path)).Inc()
}

// AddDrained counts replayed sales.
func (m *LedgerMetrics) AddDrained(n int) {
	if m == nil || m.drained == nil || n <= 0 {
		return
	}
	m.drained.Add(float64(n))
}

// SetPending records the current queue depth.
func (m *LedgerMetrics) SetPending(n int) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(n))
}

// LifecycleMetrics records administrative fair operations.
type LifecycleMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewLifecycleMetrics registers the lifecycle metrics on the provided registerer.
func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	if reg == nil {
		return &LifecycleMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feria_lifecycle_duration_seconds",
		Help:    "Duration of lifecycle operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feria_lifecycle_success",
		Help: "Successful lifecycle operations.",
	}, []string{"op"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feria_lifecycle_failure",
		Help: "Failed lifecycle operations.",
	}, []string{"op"})
	reg.MustRegister(duration, success, failure)
	return &LifecycleMetrics{duration: duration, success: success, failure: failure}
}

// Observe records the outcome and duration of op.
func (m *LifecycleMetrics) Observe(op string, started time.Time, err error) {
	if m == nil || m.duration == nil {
		return
	}
	label := normalizeLabel(op)
	m.duration.WithLabelValues(label).Observe(time.Since(started).Seconds())
	if err != nil {
		m.failure.WithLabelValues(label).Inc()
		return
	}
	m.success.WithLabelValues(label).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
