// Package metrics provides Prometheus instrumentation for the core
// components. All methods are nil-safe so instrumentation stays optional.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for the client core.
type Metrics struct {
	downloadsStarted   prometheus.Counter
	downloadsCompleted prometheus.Counter
	downloadsFailed    prometheus.Counter
	downloadsBusy      prometheus.Counter
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	reconcileTicks     prometheus.Counter
	reconcileApprovals prometheus.Counter
	tracksOffline      prometheus.Gauge
}

// New creates the metric set and registers it on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		downloadsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offtrack", Subsystem: "downloads",
			Name: "started_total", Help: "Downloads accepted for execution.",
		}),
		downloadsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offtrack", Subsystem: "downloads",
			Name: "completed_total", Help: "Downloads completed successfully.",
		}),
		downloadsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offtrack", Subsystem: "downloads",
			Name: "failed_total", Help: "Downloads that ended in failure.",
		}),
		downloadsBusy: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offtrack", Subsystem: "downloads",
			Name: "rejected_busy_total", Help: "Downloads rejected by the single-flight policy.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offtrack", Subsystem: "cache",
			Name: "hits_total", Help: "Ephemeral cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offtrack", Subsystem: "cache",
			Name: "misses_total", Help: "Ephemeral cache misses.",
		}),
		reconcileTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offtrack", Subsystem: "reconcile",
			Name: "ticks_total", Help: "Reconciliation ticks executed.",
		}),
		reconcileApprovals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offtrack", Subsystem: "reconcile",
			Name: "approvals_total", Help: "Pending records flipped to approved.",
		}),
		tracksOffline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "offtrack", Subsystem: "library",
			Name: "tracks_offline", Help: "Tracks currently available offline.",
		}),
	}

	reg.MustRegister(
		m.downloadsStarted, m.downloadsCompleted, m.downloadsFailed,
		m.downloadsBusy, m.cacheHits, m.cacheMisses,
		m.reconcileTicks, m.reconcileApprovals, m.tracksOffline,
	)
	return m
}

// DownloadStarted increments the started counter.
func (m *Metrics) DownloadStarted() {
	if m != nil {
		m.downloadsStarted.Inc()
	}
}

// DownloadCompleted increments the completed counter.
func (m *Metrics) DownloadCompleted() {
	if m != nil {
		m.downloadsCompleted.Inc()
	}
}

// DownloadFailed increments the failed counter.
func (m *Metrics) DownloadFailed() {
	if m != nil {
		m.downloadsFailed.Inc()
	}
}

// DownloadBusy increments the busy-rejection counter.
func (m *Metrics) DownloadBusy() {
	if m != nil {
		m.downloadsBusy.Inc()
	}
}

// CacheHit increments the cache hit counter.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

// CacheMiss increments the cache miss counter.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

// ReconcileTick increments the tick counter.
func (m *Metrics) ReconcileTick() {
	if m != nil {
		m.reconcileTicks.Inc()
	}
}

// ReconcileApproval increments the approval counter.
func (m *Metrics) ReconcileApproval() {
	if m != nil {
		m.reconcileApprovals.Inc()
	}
}

// SetTracksOffline records the current offline track count.
func (m *Metrics) SetTracksOffline(n int) {
	if m != nil {
		m.tracksOffline.Set(float64(n))
	}
}
