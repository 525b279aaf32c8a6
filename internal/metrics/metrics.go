// Package metrics exposes Prometheus instrumentation for the synchronizer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the sync job and GC sweeper update,
// registered against a dedicated registry rather than the global default so
// tests can construct one per case without collector-already-registered
// panics.
type Metrics struct {
	Registry *prometheus.Registry

	SyncDuration          prometheus.Histogram
	SyncFilesTransferred  prometheus.Counter
	SyncLastSuccessUnix   prometheus.Gauge
	SyncFailuresTotal     prometheus.Counter
	GCRemovedTotal        prometheus.Counter
	GCRemoveErrorsTotal   prometheus.Counter
}

// New constructs and registers a fresh set of collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Wall-clock time spent in a single sync job.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		SyncFilesTransferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_files_transferred_total",
			Help: "Total number of pool files handed to the external transfer program.",
		}),
		SyncLastSuccessUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of the last sync job that completed successfully.",
		}),
		SyncFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_failures_total",
			Help: "Total number of sync jobs that ended in an error.",
		}),
		GCRemovedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_gc_removed_total",
			Help: "Total number of stale snapshot or pool files removed by the sweeper.",
		}),
		GCRemoveErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_gc_remove_errors_total",
			Help: "Total number of sweeps that ended with at least one non-fatal removal error (several errors in one sweep count once).",
		}),
	}

	reg.MustRegister(
		m.SyncDuration,
		m.SyncFilesTransferred,
		m.SyncLastSuccessUnix,
		m.SyncFailuresTotal,
		m.GCRemovedTotal,
		m.GCRemoveErrorsTotal,
	)
	return m
}
