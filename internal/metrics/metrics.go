// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	CyclesTotal   prometheus.Counter
	CycleErrors   prometheus.Counter
	CycleDuration prometheus.Histogram

	PatchesTotal  *prometheus.CounterVec
	ApplyDuration prometheus.Histogram

	StoreWrites prometheus.Counter
}

// New registers and returns the engine collectors.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "render_cycles_total",
			Help:      "Completed render-diff-apply cycles.",
		}),
		CycleErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "render_cycle_errors_total",
			Help:      "Render cycles that failed and fell back.",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "loom",
			Name:      "render_cycle_duration_seconds",
			Help:      "Duration of one render-diff-apply cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		PatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "patches_total",
			Help:      "Patches emitted by the differ, by operation.",
		}, []string{"op"}),
		ApplyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "loom",
			Name:      "patch_apply_duration_seconds",
			Help:      "Duration of applying one patch list.",
			Buckets:   prometheus.DefBuckets,
		}),
		StoreWrites: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "store_writes_total",
			Help:      "Writes observed on bound store paths.",
		}),
	}
}
