// Package metrics exports the control plane's Prometheus metrics: the
// OS-facing analogue of a telemetry-collector metrics module, covering
// pipeline latency, drift, probation, rollback, and reconciliation
// activity.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector the control plane exports. Callers
// register it once against a prometheus.Registerer at startup.
type Registry struct {
	PipelineLatencyMs prometheus.Histogram
	DriftCount        prometheus.Counter
	ProbationCount    prometheus.Gauge
	RollbackActive    prometheus.Gauge
	ReconcileTicks    prometheus.Counter
	ReconcileApplied  prometheus.Counter
	ArbiterApproved   prometheus.Counter
	ArbiterRejected   *prometheus.CounterVec
}

// New constructs a Registry of unregistered collectors.
func New() *Registry {
	return &Registry{
		PipelineLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "zereca",
			Subsystem: "pipeline",
			Name:      "latency_ms",
			Help:      "Sensitivity Pipeline per-event processing latency in milliseconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		DriftCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zereca",
			Subsystem: "reconciler",
			Name:      "drift_total",
			Help:      "Cumulative count of fields found drifted from the Target State.",
		}),
		ProbationCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zereca",
			Subsystem: "probation",
			Name:      "entries",
			Help:      "Current number of entries in the Probation Ledger.",
		}),
		RollbackActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zereca",
			Subsystem: "rollback",
			Name:      "active",
			Help:      "1 while Emergency Rollback is in effect and un-acknowledged, else 0.",
		}),
		ReconcileTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zereca",
			Subsystem: "reconciler",
			Name:      "ticks_total",
			Help:      "Cumulative number of reconciliation ticks run.",
		}),
		ReconcileApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zereca",
			Subsystem: "reconciler",
			Name:      "applied_total",
			Help:      "Cumulative number of OS-state corrections applied by the Reconciler.",
		}),
		ArbiterApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zereca",
			Subsystem: "arbiter",
			Name:      "approved_total",
			Help:      "Cumulative number of proposals the Arbiter approved.",
		}),
		ArbiterRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zereca",
			Subsystem: "arbiter",
			Name:      "rejected_total",
			Help:      "Cumulative number of proposals the Arbiter rejected, by reason.",
		}, []string{"reason"}),
	}
}

// MustRegister registers every collector against reg, panicking on a
// duplicate-registration error (a programmer error, not a runtime one).
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		r.PipelineLatencyMs,
		r.DriftCount,
		r.ProbationCount,
		r.RollbackActive,
		r.ReconcileTicks,
		r.ReconcileApplied,
		r.ArbiterApproved,
		r.ArbiterRejected,
	)
}

// SetRollbackActive sets the rollback-active gauge from a bool.
func (r *Registry) SetRollbackActive(active bool) {
	if active {
		r.RollbackActive.Set(1)
		return
	}
	r.RollbackActive.Set(0)
}
