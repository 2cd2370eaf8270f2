package pathsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "sentry_paths"

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	pushDuration  prometheus.Histogram
	pushFailures  prometheus.Counter
	applyDuration prometheus.Histogram
	applyChanges  prometheus.Histogram
	repairs       prometheus.Counter
	pending       prometheus.Gauge
	lastSent      prometheus.Gauge
	state         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		pushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "push_duration_seconds",
			Help:      "Time spent pushing path updates to the remote service.",
			Buckets:   prometheus.DefBuckets,
		}),
		pushFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "push_failures_total",
			Help:      "Path updates the remote service did not accept.",
		}),
		applyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "apply_local_duration_seconds",
			Help:      "Time spent applying path updates to the local cache.",
			Buckets:   prometheus.DefBuckets,
		}),
		applyChanges: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "apply_local_changes",
			Help:      "Path change entries per update applied locally.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		repairs: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "full_image_repairs_total",
			Help:      "Full images pushed to repair remote divergence.",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_updates",
			Help:      "Updates queued while the path cache bootstraps.",
		}),
		lastSent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_sent_seq_num",
			Help:      "Sequence number of the last update the remote service accepted.",
		}),
		state: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "engine_state",
			Help:      "Engine lifecycle state: 0 uninitialized, 1 draining, 2 ready, 3 failed.",
		}),
	}
}
