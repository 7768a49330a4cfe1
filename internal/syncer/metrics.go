package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch results recorded under the "result" label.
const (
	resultOK      = "ok"
	resultFailed  = "failed"
	resultDropped = "dropped"
)

// Metrics are the pipeline's Prometheus collectors.
type Metrics struct {
	notifications  prometheus.Counter
	fetches        *prometheus.CounterVec
	discarded      prometheus.Counter
	writeErrors    prometheus.Counter
	entries        *prometheus.CounterVec
	stale          prometheus.Gauge
	pendingBundles prometheus.Gauge
}

// NewMetrics registers the pipeline collectors with reg. A nil reg uses a
// private registry, which keeps tests from colliding on the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		notifications: f.NewCounter(prometheus.CounterOpts{
			Name: "realmsync_sync_notifications_total",
			Help: "Push notifications received",
		}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realmsync_sync_fetches_total",
			Help: "Pull fetches by result (ok, failed, dropped)",
		}, []string{"result"}),
		discarded: f.NewCounter(prometheus.CounterOpts{
			Name: "realmsync_sync_discarded_total",
			Help: "Pulled values discarded because a newer value was already applied",
		}),
		writeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "realmsync_sync_write_errors_total",
			Help: "Pulled values rejected by the store",
		}),
		entries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realmsync_feed_entries_total",
			Help: "Rolling log entries by pattern",
		}, []string{"pattern"}),
		stale: f.NewGauge(prometheus.GaugeOpts{
			Name: "realmsync_sync_stale_entities",
			Help: "Entities whose last pull failed after all retries",
		}),
		pendingBundles: f.NewGauge(prometheus.GaugeOpts{
			Name: "realmsync_feed_pending_bundles",
			Help: "Entities with a partially entered relevance bundle",
		}),
	}
}
