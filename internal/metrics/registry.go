package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics
type Registry struct {
	subscriptionsActive      prometheus.Gauge
	monitoredItemsActive     prometheus.Gauge
	notificationsEmitted     *prometheus.CounterVec
	publishRequestsCredited  prometheus.Counter
	publishRequestsConsumed  prometheus.Counter
	subscriptionsExpired     prometheus.Counter
	tickDuration             prometheus.Histogram
	republishRequests        *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{
		subscriptionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "subscriptions_active",
			Help: "Current number of registered subscriptions",
		}),
		monitoredItemsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "monitored_items_active",
			Help: "Current number of monitored items across all subscriptions",
		}),
		notificationsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_emitted_total",
			Help: "Total number of notifications emitted, by channel",
		}, []string{"channel"}),
		publishRequestsCredited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "publish_requests_credited_total",
			Help: "Total number of Publish requests credited to a session",
		}),
		publishRequestsConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "publish_requests_consumed_total",
			Help: "Total number of Publish requests consumed by an emission",
		}),
		subscriptionsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Total number of subscriptions that stopped due to lifetime exhaustion",
		}),
		tickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tick_duration_seconds",
			Help:    "Duration of a subscription's periodic tick decision procedure",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		republishRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "republish_requests_total",
			Help: "Total number of Republish requests, by result",
		}, []string{"result"}),
	}
}

// IncNotificationsEmitted increments the emitted-notifications counter for
// the given channel ("data_change", "event", or "keep_alive").
func (r *Registry) IncNotificationsEmitted(channel string) {
	r.notificationsEmitted.WithLabelValues(channel).Inc()
}

// IncPublishRequestsCredited increments the publish-request-credited counter.
func (r *Registry) IncPublishRequestsCredited() {
	r.publishRequestsCredited.Inc()
}

// IncPublishRequestsConsumed increments the publish-request-consumed counter.
func (r *Registry) IncPublishRequestsConsumed() {
	r.publishRequestsConsumed.Inc()
}

// IncSubscriptionsExpired increments the subscriptions-expired counter.
func (r *Registry) IncSubscriptionsExpired() {
	r.subscriptionsExpired.Inc()
}

// ObserveTickDuration records how long a tick's decision procedure took.
func (r *Registry) ObserveTickDuration(seconds float64) {
	r.tickDuration.Observe(seconds)
}

// IncRepublishRequests increments the republish-requests counter for the
// given result ("ok" or "not_available").
func (r *Registry) IncRepublishRequests(result string) {
	r.republishRequests.WithLabelValues(result).Inc()
}

// SetActiveSubscriptions sets the current subscription count.
func (r *Registry) SetActiveSubscriptions(n int) {
	r.subscriptionsActive.Set(float64(n))
}

// SetActiveMonitoredItems sets the current monitored-item count.
func (r *Registry) SetActiveMonitoredItems(n int) {
	r.monitoredItemsActive.Set(float64(n))
}
