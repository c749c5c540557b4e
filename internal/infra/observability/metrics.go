package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration   *prometheus.HistogramVec
	mutations           *prometheus.CounterVec
	persistenceFailures *prometheus.CounterVec
	ordersPlaced        prometheus.Counter
	statusTransitions   *prometheus.CounterVec
	notifications       *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	logins              *prometheus.CounterVec
}

// MetricsSnapshot is a point-in-time read of the main counters.
type MetricsSnapshot struct {
	OrdersPlaced        float64 `json:"ordersPlaced"`
	PersistenceFailures float64 `json:"persistenceFailures"`
	Delivered           float64 `json:"delivered"`
	IdempotentReplays   float64 `json:"idempotentReplays"`
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "burger_operation_duration_seconds",
				Help:    "Duration of core operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		mutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burger_mutations_total",
				Help: "Total successful store mutations.",
			},
			[]string{"entity", "op"},
		),
		persistenceFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burger_persistence_failures_total",
				Help: "Total substrate read/write failures.",
			},
			[]string{"op"},
		),
		ordersPlaced: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "burger_orders_placed_total",
				Help: "Total orders placed.",
			},
		),
		statusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burger_order_status_transitions_total",
				Help: "Total order status transitions by target status.",
			},
			[]string{"status"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burger_notifications_total",
				Help: "Notifications handed to dispatch, by channel and result.",
			},
			[]string{"channel", "result"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burger_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burger_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burger_logins_total",
				Help: "Login attempts by session kind and result.",
			},
			[]string{"kind", "result"},
		),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrMutation counts a successful mutation.
func (m *Metrics) IncrMutation(entity, op string) {
	m.mutations.WithLabelValues(entity, op).Inc()
}

// IncrPersistenceFailure counts a substrate failure.
func (m *Metrics) IncrPersistenceFailure(op string) {
	m.persistenceFailures.WithLabelValues(op).Inc()
}

// IncrOrderPlaced counts a placed order.
func (m *Metrics) IncrOrderPlaced() {
	m.ordersPlaced.Inc()
}

// IncrStatusTransition counts a transition into status.
func (m *Metrics) IncrStatusTransition(status string) {
	m.statusTransitions.WithLabelValues(status).Inc()
}

// IncrNotification counts a dispatched notification.
func (m *Metrics) IncrNotification(channel, result string) {
	m.notifications.WithLabelValues(channel, result).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrLogin counts a login attempt.
func (m *Metrics) IncrLogin(kind, result string) {
	m.logins.WithLabelValues(kind, result).Inc()
}

// Snapshot reads back the counters shown on the admin sync page.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		OrdersPlaced:        counterValue(m.ordersPlaced),
		PersistenceFailures: counterValue(m.persistenceFailures.WithLabelValues("save")),
		Delivered:           counterValue(m.statusTransitions.WithLabelValues("Delivered")),
		IdempotentReplays:   counterValue(m.cacheHits.WithLabelValues("checkout")),
	}
}

// counterValue extracts the current float64 value from a counter.
func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
