package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Cart mutations by operation and outcome (applied, rejected, persist_failed)
	CartMutations *prometheus.CounterVec

	// Orders written, by source (cart, buy_now)
	OrdersCreated *prometheus.CounterVec

	// Checkouts that failed after validation
	CheckoutFailures prometheus.Counter

	// Order status transitions by target status
	StatusTransitions *prometheus.CounterVec

	// Provider stats updates that failed and were skipped
	StatsWriteFailures prometheus.Counter

	// Order events that could not be published, by backend
	EventPublishFailures *prometheus.CounterVec

	// Menu item writes by operation (create, update, delete)
	MenuChanges *prometheus.CounterVec

	// HTTP request latency by route pattern
	RequestLatency *prometheus.HistogramVec
}

// New creates and registers all metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CartMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homechef_cart_mutations_total",
			Help: "Cart mutations by operation and outcome",
		}, []string{"op", "outcome"}),

		OrdersCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homechef_orders_created_total",
			Help: "Orders written by source",
		}, []string{"source"}),

		CheckoutFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "homechef_checkout_failures_total",
			Help: "Checkouts that failed while writing orders",
		}),

		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homechef_order_status_transitions_total",
			Help: "Order status transitions by target status",
		}, []string{"to"}),

		StatsWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "homechef_provider_stats_write_failures_total",
			Help: "Provider stats updates that failed and were skipped",
		}),

		EventPublishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homechef_order_event_publish_failures_total",
			Help: "Order events that could not be published by backend",
		}, []string{"backend"}),

		MenuChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homechef_menu_changes_total",
			Help: "Menu item writes by operation",
		}, []string{"op"}),

		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "homechef_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
	}
}

// IncrementCartMutation records a cart mutation outcome.
func (m *Metrics) IncrementCartMutation(op, outcome string) {
	if m != nil {
		m.CartMutations.WithLabelValues(op, outcome).Inc()
	}
}

// AddOrdersCreated records n orders written from source.
func (m *Metrics) AddOrdersCreated(source string, n int) {
	if m != nil && n > 0 {
		m.OrdersCreated.WithLabelValues(source).Add(float64(n))
	}
}

func (m *Metrics) IncrementCheckoutFailure() {
	if m != nil {
		m.CheckoutFailures.Inc()
	}
}

func (m *Metrics) IncrementStatusTransition(to string) {
	if m != nil {
		m.StatusTransitions.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) IncrementStatsWriteFailure() {
	if m != nil {
		m.StatsWriteFailures.Inc()
	}
}

func (m *Metrics) IncrementEventPublishFailure(backend string) {
	if m != nil {
		m.EventPublishFailures.WithLabelValues(backend).Inc()
	}
}

func (m *Metrics) IncrementMenuChange(op string) {
	if m != nil {
		m.MenuChanges.WithLabelValues(op).Inc()
	}
}

// ObserveRequestLatency records one HTTP request.
func (m *Metrics) ObserveRequestLatency(method, route, status string, d time.Duration) {
	if m != nil {
		m.RequestLatency.WithLabelValues(method, route, status).Observe(d.Seconds())
	}
}
