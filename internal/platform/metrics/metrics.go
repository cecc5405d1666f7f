// Package metrics exposes Prometheus collectors for the storefront API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Recorder owns a private registry so tests and multiple servers never collide on registration.
type Recorder struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	checkouts     *prometheus.CounterVec
	verifications *prometheus.CounterVec
	shortfall     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	transitions   *prometheus.CounterVec
}

// NewRecorder registers every collector on a fresh registry together with the Go and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"method", "route"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "outcomes_total",
			Help:      "Checkout operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "verifications_total",
			Help:      "Payment evidence verification results.",
		}, []string{"result"}),
		shortfall: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "shortfall_units_total",
			Help:      "Units that could not be deducted because stock was insufficient.",
		}, []string{"product_id"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "total",
			Help:      "Notification deliveries by template and result.",
		}, []string{"template", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status transitions.",
		}, []string{"from", "to"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requests, r.latency, r.checkouts, r.verifications, r.shortfall, r.notifications, r.transitions,
	)
	return r
}

// ObserveRequest implements observability.RequestObserver.
func (r *Recorder) ObserveRequest(method, route string, status int, latency time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.latency.WithLabelValues(method, route).Observe(float64(latency) / float64(time.Millisecond))
}

// CheckoutOutcome counts a place/confirm result such as "success" or "verification_failed".
func (r *Recorder) CheckoutOutcome(operation, outcome string) {
	if r == nil {
		return
	}
	r.checkouts.WithLabelValues(operation, outcome).Inc()
}

// PaymentVerification counts signature check results.
func (r *Recorder) PaymentVerification(result string) {
	if r == nil {
		return
	}
	r.verifications.WithLabelValues(result).Inc()
}

// InventoryShortfall adds units that could not be deducted.
func (r *Recorder) InventoryShortfall(productID string, units int) {
	if r == nil || units <= 0 {
		return
	}
	r.shortfall.WithLabelValues(productID).Add(float64(units))
}

// NotificationResult counts a delivered, failed or dropped notification.
func (r *Recorder) NotificationResult(template, result string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(template, result).Inc()
}

// OrderTransition counts a status change.
func (r *Recorder) OrderTransition(from, to string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
