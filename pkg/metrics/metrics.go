package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Requests      *prometheus.CounterVec
	LatencyMS     *prometheus.HistogramVec
	OrdersCreated prometheus.Counter
	StatusChanges *prometheus.CounterVec
	gatherer      prometheus.Gatherer
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(service string, reg *prometheus.Registry) *Metrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "method", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route", "method"})
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: service,
		Name:      "orders_created_total",
		Help:      "Orders created from carts.",
	})
	statusChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: service,
		Name:      "order_status_changes_total",
		Help:      "Order status transitions by target status.",
	}, []string{"status"})

	reg.MustRegister(requests, latency, ordersCreated, statusChanges)
	return &Metrics{
		Requests:      requests,
		LatencyMS:     latency,
		OrdersCreated: ordersCreated,
		StatusChanges: statusChanges,
		gatherer:      reg,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// OrderCreated and StatusChanged make *Metrics usable as the order service recorder.
func (m *Metrics) OrderCreated() {
	m.OrdersCreated.Inc()
}

func (m *Metrics) StatusChanged(status string) {
	m.StatusChanges.WithLabelValues(status).Inc()
}
