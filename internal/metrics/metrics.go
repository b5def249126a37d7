package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	ordersCreated   prometheus.Counter
	checkoutReplays prometheus.Counter
	stockRejected   prometheus.Counter
	sweepReleased   prometheus.Counter
	httpLatencyMS   *prometheus.HistogramVec
}

func New(service string) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "store", Subsystem: service,
			Name: "orders_created_total", Help: "Orders newly persisted.",
		}),
		checkoutReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "store", Subsystem: service,
			Name: "checkout_replays_total", Help: "Idempotent checkout replays.",
		}),
		stockRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "store", Subsystem: service,
			Name: "checkout_stock_rejected_total", Help: "Checkouts rejected for insufficient stock.",
		}),
		sweepReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "store", Subsystem: service,
			Name: "sweep_released_total", Help: "Expired orders released by the sweep.",
		}),
		httpLatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "store", Subsystem: service,
			Name:    "http_request_duration_ms",
			Help:    "HTTP request latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
	}
	prometheus.MustRegister(m.ordersCreated, m.checkoutReplays, m.stockRejected, m.sweepReleased, m.httpLatencyMS)
	return m
}

// Increment methods are nil-safe so handlers can run without a
// registry in tests.

func (m *Metrics) IncOrdersCreated() {
	if m != nil {
		m.ordersCreated.Inc()
	}
}

func (m *Metrics) IncCheckoutReplays() {
	if m != nil {
		m.checkoutReplays.Inc()
	}
}

func (m *Metrics) IncStockRejected() {
	if m != nil {
		m.stockRejected.Inc()
	}
}

func (m *Metrics) AddSweepReleased(n int) {
	if m != nil {
		m.sweepReleased.Add(float64(n))
	}
}

func (m *Metrics) ObserveLatency(handler string, ms float64) {
	if m != nil {
		m.httpLatencyMS.WithLabelValues(handler).Observe(ms)
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
