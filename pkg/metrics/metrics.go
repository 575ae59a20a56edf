package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quickshop"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(service string, reg prometheus.Registerer) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// Observe records one finished request.
func (m *ServerMetrics) Observe(handler, status string, d time.Duration) {
	m.Requests.WithLabelValues(handler, status).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(float64(d.Milliseconds()))
}

// EngineMetrics counts cart, promo, eligibility and checkout outcomes. A nil
// *EngineMetrics records nothing.
type EngineMetrics struct {
	CartMutations      *prometheus.CounterVec
	PromoResults       *prometheus.CounterVec
	Eligibility        *prometheus.CounterVec
	Checkouts          *prometheus.CounterVec
	CheckoutDurationMS prometheus.Histogram
}

func NewEngineMetrics(service string, reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		CartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "cart_mutations_total",
			Help:      "Cart ledger mutations by operation.",
		}, []string{"op"}),
		PromoResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "promo_results_total",
			Help:      "Promo code applications by result.",
		}, []string{"result"}),
		Eligibility: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "eligibility_results_total",
			Help:      "Delivery eligibility calculations by outcome.",
		}, []string{"outcome"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by result.",
		}, []string{"result"}),
		CheckoutDurationMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "checkout_duration_ms",
			Help:      "Checkout latency including the order write, in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
	}
	reg.MustRegister(m.CartMutations, m.PromoResults, m.Eligibility, m.Checkouts, m.CheckoutDurationMS)
	return m
}

func (m *EngineMetrics) CartMutation(op string) {
	if m == nil {
		return
	}
	m.CartMutations.WithLabelValues(op).Inc()
}

func (m *EngineMetrics) PromoResult(accepted bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.PromoResults.WithLabelValues(result).Inc()
}

func (m *EngineMetrics) EligibilityOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Eligibility.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) CheckoutResult(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(result).Inc()
	m.CheckoutDurationMS.Observe(float64(d.Milliseconds()))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves g, for processes that keep their own registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
