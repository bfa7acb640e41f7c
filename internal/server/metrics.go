package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Allocation outcome label values.
const (
	outcomeOK          = "ok"
	outcomeInput       = "input_error"
	outcomeConfig      = "config_error"
	outcomeUnsupported = "unsupported"
	outcomeFailed      = "error"
)

// unknownDeliveryType labels requests naming a delivery type outside the
// supported set, so client input cannot grow label cardinality.
const unknownDeliveryType = "unknown"

// Metrics collects allocation metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	allocationsTotal   *prometheus.CounterVec
	allocationDuration *prometheus.HistogramVec
	allocationError    *prometheus.HistogramVec
	refineIterations   *prometheus.HistogramVec
	requestsTotal      *prometheus.CounterVec
}

// NewMetrics creates a collector with Go runtime and process metrics
// registered alongside the allocation metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		allocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tieralloc_allocations_total",
				Help: "Allocation runs by delivery type and outcome",
			},
			[]string{"delivery_type", "outcome"},
		),
		allocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tieralloc_allocation_duration_seconds",
				Help:    "Wall time of allocation runs",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"delivery_type"},
		),
		allocationError: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tieralloc_allocation_abs_error",
				Help:    "Absolute difference between target and achieved weighted sum",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 200, 500, 1000},
			},
			[]string{"delivery_type"},
		),
		refineIterations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tieralloc_refine_iterations",
				Help:    "Refinement iterations used per allocation run",
				Buckets: prometheus.LinearBuckets(0, 50, 11),
			},
			[]string{"delivery_type"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tieralloc_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}
}

// ObserveAllocation records one allocation run.
func (m *Metrics) ObserveAllocation(deliveryType, outcome string, elapsed time.Duration, absError float64, iterations int) {
	m.allocationsTotal.WithLabelValues(deliveryType, outcome).Inc()
	m.allocationDuration.WithLabelValues(deliveryType).Observe(elapsed.Seconds())
	if outcome == outcomeOK {
		m.allocationError.WithLabelValues(deliveryType).Observe(absError)
		m.refineIterations.WithLabelValues(deliveryType).Observe(float64(iterations))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
