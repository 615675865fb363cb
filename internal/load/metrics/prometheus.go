package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter mirrors engine samples into Prometheus collectors so a
// running test can be scraped. Each exporter owns its registry, so several
// engines (e.g. in tests) never collide on registration.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// RequestsTotal counts requests by label and outcome
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes request latency by label
	RequestDuration *prometheus.HistogramVec

	// ActiveUsers tracks the running user count
	ActiveUsers prometheus.Gauge
}

// NewPrometheusExporter creates and registers the courier collectors.
func NewPrometheusExporter() *PrometheusExporter {
	p := &PrometheusExporter{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_requests_total",
				Help: "Total number of requests issued, by action label and outcome",
			},
			[]string{"name", "outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "courier_request_duration_seconds",
				Help:    "Request latency by action label",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"name"},
		),
		ActiveUsers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "courier_active_users",
				Help: "Number of running simulated users",
			},
		),
	}

	p.registry.MustRegister(p.RequestsTotal, p.RequestDuration, p.ActiveUsers)
	return p
}

// ObserveRequest implements Observer.
func (p *PrometheusExporter) ObserveRequest(s Sample) {
	outcome := "success"
	if !s.Success {
		outcome = "failure"
	}
	p.RequestsTotal.WithLabelValues(s.Name, outcome).Inc()
	p.RequestDuration.WithLabelValues(s.Name).Observe(s.Duration.Seconds())
}

// ObserveActiveUsers implements Observer.
func (p *PrometheusExporter) ObserveActiveUsers(n int) {
	p.ActiveUsers.Set(float64(n))
}

// Registry returns the exporter's registry.
func (p *PrometheusExporter) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
