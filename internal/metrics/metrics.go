// Package metrics exposes Prometheus counters for the validator, the code
// runners, the AI tutor and the rate limiter.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codebuddy"

const (
	backendLabel  = "backend"
	statusLabel   = "status"
	languageLabel = "language"
	resultLabel   = "result"
	routeLabel    = "route"
)

// Collector owns its registry so tests and multiple servers in one process
// never collide on the global one.
type Collector struct {
	Registry *prometheus.Registry

	Validations        *prometheus.CounterVec
	ValidationDuration *prometheus.HistogramVec
	Executions         *prometheus.CounterVec
	ChatRequests       *prometheus.CounterVec
	RateLimited        *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{Registry: prometheus.NewRegistry()}

	c.Validations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validator",
		Name:      "validations_total",
		Help:      "Number of finished validations by isolate backend and outcome",
	}, []string{backendLabel, statusLabel})

	c.ValidationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "validator",
		Name:      "validation_duration_seconds",
		Help:      "Wall time of validations including isolate setup and teardown",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{backendLabel})

	c.Executions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "executor",
		Name:      "executions_total",
		Help:      "Number of code runs by language and result status",
	}, []string{languageLabel, statusLabel})

	c.ChatRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "requests_total",
		Help:      "Number of tutor chat requests by result",
	}, []string{resultLabel})

	c.RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Number of requests rejected by the rate limiter",
	}, []string{routeLabel})

	c.Registry.MustRegister(
		c.Validations,
		c.ValidationDuration,
		c.Executions,
		c.ChatRequests,
		c.RateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveValidation implements validator.Recorder.
func (c *Collector) ObserveValidation(backend, status string, d time.Duration) {
	c.Validations.With(prometheus.Labels{backendLabel: backend, statusLabel: status}).Inc()
	c.ValidationDuration.With(prometheus.Labels{backendLabel: backend}).Observe(d.Seconds())
}

func (c *Collector) ObserveExecution(language, status string) {
	c.Executions.With(prometheus.Labels{languageLabel: language, statusLabel: status}).Inc()
}

func (c *Collector) ObserveChat(result string) {
	c.ChatRequests.With(prometheus.Labels{resultLabel: result}).Inc()
}

func (c *Collector) ObserveRateLimited(route string) {
	c.RateLimited.With(prometheus.Labels{routeLabel: route}).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{Registry: c.Registry})
}
