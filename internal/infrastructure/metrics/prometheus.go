// Package metrics exposes workflow instrumentation to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/p2p-approval/internal/application/port"
)

const namespace = "p2p"

// Recorder implements port.MetricsRecorder on its own registry
type Recorder struct {
	registry        *prometheus.Registry
	handler         http.Handler
	transitions     *prometheus.CounterVec
	lockWait        prometheus.Histogram
	renders         *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRecorder registers the workflow collectors
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "Workflow operations by trigger and outcome",
	}, []string{"trigger", "outcome"})

	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for a per-request lock",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})

	renders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "po_renders_total",
		Help:      "Purchase order render attempts by outcome",
	}, []string{"outcome"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	registry.MustRegister(
		transitions,
		lockWait,
		renders,
		requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Recorder{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		transitions:     transitions,
		lockWait:        lockWait,
		renders:         renders,
		requestDuration: requestDuration,
	}
}

// ObserveTransition counts one workflow operation
func (r *Recorder) ObserveTransition(trigger string, outcome string) {
	r.transitions.WithLabelValues(trigger, outcome).Inc()
}

// ObserveLockWait records how long a mutation waited for its lock
func (r *Recorder) ObserveLockWait(wait time.Duration) {
	r.lockWait.Observe(wait.Seconds())
}

// ObserveRender counts one render attempt
func (r *Recorder) ObserveRender(outcome string) {
	r.renders.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest records one served HTTP request
func (r *Recorder) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	r.requestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return r.handler
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

var _ port.MetricsRecorder = (*Recorder)(nil)
