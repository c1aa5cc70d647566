// Package metrics exposes pipeline counters to prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "avalanche"

// Collector holds the counters of one process on a private registry
type Collector struct {
	registry *prometheus.Registry

	runsProcessed  *prometheus.CounterVec
	runsSkipped    prometheus.Counter
	cacheHits      prometheus.Counter
	eventsDetected *prometheus.CounterVec
	runDuration    prometheus.Histogram
	httpRequests   *prometheus.CounterVec
}

// NewCollector registers every metric on a new registry, together with the
// Go runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_processed_total",
			Help:      "Simulation runs segmented successfully.",
		}, []string{"group"}),
		runsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_skipped_total",
			Help:      "Simulation runs skipped because their input could not be read.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_cache_hits_total",
			Help:      "Runs whose events were served from the run cache.",
		}),
		eventsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_detected_total",
			Help:      "Avalanches detected across all processed runs.",
		}, []string{"group"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_processing_seconds",
			Help:      "Time spent loading and segmenting one run.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests served, by status code and method.",
		}, []string{"code", "method"}),
	}

	c.registry.MustRegister(
		c.runsProcessed,
		c.runsSkipped,
		c.cacheHits,
		c.eventsDetected,
		c.runDuration,
		c.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RecRun records a processed run of group with its event count and duration
func (c *Collector) RecRun(group string, events int, d time.Duration) {
	c.runsProcessed.WithLabelValues(group).Inc()
	c.eventsDetected.WithLabelValues(group).Add(float64(events))
	c.runDuration.Observe(d.Seconds())
}

// RecSkip records a skipped run
func (c *Collector) RecSkip() {
	c.runsSkipped.Inc()
}

// RecCacheHit records a run served from the run cache
func (c *Collector) RecCacheHit() {
	c.cacheHits.Inc()
}

// RecHTTP records one served API request
func (c *Collector) RecHTTP(code, method string) {
	c.httpRequests.WithLabelValues(code, method).Inc()
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
