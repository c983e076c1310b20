package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bonesaw"

// Cache lookup results.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
	CacheError   = "error"
)

// Collector holds the engine's prometheus metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	StepRuns     *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	CacheLookups *prometheus.CounterVec
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		StepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_runs_total",
			Help:      "Total number of step executions",
		}, []string{"pipeline", "step", "status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of step executions in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pipeline", "step"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of cache lookups by result",
		}, []string{"step", "result"}),
	}

	reg.MustRegister(c.StepRuns, c.StepDuration, c.CacheLookups)
	return c
}

// Default is the process-wide collector used by the pipeline and cache packages.
var Default = NewCollector()

// Registry exposes the underlying registry for gathering.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveStep records one step execution.
func (c *Collector) ObserveStep(pipeline, step string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.StepRuns.WithLabelValues(pipeline, step, status).Inc()
	c.StepDuration.WithLabelValues(pipeline, step).Observe(d.Seconds())
}

// ObserveCache records one cache lookup.
func (c *Collector) ObserveCache(step, result string) {
	c.CacheLookups.WithLabelValues(step, result).Inc()
}

// WriteTextfile writes all metrics in the node-exporter textfile format.
func (c *Collector) WriteTextfile(filename string) error {
	if err := prometheus.WriteToTextfile(filename, c.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
