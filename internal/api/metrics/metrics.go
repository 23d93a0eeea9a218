package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles Prometheus metrics for the HTTP API and the simulation
// runs it serves.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	Runs          *prometheus.CounterVec
	RunDurations  *prometheus.HistogramVec
	RunCycles     *prometheus.CounterVec
	RunEfficiency *prometheus.HistogramVec

	CacheEntries prometheus.Gauge
}

// NewCollector registers metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by method, route, and status code.",
	}, []string{"method", "route", "code"}), "http_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "route"}), "http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simulation_runs_total",
		Help: "Simulation runs, labeled by MPPT algorithm and outcome.",
	}, []string{"algorithm", "outcome"}), "simulation_runs_total")
	if err != nil {
		return nil, err
	}
	runDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "simulation_run_duration_seconds",
		Help:    "Wall time of completed simulation runs.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"algorithm"}), "simulation_run_duration_seconds")
	if err != nil {
		return nil, err
	}
	cycles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simulation_cycles_total",
		Help: "Control cycles executed across all runs.",
	}, []string{"algorithm"}), "simulation_cycles_total")
	if err != nil {
		return nil, err
	}
	efficiency, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "simulation_tracking_efficiency",
		Help:    "Tracking efficiency (tracked over available energy) of completed runs.",
		Buckets: []float64{0.5, 0.8, 0.9, 0.95, 0.98, 0.99, 1},
	}, []string{"algorithm"}), "simulation_tracking_efficiency")
	if err != nil {
		return nil, err
	}
	cache, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "current_cache_entries",
		Help: "Entries held by the shared cell current cache.",
	}), "current_cache_entries")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:      gatherer,
		HTTPRequests:  requests,
		HTTPDurations: durations,
		Runs:          runs,
		RunDurations:  runDurations,
		RunCycles:     cycles,
		RunEfficiency: efficiency,
		CacheEntries:  cache,
	}, nil
}

// Middleware records request counts and durations. Routes are labeled by
// their registered pattern so path parameters do not explode cardinality.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		if c == nil {
			return
		}
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.HTTPDurations.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveRun records a completed run.
func (c *Collector) ObserveRun(algorithm string, cycles int, efficiency float64, d time.Duration) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(algorithm, "ok").Inc()
	c.RunDurations.WithLabelValues(algorithm).Observe(d.Seconds())
	c.RunCycles.WithLabelValues(algorithm).Add(float64(cycles))
	c.RunEfficiency.WithLabelValues(algorithm).Observe(efficiency)
}

// ObserveRunFailure records a run that did not complete.
func (c *Collector) ObserveRunFailure(algorithm, outcome string) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(algorithm, outcome).Inc()
}

func (c *Collector) SetCacheEntries(n int) {
	if c == nil {
		return
	}
	c.CacheEntries.Set(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
