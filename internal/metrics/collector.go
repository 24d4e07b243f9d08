// Package metrics provides Prometheus metrics for go-browser-perf.
//
// Metrics are organized into three panels:
//   - Run overview: configured iterations, progress and current state
//   - Iterations: outcomes and duration distribution
//   - Pages: last observed timings and sizes per URL
package metrics

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-browser-perf/internal/engine"
	"github.com/randomizedcoder/go-browser-perf/internal/har"
)

// =============================================================================
// Panel 1: Run Overview
// =============================================================================

var (
	browserPerfInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "browser_perf_info",
			Help: "Information about the run (value always 1)",
		},
		[]string{"version", "browser"},
	)

	browserPerfTargetIterations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browser_perf_target_iterations",
			Help: "Configured number of iterations per URL",
		},
	)

	browserPerfCurrentIteration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browser_perf_current_iteration",
			Help: "1-based index of the running iteration (0 = none)",
		},
	)

	browserPerfIterationState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "browser_perf_iteration_state",
			Help: "1 for the state the running iteration is in",
		},
		[]string{"state"},
	)

	browserPerfElapsedSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browser_perf_elapsed_seconds",
			Help: "Seconds since the run started",
		},
	)
)

// =============================================================================
// Panel 2: Iterations
// =============================================================================

var (
	browserPerfIterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browser_perf_iterations_total",
			Help: "Finished iterations by result",
		},
		[]string{"result"},
	)

	browserPerfIterationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "browser_perf_iteration_duration_seconds",
			Help: "Wall time of one iteration, browser start to stop",
			Buckets: []float64{
				1, 2, 5, 10, 15, 20, 30, 45, 60, 90, 120, 180, 300,
			},
		},
	)

	browserPerfIterationP50Seconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browser_perf_iteration_duration_p50_seconds",
			Help: "Iteration duration 50th percentile (median)",
		},
	)

	browserPerfIterationP95Seconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browser_perf_iteration_duration_p95_seconds",
			Help: "Iteration duration 95th percentile",
		},
	)

	browserPerfIterationP99Seconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browser_perf_iteration_duration_p99_seconds",
			Help: "Iteration duration 99th percentile",
		},
	)
)

// =============================================================================
// Panel 3: Pages
// =============================================================================

var (
	browserPerfPageMetricMilliseconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "browser_perf_page_metric_milliseconds",
			Help: "Last observed page timing",
		},
		[]string{"url", "metric"},
	)

	browserPerfPageRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "browser_perf_page_requests",
			Help: "Requests of the last measured page",
		},
		[]string{"url"},
	)

	browserPerfPageTransferBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "browser_perf_page_transfer_bytes",
			Help: "Bytes transferred by the last measured page",
		},
		[]string{"url"},
	)

	browserPerfPageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browser_perf_page_errors_total",
			Help: "Errors recorded on measured pages",
		},
		[]string{"url"},
	)

	browserPerfHAREntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "browser_perf_har_entries_total",
			Help: "HAR entries built from the DevTools event log",
		},
	)
)

// pageMetrics are exported per URL when the page reported them.
var pageMetrics = []struct {
	name string
	path []string
}{
	{"ttfb", []string{"timings", "ttfb"}},
	{"first_paint", []string{"timings", "firstPaint"}},
	{"dom_content_loaded", []string{"timings", "pageTimings", "domContentLoadedTime"}},
	{"page_load", []string{"timings", "pageTimings", "pageLoadTime"}},
	{"speed_index", []string{"visualMetrics", "SpeedIndex"}},
	{"first_visual_change", []string{"visualMetrics", "FirstVisualChange"}},
	{"last_visual_change", []string{"visualMetrics", "LastVisualChange"}},
}

// =============================================================================
// Collector
// =============================================================================

// Collector manages all Prometheus metrics of a run.
type Collector struct {
	// Configuration
	targetIterations int
	browser          string

	// Timing
	startTime time.Time

	mu        sync.Mutex
	state     engine.State
	durations *tdigest.TDigest

	// For summary generation
	iterations int
	failed     int
	pages      int
	errors     int
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version    string
	Browser    string
	Iterations int
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		targetIterations: cfg.Iterations,
		browser:          cfg.Browser,
		startTime:        time.Now(),
		durations:        tdigest.NewWithCompression(100),
	}

	registry.MustRegister(
		// Panel 1: Run Overview
		browserPerfInfo,
		browserPerfTargetIterations,
		browserPerfCurrentIteration,
		browserPerfIterationState,
		browserPerfElapsedSeconds,

		// Panel 2: Iterations
		browserPerfIterationsTotal,
		browserPerfIterationDurationSeconds,
		browserPerfIterationP50Seconds,
		browserPerfIterationP95Seconds,
		browserPerfIterationP99Seconds,

		// Panel 3: Pages
		browserPerfPageMetricMilliseconds,
		browserPerfPageRequests,
		browserPerfPageTransferBytes,
		browserPerfPageErrorsTotal,
		browserPerfHAREntriesTotal,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	browserPerfInfo.WithLabelValues(version, cfg.Browser).Set(1)
	browserPerfTargetIterations.Set(float64(cfg.Iterations))

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// IterationStarted records that iteration index (0-based) began.
func (c *Collector) IterationStarted(index, total int) {
	browserPerfCurrentIteration.Set(float64(index + 1))
	browserPerfElapsedSeconds.Set(time.Since(c.startTime).Seconds())
}

// StateChanged moves the state gauge of the running iteration.
func (c *Collector) StateChanged(index int, from, to engine.State) {
	c.mu.Lock()
	c.state = to
	c.mu.Unlock()

	browserPerfIterationState.WithLabelValues(from.String()).Set(0)
	browserPerfIterationState.WithLabelValues(to.String()).Set(1)
}

// IterationDone records the outcome of an iteration and its pages.
func (c *Collector) IterationDone(res *engine.IterationResult) {
	result := "success"
	if res.Failed() {
		result = "failed"
	}
	browserPerfIterationsTotal.WithLabelValues(result).Inc()
	browserPerfIterationDurationSeconds.Observe(res.Duration.Seconds())
	browserPerfElapsedSeconds.Set(time.Since(c.startTime).Seconds())

	c.mu.Lock()
	c.iterations++
	if res.Failed() {
		c.failed++
	}
	c.durations.Add(res.Duration.Seconds(), 1)
	p50 := c.durations.Quantile(0.50)
	p95 := c.durations.Quantile(0.95)
	p99 := c.durations.Quantile(0.99)
	c.mu.Unlock()

	browserPerfIterationP50Seconds.Set(p50)
	browserPerfIterationP95Seconds.Set(p95)
	browserPerfIterationP99Seconds.Set(p99)

	for _, page := range res.Pages {
		c.RecordPage(page, !res.Failed())
	}
}

// RecordPage exports the timings of one page. Timings of failed
// iterations are not exported, errors always are.
func (c *Collector) RecordPage(page *engine.PageResult, ok bool) {
	key := page.Key()

	c.mu.Lock()
	c.pages++
	c.errors += len(page.Errors)
	c.mu.Unlock()

	if n := len(page.Errors); n > 0 {
		browserPerfPageErrorsTotal.WithLabelValues(key).Add(float64(n))
	}
	if !ok {
		return
	}

	for _, m := range pageMetrics {
		if v, found := lookup(page, m.path); found {
			browserPerfPageMetricMilliseconds.WithLabelValues(key, m.name).Set(v)
		}
	}

	if page.HAR != nil {
		s := har.Summarize(page.HAR)
		browserPerfPageRequests.WithLabelValues(key).Set(float64(s.Requests))
		browserPerfPageTransferBytes.WithLabelValues(key).Set(float64(s.TransferBytes))
		browserPerfHAREntriesTotal.Add(float64(len(page.HAR.Log.Entries)))
	}
}

// RunDone marks the end of a run.
func (c *Collector) RunDone() {
	browserPerfCurrentIteration.Set(0)
	browserPerfElapsedSeconds.Set(time.Since(c.startTime).Seconds())

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	browserPerfIterationState.WithLabelValues(state.String()).Set(0)
}

// lookup reads a number from the page's scripts or visual metrics.
func lookup(page *engine.PageResult, path []string) (float64, bool) {
	var node any
	switch path[0] {
	case "visualMetrics":
		node = page.VisualMetrics
	default:
		scripts, ok := page.BrowserScripts[path[0]]
		if !ok {
			return 0, false
		}
		node = scripts
	}

	for _, key := range path[1:] {
		m, ok := node.(map[string]any)
		if !ok {
			return 0, false
		}
		node, ok = m[key]
		if !ok {
			return 0, false
		}
	}

	switch v := node.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration         time.Duration
	TargetIterations int
	Iterations       int
	Failed           int
	Pages            int
	Errors           int
	IterationP50     time.Duration
	IterationP95     time.Duration
	IterationP99     time.Duration
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:         time.Since(c.startTime),
		TargetIterations: c.targetIterations,
		Iterations:       c.iterations,
		Failed:           c.failed,
		Pages:            c.pages,
		Errors:           c.errors,
	}
	if c.iterations > 0 {
		s.IterationP50 = seconds(c.durations.Quantile(0.50))
		s.IterationP95 = seconds(c.durations.Quantile(0.95))
		s.IterationP99 = seconds(c.durations.Quantile(0.99))
	}
	return s
}

// State returns the state of the running iteration.
func (c *Collector) State() engine.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
