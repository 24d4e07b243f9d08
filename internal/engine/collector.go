package engine

import (
	"time"

	"github.com/randomizedcoder/go-browser-perf/internal/har"
	"github.com/randomizedcoder/go-browser-perf/internal/stats"
	"github.com/randomizedcoder/go-browser-perf/internal/trace"
)

// Collector gathers one URL's pages across iterations. Only pages of
// successful iterations feed the statistics and the merged HAR; failed
// iterations still keep their slot.
type Collector struct {
	url   string
	alias string
	runID string
	opts  stats.SummaryOptions

	stats  *stats.Statistics
	custom *stats.Statistics

	pages      []*PageResult
	iterations []*IterationResult
	scripts    []map[string]map[string]any
	hars       []*har.HAR
}

// NewCollector creates a collector for url (or alias).
func NewCollector(url, alias, runID string, opts stats.SummaryOptions) *Collector {
	return &Collector{
		url:    url,
		alias:  alias,
		runID:  runID,
		opts:   opts,
		stats:  stats.New(),
		custom: stats.New(),
	}
}

// Add records page as measured in iteration it.
func (c *Collector) Add(it *IterationResult, page *PageResult) {
	c.pages = append(c.pages, page)
	c.iterations = append(c.iterations, it)

	scripts := page.BrowserScripts
	if scripts == nil {
		scripts = map[string]map[string]any{}
	}
	c.scripts = append(c.scripts, scripts)

	if it.Failed() || page.missing {
		return
	}
	if c.url == "" {
		c.url = page.URL
	}

	defaults, custom := splitCategories(page.BrowserScripts)
	c.stats.AddDeep(toAny(defaults), stats.UserTimingTransform)
	c.custom.AddDeep(toAny(custom), stats.UserTimingTransform)

	if len(page.VisualMetrics) > 0 {
		c.stats.AddDeep(map[string]any{"visualMetrics": page.VisualMetrics}, nil)
	}
	if page.CPU != nil {
		c.stats.AddDeep(map[string]any{"cpu": cpuValues(page.CPU)}, nil)
	}
	if page.HAR != nil {
		c.hars = append(c.hars, page.HAR)
	}
}

// Statistics returns the built-in metric samples.
func (c *Collector) Statistics() *stats.Statistics {
	return c.stats
}

// Result summarizes everything added so far.
func (c *Collector) Result() *RunResult {
	r := &RunResult{
		URL:              c.url,
		Alias:            c.alias,
		RunID:            c.runID,
		Pages:            c.pages,
		Iterations:       c.iterations,
		BrowserScripts:   c.scripts,
		HAR:              har.Merge(c.hars),
		Statistics:       c.stats.SummarizeAll(c.opts),
		CustomStatistics: c.custom.SummarizeAll(c.opts),
		Timestamp:        time.Now(),
	}
	r.Summary = c.summary(r)
	if len(c.pages) > 0 {
		r.Timestamp = c.pages[0].Timestamp
	}
	for _, it := range c.iterations {
		if it.Browser.Name != "" {
			r.Info = it.Browser
			break
		}
	}
	return r
}

// summaryMetrics are shown in the result line and the exit summary.
var summaryMetrics = []struct {
	name string
	path []string
}{
	{"TTFB", []string{"timings", "ttfb"}},
	{"firstPaint", []string{"timings", "firstPaint"}},
	{"LCP", []string{"timings", "largestContentfulPaint", "renderTime"}},
	{"DOMContentLoaded", []string{"timings", "pageTimings", "domContentLoadedTime"}},
	{"Load", []string{"timings", "pageTimings", "pageLoadTime"}},
	{"FirstVisualChange", []string{"visualMetrics", "FirstVisualChange"}},
	{"SpeedIndex", []string{"visualMetrics", "SpeedIndex"}},
	{"LastVisualChange", []string{"visualMetrics", "LastVisualChange"}},
}

func (c *Collector) summary(r *RunResult) stats.RunSummary {
	s := stats.RunSummary{
		URL:        r.URL,
		Alias:      r.Alias,
		Iterations: len(r.Iterations),
		Failed:     r.Failures(),
	}
	if r.HAR != nil && len(c.hars) > 0 {
		hs := har.Summarize(r.HAR)
		s.Requests = hs.Requests / len(c.hars)
		s.TransferBytes = hs.TransferBytes / int64(len(c.hars))
	}
	for _, m := range summaryMetrics {
		if sum, ok := c.stats.Summarize(c.opts, m.path...); ok {
			s.Metrics = append(s.Metrics, stats.MetricLine{Name: m.name, Summary: sum})
		}
	}
	for _, p := range r.Pages {
		s.Errors = appendMissing(s.Errors, p.Errors...)
	}
	return s
}

func toAny(scripts map[string]map[string]any) map[string]any {
	out := make(map[string]any, len(scripts))
	for k, v := range scripts {
		out[k] = v
	}
	return out
}

func cpuValues(cpu *trace.CPU) map[string]any {
	categories := make(map[string]any, len(cpu.Categories))
	for k, v := range cpu.Categories {
		categories[k] = v
	}
	events := make(map[string]any, len(cpu.Events))
	for k, v := range cpu.Events {
		events[k] = v
	}
	return map[string]any{"categories": categories, "events": events}
}
