package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/randomizedcoder/go-browser-perf/internal/browser"
	"github.com/randomizedcoder/go-browser-perf/internal/har"
	"github.com/randomizedcoder/go-browser-perf/internal/perflog"
	"github.com/randomizedcoder/go-browser-perf/internal/trace"
)

// ChromeDelegate builds a HAR from the DevTools event log of every page
// and, when tracing, the main thread CPU breakdown.
type ChromeDelegate struct {
	NoopDelegate

	opts   DelegateOptions
	logger *slog.Logger

	rc      *RunContext
	tracing bool
}

// NewChromeDelegate creates the delegate for Chromium based browsers.
func NewChromeDelegate(opts DelegateOptions, logger *slog.Logger) *ChromeDelegate {
	return &ChromeDelegate{opts: opts, logger: logger}
}

// OnStartRun keeps the run context for alias resolution.
func (d *ChromeDelegate) OnStartRun(ctx context.Context, rc *RunContext) error {
	d.rc = rc
	return nil
}

// OnStartIteration drops events from browser start up.
func (d *ChromeDelegate) OnStartIteration(ctx context.Context, b browser.Browser, index int) error {
	d.tracing = false
	_, err := b.GetLogs(ctx, browser.LogTypePerformance)
	return err
}

// BeforeEachURL clears the event log so the HAR only covers the next page,
// and starts tracing.
func (d *ChromeDelegate) BeforeEachURL(ctx context.Context, b browser.Browser) error {
	if _, err := b.GetLogs(ctx, browser.LogTypePerformance); err != nil {
		return fmt.Errorf("clear performance log: %w", err)
	}
	if !d.opts.Trace || d.tracing {
		return nil
	}
	tracer, ok := b.(browser.Tracer)
	if !ok {
		return nil
	}
	if err := tracer.StartTrace(ctx); err != nil {
		return fmt.Errorf("start trace: %w", err)
	}
	d.tracing = true
	return nil
}

// AfterPageCompleteCheck stops tracing and parses the CPU breakdown.
func (d *ChromeDelegate) AfterPageCompleteCheck(ctx context.Context, b browser.Browser, page *PageResult) error {
	if !d.tracing {
		return nil
	}
	d.tracing = false

	raws, err := b.(browser.Tracer).StopTrace(ctx)
	if err != nil {
		return fmt.Errorf("stop trace: %w", err)
	}
	events, skipped := trace.Decode(raws)
	if skipped > 0 {
		d.logger.Debug("trace_events_skipped", "skipped", skipped, "events", len(events))
	}

	cpu, err := trace.ParseCPU(events)
	if err != nil {
		return fmt.Errorf("parse trace: %w", err)
	}
	page.CPU = cpu
	return nil
}

// AfterEachURL builds the page's HAR from the event log.
func (d *ChromeDelegate) AfterEachURL(ctx context.Context, b browser.Browser, page *PageResult, index int) error {
	if d.opts.SkipHAR {
		return nil
	}

	logs, err := b.GetLogs(ctx, browser.LogTypePerformance)
	if err != nil {
		return fmt.Errorf("get performance log: %w", err)
	}
	events := perflog.ParseAll(logs, d.logger)
	h := har.FromEvents(events, d.opts.HAR, d.logger)

	info := b.Info()
	har.AddBrowser(h, info.Name, info.Version)

	if len(h.Log.Pages) == 0 {
		d.logger.Warn("har_without_pages", "url", page.URL, "events", len(events))
		page.HAR = h
		return errors.New("no page found in the performance log")
	}

	url := page.URL
	if d.rc != nil {
		url = d.rc.ResolveAlias(page.Alias, page.URL)
	}
	if err := har.SetPageInfo(h, 0, har.PageInfo{
		URL:       url,
		Alias:     page.Alias,
		Iteration: index + 1,
		CPU:       cpuOrNil(page.CPU),
	}); err != nil {
		return err
	}

	page.HAR = h
	return nil
}

// Failing leaves an empty HAR for a page that could not be measured.
func (d *ChromeDelegate) Failing(page *PageResult, index int) {
	if d.opts.SkipHAR || page.HAR != nil {
		return
	}
	h := har.New()
	h.Log.Pages = append(h.Log.Pages, &har.Page{
		StartedDateTime: page.Timestamp,
		ID:              "page_1",
		Title:           page.URL,
		PageTimings:     har.PageTimings{OnContentLoad: -1, OnLoad: -1},
		URL:             page.URL,
	})
	har.AddBrowser(h, "Chrome", "")
	page.HAR = h
}

// cpuOrNil avoids storing a typed nil in an interface.
func cpuOrNil(cpu *trace.CPU) any {
	if cpu == nil {
		return nil
	}
	return cpu
}
