package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-browser-perf/internal/browser"
	"github.com/randomizedcoder/go-browser-perf/internal/stats"
)

// Config configures a run.
type Config struct {
	Iterations int
	Delay      time.Duration
	Browser    browser.ID
	Decimals   int

	// Iteration is the template for every iteration. RunContext,
	// OnStateChange, Recorder and VisualMetrics are set by the engine.
	Iteration IterationConfig

	Delegate DelegateOptions
}

// DefaultConfig returns three iterations in Chrome.
func DefaultConfig() Config {
	return Config{
		Iterations: 3,
		Browser:    browser.IDChrome,
		Iteration: IterationConfig{
			PageCompleteTimeout: 5 * time.Minute,
			ScriptTimeout:       2 * time.Minute,
			BrowserStartTimeout: time.Minute,
			BrowserStopTimeout:  30 * time.Second,
			TimeToSettle:        100 * time.Millisecond,
		},
		Delegate: DelegateOptions{},
	}
}

// BrowserFactory creates the browser for one iteration. Every iteration
// gets a new browser.
type BrowserFactory func(index int) (browser.Browser, error)

// Observer receives progress callbacks. Any field may be nil.
type Observer struct {
	OnIterationStart func(index, total int)
	OnStateChange    func(index int, from, to State)
	OnIterationDone  func(result *IterationResult)
	OnRunDone        func(results []*RunResult)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithDelegate replaces the delegate chosen from the browser id.
func WithDelegate(d Delegate) Option {
	return func(e *Engine) { e.delegate = d }
}

// WithObserver sets the progress callbacks.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithRecorder records a video of every measured page.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithVisualMetrics analyses recorded videos.
func WithVisualMetrics(v VisualMetricsRunner) Option {
	return func(e *Engine) { e.visualMetrics = v }
}

// Engine runs iterations over one or more URLs and collects the results.
type Engine struct {
	cfg     Config
	factory BrowserFactory
	logger  *slog.Logger

	delegate      Delegate
	observer      Observer
	recorder      Recorder
	visualMetrics VisualMetricsRunner
}

// New creates an engine.
func New(cfg Config, factory BrowserFactory, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.Iterations < 1 {
		cfg.Iterations = 1
	}
	e := &Engine{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.delegate == nil {
		e.delegate = DelegateFor(cfg.Browser, cfg.Delegate, logger)
	}
	return e
}

// Run measures url for the configured number of iterations.
func (e *Engine) Run(ctx context.Context, url string) (*RunResult, error) {
	results, err := e.RunMultiple(ctx, []string{url})
	if len(results) == 0 {
		return nil, err
	}
	return results[0], err
}

// RunMultiple measures every URL in each iteration, in one browser
// session per iteration. Results are grouped per URL in input order.
func (e *Engine) RunMultiple(ctx context.Context, urls []string) ([]*RunResult, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	return e.run(ctx, MeasureURLs(urls), urls)
}

// RunScript runs a navigation script for every iteration. Results are
// grouped per alias or URL in the order pages were first measured.
func (e *Engine) RunScript(ctx context.Context, nav NavigationScript) ([]*RunResult, error) {
	return e.run(ctx, nav, nil)
}

func (e *Engine) run(ctx context.Context, nav NavigationScript, keys []string) ([]*RunResult, error) {
	rc := NewRunContext()
	logger := e.logger.With("run_id", rc.RunID)
	total := e.cfg.Iterations

	if err := e.delegate.OnStartRun(ctx, rc); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	defer func() {
		if err := e.delegate.OnStopRun(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("stop_run_hook_failed", "error", err)
		}
	}()

	g := newGrouping(keys, rc.RunID, stats.SummaryOptions{Decimals: e.cfg.Decimals}, logger)
	logger.Info("run_starting", "iterations", total, "urls", keys, "browser", e.cfg.Browser)

	var runErr error
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if e.observer.OnIterationStart != nil {
			e.observer.OnIterationStart(i, total)
		}

		res := e.runIteration(ctx, nav, i, rc, logger)
		g.add(res, e.delegate)

		if e.observer.OnIterationDone != nil {
			e.observer.OnIterationDone(res)
		}

		if shouldDelay(i, total, e.cfg.Delay) {
			logger.Debug("iteration_delay", "delay", e.cfg.Delay)
			if err := sleep(ctx, e.cfg.Delay); err != nil {
				runErr = err
				break
			}
		}
	}

	results := g.results()
	for _, r := range results {
		logger.Info("run_result", "url", r.URL, "result", stats.FormatResultLine(r.Summary))
	}
	if e.observer.OnRunDone != nil {
		e.observer.OnRunDone(results)
	}
	return results, runErr
}

func (e *Engine) runIteration(ctx context.Context, nav NavigationScript, index int, rc *RunContext, logger *slog.Logger) *IterationResult {
	b, err := e.factory(index)
	if err != nil {
		err = &BrowserError{Op: "create", Err: err}
		logger.Error("browser_create_failed", "iteration", index+1, "error", err)
		return &IterationResult{
			Index:     index,
			Timestamp: time.Now(),
			State:     StateFailed,
			Errors:    []string{err.Error()},
			Err:       err,
		}
	}

	cfg := e.cfg.Iteration
	cfg.RunContext = rc
	cfg.Recorder = e.recorder
	cfg.VisualMetrics = e.visualMetrics
	cfg.OnStateChange = e.observer.OnStateChange
	return NewIteration(cfg, b, e.delegate, logger).Run(ctx, nav, index)
}

// shouldDelay reports whether to wait after iteration index. There is no
// wait after the last one.
func shouldDelay(index, total int, delay time.Duration) bool {
	return delay > 0 && index < total-1
}

// grouping sorts pages into one collector per URL or alias.
type grouping struct {
	runID  string
	opts   stats.SummaryOptions
	logger *slog.Logger

	order      []string
	collectors map[string]*Collector
}

func newGrouping(keys []string, runID string, opts stats.SummaryOptions, logger *slog.Logger) *grouping {
	g := &grouping{
		runID:      runID,
		opts:       opts,
		logger:     logger,
		collectors: make(map[string]*Collector),
	}
	for _, k := range keys {
		g.collector(k, &PageResult{URL: k})
	}
	return g
}

func (g *grouping) collector(key string, page *PageResult) *Collector {
	if c, ok := g.collectors[key]; ok {
		return c
	}
	url := page.URL
	if page.Alias != "" && key == page.Alias {
		url = ""
	}
	c := NewCollector(url, page.Alias, g.runID, g.opts)
	g.collectors[key] = c
	g.order = append(g.order, key)
	return c
}

// add files every page of res under its key. Every known key gets exactly
// one page per iteration: a key the iteration never reached gets an empty
// failed page, and a key measured again keeps its first page with an error
// noting the dropped measurement.
func (g *grouping) add(res *IterationResult, d Delegate) {
	first := make(map[string]*PageResult, len(g.order))
	for i, page := range res.Pages {
		key := page.Key()
		if kept, ok := first[key]; ok {
			g.logger.Warn("duplicate_page_dropped", "key", key, "iteration", res.Index+1, "page", i+1)
			kept.addError(fmt.Errorf("%s measured again as page %d of iteration %d, that measurement was dropped", key, i+1, res.Index+1))
			continue
		}
		first[key] = page
		g.collector(key, page).Add(res, page)
	}

	for _, key := range g.order {
		if _, ok := first[key]; ok {
			continue
		}
		c := g.collectors[key]
		page := &PageResult{
			URL:       c.url,
			Alias:     c.alias,
			Timestamp: res.Timestamp,
			Errors:    append([]string{}, res.Errors...),
			missing:   true,
		}
		if len(page.Errors) == 0 {
			page.Errors = []string{"page was not measured in this iteration"}
		}
		d.Failing(page, res.Index)
		c.Add(res, page)
	}
}

func (g *grouping) results() []*RunResult {
	out := make([]*RunResult, 0, len(g.order))
	for _, key := range g.order {
		out = append(out, g.collectors[key].Result())
	}
	return out
}
