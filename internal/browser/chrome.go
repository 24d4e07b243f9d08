package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/tracing"
	"github.com/chromedp/chromedp"

	"github.com/randomizedcoder/go-browser-perf/internal/perflog"
	"github.com/randomizedcoder/go-browser-perf/internal/trace"
)

// ChromeOptions configures a Chromium based browser.
type ChromeOptions struct {
	ID         ID
	BinaryPath string
	Headless   bool

	WindowWidth  int
	WindowHeight int
	UserAgent    string

	// Args are extra command line switches, e.g. "--disable-gpu" or
	// "--lang=en-US".
	Args []string

	// Env is added to the browser environment, e.g. "DISPLAY=:99".
	Env []string

	ScriptTimeout            time.Duration
	PageCompleteTimeout      time.Duration
	PageCompletePollInterval time.Duration

	// TraceCategories are recorded by StartTrace.
	TraceCategories []string
}

// DefaultChromeOptions returns options for a headless Chrome.
func DefaultChromeOptions() ChromeOptions {
	return ChromeOptions{
		ID:                       IDChrome,
		Headless:                 true,
		WindowWidth:              1366,
		WindowHeight:             708,
		ScriptTimeout:            2 * time.Minute,
		PageCompleteTimeout:      5 * time.Minute,
		PageCompletePollInterval: 500 * time.Millisecond,
		TraceCategories:          slices.Clone(trace.DefaultCategories),
	}
}

// binaryCandidates are looked up in PATH when no binary is configured.
var binaryCandidates = map[ID][]string{
	IDChrome: {"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"},
	IDEdge:   {"microsoft-edge", "microsoft-edge-stable", "msedge"},
}

// FindBinary returns the configured binary if it resolves, or the first
// known binary for id found in PATH.
func FindBinary(id ID, configured string) (string, error) {
	if configured != "" {
		path, err := exec.LookPath(configured)
		if err != nil {
			return "", fmt.Errorf("browser binary %q: %w", configured, err)
		}
		return path, nil
	}
	for _, name := range binaryCandidates[id] {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no %s binary found in PATH (tried %s)", id, strings.Join(binaryCandidates[id], ", "))
}

// Chrome drives a Chromium based browser with chromedp. DevTools events
// are recorded from the moment the browser starts and drained by GetLogs.
type Chrome struct {
	opts   ChromeOptions
	logger *slog.Logger

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logs        []perflog.RawLogEntry
	trace       []json.RawMessage
	traceDone   chan struct{}
	info        Info
}

// NewChrome creates a browser that is started by Start.
func NewChrome(opts ChromeOptions, logger *slog.Logger) *Chrome {
	if opts.ID == "" {
		opts.ID = IDChrome
	}
	if opts.PageCompletePollInterval <= 0 {
		opts.PageCompletePollInterval = 500 * time.Millisecond
	}
	return &Chrome{
		opts:   opts,
		logger: logger,
	}
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", c.opts.Headless),
		chromedp.Flag("enable-automation", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if c.opts.BinaryPath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.BinaryPath))
	}
	if c.opts.WindowWidth > 0 && c.opts.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(c.opts.WindowWidth, c.opts.WindowHeight))
	}
	if c.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.opts.UserAgent))
	}
	if len(c.opts.Env) > 0 {
		opts = append(opts, chromedp.Env(c.opts.Env...))
	}
	for _, arg := range c.opts.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// Start launches the browser and enables the Network and Page domains.
// ctx bounds the launch only; the browser lives until Stop.
func (c *Chrome) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()
		return fmt.Errorf("%s already started", c.opts.ID)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), c.allocatorOptions()...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	c.logs = nil
	c.mu.Unlock()

	chromedp.ListenTarget(browserCtx, c.onEvent)

	var info Info
	errc := make(chan error, 1)
	go func() {
		// The first Run launches the browser, so it must use the
		// browser context itself and not a derived one.
		errc <- chromedp.Run(browserCtx,
			network.Enable(),
			page.Enable(),
			chromedp.ActionFunc(func(ctx context.Context) error {
				_, product, _, userAgent, _, err := cdpbrowser.GetVersion().Do(ctx)
				if err != nil {
					return err
				}
				info = parseProduct(product, userAgent)
				return nil
			}),
		)
	}()

	select {
	case err := <-errc:
		if err != nil {
			cancel()
			allocCancel()
			return fmt.Errorf("start %s: %w", c.opts.ID, err)
		}
	case <-ctx.Done():
		cancel()
		allocCancel()
		return fmt.Errorf("start %s: %w", c.opts.ID, ctx.Err())
	}

	c.mu.Lock()
	c.ctx = browserCtx
	c.cancel = cancel
	c.allocCancel = allocCancel
	c.info = info
	c.mu.Unlock()

	c.logger.Debug("browser_started", "browser", c.opts.ID, "version", info.Version)
	return nil
}

// parseProduct splits "HeadlessChrome/120.0.6099.109" into name and
// version.
func parseProduct(product, userAgent string) Info {
	name, version, _ := strings.Cut(product, "/")
	name = strings.TrimPrefix(name, "Headless")
	return Info{Name: name, Version: version, UserAgent: userAgent}
}

// Stop closes the browser gracefully, or kills it when ctx ends first.
func (c *Chrome) Stop(ctx context.Context) error {
	c.mu.Lock()
	browserCtx, cancel, allocCancel := c.ctx, c.cancel, c.allocCancel
	c.ctx, c.cancel, c.allocCancel = nil, nil, nil
	c.mu.Unlock()

	if browserCtx == nil {
		return nil
	}
	defer allocCancel()
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Cancel(browserCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stop %s: %w", c.opts.ID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop %s: %w", c.opts.ID, ctx.Err())
	}
}

// Info returns the browser name and version read at start.
func (c *Chrome) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info.Name == "" {
		return Info{Name: string(c.opts.ID)}
	}
	return c.info
}

// run executes actions on the browser target. Cancelling ctx aborts the
// actions without closing the browser.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	c.mu.Lock()
	browserCtx := c.ctx
	c.mu.Unlock()
	if browserCtx == nil {
		return ErrNotStarted
	}

	runCtx, cancel := context.WithCancel(browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// RunScript evaluates src as an expression. Promises are awaited. A null
// or undefined result is returned as nil.
func (c *Chrome) RunScript(ctx context.Context, src, name string) (any, error) {
	if c.opts.ScriptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ScriptTimeout)
		defer cancel()
	}

	var raw []byte
	if err := c.run(ctx, chromedp.Evaluate(src, &raw, awaitPromise)); err != nil {
		if errors.Is(err, chromedp.ErrJSUndefined) || errors.Is(err, chromedp.ErrJSNull) {
			return nil, nil
		}
		return nil, fmt.Errorf("run script %s: %w", name, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode result of %s: %w", name, err)
	}
	return v, nil
}

// RunScripts runs scripts by category.
func (c *Chrome) RunScripts(ctx context.Context, scripts Categories) (map[string]map[string]any, error) {
	return RunScripts(ctx, c, scripts, c.logger)
}

// LoadAndWait navigates and polls pageCompleteCheck until it returns true
// or the page complete timeout expires. An http(s) URL that ends up on a
// non http(s) document, such as a browser error page, fails.
func (c *Chrome) LoadAndWait(ctx context.Context, url, pageCompleteCheck string) error {
	if pageCompleteCheck == "" {
		pageCompleteCheck = DefaultPageCompleteCheck
	}
	if c.opts.PageCompleteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.PageCompleteTimeout)
		defer cancel()
	}

	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}

	if isHTTP(url) {
		var uri string
		if err := c.run(ctx, chromedp.Evaluate("document.documentURI", &uri)); err != nil {
			return fmt.Errorf("read document URI: %w", err)
		}
		if !isHTTP(uri) {
			return fmt.Errorf("failed to load %s (document is %s)", url, uri)
		}
	}

	ticker := time.NewTicker(c.opts.PageCompletePollInterval)
	defer ticker.Stop()

	for {
		done, err := c.RunScript(ctx, pageCompleteCheck, "pageCompleteCheck")
		if err != nil {
			return fmt.Errorf("page complete check: %w", err)
		}
		if complete, _ := done.(bool); complete {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("page complete check for %s: %w", url, ctx.Err())
		case <-ticker.C:
		}
	}
}

func isHTTP(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// GetLogs drains the recorded DevTools events.
func (c *Chrome) GetLogs(ctx context.Context, logType LogType) ([]perflog.RawLogEntry, error) {
	if logType != LogTypePerformance {
		return nil, fmt.Errorf("unsupported log type %q", logType)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	logs := c.logs
	c.logs = nil
	return logs, nil
}

// StartTrace starts recording trace events.
func (c *Chrome) StartTrace(ctx context.Context) error {
	categories := c.opts.TraceCategories
	if len(categories) == 0 {
		return errors.New("no trace categories configured")
	}

	c.mu.Lock()
	c.trace = nil
	c.traceDone = make(chan struct{})
	c.mu.Unlock()

	return c.run(ctx, tracing.Start().WithTraceConfig(&tracing.TraceConfig{
		IncludedCategories: categories,
	}))
}

// StopTrace ends tracing and returns the events once the browser has
// flushed them.
func (c *Chrome) StopTrace(ctx context.Context) ([]json.RawMessage, error) {
	c.mu.Lock()
	done := c.traceDone
	c.mu.Unlock()
	if done == nil {
		return nil, errors.New("tracing not started")
	}

	if err := c.run(ctx, tracing.End()); err != nil {
		return nil, fmt.Errorf("end tracing: %w", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for trace: %w", ctx.Err())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.trace
	c.trace = nil
	return events, nil
}

// Screenshot captures the viewport as PNG.
func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

// onEvent runs on the chromedp event goroutine and must not block.
func (c *Chrome) onEvent(ev any) {
	switch e := ev.(type) {
	case *tracing.EventDataCollected:
		c.mu.Lock()
		for _, v := range e.Value {
			c.trace = append(c.trace, append(json.RawMessage(nil), v...))
		}
		c.mu.Unlock()
		return
	case *tracing.EventTracingComplete:
		c.mu.Lock()
		if c.traceDone != nil {
			close(c.traceDone)
			c.traceDone = nil
		}
		c.mu.Unlock()
		return
	}

	method, ok := eventMethod(ev)
	if !ok {
		return
	}
	entry, err := perflog.Encode(method, ev, time.Now())
	if err != nil {
		c.logger.Debug("browser_event_encode_failed", "method", string(method), "error", err)
		return
	}

	c.mu.Lock()
	c.logs = append(c.logs, entry)
	c.mu.Unlock()
}

// eventMethod maps the DevTools events the HAR builder consumes back to
// their protocol method names.
func eventMethod(ev any) (cdproto.MethodType, bool) {
	switch ev.(type) {
	case *network.EventRequestWillBeSent:
		return cdproto.EventNetworkRequestWillBeSent, true
	case *network.EventResponseReceived:
		return cdproto.EventNetworkResponseReceived, true
	case *network.EventDataReceived:
		return cdproto.EventNetworkDataReceived, true
	case *network.EventLoadingFinished:
		return cdproto.EventNetworkLoadingFinished, true
	case *network.EventLoadingFailed:
		return cdproto.EventNetworkLoadingFailed, true
	case *network.EventRequestServedFromCache:
		return cdproto.EventNetworkRequestServedFromCache, true
	case *page.EventFrameStartedLoading:
		return cdproto.EventPageFrameStartedLoading, true
	case *page.EventFrameAttached:
		return cdproto.EventPageFrameAttached, true
	case *page.EventLoadEventFired:
		return cdproto.EventPageLoadEventFired, true
	case *page.EventDomContentEventFired:
		return cdproto.EventPageDomContentEventFired, true
	}
	return "", false
}
