package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/randomizedcoder/go-browser-perf/internal/browser"
)

// IterationConfig configures one measurement iteration.
type IterationConfig struct {
	Scripts             browser.Categories
	PageCompleteCheck   string
	PageCompleteTimeout time.Duration
	ScriptTimeout       time.Duration
	BrowserStartTimeout time.Duration
	BrowserStopTimeout  time.Duration

	// PreURL is loaded before the navigation script to warm the cache.
	PreURL       string
	TimeToSettle time.Duration

	PreScripts  []NavigationScript
	PostScripts []NavigationScript

	Screenshot bool

	// VideoDir receives one video per measured page when Recorder is set.
	VideoDir      string
	Recorder      Recorder
	VisualMetrics VisualMetricsRunner

	RunContext *RunContext

	// OnStateChange is called on every state transition.
	OnStateChange func(index int, from, to State)
}

// Iteration runs one measurement cycle in a fresh browser.
type Iteration struct {
	cfg    IterationConfig
	b      browser.Browser
	d      Delegate
	logger *slog.Logger
}

// NewIteration creates an iteration that drives b. A nil delegate uses
// NoopDelegate.
func NewIteration(cfg IterationConfig, b browser.Browser, d Delegate, logger *slog.Logger) *Iteration {
	if d == nil {
		d = NoopDelegate{}
	}
	if cfg.BrowserStopTimeout <= 0 {
		cfg.BrowserStopTimeout = 30 * time.Second
	}
	return &Iteration{cfg: cfg, b: b, d: d, logger: logger}
}

// Run executes the iteration. It never returns an error: every failure is
// recorded in the result, and the browser is stopped before returning.
func (it *Iteration) Run(ctx context.Context, nav NavigationScript, index int) *IterationResult {
	res := &IterationResult{
		Index:     index,
		Timestamp: time.Now(),
		State:     StateNotStarted,
	}
	logger := it.logger.With("iteration", index+1)
	logger.Info("iteration_starting")

	setState := func(s State) {
		if res.State == s {
			return
		}
		old := res.State
		res.State = s
		logger.Debug("iteration_state", "from", old.String(), "to", s.String())
		if it.cfg.OnStateChange != nil {
			it.cfg.OnStateChange(index, old, s)
		}
	}

	m := &Measure{
		cfg: measureConfig{
			scripts:             it.cfg.Scripts,
			pageCompleteCheck:   it.cfg.PageCompleteCheck,
			pageCompleteTimeout: it.cfg.PageCompleteTimeout,
			scriptTimeout:       it.cfg.ScriptTimeout,
			screenshot:          it.cfg.Screenshot,
			videoDir:            it.cfg.VideoDir,
		},
		b:        it.b,
		d:        it.d,
		rc:       it.cfg.RunContext,
		recorder: it.cfg.Recorder,
		logger:   logger,
		index:    index,
		result:   res,
		setState: setState,
	}
	cmd := &Commands{Measure: m, b: it.b, result: res, logger: logger}

	defer func() {
		it.cleanup(ctx, setState, logger)
		res.Duration = time.Since(res.Timestamp)
		if res.Failed() {
			it.failPages(res)
			setState(StateFailed)
			logger.Warn("iteration_failed",
				"error", res.Err,
				"failure_messages", res.FailureMessages,
				"duration", res.Duration,
			)
			return
		}
		setState(StateDone)
		logger.Info("iteration_done", "pages", len(res.Pages), "duration", res.Duration)
	}()

	if err := it.run(ctx, nav, cmd, setState); err != nil {
		res.Err = err
		res.Errors = appendMissing(res.Errors, err.Error())
		return res
	}
	it.visualMetrics(ctx, res, logger)
	return res
}

func (it *Iteration) run(ctx context.Context, nav NavigationScript, cmd *Commands, setState func(State)) error {
	res := cmd.result

	setState(StateBrowserStarting)
	if err := it.d.BeforeBrowserStart(ctx); err != nil {
		return &BrowserError{Op: "before start", Err: err}
	}
	if err := runWithTimeout(ctx, "browser start", it.cfg.BrowserStartTimeout, it.b.Start); err != nil {
		return &BrowserError{Op: "start", Err: err}
	}
	res.Browser = it.b.Info()
	if err := it.d.AfterBrowserStart(ctx, it.b); err != nil {
		return &BrowserError{Op: "after start", Err: err}
	}
	if err := it.d.OnStartIteration(ctx, it.b, res.Index); err != nil {
		return fmt.Errorf("start iteration: %w", err)
	}

	if it.cfg.PreURL != "" {
		cmd.logger.Debug("pre_url", "url", it.cfg.PreURL)
		if err := cmd.Navigate(ctx, it.cfg.PreURL); err != nil {
			return fmt.Errorf("pre URL: %w", err)
		}
	}
	if err := sleep(ctx, it.cfg.TimeToSettle); err != nil {
		return err
	}

	for i, script := range it.cfg.PreScripts {
		if err := callScript(ctx, script, cmd); err != nil {
			return fmt.Errorf("pre script %d: %w", i+1, err)
		}
	}

	if err := callScript(ctx, nav, cmd); err != nil {
		cmd.Error(err.Error())
		cmd.MarkAsFailure(err.Error())
		return err
	}
	if cmd.Measure.Measuring() {
		cmd.logger.Info("measure_not_stopped", "alias", cmd.Measure.page.Alias)
		if err := cmd.Measure.Stop(ctx); err != nil {
			return err
		}
	}

	for i, script := range it.cfg.PostScripts {
		if err := callScript(ctx, script, cmd); err != nil {
			return fmt.Errorf("post script %d: %w", i+1, err)
		}
	}

	if err := it.d.OnStopIteration(ctx, it.b, res); err != nil {
		cmd.logger.Warn("stop_iteration_hook_failed", "error", err)
		res.Errors = append(res.Errors, err.Error())
	}
	return nil
}

// callScript runs a user script and turns a panic into an error.
func callScript(ctx context.Context, script NavigationScript, cmd *Commands) (err error) {
	if script == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panicked: %v", r)
		}
	}()
	return script(ctx, cmd)
}

// visualMetrics analyses the video of every page. A failed analysis is
// recorded on its page only.
func (it *Iteration) visualMetrics(ctx context.Context, res *IterationResult, logger *slog.Logger) {
	if it.cfg.VisualMetrics == nil {
		return
	}
	for _, page := range res.Pages {
		if page.VideoPath == "" {
			continue
		}
		// video/<n>/<name>.mp4 keeps its frames in video/<n>/images/<name>.
		name := strings.TrimSuffix(filepath.Base(page.VideoPath), filepath.Ext(page.VideoPath))
		images := filepath.Join(filepath.Dir(page.VideoPath), "images", name)
		vm, err := it.cfg.VisualMetrics.Run(ctx, page.VideoPath, images)
		if err != nil {
			logger.Error("visual_metrics_failed", "video", page.VideoPath, "error", err)
			page.addError(fmt.Errorf("visual metrics: %w", err))
			continue
		}
		page.VisualMetrics = vm
		if page.HAR != nil && len(page.HAR.Log.Pages) > 0 {
			page.HAR.Log.Pages[0].VisualMetrics = vm
		}
	}
}

// cleanup stops the recorder and the browser. It runs on every path and
// only logs its errors so they never hide the iteration's own result.
func (it *Iteration) cleanup(ctx context.Context, setState func(State), logger *slog.Logger) {
	if it.cfg.Recorder != nil {
		it.cfg.Recorder.Cancel()
	}

	setState(StateBrowserStopping)
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), it.cfg.BrowserStopTimeout)
	defer cancel()
	if err := it.b.Stop(stopCtx); err != nil {
		logger.Warn("browser_stop_failed", "error", err)
	}
}

// failPages lets the delegate fill in pages of a failed iteration.
func (it *Iteration) failPages(res *IterationResult) {
	for _, page := range res.Pages {
		it.d.Failing(page, res.Index)
	}
}
