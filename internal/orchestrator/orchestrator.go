// Package orchestrator wires a measurement run together: preflight checks,
// the browser factory, the engine, result storage, Prometheus metrics and
// the live dashboard.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-browser-perf/internal/browser"
	"github.com/randomizedcoder/go-browser-perf/internal/config"
	"github.com/randomizedcoder/go-browser-perf/internal/engine"
	"github.com/randomizedcoder/go-browser-perf/internal/har"
	"github.com/randomizedcoder/go-browser-perf/internal/metrics"
	"github.com/randomizedcoder/go-browser-perf/internal/preflight"
	"github.com/randomizedcoder/go-browser-perf/internal/storage"
	"github.com/randomizedcoder/go-browser-perf/internal/tui"
	"github.com/randomizedcoder/go-browser-perf/internal/video"
)

// TextfileName is the metrics dump written into every result directory.
const TextfileName = "metrics.prom"

// Orchestrator coordinates all components of a measurement run.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	version string
	out     io.Writer

	browserID     browser.ID
	factory       engine.BrowserFactory
	recorder      *video.Recorder
	visualMetrics *video.VisualMetrics

	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server

	storage   *storage.Manager
	startTime time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithBrowserFactory replaces the Chrome factory, e.g. with a fake browser.
func WithBrowserFactory(f engine.BrowserFactory) Option {
	return func(o *Orchestrator) { o.factory = f }
}

// WithOutput sets where the preflight results and exit summary go.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

// WithVersion sets the version reported in the info metric.
func WithVersion(v string) Option {
	return func(o *Orchestrator) { o.version = v }
}

// New creates an Orchestrator for a validated configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	id, err := browser.ParseID(cfg.Browser)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		config:    cfg,
		logger:    logger,
		out:       os.Stdout,
		browserID: id,
	}
	for _, opt := range opts {
		opt(o)
	}

	// Video and visual metrics
	if cfg.NeedsVideo() {
		o.recorder = video.NewRecorder(video.RecorderConfig{
			FFmpegPath: cfg.FFmpegPath,
			Display:    cfg.Display,
			Width:      cfg.WindowWidth,
			Height:     cfg.WindowHeight,
			Framerate:  cfg.Framerate,
			Verbose:    cfg.Verbose,
		}, logger.With("component", "recorder"))
	}
	if cfg.VisualMetrics {
		o.visualMetrics = video.NewVisualMetrics(video.VisualMetricsConfig{
			Python:     cfg.PythonPath,
			ScriptPath: cfg.VisualMetricsScript,
			Browser:    string(id),
		}, logger.With("component", "visual_metrics"))
	}

	// Metrics live in a registry of their own so a process can hold more
	// than one run.
	o.registry = prometheus.NewRegistry()
	o.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	o.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:    o.version,
		Browser:    string(id),
		Iterations: o.totalIterations(),
	}, o.registry)
	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServerWithGatherer(cfg.MetricsAddr, o.registry, logger)
	}

	return o, nil
}

// Run executes the measurement. It blocks until every iteration finished,
// the context ends or a signal arrives.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	// Setup signal handling
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			o.logger.Info("received_signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(ctx, o.preflightOptions())
		o.printPreflight(result)
		if !result.Passed {
			return fmt.Errorf("preflight checks failed (use -skip-preflight to override)")
		}
	}

	scripts, err := o.loadScripts()
	if err != nil {
		return err
	}
	if o.factory == nil {
		factory, err := o.chromeFactory()
		if err != nil {
			return err
		}
		o.factory = factory
	}

	dir := storage.ResultDir(o.config.ResultDir, o.config.URLs[0], o.startTime)
	o.storage = storage.NewManager(dir, o.config.GzipHAR, o.logger)
	o.logger.Info("result_dir", "path", dir)

	// Start metrics server
	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer shutdownCancel()
			if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
				o.logger.Warn("metrics_server_shutdown_error", "error", err)
			}
		}()
	}

	observer := o.observer()

	// Start the dashboard
	var program *tea.Program
	tuiDone := make(chan struct{})
	if o.config.TUIEnabled {
		program = tea.NewProgram(tui.New(tui.Config{
			Browser:     string(o.browserID),
			URLs:        o.config.URLs,
			Iterations:  o.totalIterations(),
			MetricsAddr: o.config.MetricsAddr,
			ResultDir:   dir,
		}), tea.WithAltScreen())
		observer = chain(observer, tui.Observer(program))

		go func() {
			defer close(tuiDone)
			if _, err := program.Run(); err != nil {
				o.logger.Warn("tui_error", "error", err)
			}
			// Quitting the dashboard stops the run.
			cancel()
		}()
	} else {
		close(tuiDone)
	}

	runs, runErr := o.measure(ctx, scripts, observer)
	o.metrics.RunDone()

	storeErr := o.store(runs)

	if o.config.TUIEnabled {
		tui.SendQuit(program)
		<-tuiDone
	}

	o.printExitSummary(runs)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return storeErr
}

// measure runs the engine. Without -multi every URL gets runs of its own,
// otherwise all URLs share one browser session per iteration.
func (o *Orchestrator) measure(ctx context.Context, scripts browser.Categories, observer engine.Observer) ([]*engine.RunResult, error) {
	cfg := o.engineConfig(scripts)
	urls := o.config.URLs

	if o.config.Multi || len(urls) == 1 {
		eng := engine.New(cfg, o.factory, o.logger, o.engineOptions(observer)...)
		return eng.RunMultiple(ctx, urls)
	}

	var runs []*engine.RunResult
	for i, u := range urls {
		obs := sequence(observer, i*cfg.Iterations, o.totalIterations(), i == len(urls)-1)
		eng := engine.New(cfg, o.factory, o.logger, o.engineOptions(obs)...)
		r, err := eng.Run(ctx, u)
		if r != nil {
			runs = append(runs, r)
		}
		if err != nil {
			return runs, err
		}
	}
	return runs, nil
}

func (o *Orchestrator) engineConfig(scripts browser.Categories) engine.Config {
	cfg := o.config
	ec := engine.Config{
		Iterations: cfg.Iterations,
		Delay:      cfg.Delay,
		Browser:    o.browserID,
		Decimals:   cfg.Decimals,
		Iteration: engine.IterationConfig{
			Scripts:             scripts,
			PageCompleteCheck:   cfg.PageCompleteCheck,
			PageCompleteTimeout: cfg.PageCompleteTimeout,
			ScriptTimeout:       cfg.ScriptTimeout,
			BrowserStartTimeout: cfg.BrowserStartTimeout,
			BrowserStopTimeout:  cfg.BrowserStopTimeout,
			PreURL:              cfg.PreURL,
			TimeToSettle:        cfg.TimeToSettle,
			Screenshot:          cfg.Screenshot,
		},
		Delegate: engine.DelegateOptions{
			HAR: har.Options{
				IncludeDiskCacheEntries: cfg.IncludeDiskCache,
				DoNotSkipPushes:         cfg.DoNotSkipPushes,
			},
			SkipHAR: !cfg.HAR,
			Trace:   cfg.Trace,
		},
	}
	if o.recorder != nil && o.storage != nil {
		ec.Iteration.VideoDir = o.storage.VideoDir()
	}
	return ec
}

func (o *Orchestrator) engineOptions(observer engine.Observer) []engine.Option {
	opts := []engine.Option{engine.WithObserver(observer)}
	if o.recorder != nil {
		opts = append(opts, engine.WithRecorder(o.recorder))
	}
	if o.visualMetrics != nil {
		opts = append(opts, engine.WithVisualMetrics(o.visualMetrics))
	}
	return opts
}

// observer feeds the metrics collector and flips the server to ready once
// the first browser is up.
func (o *Orchestrator) observer() engine.Observer {
	return engine.Observer{
		OnIterationStart: func(index, total int) {
			o.metrics.IterationStarted(index, total)
		},
		OnStateChange: func(index int, from, to engine.State) {
			o.metrics.StateChanged(index, from, to)
			if from == engine.StateBrowserStarting && to != engine.StateFailed && o.metricsServer != nil {
				o.metricsServer.SetReady(true)
			}
		},
		OnIterationDone: o.metrics.IterationDone,
	}
}

// totalIterations is the number of iterations over the whole run.
func (o *Orchestrator) totalIterations() int {
	if o.config.Multi {
		return o.config.Iterations
	}
	return o.config.Iterations * max(len(o.config.URLs), 1)
}

// loadScripts returns the built-in browser scripts merged with the
// configured script paths.
func (o *Orchestrator) loadScripts() (browser.Categories, error) {
	scripts, err := browser.DefaultScripts()
	if err != nil {
		return nil, fmt.Errorf("load default scripts: %w", err)
	}
	if len(o.config.ScriptPaths) == 0 {
		return scripts, nil
	}
	custom, err := browser.LoadScripts(o.config.ScriptPaths)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("custom_scripts_loaded", "categories", custom.Names())
	return scripts.Merge(custom), nil
}

// chromeOptions maps the configuration onto the Chrome options.
func (o *Orchestrator) chromeOptions(binary string) browser.ChromeOptions {
	cfg := o.config
	opts := browser.DefaultChromeOptions()
	opts.ID = o.browserID
	opts.BinaryPath = binary
	opts.Headless = cfg.Headless
	opts.WindowWidth = cfg.WindowWidth
	opts.WindowHeight = cfg.WindowHeight
	opts.UserAgent = cfg.UserAgent
	opts.Args = cfg.BrowserArgs
	opts.ScriptTimeout = cfg.ScriptTimeout
	opts.PageCompleteTimeout = cfg.PageCompleteTimeout
	opts.PageCompletePollInterval = cfg.PageCompletePollInterval
	if len(cfg.TraceCategories) > 0 {
		opts.TraceCategories = cfg.TraceCategories
	}
	if !cfg.Headless && cfg.NeedsVideo() {
		opts.Env = append(opts.Env, fmt.Sprintf("DISPLAY=:%d", cfg.Display))
	}
	return opts
}

// chromeFactory starts a fresh Chrome or Edge for every iteration.
func (o *Orchestrator) chromeFactory() (engine.BrowserFactory, error) {
	binary, err := browser.FindBinary(o.browserID, o.config.BrowserPath)
	if err != nil {
		return nil, err
	}
	opts := o.chromeOptions(binary)
	return func(index int) (browser.Browser, error) {
		return browser.NewChrome(opts, o.logger.With("iteration", index+1)), nil
	}, nil
}

func (o *Orchestrator) preflightOptions() preflight.Options {
	opts := preflight.Options{
		Browser:       o.browserID,
		BrowserBinary: o.config.BrowserPath,
		Headless:      o.config.Headless,
		Video:         o.config.NeedsVideo(),
		FFmpegPath:    o.config.FFmpegPath,
		Display:       o.config.Display,
		ResultDir:     o.config.ResultDir,
	}
	if o.factory != nil {
		// The browser comes from elsewhere
		opts.Browser = ""
	}
	if o.visualMetrics != nil {
		opts.VisualMetrics = o.visualMetrics
	}
	return opts
}

// store writes every run and the metrics textfile. It keeps going after a
// failed write and reports all failures.
func (o *Orchestrator) store(runs []*engine.RunResult) error {
	if o.storage == nil {
		return nil
	}
	platform := storage.Platform()

	var errs []error
	for _, r := range runs {
		files, err := o.storage.WriteRun(r, platform)
		if err != nil {
			o.logger.Error("store_failed", "url", r.URL, "error", err)
			errs = append(errs, err)
			continue
		}
		o.logger.Info("result_stored",
			"url", r.URL,
			"result", files.Result,
			"har", files.HAR,
			"screenshots", len(files.Screenshots),
		)
	}

	if err := metrics.WriteTextfile(o.storage.Path(TextfileName), o.registry); err != nil {
		o.logger.Warn("metrics_textfile_failed", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ResultDir returns the directory of the current run, empty before Run.
func (o *Orchestrator) ResultDir() string {
	if o.storage == nil {
		return ""
	}
	return o.storage.Dir()
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Registry returns the registry holding the run's metrics.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}
