// Package config provides configuration management for go-browser-perf.
package config

import "time"

// Config holds all configuration options for a measurement run.
type Config struct {
	// Run
	URLs       []string      `json:"urls" yaml:"urls"`
	Iterations int           `json:"iterations" yaml:"iterations"`
	Delay      time.Duration `json:"delay" yaml:"delay"`
	// Multi measures all URLs in one browser session per iteration.
	Multi bool `json:"multi" yaml:"multi"`

	// Browser
	Browser      string   `json:"browser" yaml:"browser"`
	BrowserPath  string   `json:"browser_path" yaml:"browser_path"`
	Headless     bool     `json:"headless" yaml:"headless"`
	WindowWidth  int      `json:"window_width" yaml:"window_width"`
	WindowHeight int      `json:"window_height" yaml:"window_height"`
	UserAgent    string   `json:"user_agent" yaml:"user_agent"`
	BrowserArgs  []string `json:"browser_args" yaml:"browser_args"`

	// Page load
	PageCompleteCheck        string        `json:"page_complete_check" yaml:"page_complete_check"`
	PageCompleteTimeout      time.Duration `json:"page_complete_timeout" yaml:"page_complete_timeout"`
	PageCompletePollInterval time.Duration `json:"page_complete_poll_interval" yaml:"page_complete_poll_interval"`
	ScriptTimeout            time.Duration `json:"script_timeout" yaml:"script_timeout"`
	BrowserStartTimeout      time.Duration `json:"browser_start_timeout" yaml:"browser_start_timeout"`
	BrowserStopTimeout       time.Duration `json:"browser_stop_timeout" yaml:"browser_stop_timeout"`
	PreURL                   string        `json:"pre_url" yaml:"pre_url"`
	TimeToSettle             time.Duration `json:"time_to_settle" yaml:"time_to_settle"`

	// Collection
	ScriptPaths      []string `json:"scripts" yaml:"scripts"`
	Decimals         int      `json:"decimals" yaml:"decimals"`
	HAR              bool     `json:"har" yaml:"har"`
	GzipHAR          bool     `json:"gzip_har" yaml:"gzip_har"`
	IncludeDiskCache bool     `json:"include_disk_cache" yaml:"include_disk_cache"`
	DoNotSkipPushes  bool     `json:"do_not_skip_pushes" yaml:"do_not_skip_pushes"`
	Trace            bool     `json:"trace" yaml:"trace"`
	TraceCategories  []string `json:"trace_categories" yaml:"trace_categories"`
	Screenshot       bool     `json:"screenshot" yaml:"screenshot"`

	// Video
	Video      bool   `json:"video" yaml:"video"`
	FFmpegPath string `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	Display    int    `json:"display" yaml:"display"`
	Framerate  int    `json:"framerate" yaml:"framerate"`

	// Visual metrics
	VisualMetrics       bool   `json:"visual_metrics" yaml:"visual_metrics"`
	PythonPath          string `json:"python_path" yaml:"python_path"`
	VisualMetricsScript string `json:"visual_metrics_script" yaml:"visual_metrics_script"`

	// Output
	ResultDir string `json:"result_dir" yaml:"result_dir"`

	// Observability
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`
	TUIEnabled  bool   `json:"tui" yaml:"tui"`
	Verbose     bool   `json:"verbose" yaml:"verbose"`
	LogFormat   string `json:"log_format" yaml:"log_format"` // json, text

	// Diagnostic modes
	Check         bool `json:"check" yaml:"check"`
	SkipPreflight bool `json:"skip_preflight" yaml:"skip_preflight"`

	// ConfigFile is where the values were loaded from, if anywhere.
	ConfigFile string `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Run
		Iterations: 3,

		// Browser
		Browser:      "chrome",
		Headless:     true,
		WindowWidth:  1366,
		WindowHeight: 708,

		// Page load
		PageCompleteTimeout:      5 * time.Minute,
		PageCompletePollInterval: 500 * time.Millisecond,
		ScriptTimeout:            2 * time.Minute,
		BrowserStartTimeout:      time.Minute,
		BrowserStopTimeout:       30 * time.Second,
		TimeToSettle:             100 * time.Millisecond,

		// Collection
		Decimals: 0,
		HAR:      true,

		// Video
		FFmpegPath: "ffmpeg",
		Display:    99,
		Framerate:  30,

		// Visual metrics
		PythonPath: "python3",

		// Output
		ResultDir: "browser-perf-results",

		// Observability
		MetricsAddr: "",
		TUIEnabled:  false,
		LogFormat:   "text",
	}
}

// NeedsVideo reports whether a screen recording is required.
func (c *Config) NeedsVideo() bool {
	return c.Video || c.VisualMetrics
}

// ApplyCheckMode modifies config for --check mode.
func ApplyCheckMode(cfg *Config) {
	cfg.Iterations = 1
	cfg.Delay = 0
	cfg.Verbose = true
	cfg.TUIEnabled = false
}
