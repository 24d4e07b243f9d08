package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// stringList is a custom flag type for repeatable flags such as -script.
// Values from a config file are replaced by the first flag, not merged.
type stringList struct {
	values *[]string
	set    bool
}

func (s *stringList) String() string {
	if s.values == nil {
		return ""
	}
	return strings.Join(*s.values, ", ")
}

func (s *stringList) Set(value string) error {
	if !s.set {
		*s.values = nil
		s.set = true
	}
	*s.values = append(*s.values, value)
	return nil
}

// ParseFlags parses command-line flags and returns a Config.
// Returns an error if required arguments are missing or invalid.
func ParseFlags() (*Config, error) {
	return Parse(os.Args[1:], os.Stderr)
}

// Parse builds a Config from defaults, the optional -config file and args,
// in that order of precedence. Positional arguments are URLs.
func Parse(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()

	if path := configPath(args); path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet("go-browser-perf", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() { usage(fs, output) }

	fs.String("config", cfg.ConfigFile, "YAML config file, flags override its values")

	// Run
	fs.Var(&stringList{values: &cfg.URLs}, "url", "URL to measure (can repeat, positional arguments work too)")
	fs.IntVar(&cfg.Iterations, "n", cfg.Iterations, "Number of iterations per URL")
	fs.DurationVar(&cfg.Delay, "delay", cfg.Delay, "Pause between iterations")
	fs.BoolVar(&cfg.Multi, "multi", cfg.Multi, "Measure all URLs in one browser session per iteration")

	// Browser
	fs.StringVar(&cfg.Browser, "browser", cfg.Browser, `Browser: "chrome" or "edge"`)
	fs.StringVar(&cfg.BrowserPath, "browser-binary", cfg.BrowserPath, "Path to the browser binary (default: search PATH)")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run the browser headless (use -headless=false for video)")
	fs.IntVar(&cfg.WindowWidth, "window-width", cfg.WindowWidth, "Browser window width")
	fs.IntVar(&cfg.WindowHeight, "window-height", cfg.WindowHeight, "Browser window height")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "Override the browser User-Agent")
	fs.Var(&stringList{values: &cfg.BrowserArgs}, "browser-arg", "Extra browser switch, e.g. --lang=en-US (can repeat)")

	// Page load
	fs.StringVar(&cfg.PageCompleteCheck, "page-complete-check", cfg.PageCompleteCheck, "JavaScript returning true once the page is complete")
	fs.DurationVar(&cfg.PageCompleteTimeout, "page-complete-timeout", cfg.PageCompleteTimeout, "Give up waiting for the page after this long")
	fs.DurationVar(&cfg.PageCompletePollInterval, "page-complete-poll", cfg.PageCompletePollInterval, "How often the page complete check runs")
	fs.DurationVar(&cfg.ScriptTimeout, "script-timeout", cfg.ScriptTimeout, "Timeout for collecting browser scripts")
	fs.DurationVar(&cfg.BrowserStartTimeout, "browser-start-timeout", cfg.BrowserStartTimeout, "Timeout for starting the browser")
	fs.DurationVar(&cfg.BrowserStopTimeout, "browser-stop-timeout", cfg.BrowserStopTimeout, "Timeout for stopping the browser")
	fs.StringVar(&cfg.PreURL, "pre-url", cfg.PreURL, "URL loaded before each measurement to warm the cache")
	fs.DurationVar(&cfg.TimeToSettle, "settle", cfg.TimeToSettle, "Pause after the browser starts")

	// Collection
	fs.Var(&stringList{values: &cfg.ScriptPaths}, "script", "Directory or .js file with extra browser scripts (can repeat)")
	fs.IntVar(&cfg.Decimals, "decimals", cfg.Decimals, "Decimals in statistics")
	fs.BoolVar(&cfg.HAR, "har", cfg.HAR, "Build a HAR from the DevTools log")
	fs.BoolVar(&cfg.GzipHAR, "gzip-har", cfg.GzipHAR, "Compress HAR files")
	fs.BoolVar(&cfg.IncludeDiskCache, "include-disk-cache", cfg.IncludeDiskCache, "Keep responses served from the disk cache in the HAR")
	fs.BoolVar(&cfg.DoNotSkipPushes, "keep-pushes", cfg.DoNotSkipPushes, "Keep server pushed responses in the HAR")
	fs.BoolVar(&cfg.Trace, "trace", cfg.Trace, "Record a Chrome trace and report CPU time")
	fs.Var(&stringList{values: &cfg.TraceCategories}, "trace-category", "Chrome trace category, replaces the defaults (can repeat)")
	fs.BoolVar(&cfg.Screenshot, "screenshot", cfg.Screenshot, "Store a screenshot of every page")

	// Video
	fs.BoolVar(&cfg.Video, "video", cfg.Video, "Record the screen with ffmpeg")
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "Path to FFmpeg binary")
	fs.IntVar(&cfg.Display, "display", cfg.Display, "X display number to record")
	fs.IntVar(&cfg.Framerate, "framerate", cfg.Framerate, "Video frame rate")

	// Visual metrics
	fs.BoolVar(&cfg.VisualMetrics, "visual-metrics", cfg.VisualMetrics, "Compute SpeedIndex and friends from the video")
	fs.StringVar(&cfg.PythonPath, "python", cfg.PythonPath, "Python interpreter for visual metrics")
	fs.StringVar(&cfg.VisualMetricsScript, "visual-metrics-script", cfg.VisualMetricsScript, "Path to visualmetrics.py")

	// Output
	fs.StringVar(&cfg.ResultDir, "result-dir", cfg.ResultDir, "Base directory for results")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = off)")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)

	// Diagnostics
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Run preflight checks and one iteration")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.URLs = append(cfg.URLs, fs.Args()...)
	return cfg, nil
}

// configPath finds -config before flag parsing so the file can supply
// defaults.
func configPath(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		name := strings.TrimLeft(a, "-")
		if len(a)-len(name) < 1 || len(a)-len(name) > 2 {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `go-browser-perf - measure web page performance in a real browser

Usage:
  go-browser-perf [flags] <URL> [URL...]

Run:
`)
	printFlagCategory(fs, w, []string{"config", "url", "n", "delay", "multi"})

	fmt.Fprintf(w, "\nBrowser:\n")
	printFlagCategory(fs, w, []string{"browser", "browser-binary", "headless", "window-width", "window-height", "user-agent", "browser-arg"})

	fmt.Fprintf(w, "\nPage Load:\n")
	printFlagCategory(fs, w, []string{"page-complete-check", "page-complete-timeout", "page-complete-poll", "script-timeout", "browser-start-timeout", "browser-stop-timeout", "pre-url", "settle"})

	fmt.Fprintf(w, "\nCollection:\n")
	printFlagCategory(fs, w, []string{"script", "decimals", "har", "gzip-har", "include-disk-cache", "keep-pushes", "trace", "trace-category", "screenshot"})

	fmt.Fprintf(w, "\nVideo:\n")
	printFlagCategory(fs, w, []string{"video", "ffmpeg", "display", "framerate", "visual-metrics", "python", "visual-metrics-script"})

	fmt.Fprintf(w, "\nOutput & Observability:\n")
	printFlagCategory(fs, w, []string{"result-dir", "metrics", "tui", "v", "log-format"})

	fmt.Fprintf(w, "\nDiagnostics:\n")
	printFlagCategory(fs, w, []string{"check", "skip-preflight"})

	fmt.Fprintf(w, `
Examples:
  # Three iterations of one page
  go-browser-perf https://www.example.com/

  # Video and SpeedIndex on a virtual display
  go-browser-perf -headless=false -visual-metrics -visual-metrics-script ./visualmetrics.py -n 5 https://www.example.com/

  # Settings from a file, live dashboard and Prometheus
  go-browser-perf -config perf.yaml -tui -metrics 127.0.0.1:17092

`)
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	if _, ok := f.Value.(*stringList); ok {
		return "value"
	}

	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if _, err := time.ParseDuration(f.DefValue); err == nil && f.DefValue != "0" {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
