package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/randomizedcoder/go-browser-perf/internal/browser"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// At least one URL is required
	if len(cfg.URLs) == 0 {
		add("urls", "at least one URL is required")
	}
	for _, u := range cfg.URLs {
		if err := validateURL(u); err != nil {
			add("urls", "%s: %v", u, err)
		}
	}
	if cfg.PreURL != "" {
		if err := validateURL(cfg.PreURL); err != nil {
			add("pre_url", "%v", err)
		}
	}

	// Iterations must be positive
	if cfg.Iterations < 1 {
		add("iterations", "must be at least 1")
	}
	if cfg.Delay < 0 {
		add("delay", "must not be negative")
	}

	// Browser must be supported
	if _, err := browser.ParseID(cfg.Browser); err != nil {
		add("browser", "%v", err)
	}
	if cfg.WindowWidth < 1 || cfg.WindowHeight < 1 {
		add("window", "width and height must be positive (got %dx%d)", cfg.WindowWidth, cfg.WindowHeight)
	}

	// Timeouts must be positive
	timeouts := []struct {
		field string
		value time.Duration
	}{
		{"page_complete_timeout", cfg.PageCompleteTimeout},
		{"page_complete_poll_interval", cfg.PageCompletePollInterval},
		{"script_timeout", cfg.ScriptTimeout},
		{"browser_start_timeout", cfg.BrowserStartTimeout},
		{"browser_stop_timeout", cfg.BrowserStopTimeout},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			add(t.field, "must be positive")
		}
	}
	if cfg.PageCompletePollInterval > cfg.PageCompleteTimeout {
		add("page_complete_poll_interval", "must not exceed page_complete_timeout (%v)", cfg.PageCompleteTimeout)
	}
	if cfg.TimeToSettle < 0 {
		add("time_to_settle", "must not be negative")
	}

	// Statistics decimals
	if cfg.Decimals < 0 || cfg.Decimals > 6 {
		add("decimals", "must be between 0 and 6 (got %d)", cfg.Decimals)
	}

	// Script paths must exist
	for _, p := range cfg.ScriptPaths {
		if _, err := os.Stat(p); err != nil {
			add("scripts", "%v", err)
		}
	}

	// HAR tweaks need a HAR
	if !cfg.HAR && (cfg.GzipHAR || cfg.IncludeDiskCache || cfg.DoNotSkipPushes) {
		add("har", "gzip_har, include_disk_cache and do_not_skip_pushes need har enabled")
	}

	// Video needs a visible browser
	if cfg.NeedsVideo() {
		if cfg.Headless {
			add("headless", "video and visual metrics record the screen, use -headless=false")
		}
		if cfg.Framerate < 1 || cfg.Framerate > 60 {
			add("framerate", "must be between 1 and 60 (got %d)", cfg.Framerate)
		}
		if cfg.Display < 0 {
			add("display", "must not be negative")
		}
	}
	if cfg.VisualMetrics && cfg.VisualMetricsScript == "" {
		add("visual_metrics_script", "required when visual metrics are enabled")
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		add("log_format", "must be 'json' or 'text' (got %q)", cfg.LogFormat)
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	return nil
}
