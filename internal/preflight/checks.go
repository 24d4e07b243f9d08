// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/randomizedcoder/go-browser-perf/internal/browser"
)

// Thresholds for the resource checks.
const (
	requiredFileDescriptors = 1024
	minFreeDiskBytes        = 500 << 20
	minFreeMemoryBytes      = 1 << 30
	commandTimeout          = 10 * time.Second
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Checker verifies an external tool, e.g. the visual metrics script.
type Checker interface {
	Check(ctx context.Context) error
}

// Options selects the checks that apply to a run.
type Options struct {
	// Browser is looked up in PATH unless empty.
	Browser       browser.ID
	BrowserBinary string
	Headless      bool

	// Video enables the ffmpeg and display checks.
	Video      bool
	FFmpegPath string
	Display    int

	// VisualMetrics is checked when set.
	VisualMetrics Checker

	ResultDir string
}

// RunAll executes all preflight checks.
func RunAll(ctx context.Context, opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 8),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkFileDescriptors())
	if opts.Browser != "" {
		add(checkBrowser(ctx, opts.Browser, opts.BrowserBinary))
	}

	if opts.Video {
		add(checkFFmpeg(ctx, opts.FFmpegPath))
		if !opts.Headless {
			add(checkDisplay(opts.Display))
		}
	}
	if opts.VisualMetrics != nil {
		add(checkVisualMetrics(ctx, opts.VisualMetrics))
	}

	if opts.ResultDir != "" {
		add(checkResultDir(opts.ResultDir))
		add(checkDiskSpace(opts.ResultDir))
	}

	// Memory is advisory only
	add(checkMemory())

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	// Chrome opens a socket per connection plus its own profile files.
	actual := int(limit.Cur)
	return Check{
		Name:     "file_descriptors",
		Required: requiredFileDescriptors,
		Actual:   actual,
		Passed:   actual >= requiredFileDescriptors,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, requiredFileDescriptors),
	}
}

// checkBrowser verifies the browser binary exists and reports its version.
func checkBrowser(ctx context.Context, id browser.ID, configured string) Check {
	path, err := browser.FindBinary(id, configured)
	if err != nil {
		return Check{
			Name:    "browser",
			Passed:  false,
			Message: err.Error(),
		}
	}

	version := "unknown"
	if out, err := commandOutput(ctx, path, "--version"); err == nil {
		// "Google Chrome 126.0.6478.126"
		if v := strings.TrimSpace(out); v != "" {
			version = v
		}
	}

	return Check{
		Name:    "browser",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (%s)", path, version),
	}
}

// checkFFmpeg verifies FFmpeg is available and working.
func checkFFmpeg(ctx context.Context, path string) Check {
	if path == "" {
		path = "ffmpeg"
	}
	output, err := commandOutput(ctx, path, "-version")
	if err != nil {
		return Check{
			Name:    "ffmpeg",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}

	// Extract version from first line
	lines := strings.Split(output, "\n")
	version := "unknown"
	if len(lines) > 0 {
		// "ffmpeg version 6.1 Copyright ..."
		parts := strings.Fields(lines[0])
		if len(parts) >= 3 {
			version = parts[2]
		}
	}

	return Check{
		Name:    "ffmpeg",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, version),
	}
}

// checkDisplay verifies the X display the recorder captures is up.
func checkDisplay(display int) Check {
	socket := fmt.Sprintf("/tmp/.X11-unix/X%d", display)
	if _, err := os.Stat(socket); err == nil {
		return Check{
			Name:    "display",
			Passed:  true,
			Message: fmt.Sprintf(":%d (%s)", display, socket),
		}
	}
	if env := os.Getenv("DISPLAY"); env == fmt.Sprintf(":%d", display) {
		return Check{
			Name:    "display",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("DISPLAY=%s set but no socket at %s", env, socket),
		}
	}
	return Check{
		Name:    "display",
		Passed:  false,
		Message: fmt.Sprintf("no X server on :%d", display),
	}
}

// checkVisualMetrics runs the tool's own dependency check.
func checkVisualMetrics(ctx context.Context, c Checker) Check {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := c.Check(ctx); err != nil {
		return Check{
			Name:    "visual_metrics",
			Passed:  false,
			Message: err.Error(),
		}
	}
	return Check{
		Name:    "visual_metrics",
		Passed:  true,
		Message: "dependencies installed",
	}
}

// checkResultDir verifies results can be written.
func checkResultDir(dir string) Check {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    "result_dir",
			Passed:  false,
			Message: err.Error(),
		}
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return Check{
			Name:    "result_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
		}
	}
	f.Close()
	os.Remove(f.Name())

	abs, _ := filepath.Abs(dir)
	return Check{
		Name:    "result_dir",
		Passed:  true,
		Message: abs,
	}
}

// checkDiskSpace warns when the result disk is nearly full.
func checkDiskSpace(dir string) Check {
	usage, err := disk.Usage(dir)
	if err != nil {
		return Check{
			Name:    "disk_space",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}
	return Check{
		Name:    "disk_space",
		Passed:  true,
		Warning: usage.Free < minFreeDiskBytes,
		Message: fmt.Sprintf("%d MB free on %s", usage.Free>>20, usage.Path),
	}
}

// checkMemory warns when little memory is left for the browser.
func checkMemory() Check {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Check{
			Name:    "memory",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}
	return Check{
		Name:    "memory",
		Passed:  true,
		Warning: vm.Available < minFreeMemoryBytes,
		Message: fmt.Sprintf("%d MB available of %d MB", vm.Available>>20, vm.Total>>20),
	}
}

func commandOutput(ctx context.Context, path string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, args...).Output()
	return string(out), err
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	FprintResults(os.Stdout, result)
}

// FprintResults prints the preflight check results to w.
func FprintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 4096 (or edit /etc/security/limits.conf)"
	case "browser":
		return "install Chrome or Edge, or pass -browser-binary"
	case "ffmpeg":
		return "install ffmpeg (apt install ffmpeg / brew install ffmpeg)"
	case "display":
		return "start a virtual display, e.g. Xvfb :99 -screen 0 1920x1080x24 &"
	case "visual_metrics":
		return "pip install pillow numpy opencv-python and check -visual-metrics-script"
	case "result_dir":
		return "choose a writable -result-dir"
	default:
		return "see documentation"
	}
}
