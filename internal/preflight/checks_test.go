package preflight

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/randomizedcoder/go-browser-perf/internal/browser"
)

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") {
			t.Error("Should contain actual value")
		}
		if !strings.Contains(s, "100") {
			t.Error("Should contain required value")
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   50,
			Passed:   false,
		}
		s := c.String()
		if !strings.Contains(s, "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Warning: true,
			Message: "warning message",
		}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})

	t.Run("passed_with_message_only", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Message: "all good",
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "all good") {
			t.Error("Should contain message")
		}
	})
}

// =============================================================================
// Test Helpers
// =============================================================================

type fakeChecker struct{ err error }

func (f fakeChecker) Check(ctx context.Context) error { return f.err }

func findCheck(t *testing.T, r *Result, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("expected %s check in results", name)
	return Check{}
}

func hasCheck(r *Result, name string) bool {
	for _, c := range r.Checks {
		if c.Name == name {
			return true
		}
	}
	return false
}

// =============================================================================
// Tests: RunAll
// =============================================================================

func TestRunAll_BrowserNotFound(t *testing.T) {
	result := RunAll(context.Background(), Options{
		Browser:       browser.IDChrome,
		BrowserBinary: "/nonexistent/chrome",
		Headless:      true,
	})

	check := findCheck(t, result, "browser")
	if check.Passed {
		t.Error("browser check should fail with an invalid binary")
	}
	if result.Passed {
		t.Error("Result should fail when the browser is missing")
	}
}

func TestRunAll_BrowserFound(t *testing.T) {
	// Any executable will do, the version output is informational
	result := RunAll(context.Background(), Options{
		Browser:       browser.IDChrome,
		BrowserBinary: "/bin/echo",
		Headless:      true,
	})

	check := findCheck(t, result, "browser")
	if !check.Passed {
		t.Errorf("browser check should pass for an existing binary: %s", check.Message)
	}
}

func TestRunAll_OptionalChecks(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		present []string
		absent  []string
	}{
		{
			name:   "headless without video",
			opts:   Options{Browser: browser.IDChrome, Headless: true},
			absent: []string{"ffmpeg", "display", "visual_metrics", "result_dir", "disk_space"},
		},
		{
			name:    "video headless",
			opts:    Options{Browser: browser.IDChrome, Headless: true, Video: true, FFmpegPath: "/nonexistent/ffmpeg"},
			present: []string{"ffmpeg"},
			absent:  []string{"display"},
		},
		{
			name:    "video with display",
			opts:    Options{Browser: browser.IDChrome, Video: true, FFmpegPath: "/nonexistent/ffmpeg", Display: 4242},
			present: []string{"ffmpeg", "display"},
		},
		{
			name:    "visual metrics",
			opts:    Options{Browser: browser.IDChrome, Headless: true, VisualMetrics: fakeChecker{}},
			present: []string{"visual_metrics"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RunAll(context.Background(), tt.opts)
			for _, name := range append([]string{"file_descriptors", "browser", "memory"}, tt.present...) {
				if !hasCheck(result, name) {
					t.Errorf("expected %s check", name)
				}
			}
			for _, name := range tt.absent {
				if hasCheck(result, name) {
					t.Errorf("unexpected %s check", name)
				}
			}
		})
	}
}

func TestRunAll_ResultDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	result := RunAll(context.Background(), Options{Browser: browser.IDChrome, Headless: true, ResultDir: dir})

	if check := findCheck(t, result, "result_dir"); !check.Passed {
		t.Errorf("result_dir should pass for a fresh temp dir: %s", check.Message)
	}
	if check := findCheck(t, result, "disk_space"); !check.Passed {
		t.Errorf("disk_space should never fail: %s", check.Message)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("result dir not created: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}

func TestCheckResultDir_NotWritable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if check := checkResultDir(filepath.Join(file, "sub")); check.Passed {
		t.Error("result_dir below a regular file should fail")
	}
}

func TestCheckVisualMetrics(t *testing.T) {
	if check := checkVisualMetrics(context.Background(), fakeChecker{}); !check.Passed {
		t.Errorf("check should pass: %s", check.Message)
	}
	check := checkVisualMetrics(context.Background(), fakeChecker{err: errors.New("missing numpy")})
	if check.Passed {
		t.Error("check should fail when the tool reports an error")
	}
	if !strings.Contains(check.Message, "numpy") {
		t.Errorf("Message = %q, want the tool error", check.Message)
	}
}

func TestCheckDisplay_Missing(t *testing.T) {
	t.Setenv("DISPLAY", "")
	if check := checkDisplay(4242); check.Passed {
		t.Error("display check should fail without an X server")
	}
}

func TestCheckMemory(t *testing.T) {
	check := checkMemory()
	if !check.Passed {
		t.Errorf("memory check should only warn: %s", check.Message)
	}
}

func TestSuggestFix(t *testing.T) {
	testCases := []struct {
		name     string
		expected string
	}{
		{"file_descriptors", "ulimit -n"},
		{"browser", "-browser-binary"},
		{"ffmpeg", "install ffmpeg"},
		{"display", "Xvfb"},
		{"visual_metrics", "pip install"},
		{"unknown", "documentation"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fix := suggestFix(tc.name)
			if !strings.Contains(fix, tc.expected) {
				t.Errorf("suggestFix(%q) = %q, should contain %q", tc.name, fix, tc.expected)
			}
		})
	}
}

func TestCheckFFmpeg_EdgeCases(t *testing.T) {
	t.Run("invalid_path", func(t *testing.T) {
		check := checkFFmpeg(context.Background(), "/nonexistent/ffmpeg/path")
		if check.Passed {
			t.Error("FFmpeg check should fail with invalid path")
		}
		if !strings.Contains(check.Message, "not found") {
			t.Errorf("Message should mention 'not found': %s", check.Message)
		}
	})

	t.Run("directory_as_path", func(t *testing.T) {
		check := checkFFmpeg(context.Background(), "/tmp")
		if check.Passed {
			t.Error("Directory as ffmpeg path should fail")
		}
	})

	t.Run("available", func(t *testing.T) {
		if _, err := exec.LookPath("ffmpeg"); err != nil {
			t.Skip("ffmpeg not available, skipping integration test")
		}
		if check := checkFFmpeg(context.Background(), ""); !check.Passed {
			t.Errorf("FFmpeg check should pass when ffmpeg is available: %s", check.Message)
		}
	})
}

func TestResult_Passed(t *testing.T) {
	t.Run("all_pass", func(t *testing.T) {
		result := &Result{
			Checks: []Check{
				{Name: "a", Passed: true},
				{Name: "b", Passed: true},
			},
			Passed: true,
		}
		if !result.Passed {
			t.Error("Result with all passing checks should pass")
		}
	})

	t.Run("one_fail", func(t *testing.T) {
		result := &Result{
			Checks: []Check{
				{Name: "a", Passed: true},
				{Name: "b", Passed: false},
			},
			Passed: false,
		}
		if result.Passed {
			t.Error("Result with one failing check should fail")
		}
	})

	t.Run("warning_only", func(t *testing.T) {
		result := &Result{
			Checks: []Check{
				{Name: "a", Passed: true, Warning: true},
			},
			Passed: true,
		}
		// Warnings don't cause failure
		if !result.Passed {
			t.Error("Result with only warnings should pass")
		}
	})
}

func TestCheckFileDescriptors(t *testing.T) {
	check := checkFileDescriptors()

	if check.Name != "file_descriptors" {
		t.Errorf("Name = %q, want file_descriptors", check.Name)
	}
	if check.Warning {
		t.Skipf("rlimit unavailable: %s", check.Message)
	}
	if check.Actual <= 0 {
		t.Errorf("Actual should be positive: %d", check.Actual)
	}
	if check.Required != requiredFileDescriptors {
		t.Errorf("Required = %d, want %d", check.Required, requiredFileDescriptors)
	}
	if check.Passed != (check.Actual >= check.Required) {
		t.Errorf("Passed = %v with actual=%d required=%d", check.Passed, check.Actual, check.Required)
	}
}

// TestPrintResults just verifies no panic - output goes to stdout
func TestPrintResults(t *testing.T) {
	result := &Result{
		Checks: []Check{
			{Name: "test1", Passed: true, Message: "ok"},
			{Name: "test2", Passed: false, Required: 100, Actual: 50},
		},
		Passed: false,
	}

	// Should not panic
	PrintResults(result)

	var buf bytes.Buffer
	FprintResults(&buf, result)
	out := buf.String()
	if !strings.Contains(out, "Preflight checks:") || !strings.Contains(out, "test2: 50 available (need 100)") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Count(out, "Fix:") != 1 {
		t.Errorf("only the failed check needs a fix:\n%s", out)
	}
}

func TestRunAll_NoBrowser(t *testing.T) {
	result := RunAll(context.Background(), Options{Headless: true})
	if hasCheck(result, "browser") {
		t.Error("browser check should be skipped without a browser id")
	}
	if !hasCheck(result, "file_descriptors") || !hasCheck(result, "memory") {
		t.Error("resource checks should always run")
	}
}
