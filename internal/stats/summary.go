// This file implements the end of run report: one result line per URL for
// the log and the exit summary table printed when the program finishes.
package stats

import (
	"fmt"
	"strings"
	"time"
)

// MetricLine is one named metric of a run summary.
type MetricLine struct {
	Name    string
	Summary Summary
}

// RunSummary is the digest of all iterations of one URL.
type RunSummary struct {
	URL   string
	Alias string

	Iterations int
	Failed     int

	// Requests and TransferBytes are per iteration averages taken from
	// the merged HAR.
	Requests      int
	TransferBytes int64

	// Metrics are shown in order.
	Metrics []MetricLine

	Errors []string
}

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Browser is the name and version of the measured browser
	Browser string

	// Duration is the total run duration
	Duration time.Duration

	// ResultDir is where results were written
	ResultDir string

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// Iteration duration percentiles over all URLs, omitted when zero
	IterationP50 time.Duration
	IterationP95 time.Duration
	IterationP99 time.Duration
}

// FormatResultLine renders the one line digest logged after each URL, e.g.
// "https://example.com/ 12 requests, 45.00 KB, firstPaint: 300 ms".
// Metric values are medians.
func FormatResultLine(r RunSummary) string {
	var b strings.Builder

	name := r.URL
	if r.Alias != "" {
		name = r.Alias
	}
	fmt.Fprintf(&b, "%s %d requests, %s", name, r.Requests, FormatBytes(r.TransferBytes))

	for _, m := range r.Metrics {
		fmt.Fprintf(&b, ", %s: %s", m.Name, FormatMillis(m.Summary.Median))
	}
	if r.Failed > 0 {
		fmt.Fprintf(&b, " (%d/%d iterations failed)", r.Failed, r.Iterations)
	}
	return b.String()
}

// FormatRunSummary formats the per URL statistics for display at program
// exit.
func FormatRunSummary(runs []RunSummary, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                         go-browser-perf Run Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	if cfg.Browser != "" {
		fmt.Fprintf(&b, "Browser:                %s\n", cfg.Browser)
	}
	if cfg.IterationP50 > 0 || cfg.IterationP95 > 0 {
		fmt.Fprintf(&b, "Iteration Time:         P50 %s  P95 %s  P99 %s\n",
			FormatMs(cfg.IterationP50), FormatMs(cfg.IterationP95), FormatMs(cfg.IterationP99))
	}
	fmt.Fprintf(&b, "URLs:                   %d\n\n", len(runs))

	if len(runs) == 0 {
		b.WriteString("(No URL was measured)\n\n")
	}

	for _, r := range runs {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		fmt.Fprintf(&b, "  %s\n", r.URL)
		if r.Alias != "" {
			fmt.Fprintf(&b, "  alias: %s\n", r.Alias)
		}
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  Iterations:           %d (%d failed)\n", r.Iterations, r.Failed)
		fmt.Fprintf(&b, "  Requests:             %s\n", FormatNumber(int64(r.Requests)))
		fmt.Fprintf(&b, "  Transfer Size:        %s\n\n", FormatBytes(r.TransferBytes))

		if len(r.Metrics) > 0 {
			fmt.Fprintf(&b, "  %-24s %10s %10s %10s %10s\n", "Metric", "Min", "Median", "P90", "Max")
			b.WriteString("  " + strings.Repeat("─", 68) + "\n")
			for _, m := range r.Metrics {
				fmt.Fprintf(&b, "  %-24s %10s %10s %10s %10s\n",
					m.Name,
					FormatMillis(m.Summary.Min),
					FormatMillis(m.Summary.Median),
					FormatMillis(m.Summary.P90),
					FormatMillis(m.Summary.Max),
				)
			}
			b.WriteString("\n")
		}

		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  error: %s\n", e)
		}
		if len(r.Errors) > 0 {
			b.WriteString("\n")
		}
	}

	if cfg.ResultDir != "" {
		fmt.Fprintf(&b, "Results written to: %s\n", cfg.ResultDir)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatMillis formats a millisecond value as reported by the browser.
func FormatMillis(ms float64) string {
	return FormatMs(time.Duration(ms * float64(time.Millisecond)))
}
