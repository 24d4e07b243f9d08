package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Thresholds in milliseconds, good then poor.
const (
	ttfbGood, ttfbPoor             = 800, 1800
	firstPaintGood, firstPaintPoor = 1800, 3000
	loadGood, loadPoor             = 2500, 4000
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main dashboard.
func (m Model) renderSummaryView() string {
	sections := []string{
		m.renderHeader(),
		m.renderProgress(),
		m.renderIterationStats(),
		m.renderPageTable(),
	}
	if len(m.recentErrors) > 0 {
		sections = append(sections, m.renderErrors())
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders sizes and error counts per URL.
func (m Model) renderDetailedView() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderPageDetails(),
		m.renderFooter(),
	)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-browser-perf │ %s │ Iteration: %d/%d │ Elapsed: %s ",
		m.browser,
		m.current,
		m.targetIterations,
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}
	progressBar := RenderProgressBar(m.Progress(), barWidth)

	var status string
	switch {
	case m.finished && m.failed > 0:
		status = statusWarning.Render(fmt.Sprintf("! Finished %d iterations, %d failed", m.done, m.failed))
	case m.finished:
		status = statusOK.Render(fmt.Sprintf("✓ Finished %d iterations", m.done))
	case m.current == 0:
		status = mutedStyle.Render("Waiting for the first browser...")
	default:
		status = lipgloss.JoinHorizontal(lipgloss.Left,
			GetStateLabel(m.state),
			dimStyle.Render(fmt.Sprintf("  for %s", time.Since(m.stateSince).Round(time.Second))),
		)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Iterations"),
		progressBar,
		status,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Iteration Statistics
// =============================================================================

func (m Model) renderIterationStats() string {
	rate := m.FailureRate()
	rows := []string{
		RenderKeyValue("Completed", fmt.Sprintf("%d", m.done)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Failed:"),
			GetFailureRateStyle(rate).Render(fmt.Sprintf("%d (%s)", m.failed, formatPercent(rate))),
		),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Avg Duration:"),
			RenderValueUnit(fmt.Sprintf("%d", m.AverageDuration().Milliseconds()), "ms"),
		),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Results")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Page Table
// =============================================================================

// urlWidth is the space left for the URL column.
func (m Model) urlWidth() int {
	w := m.width - 44
	if w < 16 {
		w = 16
	}
	return w
}

func (m Model) renderPageTable() string {
	if len(m.rows) == 0 {
		return boxStyle.Width(m.width - 2).Render(dimStyle.Render("No pages measured yet."))
	}

	uw := m.urlWidth()
	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-*s %9s %11s %9s %6s", uw, "URL", "TTFB", "First Paint", "Load", "Runs"),
	)

	rows := m.visibleRows(func(i int, r *pageRow) string {
		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}
		return lipgloss.JoinHorizontal(lipgloss.Left,
			rowStyle.Render(fmt.Sprintf("%-*s ", uw, truncate(r.key, uw))),
			GetTimingStyle(r.ttfb, ttfbGood, ttfbPoor).Render(fmt.Sprintf("%9s ", formatMs(r.ttfb))),
			GetTimingStyle(r.firstPaint, firstPaintGood, firstPaintPoor).Render(fmt.Sprintf("%11s ", formatMs(r.firstPaint))),
			GetTimingStyle(r.load, loadGood, loadPoor).Render(fmt.Sprintf("%9s ", formatMs(r.load))),
			rowStyle.Render(fmt.Sprintf("%6d", r.measured)),
		)
	})

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Latest Timings"), header}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

func (m Model) renderPageDetails() string {
	if len(m.rows) == 0 {
		return boxStyle.Width(m.width - 2).Render(dimStyle.Render("No pages measured yet. Press 'd' to toggle."))
	}

	uw := m.urlWidth()
	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-*s %9s %12s %8s", uw, "URL", "Requests", "Transfer", "Errors"),
	)

	rows := m.visibleRows(func(i int, r *pageRow) string {
		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}
		errStyle := rowStyle
		if r.errors > 0 {
			errStyle = valueBadStyle
		}
		return lipgloss.JoinHorizontal(lipgloss.Left,
			rowStyle.Render(fmt.Sprintf("%-*s %9d %12s ", uw, truncate(r.key, uw), r.requests, formatBytes(r.transferBytes))),
			errStyle.Render(fmt.Sprintf("%8d", r.errors)),
		)
	})

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Per-URL Details"), header}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// visibleRows renders as many rows as fit the screen.
func (m Model) visibleRows(render func(int, *pageRow) string) []string {
	maxRows := m.height - 16
	if maxRows < 3 {
		maxRows = 3
	}
	var out []string
	for i, r := range m.rows {
		if i >= maxRows {
			out = append(out, dimStyle.Render(fmt.Sprintf("... and %d more", len(m.rows)-maxRows)))
			break
		}
		out = append(out, render(i, r))
	}
	return out
}

// =============================================================================
// Errors
// =============================================================================

func (m Model) renderErrors() string {
	width := m.width - 6
	rows := make([]string, 0, len(m.recentErrors))
	for _, e := range m.recentErrors {
		rows = append(rows, valueBadStyle.Render(truncate(e, width)))
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Recent Errors")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"d: toggle details",
	}

	var info []string
	if m.metricsAddr != "" {
		info = append(info, "Metrics: "+m.metricsAddr)
	}
	if m.resultDir != "" {
		info = append(info, "Results: "+m.resultDir)
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	maxRight := m.width - lipgloss.Width(left) - 4
	right := dimStyle.Render(truncate(strings.Join(info, " │ "), maxRight))

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}
