package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-browser-perf/internal/engine"
	"github.com/randomizedcoder/go-browser-perf/internal/har"
)

// maxRecentErrors bounds the error panel.
const maxRecentErrors = 5

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// IterationStartMsg announces a new iteration.
type IterationStartMsg struct {
	Index int
	Total int
}

// StateMsg carries a state transition of the running iteration.
type StateMsg struct {
	Index    int
	From, To engine.State
}

// IterationDoneMsg carries a finished iteration.
type IterationDoneMsg struct {
	Result *engine.IterationResult
}

// RunDoneMsg signals that all iterations finished.
type RunDoneMsg struct {
	Runs []*engine.RunResult
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// pageRow is the latest view of one URL or alias.
type pageRow struct {
	key           string
	measured      int
	ttfb          float64
	firstPaint    float64
	load          float64
	requests      int
	transferBytes int64
	errors        int
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	browser          string
	urls             []string
	targetIterations int
	metricsAddr      string
	resultDir        string

	// Current state
	current      int
	state        engine.State
	stateSince   time.Time
	done         int
	failed       int
	durations    []time.Duration
	rows         []*pageRow
	rowIndex     map[string]*pageRow
	recentErrors []string
	finished     bool
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool

	// Display options
	width  int
	height int

	// Quit flag
	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	Browser     string
	URLs        []string
	Iterations  int
	MetricsAddr string
	ResultDir   string
}

// New creates a new TUI model.
func New(cfg Config) Model {
	now := time.Now()
	m := Model{
		browser:          cfg.Browser,
		urls:             cfg.URLs,
		targetIterations: cfg.Iterations,
		metricsAddr:      cfg.MetricsAddr,
		resultDir:        cfg.ResultDir,
		rowIndex:         make(map[string]*pageRow),
		startTime:        now,
		lastUpdate:       now,
		stateSince:       now,
		width:            80,
		height:           24,
	}
	for _, u := range cfg.URLs {
		m.row(u)
	}
	return m
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case IterationStartMsg:
		m.current = msg.Index + 1
		if msg.Total > 0 {
			m.targetIterations = msg.Total
		}
		return m, nil

	case StateMsg:
		m.state = msg.To
		m.stateSince = time.Now()
		return m, nil

	case IterationDoneMsg:
		m.recordIteration(msg.Result)
		m.lastUpdate = time.Now()
		return m, nil

	case RunDoneMsg:
		m.finished = true
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.detailedView {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// recordIteration folds a finished iteration into the page rows.
func (m *Model) recordIteration(res *engine.IterationResult) {
	if res == nil {
		return
	}
	m.done++
	m.durations = append(m.durations, res.Duration)
	if res.Failed() {
		m.failed++
	}

	for _, e := range res.Errors {
		m.pushError(fmt.Sprintf("#%d %s", res.Index+1, e))
	}

	for _, p := range res.Pages {
		r := m.row(p.Key())
		r.errors += len(p.Errors)
		for _, e := range p.Errors {
			m.pushError(fmt.Sprintf("#%d %s: %s", res.Index+1, p.Key(), e))
		}
		if res.Failed() {
			continue
		}
		r.measured++
		r.ttfb = scriptValue(p, "ttfb")
		r.firstPaint = scriptValue(p, "firstPaint")
		r.load = scriptValue(p, "pageTimings", "pageLoadTime")
		if p.HAR != nil {
			s := har.Summarize(p.HAR)
			r.requests = s.Requests
			r.transferBytes = s.TransferBytes
		}
	}
}

func (m *Model) pushError(e string) {
	m.recentErrors = append(m.recentErrors, e)
	if n := len(m.recentErrors); n > maxRecentErrors {
		m.recentErrors = m.recentErrors[n-maxRecentErrors:]
	}
}

// row returns the row for key, adding it on first use.
func (m *Model) row(key string) *pageRow {
	if r, ok := m.rowIndex[key]; ok {
		return r
	}
	r := &pageRow{key: key, ttfb: -1, firstPaint: -1, load: -1}
	m.rows = append(m.rows, r)
	m.rowIndex[key] = r
	return r
}

// scriptValue reads a number from the timings category, -1 when absent.
func scriptValue(p *engine.PageResult, path ...string) float64 {
	var node any = p.BrowserScripts["timings"]
	for _, key := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return -1
		}
		node = m[key]
	}
	if v, ok := node.(float64); ok {
		return v
	}
	return -1
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Progress returns finished iterations as a fraction (0.0 to 1.0).
func (m Model) Progress() float64 {
	if m.targetIterations == 0 {
		return 0
	}
	p := float64(m.done) / float64(m.targetIterations)
	if p > 1 {
		p = 1
	}
	return p
}

// FailureRate returns failed iterations as a fraction of finished ones.
func (m Model) FailureRate() float64 {
	if m.done == 0 {
		return 0
	}
	return float64(m.failed) / float64(m.done)
}

// State returns the state of the running iteration.
func (m Model) State() engine.State {
	return m.state
}

// AverageDuration returns the mean iteration duration.
func (m Model) AverageDuration() time.Duration {
	if len(m.durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range m.durations {
		total += d
	}
	return total / time.Duration(len(m.durations))
}

// =============================================================================
// Helper for external use
// =============================================================================

// Observer returns engine callbacks that forward progress to p.
func Observer(p *tea.Program) engine.Observer {
	return engine.Observer{
		OnIterationStart: func(index, total int) {
			p.Send(IterationStartMsg{Index: index, Total: total})
		},
		OnStateChange: func(index int, from, to engine.State) {
			p.Send(StateMsg{Index: index, From: from, To: to})
		},
		OnIterationDone: func(res *engine.IterationResult) {
			p.Send(IterationDoneMsg{Result: res})
		},
		OnRunDone: func(runs []*engine.RunResult) {
			p.Send(RunDoneMsg{Runs: runs})
		},
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatBytes formats bytes with KB/MB/GB suffixes.
func formatBytes(n int64) string {
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

// formatMs formats a millisecond timing, "-" when unknown.
func formatMs(ms float64) string {
	if ms < 0 {
		return "-"
	}
	if ms >= 1000 {
		return fmt.Sprintf("%.2fs", ms/1000)
	}
	return fmt.Sprintf("%.0fms", ms)
}

// formatPercent formats a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

// truncate shortens s to width runes with an ellipsis.
func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
