package logging

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single output line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept per process.
	MaxBufferedLines = 100
)

// OutputHandler consumes the stderr of a helper process (ffmpeg, the
// visual metrics tool). It keeps recent lines for error reports, logs them
// at a level derived from their content and signals when a readiness
// pattern shows up.
type OutputHandler struct {
	name    string
	logger  *slog.Logger
	verbose bool

	buffer []string
	bufIdx int
	mu     sync.Mutex

	waitPattern string
	ready       chan struct{}
	readyOnce   sync.Once
}

// NewOutputHandler creates a handler for the named process.
func NewOutputHandler(name string, logger *slog.Logger, verbose bool) *OutputHandler {
	return &OutputHandler{
		name:    name,
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
		ready:   make(chan struct{}),
	}
}

// WaitFor sets the substring that marks the process as ready.
// Must be called before HandleReader starts.
func (h *OutputHandler) WaitFor(pattern string) {
	h.waitPattern = pattern
}

// Ready is closed once the readiness pattern has been seen.
func (h *OutputHandler) Ready() <-chan struct{} {
	return h.ready
}

// HandleReader reads lines until EOF. Run it in a goroutine.
func (h *OutputHandler) HandleReader(r io.Reader) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, MaxLineLength)
	scanner.Buffer(buf, MaxLineLength)
	// ffmpeg terminates progress lines with \r, not \n
	scanner.Split(scanLinesOrCR)

	for scanner.Scan() {
		h.HandleLine(scanner.Text())
	}
}

// HandleLine processes a single line of output.
func (h *OutputHandler) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}
	if line == "" {
		return
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.mu.Unlock()

	if h.waitPattern != "" && strings.Contains(line, h.waitPattern) {
		h.readyOnce.Do(func() { close(h.ready) })
	}

	level := classifyLine(line)
	if !h.verbose && level == slog.LevelDebug {
		return
	}
	h.logger.Log(context.Background(), level, "process_output",
		"process", h.name,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "error") ||
		strings.Contains(lower, "traceback") ||
		strings.Contains(lower, "cannot open display") {
		return slog.LevelWarn
	}
	if strings.Contains(lower, "[warning]") || strings.Contains(lower, "warning:") {
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}
	return lines
}

// Tail joins the most recent lines, for error messages.
func (h *OutputHandler) Tail(n int) string {
	return strings.Join(h.RecentLines(n), "\n")
}

func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
