package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-browser-perf/internal/logging"
)

// tailLines is the number of output lines attached to start errors.
const tailLines = 10

// Callbacks contains optional callback functions for process events.
type Callbacks struct {
	// OnStateChange is called when the process state changes.
	OnStateChange func(name string, oldState, newState State)

	// OnExit is called when the process exits.
	OnExit func(name string, exitCode int, uptime time.Duration)
}

// Config holds configuration for starting a Handle.
type Config struct {
	Runner    Runner
	Logger    *slog.Logger
	Callbacks Callbacks

	// ReadyPattern is a substring of stderr output that marks the process
	// as ready. Start returns once it is seen. Empty means ready at spawn.
	ReadyPattern string

	// Verbose logs every output line instead of warnings only.
	Verbose bool
}

// Handle controls one running helper process. The process runs in its own
// process group so signals reach its children too.
type Handle struct {
	name      string
	logger    *slog.Logger
	callbacks Callbacks
	output    *logging.OutputHandler

	cmd   *exec.Cmd
	stdin io.WriteCloser

	state     State
	stateMu   sync.RWMutex
	startTime time.Time

	done     chan struct{}
	waitErr  error
	exitCode int
}

// Start spawns the process and waits until it is ready. If the process
// exits or ctx ends first, it is killed and an error including its last
// output lines is returned.
func Start(ctx context.Context, cfg Config) (*Handle, error) {
	h := &Handle{
		name:      cfg.Runner.Name(),
		logger:    cfg.Logger,
		callbacks: cfg.Callbacks,
		output:    logging.NewOutputHandler(cfg.Runner.Name(), cfg.Logger, cfg.Verbose),
		state:     StateCreated,
		done:      make(chan struct{}),
	}
	if cfg.ReadyPattern != "" {
		h.output.WaitFor(cfg.ReadyPattern)
	}

	// The process outlives ctx: it is ended by Stop, Quit or Cancel.
	cmd, err := cfg.Runner.BuildCommand(context.Background())
	if err != nil {
		return nil, fmt.Errorf("build %s command: %w", h.name, err)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stdin pipe: %w", h.name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stderr pipe: %w", h.name, err)
	}

	h.setState(StateStarting)
	h.startTime = time.Now()
	if err := cmd.Start(); err != nil {
		h.setState(StateStopped)
		return nil, fmt.Errorf("start %s: %w", h.name, err)
	}
	h.cmd = cmd
	h.stdin = stdin

	h.logger.Debug("process_started",
		"process", h.name,
		"pid", cmd.Process.Pid,
		"args", strings.Join(cmd.Args[1:], " "),
	)

	go h.wait(stderr)

	if cfg.ReadyPattern == "" {
		h.setState(StateRunning)
		return h, nil
	}

	select {
	case <-h.output.Ready():
		h.setState(StateRunning)
		return h, nil
	case <-h.done:
		return nil, fmt.Errorf("%s exited before it was ready (exit code %d): %s",
			h.name, h.ExitCode(), h.output.Tail(tailLines))
	case <-ctx.Done():
		h.Cancel()
		return nil, fmt.Errorf("waiting for %s: %w", h.name, ctx.Err())
	}
}

// wait drains stderr, then reaps the process.
func (h *Handle) wait(stderr io.Reader) {
	h.output.HandleReader(stderr)
	err := h.cmd.Wait()
	uptime := time.Since(h.startTime)

	h.stateMu.Lock()
	h.waitErr = err
	h.exitCode = extractExitCode(err)
	h.stateMu.Unlock()

	h.logger.Debug("process_exited",
		"process", h.name,
		"pid", h.cmd.Process.Pid,
		"exit_code", h.ExitCode(),
		"uptime", uptime.String(),
	)
	h.setState(StateStopped)
	close(h.done)

	if h.callbacks.OnExit != nil {
		h.callbacks.OnExit(h.name, h.ExitCode(), uptime)
	}
}

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		h.stateMu.RLock()
		defer h.stateMu.RUnlock()
		return h.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Quit writes input to the process's stdin and waits for it to exit, the
// way ffmpeg is asked to finish its output file. Stop is used when the
// process ignores the request within timeout.
func (h *Handle) Quit(input string, timeout time.Duration) error {
	if h.State().IsTerminal() {
		return nil
	}
	h.setState(StateStopping)

	if _, err := io.WriteString(h.stdin, input); err != nil {
		h.logger.Debug("process_quit_write_failed", "process", h.name, "error", err)
	}
	h.stdin.Close()

	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		h.logger.Warn("process_ignored_quit", "process", h.name, "timeout", timeout.String())
		return h.Stop(timeout)
	}
}

// Stop gracefully stops the process.
// It first sends SIGTERM, then SIGKILL if the process doesn't exit.
func (h *Handle) Stop(timeout time.Duration) error {
	if h.State().IsTerminal() {
		return nil
	}
	h.setState(StateStopping)
	h.signal(syscall.SIGTERM)

	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		h.logger.Warn("force_killing_process",
			"process", h.name,
			"pid", h.cmd.Process.Pid,
		)
		h.signal(syscall.SIGKILL)
		return errors.New("process did not exit gracefully")
	}
}

// Cancel kills the process group without waiting. It is safe to call at
// any time, including after the process has exited.
func (h *Handle) Cancel() {
	if h == nil || h.cmd == nil || h.State().IsTerminal() {
		return
	}
	h.signal(syscall.SIGKILL)
}

func (h *Handle) signal(sig syscall.Signal) {
	pid := h.cmd.Process.Pid
	if pgid, err := syscall.Getpgid(pid); err == nil {
		syscall.Kill(-pgid, sig)
		return
	}
	h.cmd.Process.Signal(sig)
}

// State returns the current state of the process.
func (h *Handle) State() State {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.state
}

// setState updates the state and calls the callback if registered.
func (h *Handle) setState(newState State) {
	h.stateMu.Lock()
	oldState := h.state
	if oldState == StateStopped {
		h.stateMu.Unlock()
		return
	}
	h.state = newState
	h.stateMu.Unlock()

	if h.callbacks.OnStateChange != nil && oldState != newState {
		h.callbacks.OnStateChange(h.name, oldState, newState)
	}
}

// ExitCode returns the exit code once the process has exited.
func (h *Handle) ExitCode() int {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.exitCode
}

// PID returns the process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Output returns the handler holding the process's recent output.
func (h *Handle) Output() *logging.OutputHandler {
	return h.output
}

// Uptime returns how long the process has been running.
func (h *Handle) Uptime() time.Duration {
	if !h.State().IsActive() {
		return 0
	}
	return time.Since(h.startTime)
}

// RunOutput runs a command to completion and returns its stdout. A failed
// run reports the exit code and the tail of stderr.
func RunOutput(ctx context.Context, r Runner, logger *slog.Logger) ([]byte, error) {
	cmd, err := r.BuildCommand(ctx)
	if err != nil {
		return nil, fmt.Errorf("build %s command: %w", r.Name(), err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("process_run", "process", r.Name(), "args", strings.Join(cmd.Args[1:], " "))
	start := time.Now()
	err = cmd.Run()
	logger.Debug("process_run_done",
		"process", r.Name(),
		"exit_code", extractExitCode(err),
		"duration", time.Since(start).String(),
	)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", r.Name(), ctxErr)
		}
		out := logging.NewOutputHandler(r.Name(), logger, false)
		out.HandleReader(&stderr)
		return nil, fmt.Errorf("%s failed (exit code %d): %w: %s",
			r.Name(), extractExitCode(err), err, out.Tail(tailLines))
	}
	return stdout.Bytes(), nil
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
