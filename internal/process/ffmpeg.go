package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegReadyPattern is printed by ffmpeg once it is capturing.
const FFmpegReadyPattern = "Press [q] to stop"

// FFmpegQuit asks ffmpeg to stop capturing and finish the file.
const FFmpegQuit = "q"

// FFmpegConfig holds configuration for recording an X11 screen.
type FFmpegConfig struct {
	// BinaryPath is the path to the FFmpeg binary.
	BinaryPath string

	// Display is the X display number, e.g. 99 for ":99".
	Display int

	// Screen is the X screen on the display.
	Screen int

	// Width and Height are the captured area in pixels.
	Width  int
	Height int

	// OffsetX and OffsetY move the captured area, skipping browser chrome.
	OffsetX int
	OffsetY int

	// Framerate is the capture rate in frames per second.
	Framerate int

	// CRF is the x264 constant rate factor. 0 is lossless.
	CRF int

	// Preset is the x264 speed preset.
	Preset string

	// LogLevel is the FFmpeg log level. ffmpeg must log at info or above
	// for the ready pattern to show up.
	LogLevel string

	// Output is the video file path.
	Output string
}

// DefaultFFmpegConfig returns an FFmpegConfig with sensible defaults.
func DefaultFFmpegConfig(output string) *FFmpegConfig {
	return &FFmpegConfig{
		BinaryPath: "ffmpeg",
		Display:    99,
		Width:      1366,
		Height:     708,
		Framerate:  30,
		CRF:        0,
		Preset:     "ultrafast",
		LogLevel:   "info",
		Output:     output,
	}
}

// FFmpegRecorder implements Runner for ffmpeg screen capture.
type FFmpegRecorder struct {
	config *FFmpegConfig
}

// NewFFmpegRecorder creates a new recorder runner with the given configuration.
func NewFFmpegRecorder(cfg *FFmpegConfig) *FFmpegRecorder {
	return &FFmpegRecorder{
		config: cfg,
	}
}

// Name returns "ffmpeg".
func (r *FFmpegRecorder) Name() string {
	return "ffmpeg"
}

// BuildCommand creates an exec.Cmd for FFmpeg with all configured options.
func (r *FFmpegRecorder) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	if r.config.Output == "" {
		return nil, errors.New("no output file")
	}
	if r.size() == "" {
		return nil, fmt.Errorf("invalid capture size %dx%d with offset %d,%d",
			r.config.Width, r.config.Height, r.config.OffsetX, r.config.OffsetY)
	}
	return exec.CommandContext(ctx, r.config.BinaryPath, r.buildArgs()...), nil
}

// buildArgs constructs the FFmpeg command-line arguments.
func (r *FFmpegRecorder) buildArgs() []string {
	args := []string{
		"-hide_banner",
		"-loglevel", r.config.LogLevel,
		"-an",
		"-y",
	}

	// Capture options (must come before -i)
	args = append(args,
		"-framerate", strconv.Itoa(r.config.Framerate),
		"-probesize", "1M",
		"-video_size", r.size(),
		"-f", "x11grab",
		"-draw_mouse", "0",
		"-i", r.input(),
	)

	// Encoding: libx264rgb keeps colours exact for frame comparison
	args = append(args,
		"-codec:v", "libx264rgb",
		"-crf", strconv.Itoa(r.config.CRF),
		"-preset", r.config.Preset,
		r.config.Output,
	)

	return args
}

// size returns the captured area, the window minus the offset.
func (r *FFmpegRecorder) size() string {
	w := r.config.Width - r.config.OffsetX
	h := r.config.Height - r.config.OffsetY
	if w <= 0 || h <= 0 {
		return ""
	}
	// x264 needs even dimensions
	w -= w % 2
	h -= h % 2
	return strconv.Itoa(w) + "x" + strconv.Itoa(h)
}

// input returns the x11grab input, ":display.screen+x,y".
func (r *FFmpegRecorder) input() string {
	return fmt.Sprintf(":%d.%d+%d,%d", r.config.Display, r.config.Screen, r.config.OffsetX, r.config.OffsetY)
}

// Config returns the FFmpeg configuration.
func (r *FFmpegRecorder) Config() *FFmpegConfig {
	return r.config
}

// CommandString returns the command that would be executed (for debugging).
func (r *FFmpegRecorder) CommandString() string {
	args := r.buildArgs()
	return r.config.BinaryPath + " " + strings.Join(args, " ")
}
