// Package video records the browser screen with ffmpeg and turns the
// recording into visual metrics.
package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/randomizedcoder/go-browser-perf/internal/process"
)

// ErrNotRecording is returned by Stop when no recording is running.
var ErrNotRecording = errors.New("not recording")

// RecorderConfig configures screen recording.
type RecorderConfig struct {
	FFmpegPath string
	Display    int
	Width      int
	Height     int
	OffsetX    int
	OffsetY    int
	Framerate  int
	CRF        int

	// StopTimeout bounds how long ffmpeg may take to finish the file.
	StopTimeout time.Duration

	Verbose bool
}

// DefaultRecorderConfig returns settings for a 1366x708 window on :99.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		FFmpegPath:  "ffmpeg",
		Display:     99,
		Width:       1366,
		Height:      708,
		Framerate:   30,
		StopTimeout: 10 * time.Second,
	}
}

// Recorder captures one video at a time.
type Recorder struct {
	cfg    RecorderConfig
	logger *slog.Logger

	handle *process.Handle
	file   string
}

// NewRecorder creates a recorder.
func NewRecorder(cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	return &Recorder{cfg: cfg, logger: logger}
}

// Start begins recording into file and returns once ffmpeg is capturing.
func (r *Recorder) Start(ctx context.Context, file string) error {
	if r.handle != nil {
		return fmt.Errorf("already recording to %s", r.file)
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("video dir: %w", err)
	}

	ff := process.DefaultFFmpegConfig(file)
	ff.BinaryPath = r.cfg.FFmpegPath
	ff.Display = r.cfg.Display
	ff.Width = r.cfg.Width
	ff.Height = r.cfg.Height
	ff.OffsetX = r.cfg.OffsetX
	ff.OffsetY = r.cfg.OffsetY
	ff.Framerate = r.cfg.Framerate
	ff.CRF = r.cfg.CRF
	recorder := process.NewFFmpegRecorder(ff)

	r.logger.Debug("video_recording_starting", "file", file, "command", recorder.CommandString())

	h, err := process.Start(ctx, process.Config{
		Runner:       recorder,
		Logger:       r.logger,
		ReadyPattern: process.FFmpegReadyPattern,
		Verbose:      r.cfg.Verbose,
	})
	if err != nil {
		return fmt.Errorf("start recording: %w", err)
	}

	r.handle = h
	r.file = file
	return nil
}

// Stop ends the recording and returns the video file. ffmpeg is asked to
// quit so the file is complete; it is killed if it does not finish within
// the stop timeout.
func (r *Recorder) Stop(ctx context.Context) (string, error) {
	if r.handle == nil {
		return "", ErrNotRecording
	}
	h, file := r.handle, r.file
	r.handle, r.file = nil, ""

	if err := h.Quit(process.FFmpegQuit, r.cfg.StopTimeout); err != nil {
		return "", fmt.Errorf("stop recording: %w", err)
	}
	if code := h.ExitCode(); code != 0 {
		return "", fmt.Errorf("ffmpeg exited with code %d: %s", code, h.Output().Tail(5))
	}

	if process.ProbeAvailable() {
		info, err := process.Probe(ctx, r.cfg.FFmpegPath, file, r.logger)
		if err != nil {
			return "", fmt.Errorf("recorded video is unreadable: %w", err)
		}
		r.logger.Debug("video_recorded",
			"file", file,
			"size", fmt.Sprintf("%dx%d", info.Width, info.Height),
			"frames", info.Frames,
			"duration_s", info.Duration,
		)
	}
	return file, nil
}

// Recording reports whether a recording is running.
func (r *Recorder) Recording() bool {
	return r.handle != nil
}

// Cancel kills a running recording. It is safe to call at any time.
func (r *Recorder) Cancel() {
	if r.handle == nil {
		return
	}
	r.handle.Cancel()
	r.handle, r.file = nil, ""
}
