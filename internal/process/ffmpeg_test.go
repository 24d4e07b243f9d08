package process

import (
	"context"
	"strings"
	"testing"
)

// =============================================================================
// Table-Driven Tests: DefaultFFmpegConfig
// =============================================================================

func TestDefaultFFmpegConfig(t *testing.T) {
	cfg := DefaultFFmpegConfig("/tmp/1.mp4")

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"BinaryPath", cfg.BinaryPath, "ffmpeg"},
		{"Display", cfg.Display, 99},
		{"Framerate", cfg.Framerate, 30},
		{"CRF", cfg.CRF, 0},
		{"Preset", cfg.Preset, "ultrafast"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"Output", cfg.Output, "/tmp/1.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

// =============================================================================
// Table-Driven Tests: buildArgs
// =============================================================================

func TestFFmpegRecorder_buildArgs(t *testing.T) {
	cfg := DefaultFFmpegConfig("/tmp/1.mp4")
	args := NewFFmpegRecorder(cfg).buildArgs()
	joined := strings.Join(args, " ")

	wantPairs := [][2]string{
		{"-loglevel", "info"},
		{"-framerate", "30"},
		{"-video_size", "1366x708"},
		{"-f", "x11grab"},
		{"-draw_mouse", "0"},
		{"-i", ":99.0+0,0"},
		{"-codec:v", "libx264rgb"},
		{"-crf", "0"},
		{"-preset", "ultrafast"},
	}
	for _, p := range wantPairs {
		t.Run(p[0], func(t *testing.T) {
			if !strings.Contains(joined, p[0]+" "+p[1]) {
				t.Errorf("args missing %s %s: %s", p[0], p[1], joined)
			}
		})
	}

	if args[len(args)-1] != "/tmp/1.mp4" {
		t.Errorf("output should be last, got %q", args[len(args)-1])
	}
	if strings.Index(joined, "-f x11grab") > strings.Index(joined, "-i ") {
		t.Error("capture options must come before -i")
	}
}

func TestFFmpegRecorder_Size(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		x, y    int
		want    string
		wantErr bool
	}{
		{"full window", 1366, 708, 0, 0, "1366x708", false},
		{"offset", 1366, 708, 0, 80, "1366x628", false},
		{"odd is made even", 1367, 709, 0, 0, "1366x708", false},
		{"offset too large", 100, 100, 0, 100, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultFFmpegConfig("/tmp/1.mp4")
			cfg.Width, cfg.Height, cfg.OffsetX, cfg.OffsetY = tt.w, tt.h, tt.x, tt.y
			r := NewFFmpegRecorder(cfg)

			if got := r.size(); got != tt.want {
				t.Errorf("size() = %q, want %q", got, tt.want)
			}
			_, err := r.BuildCommand(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("BuildCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFFmpegRecorder_Input(t *testing.T) {
	cfg := DefaultFFmpegConfig("/tmp/1.mp4")
	cfg.Display, cfg.Screen, cfg.OffsetX, cfg.OffsetY = 1, 2, 10, 80
	if got := NewFFmpegRecorder(cfg).input(); got != ":1.2+10,80" {
		t.Errorf("input() = %q, want %q", got, ":1.2+10,80")
	}
}

func TestFFmpegRecorder_NoOutput(t *testing.T) {
	if _, err := NewFFmpegRecorder(DefaultFFmpegConfig("")).BuildCommand(context.Background()); err == nil {
		t.Error("BuildCommand() should fail without an output file")
	}
}

func TestFFmpegRecorder_CommandString(t *testing.T) {
	r := NewFFmpegRecorder(DefaultFFmpegConfig("/tmp/1.mp4"))
	if got := r.CommandString(); !strings.HasPrefix(got, "ffmpeg -hide_banner") {
		t.Errorf("CommandString() = %q", got)
	}
	if r.Name() != "ffmpeg" || r.Config().Output != "/tmp/1.mp4" {
		t.Error("Name()/Config() mismatch")
	}
}
