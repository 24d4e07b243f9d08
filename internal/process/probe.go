package process

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ProbeResult represents the output of ffprobe -show_streams -show_format.
type ProbeResult struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream is one stream of a media file.
type Stream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NumFrames    string `json:"nb_frames"`
}

// Format describes the media container.
type Format struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

// VideoInfo holds parsed information about a recorded video.
type VideoInfo struct {
	Codec     string
	Width     int
	Height    int
	Frames    int
	Framerate float64
	Duration  float64 // seconds
}

// FFprobe implements Runner for inspecting a media file.
type FFprobe struct {
	binaryPath string
	file       string
}

// NewFFprobe creates a runner probing file. ffmpegPath is used to find
// ffprobe next to the ffmpeg binary.
func NewFFprobe(ffmpegPath, file string) *FFprobe {
	return &FFprobe{binaryPath: findFFprobe(ffmpegPath), file: file}
}

// Name returns "ffprobe".
func (p *FFprobe) Name() string {
	return "ffprobe"
}

// BuildCommand creates the ffprobe command.
func (p *FFprobe) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		p.file,
	}
	return exec.CommandContext(ctx, p.binaryPath, args...), nil
}

// Probe runs ffprobe on a recorded video and returns its first video stream.
func Probe(ctx context.Context, ffmpegPath, file string, logger *slog.Logger) (*VideoInfo, error) {
	output, err := RunOutput(ctx, NewFFprobe(ffmpegPath, file), logger)
	if err != nil {
		return nil, err
	}
	return parseProbe(output)
}

// parseProbe converts ffprobe JSON output.
func parseProbe(output []byte) (*VideoInfo, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	for _, s := range result.Streams {
		if s.CodecType != "video" {
			continue
		}
		info := &VideoInfo{
			Codec:     s.CodecName,
			Width:     s.Width,
			Height:    s.Height,
			Framerate: parseRate(s.AvgFrameRate),
		}
		info.Frames, _ = strconv.Atoi(s.NumFrames)
		info.Duration, _ = strconv.ParseFloat(result.Format.Duration, 64)
		return info, nil
	}
	return nil, fmt.Errorf("no video stream found")
}

// parseRate parses ffprobe's "num/den" rates.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// findFFprobe returns the path to ffprobe.
// It looks in the same directory as ffmpeg, or falls back to PATH.
func findFFprobe(ffmpegPath string) string {
	dir, base := filepath.Split(ffmpegPath)
	if dir != "" && strings.HasPrefix(base, "ffmpeg") {
		// e.g., /usr/local/bin/ffmpeg -> /usr/local/bin/ffprobe
		candidate := filepath.Join(dir, "ffprobe"+strings.TrimPrefix(base, "ffmpeg"))
		if _, err := exec.LookPath(candidate); err == nil {
			return candidate
		}
	}

	// Fall back to ffprobe in PATH
	return "ffprobe"
}

// ProbeAvailable checks if ffprobe is available.
func ProbeAvailable() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}
