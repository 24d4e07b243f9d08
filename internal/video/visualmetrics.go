package video

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/randomizedcoder/go-browser-perf/internal/process"
)

// orangeLimitDiff tells the tool how different a frame must be from the
// orange start marker. Chrome needs a higher value to ignore its
// partially orange frames.
var orangeLimitDiff = map[string]int{
	"chrome": 39500,
	"edge":   39500,
}

const defaultOrangeLimitDiff = 20000

// VisualMetricsConfig configures the visual metrics tool.
type VisualMetricsConfig struct {
	Python     string
	ScriptPath string
	Browser    string
	Perceptual bool
	Contentful bool
}

// VisualMetrics runs visualmetrics.py on recorded videos.
type VisualMetrics struct {
	cfg    VisualMetricsConfig
	logger *slog.Logger
}

// NewVisualMetrics creates a runner for the tool.
func NewVisualMetrics(cfg VisualMetricsConfig, logger *slog.Logger) *VisualMetrics {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	return &VisualMetrics{cfg: cfg, logger: logger}
}

// Check verifies the tool and its Python dependencies are installed.
func (v *VisualMetrics) Check(ctx context.Context) error {
	_, err := process.RunOutput(ctx, &visualMetricsCommand{cfg: v.cfg, args: []string{"--check"}}, v.logger)
	return err
}

// Run analyses video and returns the metrics keyed by name, such as
// FirstVisualChange, SpeedIndex and VisualComplete85. Frames are kept in
// imageDir when it is not empty.
func (v *VisualMetrics) Run(ctx context.Context, video, imageDir string) (map[string]any, error) {
	cmd := &visualMetricsCommand{cfg: v.cfg, args: v.args(video, imageDir)}
	out, err := process.RunOutput(ctx, cmd, v.logger)
	if err != nil {
		return nil, err
	}
	return parseVisualMetrics(out)
}

func (v *VisualMetrics) args(video, imageDir string) []string {
	limit, ok := orangeLimitDiff[v.cfg.Browser]
	if !ok {
		limit = defaultOrangeLimitDiff
	}

	var args []string
	if imageDir != "" {
		args = append(args, "--dir", imageDir)
	}
	args = append(args,
		"--video", video,
		"--orange",
		"--force",
		"-q", "75",
		"--renderignore", "5",
		"--orangelimitdiff", strconv.Itoa(limit),
		"--json",
	)
	if v.cfg.Perceptual {
		args = append(args, "--perceptual")
	}
	if v.cfg.Contentful {
		args = append(args, "--contentful")
	}
	return args
}

// visualMetricsCommand implements process.Runner.
type visualMetricsCommand struct {
	cfg  VisualMetricsConfig
	args []string
}

func (c *visualMetricsCommand) Name() string {
	return "visualmetrics"
}

func (c *visualMetricsCommand) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	if c.cfg.ScriptPath == "" {
		return nil, fmt.Errorf("no visualmetrics script configured")
	}
	args := append([]string{c.cfg.ScriptPath}, c.args...)
	return exec.CommandContext(ctx, c.cfg.Python, args...), nil
}

// parseVisualMetrics decodes the tool's JSON and adds VisualComplete85,
// 95 and 99 from the VisualProgress string.
func parseVisualMetrics(out []byte) (map[string]any, error) {
	var metrics map[string]any
	if err := json.Unmarshal(out, &metrics); err != nil {
		return nil, fmt.Errorf("parse visual metrics: %w", err)
	}

	progress, _ := metrics["VisualProgress"].(string)
	if progress == "" {
		return metrics, nil
	}
	points := parseProgress(progress)
	for _, threshold := range []int{85, 95, 99} {
		for _, p := range points {
			if p.percent >= float64(threshold) {
				metrics["VisualComplete"+strconv.Itoa(threshold)] = p.ms
				break
			}
		}
	}
	return metrics, nil
}

type progressPoint struct {
	ms      float64
	percent float64
}

// parseProgress reads "0=0%, 1500=42%, 2000=100%".
func parseProgress(s string) []progressPoint {
	var points []progressPoint
	for _, part := range strings.Split(s, ",") {
		ms, pct, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		t, err1 := strconv.ParseFloat(ms, 64)
		p, err2 := strconv.ParseFloat(strings.TrimSuffix(pct, "%"), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		points = append(points, progressPoint{ms: t, percent: p})
	}
	return points
}
