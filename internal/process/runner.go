// Package process runs the helper processes used during a measurement:
// the ffmpeg screen recorder, ffprobe and the visual metrics tool.
package process

import (
	"context"
	"os/exec"
)

// Runner creates executable commands.
// This interface keeps Handle independent of the tool being run.
type Runner interface {
	// BuildCommand returns a ready-to-start command.
	// The command should NOT be started yet.
	BuildCommand(ctx context.Context) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}
