// Package browser defines the browser collaborator used by the iteration
// controller and implements it for Chromium based browsers over the
// DevTools protocol.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/randomizedcoder/go-browser-perf/internal/perflog"
)

// ErrNotStarted is returned by operations that need a running browser.
var ErrNotStarted = errors.New("browser not started")

// ID selects a browser implementation.
type ID string

const (
	IDChrome ID = "chrome"
	IDEdge   ID = "edge"
)

// IDs lists the supported browsers.
var IDs = []ID{IDChrome, IDEdge}

// ParseID validates a browser name.
func ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range IDs {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unsupported browser %q (supported: chrome, edge)", s)
}

// String returns the browser name.
func (id ID) String() string {
	return string(id)
}

// LogType names a browser log.
type LogType string

// LogTypePerformance is the DevTools event log the HAR is built from.
const LogTypePerformance LogType = "performance"

// Categories holds browser scripts by category, then by script name.
type Categories map[string]map[string]string

// Names returns the category names sorted.
func (c Categories) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a copy of c with other's categories added. Scripts in
// other replace scripts with the same category and name.
func (c Categories) Merge(other Categories) Categories {
	out := make(Categories, len(c)+len(other))
	for _, src := range []Categories{c, other} {
		for cat, scripts := range src {
			if out[cat] == nil {
				out[cat] = make(map[string]string, len(scripts))
			}
			for name, script := range scripts {
				out[cat][name] = script
			}
		}
	}
	return out
}

// Info describes the running browser.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	UserAgent string `json:"userAgent,omitempty"`
}

// ScriptRunner evaluates one script in the page.
type ScriptRunner interface {
	RunScript(ctx context.Context, src, name string) (any, error)
}

// Browser is the collaborator driven by the iteration controller. One
// Browser instance is used by one iteration at a time.
type Browser interface {
	ScriptRunner

	// Start launches the browser.
	Start(ctx context.Context) error

	// Stop closes the browser. It is safe to call when not started.
	Stop(ctx context.Context) error

	// RunScripts runs every script by category. Scripts returning null
	// or undefined are left out of the result.
	RunScripts(ctx context.Context, scripts Categories) (map[string]map[string]any, error)

	// GetLogs drains the log of the given type.
	GetLogs(ctx context.Context, logType LogType) ([]perflog.RawLogEntry, error)

	// LoadAndWait navigates to url and blocks until pageCompleteCheck
	// returns true. An empty check uses DefaultPageCompleteCheck.
	LoadAndWait(ctx context.Context, url, pageCompleteCheck string) error

	// Info describes the started browser.
	Info() Info
}

// Tracer is implemented by browsers that can record a performance trace.
type Tracer interface {
	StartTrace(ctx context.Context) error
	StopTrace(ctx context.Context) ([]json.RawMessage, error)
}

// Screenshotter is implemented by browsers that can capture the viewport.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// ScriptError is a failed browser script.
type ScriptError struct {
	Category string
	Name     string
	Err      error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %s/%s: %v", e.Category, e.Name, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// RunScripts runs scripts by category in name order with r. A failing
// script does not stop the others: its error is collected and returned
// joined with the rest, next to the results that did succeed.
func RunScripts(ctx context.Context, r ScriptRunner, scripts Categories, logger *slog.Logger) (map[string]map[string]any, error) {
	results := make(map[string]map[string]any, len(scripts))
	var errs []error

	for _, category := range scripts.Names() {
		byName := scripts[category]
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)

		values := make(map[string]any, len(names))
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return results, errors.Join(append(errs, err)...)
			}
			v, err := r.RunScript(ctx, byName[name], name)
			if err != nil {
				logger.Warn("script_failed", "category", category, "script", name, "error", err)
				errs = append(errs, &ScriptError{Category: category, Name: name, Err: err})
				continue
			}
			if v == nil {
				continue
			}
			values[name] = v
		}
		results[category] = values
	}

	return results, errors.Join(errs...)
}
