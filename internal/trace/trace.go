// Package trace turns Chrome trace events into main thread CPU time per
// activity category, per event name and per attributable URL.
package trace

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoMainThread is returned when no renderer main thread can be found.
var ErrNoMainThread = errors.New("trace: no renderer main thread")

// Event is one trace event in the Chrome trace event format. Times are
// microseconds.
type Event struct {
	Name string          `json:"name"`
	Cat  string          `json:"cat"`
	Ph   string          `json:"ph"`
	Ts   float64         `json:"ts"`
	Dur  float64         `json:"dur,omitempty"`
	Pid  int64           `json:"pid"`
	Tid  int64           `json:"tid"`
	Args json.RawMessage `json:"args,omitempty"`
}

// File is the on-disk trace format understood by DevTools.
type File struct {
	TraceEvents []Event `json:"traceEvents"`
}

// DefaultCategories are requested when tracing is enabled.
var DefaultCategories = []string{
	"-*",
	"devtools.timeline",
	"disabled-by-default-devtools.timeline",
	"disabled-by-default-devtools.timeline.frame",
	"disabled-by-default-devtools.timeline.stack",
	"disabled-by-default-v8.cpu_profiler",
	"blink.user_timing",
	"v8.execute",
	"v8",
	"loading",
	"latencyInfo",
	"toplevel",
	"blink.console",
	"blink",
	"cc",
	"gpu",
}

// Decode parses raw trace events. Events that fail to decode are counted
// and skipped.
func Decode(raws []json.RawMessage) ([]Event, int) {
	events := make([]Event, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}

// threadKey identifies a thread across processes.
type threadKey struct {
	pid, tid int64
}

type eventArgs struct {
	Name string `json:"name"`
	Data *struct {
		URL        string `json:"url"`
		StackTrace []struct {
			URL string `json:"url"`
		} `json:"stackTrace"`
	} `json:"data"`
	BeginData *struct {
		URL string `json:"url"`
	} `json:"beginData"`
}

func decodeArgs(raw json.RawMessage) eventArgs {
	var args eventArgs
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	return args
}

// mainThread returns the busiest renderer main thread. Chrome names it
// CrRendererMain in a thread_name metadata event; without metadata the
// thread with the most complete events is used.
func mainThread(events []Event) (threadKey, error) {
	renderers := make(map[threadKey]bool)
	counts := make(map[threadKey]int)

	for _, ev := range events {
		key := threadKey{ev.Pid, ev.Tid}
		switch ev.Ph {
		case "M":
			if ev.Name == "thread_name" && decodeArgs(ev.Args).Name == "CrRendererMain" {
				renderers[key] = true
			}
		case "X", "B":
			counts[key]++
		}
	}

	var best threadKey
	bestCount := -1
	for key, n := range counts {
		if len(renderers) > 0 && !renderers[key] {
			continue
		}
		if n > bestCount || (n == bestCount && (key.pid < best.pid || (key.pid == best.pid && key.tid < best.tid))) {
			best, bestCount = key, n
		}
	}
	if bestCount < 0 {
		return threadKey{}, fmt.Errorf("%w (%d events)", ErrNoMainThread, len(events))
	}
	return best, nil
}
