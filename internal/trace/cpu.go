package trace

import (
	"math"
	"sort"
)

// Category names, in report order.
const (
	CategoryParseHTML            = "parseHTML"
	CategoryStyleLayout          = "styleLayout"
	CategoryPaintCompositeRender = "paintCompositeRender"
	CategoryScriptParseCompile   = "scriptParseCompile"
	CategoryScriptEvaluation     = "scriptEvaluation"
	CategoryGarbageCollection    = "garbageCollection"
	CategoryOther                = "other"
)

// Categories lists every category reported by ParseCPU.
var Categories = []string{
	CategoryParseHTML,
	CategoryStyleLayout,
	CategoryPaintCompositeRender,
	CategoryScriptParseCompile,
	CategoryScriptEvaluation,
	CategoryGarbageCollection,
	CategoryOther,
}

// eventCategory maps trace event names to a category. Unmapped events
// inherit the category of the task they run in.
var eventCategory = map[string]string{
	"ParseHTML":             CategoryParseHTML,
	"ParseAuthorStyleSheet": CategoryParseHTML,

	"ScheduleStyleRecalculation": CategoryStyleLayout,
	"UpdateLayoutTree":           CategoryStyleLayout,
	"RecalculateStyles":          CategoryStyleLayout,
	"InvalidateLayout":           CategoryStyleLayout,
	"Layout":                     CategoryStyleLayout,

	"Animation":       CategoryPaintCompositeRender,
	"HitTest":         CategoryPaintCompositeRender,
	"PaintSetup":      CategoryPaintCompositeRender,
	"Paint":           CategoryPaintCompositeRender,
	"PaintImage":      CategoryPaintCompositeRender,
	"PrePaint":        CategoryPaintCompositeRender,
	"Layerize":        CategoryPaintCompositeRender,
	"RasterTask":      CategoryPaintCompositeRender,
	"ScrollLayer":     CategoryPaintCompositeRender,
	"UpdateLayer":     CategoryPaintCompositeRender,
	"UpdateLayerTree": CategoryPaintCompositeRender,
	"CompositeLayers": CategoryPaintCompositeRender,
	"Decode Image":    CategoryPaintCompositeRender,
	"ImageDecodeTask": CategoryPaintCompositeRender,

	"v8.compile":            CategoryScriptParseCompile,
	"v8.compileModule":      CategoryScriptParseCompile,
	"v8.parseOnBackground":  CategoryScriptParseCompile,
	"V8.CompileCode":        CategoryScriptParseCompile,
	"v8.produceCache":       CategoryScriptParseCompile,
	"v8.produceModuleCache": CategoryScriptParseCompile,

	"EventDispatch":       CategoryScriptEvaluation,
	"EvaluateScript":      CategoryScriptEvaluation,
	"v8.evaluateModule":   CategoryScriptEvaluation,
	"FunctionCall":        CategoryScriptEvaluation,
	"TimerFire":           CategoryScriptEvaluation,
	"FireIdleCallback":    CategoryScriptEvaluation,
	"FireAnimationFrame":  CategoryScriptEvaluation,
	"RunMicrotasks":       CategoryScriptEvaluation,
	"V8.Execute":          CategoryScriptEvaluation,
	"XHRReadyStateChange": CategoryScriptEvaluation,
	"XHRLoad":             CategoryScriptEvaluation,

	"GCEvent":                           CategoryGarbageCollection,
	"MinorGC":                           CategoryGarbageCollection,
	"MajorGC":                           CategoryGarbageCollection,
	"BlinkGCMarking":                    CategoryGarbageCollection,
	"ThreadState::performIdleLazySweep": CategoryGarbageCollection,
	"ThreadState::completeSweep":        CategoryGarbageCollection,
	"BlinkGC.AtomicPhase":               CategoryGarbageCollection,
}

// reportLimit is the smallest self time in ms reported per event name
// or URL.
const reportLimit = 10

// URLTime is the main thread time attributed to a URL.
type URLTime struct {
	URL   string  `json:"url"`
	Value float64 `json:"value"`
}

// CPU is main thread time in milliseconds.
type CPU struct {
	Categories map[string]float64 `json:"categories"`
	Events     map[string]float64 `json:"events"`
	URLs       []URLTime          `json:"urls"`
}

type task struct {
	name     string
	start    float64
	end      float64
	parent   *task
	children []*task
	category string
	urls     []string
	url      string
}

// ParseCPU attributes the self time of every main thread task to its
// category, its event name and the URLs of the scripts it ran for.
// Categories are rounded to whole ms, events and URLs to three decimals.
// Events and URLs under 10 ms are left out.
func ParseCPU(events []Event) (*CPU, error) {
	main, err := mainThread(events)
	if err != nil {
		return nil, err
	}

	tasks := buildTasks(events, main)

	cpu := &CPU{
		Categories: make(map[string]float64, len(Categories)),
		Events:     make(map[string]float64),
		URLs:       []URLTime{},
	}
	for _, c := range Categories {
		cpu.Categories[c] = 0
	}
	urls := make(map[string]float64)

	for _, t := range tasks {
		self := selfTime(t)
		cpu.Categories[t.category] += self
		cpu.Events[t.name] += self
		for _, u := range t.urls {
			urls[u] += self
		}
	}

	for c, v := range cpu.Categories {
		cpu.Categories[c] = roundTo(v, 0)
	}
	for name, v := range cpu.Events {
		if v > reportLimit {
			cpu.Events[name] = roundTo(v, 3)
		} else {
			delete(cpu.Events, name)
		}
	}
	for u, v := range urls {
		if v > reportLimit {
			cpu.URLs = append(cpu.URLs, URLTime{URL: u, Value: roundTo(v, 3)})
		}
	}
	sort.Slice(cpu.URLs, func(i, j int) bool {
		if cpu.URLs[i].Value != cpu.URLs[j].Value {
			return cpu.URLs[i].Value > cpu.URLs[j].Value
		}
		return cpu.URLs[i].URL < cpu.URLs[j].URL
	})

	return cpu, nil
}

// buildTasks nests the main thread's duration events by time containment.
// A child that outlives its parent is clipped to the parent's end.
func buildTasks(events []Event, main threadKey) []*task {
	var tasks []*task
	open := make(map[string][]*task)

	for _, ev := range events {
		if ev.Pid != main.pid || ev.Tid != main.tid {
			continue
		}
		switch ev.Ph {
		case "X":
			if ev.Dur <= 0 {
				continue
			}
			tasks = append(tasks, newTask(ev, ev.Ts+ev.Dur))
		case "B":
			open[ev.Name] = append(open[ev.Name], newTask(ev, ev.Ts))
		case "E":
			stack := open[ev.Name]
			if len(stack) == 0 {
				continue
			}
			t := stack[len(stack)-1]
			open[ev.Name] = stack[:len(stack)-1]
			if ev.Ts > t.start {
				t.end = ev.Ts
				tasks = append(tasks, t)
			}
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].start != tasks[j].start {
			return tasks[i].start < tasks[j].start
		}
		return tasks[i].end > tasks[j].end
	})

	var stack []*task
	for _, t := range tasks {
		for len(stack) > 0 && stack[len(stack)-1].end <= t.start {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			if t.end > parent.end {
				t.end = parent.end
			}
			t.parent = parent
			parent.children = append(parent.children, t)
		}
		t.category = categoryOf(t)
		t.urls = urlsOf(t)
		stack = append(stack, t)
	}

	return tasks
}

func newTask(ev Event, end float64) *task {
	t := &task{name: ev.Name, start: ev.Ts, end: end}
	args := decodeArgs(ev.Args)
	switch {
	case args.Data != nil && args.Data.URL != "":
		t.url = args.Data.URL
	case args.Data != nil && len(args.Data.StackTrace) > 0:
		t.url = args.Data.StackTrace[0].URL
	case args.BeginData != nil:
		t.url = args.BeginData.URL
	}
	return t
}

func categoryOf(t *task) string {
	if c, ok := eventCategory[t.name]; ok {
		return c
	}
	if t.parent != nil {
		return t.parent.category
	}
	return CategoryOther
}

func urlsOf(t *task) []string {
	var urls []string
	if t.parent != nil {
		urls = append(urls, t.parent.urls...)
	}
	if t.url == "" {
		return urls
	}
	for _, u := range urls {
		if u == t.url {
			return urls
		}
	}
	return append(urls, t.url)
}

// selfTime is the task duration minus its direct children, in ms.
func selfTime(t *task) float64 {
	d := t.end - t.start
	for _, c := range t.children {
		d -= c.end - c.start
	}
	if d < 0 {
		d = 0
	}
	return d / 1000
}

func roundTo(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
