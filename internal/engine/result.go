package engine

import (
	"time"

	"github.com/randomizedcoder/go-browser-perf/internal/browser"
	"github.com/randomizedcoder/go-browser-perf/internal/har"
	"github.com/randomizedcoder/go-browser-perf/internal/stats"
	"github.com/randomizedcoder/go-browser-perf/internal/trace"
)

// PageResult is one measured navigation.
type PageResult struct {
	URL       string    `json:"url"`
	Alias     string    `json:"alias,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	BrowserScripts map[string]map[string]any `json:"browserScripts,omitempty"`
	HAR            *har.HAR                  `json:"-"`
	CPU            *trace.CPU                `json:"cpu,omitempty"`
	VisualMetrics  map[string]any            `json:"visualMetrics,omitempty"`
	VideoPath      string                    `json:"videoPath,omitempty"`
	Screenshot     []byte                    `json:"-"`
	Errors         []string                  `json:"errors,omitempty"`

	// missing marks a stand-in for a page the iteration never reached.
	missing bool
}

// Key groups pages of the same URL across iterations.
func (p *PageResult) Key() string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.URL
}

func (p *PageResult) addError(err error) {
	p.Errors = append(p.Errors, err.Error())
}

// IterationResult is everything one iteration produced. It is complete
// once Iteration.Run returns, failed or not.
type IterationResult struct {
	Index           int           `json:"index"`
	Timestamp       time.Time     `json:"timestamp"`
	Duration        time.Duration `json:"duration"`
	Pages           []*PageResult `json:"pages"`
	Browser         browser.Info  `json:"browser"`
	Errors          []string      `json:"errors,omitempty"`
	MarkedAsFailure bool          `json:"markedAsFailure,omitempty"`
	FailureMessages []string      `json:"failureMessages,omitempty"`
	State           State         `json:"state"`

	// Err is the error that ended the iteration early, if any.
	Err error `json:"-"`
}

// Failed reports whether the iteration errored or was marked as failed.
func (r *IterationResult) Failed() bool {
	return r.Err != nil || r.MarkedAsFailure
}

// RunResult is the outcome of all iterations for one URL or alias.
type RunResult struct {
	URL   string
	Alias string
	RunID string

	// Pages holds this URL's page from every iteration, in order. A failed
	// iteration keeps its slot.
	Pages      []*PageResult
	Iterations []*IterationResult

	BrowserScripts []map[string]map[string]any
	HAR            *har.HAR

	Statistics       map[string]any
	CustomStatistics map[string]any
	Summary          stats.RunSummary

	Info      browser.Info
	Timestamp time.Time
}

// Failures counts iterations that failed.
func (r *RunResult) Failures() int {
	n := 0
	for _, it := range r.Iterations {
		if it.Failed() {
			n++
		}
	}
	return n
}

// ResultDocument is the persisted JSON for one URL.
type ResultDocument struct {
	URL            string        `json:"url"`
	Alias          string        `json:"alias,omitempty"`
	RunID          string        `json:"runId"`
	Runs           int           `json:"runs"`
	BrowserName    string        `json:"browserName"`
	BrowserVersion string        `json:"browserVersion"`
	Platform       string        `json:"platform"`
	Timestamp      time.Time     `json:"timestamp"`
	Default        ResultSection `json:"default"`
	Custom         ResultSection `json:"custom"`
	Errors         [][]string    `json:"errors"`
}

// ResultSection pairs summary statistics with the per-iteration data.
type ResultSection struct {
	Statistics map[string]any `json:"statistics"`
	Data       []any          `json:"data"`
}

// IterationData is one iteration's built-in metrics.
type IterationData struct {
	Timestamp      time.Time                 `json:"timestamp"`
	BrowserScripts map[string]map[string]any `json:"browserScripts"`
	VisualMetrics  map[string]any            `json:"visualMetrics,omitempty"`
	CPU            *trace.CPU                `json:"cpu,omitempty"`
	Failed         bool                      `json:"failed,omitempty"`
}

// Document builds the result JSON. platform describes the host.
func (r *RunResult) Document(platform string) ResultDocument {
	doc := ResultDocument{
		URL:            r.URL,
		Alias:          r.Alias,
		RunID:          r.RunID,
		Runs:           len(r.Pages),
		BrowserName:    r.Info.Name,
		BrowserVersion: r.Info.Version,
		Platform:       platform,
		Timestamp:      r.Timestamp,
		Default:        ResultSection{Statistics: r.Statistics, Data: []any{}},
		Custom:         ResultSection{Statistics: r.CustomStatistics, Data: []any{}},
		Errors:         make([][]string, 0, len(r.Pages)),
	}
	if doc.Default.Statistics == nil {
		doc.Default.Statistics = map[string]any{}
	}
	if doc.Custom.Statistics == nil {
		doc.Custom.Statistics = map[string]any{}
	}

	for i, p := range r.Pages {
		defaults, custom := splitCategories(p.BrowserScripts)
		failed := p.missing || (i < len(r.Iterations) && r.Iterations[i].Failed())
		doc.Default.Data = append(doc.Default.Data, IterationData{
			Timestamp:      p.Timestamp,
			BrowserScripts: defaults,
			VisualMetrics:  p.VisualMetrics,
			CPU:            p.CPU,
			Failed:         failed,
		})
		doc.Custom.Data = append(doc.Custom.Data, custom)

		errs := append([]string{}, p.Errors...)
		if i < len(r.Iterations) {
			errs = appendMissing(errs, r.Iterations[i].Errors...)
		}
		doc.Errors = append(doc.Errors, errs)
	}
	return doc
}

// splitCategories separates built-in script categories from custom ones.
func splitCategories(scripts map[string]map[string]any) (defaults, custom map[string]map[string]any) {
	defaults = make(map[string]map[string]any)
	custom = make(map[string]map[string]any)
	for cat, values := range scripts {
		if browser.IsDefaultCategory(cat) {
			defaults[cat] = values
		} else {
			custom[cat] = values
		}
	}
	return defaults, custom
}

func appendMissing(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
