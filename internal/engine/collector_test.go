package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/randomizedcoder/go-browser-perf/internal/har"
	"github.com/randomizedcoder/go-browser-perf/internal/logging"
	"github.com/randomizedcoder/go-browser-perf/internal/stats"
	"github.com/randomizedcoder/go-browser-perf/internal/trace"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestCollector() *Collector {
	return NewCollector(testURL, "", "run-1", stats.SummaryOptions{})
}

func okIteration(index int) *IterationResult {
	return &IterationResult{Index: index, Timestamp: time.Unix(1700000000+int64(index), 0), State: StateDone}
}

func pageWithScripts(ttfb float64) *PageResult {
	return &PageResult{
		URL:       testURL,
		Timestamp: time.Unix(1700000000, 0),
		BrowserScripts: map[string]map[string]any{
			"timings": {
				"ttfb": ttfb,
				"userTimings": map[string]any{
					"marks": []any{
						map[string]any{"name": "hero", "startTime": ttfb * 2},
					},
					"measures": []any{
						map[string]any{"name": "render", "duration": ttfb / 2},
					},
				},
				"resourceTimings": []any{
					map[string]any{"name": "http://example.com/a.js", "duration": 5.0},
				},
			},
			"mine": {"clicks": 3.0},
		},
	}
}

// =============================================================================
// Tests: Collector
// =============================================================================

func TestCollector_StatisticsFromSuccessfulIterations(t *testing.T) {
	c := newTestCollector()

	c.Add(okIteration(0), pageWithScripts(100))
	failed := okIteration(1)
	failed.Err = errors.New("boom")
	c.Add(failed, pageWithScripts(10000))
	c.Add(okIteration(2), pageWithScripts(300))

	values := c.Statistics().Values("timings", "ttfb")
	if len(values) != 2 || values[0] != 100 || values[1] != 300 {
		t.Errorf("ttfb values = %v, want [100 300]", values)
	}
	if v := c.Statistics().Values("timings", "userTimings", "marks", "hero"); len(v) != 2 || v[0] != 200 {
		t.Errorf("mark values = %v", v)
	}
	if v := c.Statistics().Values("timings", "userTimings", "measures", "render"); len(v) != 2 || v[1] != 150 {
		t.Errorf("measure values = %v", v)
	}
	for _, name := range c.Statistics().Names() {
		if len(name) > 1 && name[1] == "resourceTimings" {
			t.Errorf("resource timings should be skipped, got %v", name)
		}
	}

	r := c.Result()
	if len(r.Pages) != 3 || len(r.BrowserScripts) != 3 {
		t.Errorf("pages = %d scripts = %d, want a slot per iteration", len(r.Pages), len(r.BrowserScripts))
	}
	if r.Failures() != 1 {
		t.Errorf("failures = %d, want 1", r.Failures())
	}
	if _, ok := r.CustomStatistics["mine"]; !ok {
		t.Errorf("custom statistics = %v", r.CustomStatistics)
	}
	if _, ok := r.Statistics["mine"]; ok {
		t.Error("custom category leaked into default statistics")
	}

	var ttfb stats.Summary
	if s, ok := c.Statistics().Summarize(stats.SummaryOptions{}, "timings", "ttfb"); ok {
		ttfb = s
	}
	if ttfb.Min != 100 || ttfb.Max != 300 {
		t.Errorf("ttfb summary = %+v", ttfb)
	}
	if len(r.Summary.Metrics) == 0 || r.Summary.Metrics[0].Name != "TTFB" {
		t.Errorf("summary metrics = %+v", r.Summary.Metrics)
	}
}

func TestCollector_VisualMetricsAndCPU(t *testing.T) {
	c := newTestCollector()
	page := pageWithScripts(100)
	page.VisualMetrics = map[string]any{"SpeedIndex": 1200.0, "FirstVisualChange": 400.0}
	page.CPU = &trace.CPU{
		Categories: map[string]float64{"scriptEvaluation": 55},
		Events:     map[string]float64{"FunctionCall": 30},
	}
	c.Add(okIteration(0), page)

	if v := c.Statistics().Values("visualMetrics", "SpeedIndex"); len(v) != 1 || v[0] != 1200 {
		t.Errorf("SpeedIndex = %v", v)
	}
	if v := c.Statistics().Values("cpu", "categories", "scriptEvaluation"); len(v) != 1 || v[0] != 55 {
		t.Errorf("cpu category = %v", v)
	}
	if v := c.Statistics().Values("cpu", "events", "FunctionCall"); len(v) != 1 {
		t.Errorf("cpu event = %v", v)
	}
}

func TestCollector_MergesOnlySuccessfulHARs(t *testing.T) {
	c := newTestCollector()
	newHAR := func() *har.HAR {
		h := har.New()
		h.Log.Pages = append(h.Log.Pages, &har.Page{ID: "page_1"})
		h.Log.Entries = append(h.Log.Entries, &har.Entry{Pageref: "page_1"})
		return h
	}

	for i := 0; i < 3; i++ {
		it := okIteration(i)
		if i == 1 {
			it.MarkedAsFailure = true
		}
		p := pageWithScripts(100)
		p.HAR = newHAR()
		c.Add(it, p)
	}

	h := c.Result().HAR
	if h == nil || len(h.Log.Pages) != 2 {
		t.Fatalf("merged HAR should have 2 pages")
	}
	if h.Log.Pages[0].ID == h.Log.Pages[1].ID {
		t.Errorf("page ids collide: %q", h.Log.Pages[0].ID)
	}
	if h.Log.Entries[1].Pageref != h.Log.Pages[1].ID {
		t.Errorf("second entry pageref = %q, want %q", h.Log.Entries[1].Pageref, h.Log.Pages[1].ID)
	}
}

// =============================================================================
// Tests: result document
// =============================================================================

func TestRunResult_Document(t *testing.T) {
	c := newTestCollector()
	c.Add(okIteration(0), pageWithScripts(100))
	failed := okIteration(1)
	failed.Err = errors.New("navigation failed")
	failed.Errors = []string{"navigation failed"}
	p := pageWithScripts(0)
	p.Errors = []string{"navigation failed"}
	c.Add(failed, p)

	r := c.Result()
	r.Info.Name, r.Info.Version = "Chrome", "120"
	doc := r.Document("linux x86_64")

	if doc.Runs != 2 || doc.URL != testURL || doc.RunID != "run-1" {
		t.Errorf("doc header = %+v", doc)
	}
	if doc.BrowserName != "Chrome" || doc.Platform != "linux x86_64" {
		t.Errorf("browser/platform = %q %q", doc.BrowserName, doc.Platform)
	}
	if len(doc.Default.Data) != 2 || len(doc.Custom.Data) != 2 {
		t.Fatalf("data = %d / %d, want 2", len(doc.Default.Data), len(doc.Custom.Data))
	}
	second := doc.Default.Data[1].(IterationData)
	if !second.Failed {
		t.Error("second iteration should be flagged failed")
	}
	if _, ok := second.BrowserScripts["mine"]; ok {
		t.Error("custom category in default data")
	}
	if len(doc.Errors) != 2 || len(doc.Errors[0]) != 0 || len(doc.Errors[1]) != 1 {
		t.Errorf("errors = %v, want [[] [navigation failed]]", doc.Errors)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"url", "runId", "runs", "browserName", "browserVersion", "platform", "timestamp", "default", "custom", "errors"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("document missing %q", key)
		}
	}
}

// =============================================================================
// Tests: RunContext
// =============================================================================

func TestRunContext_ResolveAlias(t *testing.T) {
	rc := NewRunContext()
	if rc.RunID == "" {
		t.Error("run id is empty")
	}

	tests := []struct {
		name  string
		alias string
		url   string
		want  string
	}{
		{"no alias", "", "http://a.example/", "http://a.example/"},
		{"first use", "login", "http://a.example/login", "http://a.example/login"},
		{"first url wins", "login", "http://a.example/login?redirected", "http://a.example/login"},
		{"other alias", "home", "http://a.example/", "http://a.example/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rc.ResolveAlias(tt.alias, tt.url); got != tt.want {
				t.Errorf("ResolveAlias(%q, %q) = %q, want %q", tt.alias, tt.url, got, tt.want)
			}
		})
	}

	if n := len(rc.Aliases()); n != 2 {
		t.Errorf("aliases = %d, want 2", n)
	}
	if NewRunContext().RunID == rc.RunID {
		t.Error("run ids should differ between runs")
	}
	if len(NewRunContext().Aliases()) != 0 {
		t.Error("a new run must not see earlier aliases")
	}
}

// =============================================================================
// Tests: timeouts and states
// =============================================================================

func TestRunWithTimeout(t *testing.T) {
	errFn := errors.New("fn failed")

	tests := []struct {
		name        string
		timeout     time.Duration
		fn          func(context.Context) error
		wantErr     error
		wantTimeout bool
	}{
		{
			name:    "completes",
			timeout: time.Second,
			fn:      func(context.Context) error { return nil },
		},
		{
			name:    "returns error",
			timeout: time.Second,
			fn:      func(context.Context) error { return errFn },
			wantErr: errFn,
		},
		{
			name:    "no timeout",
			timeout: 0,
			fn:      func(context.Context) error { return errFn },
			wantErr: errFn,
		},
		{
			name:    "times out",
			timeout: 10 * time.Millisecond,
			fn: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
			wantTimeout: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runWithTimeout(context.Background(), "op", tt.timeout, tt.fn)
			if tt.wantTimeout {
				var te *TimeoutError
				if !errors.As(err, &te) || te.Op != "op" || te.Timeout != tt.timeout {
					t.Errorf("error = %v, want TimeoutError", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunWithTimeout_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runWithTimeout(ctx, "op", time.Minute, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestState(t *testing.T) {
	tests := []struct {
		state    State
		name     string
		terminal bool
	}{
		{StateNotStarted, "not_started", false},
		{StateBrowserStarting, "browser_starting", false},
		{StateNavigating, "navigating", false},
		{StateWaitingForPageComplete, "waiting_for_page_complete", false},
		{StateCollectingScripts, "collecting_scripts", false},
		{StateCollectingMetrics, "collecting_metrics", false},
		{StateBrowserStopping, "browser_stopping", false},
		{StateDone, "done", true},
		{StateFailed, "failed", true},
		{State(99), "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.state.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

// =============================================================================
// Tests: delegates
// =============================================================================

func TestDelegateFor(t *testing.T) {
	logger := logging.Discard()
	if _, ok := DelegateFor("chrome", DelegateOptions{}, logger).(*ChromeDelegate); !ok {
		t.Error("chrome should use the Chrome delegate")
	}
	if _, ok := DelegateFor("edge", DelegateOptions{}, logger).(*ChromeDelegate); !ok {
		t.Error("edge should use the Chrome delegate")
	}
	if _, ok := DelegateFor("other", DelegateOptions{}, logger).(NoopDelegate); !ok {
		t.Error("unknown browsers should use NoopDelegate")
	}
}

func TestChromeDelegate_Failing(t *testing.T) {
	d := NewChromeDelegate(DelegateOptions{}, logging.Discard())
	page := &PageResult{URL: testURL, Timestamp: time.Unix(1700000000, 0)}
	d.Failing(page, 0)

	if page.HAR == nil || len(page.HAR.Log.Pages) != 1 {
		t.Fatal("want an empty HAR with one page")
	}
	if p := page.HAR.Log.Pages[0]; p.URL != testURL || p.PageTimings.OnLoad != -1 {
		t.Errorf("page = %+v", p)
	}
	if len(page.HAR.Log.Entries) != 0 {
		t.Error("empty HAR should have no entries")
	}

	skip := NewChromeDelegate(DelegateOptions{SkipHAR: true}, logging.Discard())
	other := &PageResult{URL: testURL}
	skip.Failing(other, 0)
	if other.HAR != nil {
		t.Error("SkipHAR should not create a HAR")
	}
}

func TestChromeDelegate_SkipHAR(t *testing.T) {
	b := newFakeBrowser(t, 0)
	d := NewChromeDelegate(DelegateOptions{SkipHAR: true}, logging.Discard())
	res := NewIteration(IterationConfig{}, b, d, logging.Discard()).Run(context.Background(), MeasureURL(testURL), 0)
	if res.Failed() {
		t.Fatalf("iteration failed: %v", res.Err)
	}
	if res.Pages[0].HAR != nil {
		t.Error("HAR built although SkipHAR is set")
	}
}
