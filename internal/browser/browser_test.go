package browser

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"

	"github.com/randomizedcoder/go-browser-perf/internal/logging"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fakeRunner returns results by script source and records call order.
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]any
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) RunScript(ctx context.Context, src, name string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if err := f.errs[src]; err != nil {
		return nil, err
	}
	return f.results[src], nil
}

// =============================================================================
// Tests: ID
// =============================================================================

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{"chrome", IDChrome, false},
		{" Chrome ", IDChrome, false},
		{"edge", IDEdge, false},
		{"firefox", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: Categories
// =============================================================================

func TestCategories_Names(t *testing.T) {
	c := Categories{"timings": {}, "custom": {}, "pageinfo": {}}
	got := c.Names()
	want := []string{"custom", "pageinfo", "timings"}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCategories_Merge(t *testing.T) {
	base := Categories{"timings": {"ttfb": "1", "fp": "2"}}
	extra := Categories{"timings": {"fp": "3"}, "custom": {"x": "4"}}

	merged := base.Merge(extra)

	if merged["timings"]["ttfb"] != "1" {
		t.Error("scripts only in the base should survive")
	}
	if merged["timings"]["fp"] != "3" {
		t.Error("scripts in other should replace base scripts")
	}
	if merged["custom"]["x"] != "4" {
		t.Error("new categories should be added")
	}
	if base["timings"]["fp"] != "2" {
		t.Error("Merge must not modify its receiver")
	}
}

// =============================================================================
// Tests: RunScripts
// =============================================================================

func TestRunScripts_OmitsNilResults(t *testing.T) {
	r := &fakeRunner{results: map[string]any{"a": 1.0, "b": nil}}
	scripts := Categories{"timings": {"first": "a", "second": "b"}}

	got, err := RunScripts(context.Background(), r, scripts, logging.Discard())
	if err != nil {
		t.Fatalf("RunScripts() error = %v", err)
	}
	if got["timings"]["first"] != 1.0 {
		t.Errorf("first = %v, want 1", got["timings"]["first"])
	}
	if _, ok := got["timings"]["second"]; ok {
		t.Error("a nil result should be left out")
	}
}

func TestRunScripts_NameOrder(t *testing.T) {
	r := &fakeRunner{}
	scripts := Categories{
		"timings":  {"c": "3", "a": "1"},
		"pageinfo": {"b": "2"},
	}
	if _, err := RunScripts(context.Background(), r, scripts, logging.Discard()); err != nil {
		t.Fatalf("RunScripts() error = %v", err)
	}
	want := []string{"b", "a", "c"}
	for i := range want {
		if r.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", r.calls, want)
		}
	}
}

func TestRunScripts_CollectsErrors(t *testing.T) {
	boom := errors.New("boom")
	r := &fakeRunner{
		results: map[string]any{"ok": "fine"},
		errs:    map[string]error{"bad": boom},
	}
	scripts := Categories{"custom": {"good": "ok", "broken": "bad"}}

	got, err := RunScripts(context.Background(), r, scripts, logging.Discard())
	if !errors.Is(err, boom) {
		t.Fatalf("RunScripts() error = %v, want boom", err)
	}
	var se *ScriptError
	if !errors.As(err, &se) {
		t.Fatalf("error should carry a *ScriptError, got %T", err)
	}
	if se.Category != "custom" || se.Name != "broken" {
		t.Errorf("ScriptError = %+v", se)
	}
	if got["custom"]["good"] != "fine" {
		t.Error("successful scripts should still be returned")
	}
}

func TestRunScripts_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &fakeRunner{}
	_, err := RunScripts(ctx, r, Categories{"timings": {"a": "1"}}, logging.Discard())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunScripts() error = %v, want context.Canceled", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("no script should run after cancel, ran %v", r.calls)
	}
}

// =============================================================================
// Tests: Chrome helpers
// =============================================================================

func TestEventMethod(t *testing.T) {
	tests := []struct {
		ev   any
		want cdproto.MethodType
		ok   bool
	}{
		{&network.EventRequestWillBeSent{}, cdproto.EventNetworkRequestWillBeSent, true},
		{&network.EventResponseReceived{}, cdproto.EventNetworkResponseReceived, true},
		{&network.EventLoadingFinished{}, cdproto.EventNetworkLoadingFinished, true},
		{&page.EventFrameStartedLoading{}, cdproto.EventPageFrameStartedLoading, true},
		{&page.EventLoadEventFired{}, cdproto.EventPageLoadEventFired, true},
		{&runtime.EventConsoleAPICalled{}, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			got, ok := eventMethod(tt.ev)
			if got != tt.want || ok != tt.ok {
				t.Errorf("eventMethod(%T) = %q, %v; want %q, %v", tt.ev, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseProduct(t *testing.T) {
	tests := []struct {
		product string
		want    Info
	}{
		{"HeadlessChrome/120.0.6099.109", Info{Name: "Chrome", Version: "120.0.6099.109", UserAgent: "ua"}},
		{"Chrome/121.0", Info{Name: "Chrome", Version: "121.0", UserAgent: "ua"}},
		{"Edg", Info{Name: "Edg", UserAgent: "ua"}},
	}
	for _, tt := range tests {
		t.Run(tt.product, func(t *testing.T) {
			if got := parseProduct(tt.product, "ua"); got != tt.want {
				t.Errorf("parseProduct() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIsHTTP(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.example.com/", true},
		{"HTTP://example.com", true},
		{"chrome-error://chromewebdata/", false},
		{"about:blank", false},
		{"file:///tmp/x.html", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := isHTTP(tt.url); got != tt.want {
				t.Errorf("isHTTP(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestChrome_NotStarted(t *testing.T) {
	c := NewChrome(DefaultChromeOptions(), logging.Discard())
	ctx := context.Background()

	if _, err := c.RunScript(ctx, "1", "one"); !errors.Is(err, ErrNotStarted) {
		t.Errorf("RunScript() error = %v, want ErrNotStarted", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Errorf("Stop() before Start should be a no-op, got %v", err)
	}
	if got := c.Info().Name; got != "chrome" {
		t.Errorf("Info().Name = %q, want chrome", got)
	}
	logs, err := c.GetLogs(ctx, LogTypePerformance)
	if err != nil || len(logs) != 0 {
		t.Errorf("GetLogs() = %v, %v", logs, err)
	}
	if _, err := c.GetLogs(ctx, "browser"); err == nil {
		t.Error("GetLogs() should reject unknown log types")
	}
}

func TestChrome_RecordsEvents(t *testing.T) {
	c := NewChrome(DefaultChromeOptions(), logging.Discard())
	c.onEvent(&page.EventLoadEventFired{})
	c.onEvent(&runtime.EventConsoleAPICalled{})

	logs, err := c.GetLogs(context.Background(), LogTypePerformance)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(logs))
	}
	if again, _ := c.GetLogs(context.Background(), LogTypePerformance); len(again) != 0 {
		t.Error("GetLogs() should drain the log")
	}
}

func TestChrome_AllocatorArgs(t *testing.T) {
	opts := DefaultChromeOptions()
	opts.Args = []string{"--disable-gpu", "--lang=en-US", "--"}
	c := NewChrome(opts, logging.Discard())

	base := len(NewChrome(DefaultChromeOptions(), logging.Discard()).allocatorOptions())
	if got := len(c.allocatorOptions()); got != base+2 {
		t.Errorf("allocator options = %d, want %d", got, base+2)
	}
}
