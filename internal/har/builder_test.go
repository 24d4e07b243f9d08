package har

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/chromedp/cdproto"

	"github.com/randomizedcoder/go-browser-perf/internal/logging"
	"github.com/randomizedcoder/go-browser-perf/internal/perflog"
)

// =============================================================================
// Test Helpers
// =============================================================================

// stream records DevTools events the way the browser would emit them.
type stream struct {
	t      *testing.T
	events []perflog.Event
}

func newStream(t *testing.T) *stream {
	return &stream{t: t}
}

func (s *stream) add(method cdproto.MethodType, params map[string]any) *stream {
	s.t.Helper()
	data, err := json.Marshal(params)
	if err != nil {
		s.t.Fatalf("marshal %s: %v", method, err)
	}
	s.events = append(s.events, perflog.Event{Method: method, Params: data})
	return s
}

func (s *stream) frameStarted(frame string) *stream {
	return s.add(cdproto.EventPageFrameStartedLoading, map[string]any{"frameId": frame})
}

func (s *stream) frameAttached(frame, parent string) *stream {
	return s.add(cdproto.EventPageFrameAttached, map[string]any{"frameId": frame, "parentFrameId": parent})
}

func (s *stream) request(id, frame, url string, ts float64) *stream {
	return s.add(cdproto.EventNetworkRequestWillBeSent, map[string]any{
		"requestId": id,
		"frameId":   frame,
		"timestamp": ts,
		"wallTime":  1700000000 + ts,
		"type":      "Script",
		"request": map[string]any{
			"url":     url,
			"method":  "GET",
			"headers": map[string]any{"Accept": "*/*"},
		},
	})
}

func (s *stream) redirect(id, frame, url, location string, ts float64) *stream {
	return s.add(cdproto.EventNetworkRequestWillBeSent, map[string]any{
		"requestId": id,
		"frameId":   frame,
		"timestamp": ts,
		"wallTime":  1700000000 + ts,
		"type":      "Document",
		"request": map[string]any{
			"url":     url,
			"method":  "GET",
			"headers": map[string]any{},
		},
		"redirectResponse": map[string]any{
			"url":        "http://example.com/old",
			"status":     301,
			"statusText": "Moved Permanently",
			"headers":    map[string]any{"Location": location},
			"mimeType":   "text/html",
			"protocol":   "http/1.1",
			"timing":     goodTiming(ts - 0.1),
		},
	})
}

func (s *stream) response(id string, status int, timing map[string]any) *stream {
	resp := map[string]any{
		"url":               "http://example.com/",
		"status":            status,
		"statusText":        "OK",
		"headers":           map[string]any{"Content-Type": "text/html", "Set-Cookie": "a=1; Path=/\nb=2; HttpOnly"},
		"mimeType":          "text/html",
		"protocol":          "http/1.1",
		"connectionId":      12,
		"remoteIPAddress":   "[::1]",
		"encodedDataLength": 200,
	}
	if timing != nil {
		resp["timing"] = timing
	}
	return s.add(cdproto.EventNetworkResponseReceived, map[string]any{
		"requestId": id,
		"timestamp": 0,
		"type":      "Document",
		"response":  resp,
	})
}

func (s *stream) data(id string, n int) *stream {
	return s.add(cdproto.EventNetworkDataReceived, map[string]any{"requestId": id, "dataLength": n, "encodedDataLength": n})
}

func (s *stream) finished(id string, ts, encoded float64) *stream {
	return s.add(cdproto.EventNetworkLoadingFinished, map[string]any{"requestId": id, "timestamp": ts, "encodedDataLength": encoded})
}

func (s *stream) load(ts float64) *stream {
	return s.add(cdproto.EventPageLoadEventFired, map[string]any{"timestamp": ts})
}

func (s *stream) domContent(ts float64) *stream {
	return s.add(cdproto.EventPageDomContentEventFired, map[string]any{"timestamp": ts})
}

func (s *stream) build(opts Options) *HAR {
	return FromEvents(s.events, opts, logging.Discard())
}

// goodTiming is a plausible ResourceTiming for a new TLS connection.
func goodTiming(requestTime float64) map[string]any {
	return map[string]any{
		"requestTime":       requestTime,
		"proxyStart":        -1,
		"proxyEnd":          -1,
		"dnsStart":          0,
		"dnsEnd":            10,
		"connectStart":      10,
		"connectEnd":        50,
		"sslStart":          20,
		"sslEnd":            50,
		"workerStart":       -1,
		"workerReady":       -1,
		"sendStart":         50.5,
		"sendEnd":           51,
		"pushStart":         0,
		"pushEnd":           0,
		"receiveHeadersEnd": 120,
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

// =============================================================================
// Tests: pages and entries
// =============================================================================

func TestBuilder_SinglePage(t *testing.T) {
	h := newStream(t).
		frameStarted("F1").
		request("1", "F1", "http://example.com/", 100).
		response("1", 200, goodTiming(100.001)).
		data("1", 1000).
		finished("1", 100.201, 400).
		domContent(100.5).
		load(101).
		build(Options{})

	if len(h.Log.Pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(h.Log.Pages))
	}
	page := h.Log.Pages[0]
	if page.ID != "page_1" {
		t.Errorf("page id = %q", page.ID)
	}
	if page.Title != "http://example.com/" {
		t.Errorf("page title = %q", page.Title)
	}
	if !approx(page.PageTimings.OnLoad, 1000) {
		t.Errorf("onLoad = %v, want 1000", page.PageTimings.OnLoad)
	}
	if !approx(page.PageTimings.OnContentLoad, 500) {
		t.Errorf("onContentLoad = %v, want 500", page.PageTimings.OnContentLoad)
	}

	if len(h.Log.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(h.Log.Entries))
	}
	e := h.Log.Entries[0]
	if e.Pageref != "page_1" || !e.MainRequest {
		t.Errorf("pageref = %q main = %v", e.Pageref, e.MainRequest)
	}
	if e.StartedDateTime.Unix() != 1700000100 {
		t.Errorf("startedDateTime = %v", e.StartedDateTime)
	}

	want := Timings{Blocked: 0, DNS: 10, Connect: 40, SSL: 30, Send: 0.5, Wait: 69, Receive: 80}
	got := e.Timings
	for _, c := range []struct {
		name      string
		got, want float64
	}{
		{"blocked", got.Blocked, want.Blocked},
		{"dns", got.DNS, want.DNS},
		{"connect", got.Connect, want.Connect},
		{"ssl", got.SSL, want.SSL},
		{"send", got.Send, want.Send},
		{"wait", got.Wait, want.Wait},
		{"receive", got.Receive, want.Receive},
	} {
		if math.Abs(c.got-c.want) > 1e-3 {
			t.Errorf("timings.%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if math.Abs(e.Time-199.5) > 1e-3 {
		t.Errorf("time = %v, want 199.5", e.Time)
	}

	if e.Response.Content.Size != 1000 {
		t.Errorf("content.size = %d, want 1000", e.Response.Content.Size)
	}
	if e.Response.TransferSize != 400 {
		t.Errorf("_transferSize = %d, want 400", e.Response.TransferSize)
	}
	wantBody := 400 - e.Response.HeadersSize
	if e.Response.BodySize != wantBody {
		t.Errorf("bodySize = %d, want %d", e.Response.BodySize, wantBody)
	}
	if e.Response.Content.Compression != 1000-wantBody {
		t.Errorf("compression = %d, want %d", e.Response.Content.Compression, 1000-wantBody)
	}
	if e.ServerIPAddress != "::1" {
		t.Errorf("serverIPAddress = %q", e.ServerIPAddress)
	}
	if e.Connection != "12" {
		t.Errorf("connection = %q", e.Connection)
	}
	if e.Response.HTTPVersion != "HTTP/1.1" || e.Request.HTTPVersion != "HTTP/1.1" {
		t.Errorf("httpVersion = %q / %q", e.Request.HTTPVersion, e.Response.HTTPVersion)
	}
	if len(e.Response.Cookies) != 2 {
		t.Errorf("response cookies = %d, want 2", len(e.Response.Cookies))
	}
}

func TestBuilder_DropsEntriesWithoutResponse(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLoggerWithWriter(&buf, "text", "debug")

	s := newStream(t).
		frameStarted("F1").
		request("1", "F1", "http://example.com/", 100).
		response("1", 200, goodTiming(100)).
		finished("1", 100.2, 0).
		request("2", "F1", "http://example.com/app.js", 100.3).
		request("3", "F1", "http://example.com/favicon.ico", 100.4).
		request("4", "F1", "http://example.com/style.css", 100.5).
		response("4", 200, goodTiming(100.5)).
		finished("4", 100.6, 0)

	h := FromEvents(s.events, Options{}, logger)

	if len(h.Log.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(h.Log.Entries))
	}
	for _, e := range h.Log.Entries {
		if e.Response == nil {
			t.Errorf("entry %s has no response", e.RequestID)
		}
		if e.RequestID == "2" || e.RequestID == "3" {
			t.Errorf("entry %s should have been dropped", e.RequestID)
		}
	}

	logs := buf.String()
	if !strings.Contains(logs, "app.js") {
		t.Error("dropped entry should be logged")
	}
	if strings.Contains(logs, "favicon.ico") {
		t.Error("dropped favicon should not be logged")
	}
}

func TestBuilder_RedirectChain(t *testing.T) {
	h := newStream(t).
		frameStarted("F1").
		request("1", "F1", "http://example.com/old", 100).
		redirect("1", "F1", "http://example.com/new", "http://example.com/new", 100.1).
		response("1", 200, goodTiming(100.1)).
		finished("1", 100.3, 0).
		build(Options{})

	if len(h.Log.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(h.Log.Entries))
	}

	first, second := h.Log.Entries[0], h.Log.Entries[1]
	if first.RequestID == second.RequestID {
		t.Fatalf("redirected entries share id %q", first.RequestID)
	}
	if second.RequestID != "1" {
		t.Errorf("final request id = %q, want 1", second.RequestID)
	}
	if !strings.HasPrefix(first.RequestID, "1") {
		t.Errorf("redirected id = %q should keep the original id as prefix", first.RequestID)
	}
	if first.Response.Status != 301 || first.Response.RedirectURL != "http://example.com/new" {
		t.Errorf("redirect response = %d %q", first.Response.Status, first.Response.RedirectURL)
	}
	if first.Request.URL != "http://example.com/old" || second.Request.URL != "http://example.com/new" {
		t.Errorf("urls = %q, %q", first.Request.URL, second.Request.URL)
	}
	if second.Response.Status != 200 {
		t.Errorf("final status = %d", second.Response.Status)
	}
	if first.Pageref != "page_1" || second.Pageref != "page_1" {
		t.Errorf("pagerefs = %q, %q", first.Pageref, second.Pageref)
	}
	if !first.StartedDateTime.Before(second.StartedDateTime) {
		t.Error("redirect predecessor should start first")
	}
}

func TestBuilder_RedirectTwice(t *testing.T) {
	h := newStream(t).
		frameStarted("F1").
		request("1", "F1", "http://example.com/a", 100).
		redirect("1", "F1", "http://example.com/b", "http://example.com/b", 100.1).
		redirect("1", "F1", "http://example.com/c", "http://example.com/c", 100.2).
		response("1", 200, goodTiming(100.2)).
		build(Options{})

	if len(h.Log.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(h.Log.Entries))
	}
	ids := map[string]bool{}
	for _, e := range h.Log.Entries {
		if ids[e.RequestID] {
			t.Errorf("duplicate request id %q", e.RequestID)
		}
		ids[e.RequestID] = true
	}
}

func TestBuilder_SubFramesShareRootPage(t *testing.T) {
	h := newStream(t).
		frameStarted("F1").
		request("1", "F1", "http://example.com/", 100).
		response("1", 200, goodTiming(100)).
		frameAttached("F2", "F1").
		frameAttached("F3", "F2").
		frameStarted("F2").
		frameStarted("F3").
		request("2", "F3", "http://ads.example.com/frame.html", 100.5).
		response("2", 200, goodTiming(100.5)).
		build(Options{})

	if len(h.Log.Pages) != 1 {
		t.Fatalf("pages = %d, want 1 (iframes must not create pages)", len(h.Log.Pages))
	}
	if len(h.Log.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(h.Log.Entries))
	}
	if h.Log.Entries[1].Pageref != "page_1" {
		t.Errorf("grandchild frame entry pageref = %q", h.Log.Entries[1].Pageref)
	}
}

func TestBuilder_FrameAttachedOutOfOrder(t *testing.T) {
	// The grandchild is attached before its parent is known as a sub-frame.
	b := NewBuilder(Options{}, logging.Discard())
	for _, ev := range newStream(t).frameAttached("F3", "F2").frameAttached("F2", "F1").events {
		b.Add(ev)
	}
	if got := b.rootFrame("F3"); got != "F1" {
		t.Errorf("rootFrame(F3) = %q, want F1", got)
	}
}

func TestBuilder_TwoTopLevelFrames(t *testing.T) {
	h := newStream(t).
		frameStarted("F1").
		request("1", "F1", "http://example.com/", 100).
		response("1", 200, goodTiming(100)).
		frameStarted("F9").
		request("2", "F9", "http://example.org/", 200).
		response("2", 200, goodTiming(200)).
		load(201).
		build(Options{})

	if len(h.Log.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(h.Log.Pages))
	}
	if h.Log.Pages[1].ID != "page_2" {
		t.Errorf("second page id = %q", h.Log.Pages[1].ID)
	}
	if h.Log.Entries[1].Pageref != "page_2" {
		t.Errorf("second entry pageref = %q", h.Log.Entries[1].Pageref)
	}
	if h.Log.Pages[0].PageTimings.OnLoad != -1 {
		t.Error("load event belongs to the current page only")
	}
	if !approx(h.Log.Pages[1].PageTimings.OnLoad, 1000) {
		t.Errorf("page_2 onLoad = %v", h.Log.Pages[1].PageTimings.OnLoad)
	}
}

func TestBuilder_IgnoresOrphansAndDataURLs(t *testing.T) {
	h := newStream(t).
		request("0", "F1", "http://example.com/early", 99).
		response("0", 200, goodTiming(99)).
		frameStarted("F1").
		request("1", "F1", "http://example.com/", 100).
		response("1", 200, goodTiming(100)).
		request("2", "F1", "data:image/png;base64,AAAA", 100.1).
		response("2", 200, nil).
		data("2", 50).
		finished("2", 100.2, 0).
		request("3", "UNKNOWN", "http://example.com/x.js", 100.3).
		response("3", 200, goodTiming(100.3)).
		build(Options{})

	if len(h.Log.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(h.Log.Entries))
	}
	if h.Log.Entries[0].RequestID != "1" {
		t.Errorf("entry = %q", h.Log.Entries[0].RequestID)
	}
}

func TestBuilder_PageTimingsUseFirstEvent(t *testing.T) {
	h := newStream(t).
		frameStarted("F1").
		load(99).
		request("1", "F1", "http://example.com/", 100).
		response("1", 200, goodTiming(100)).
		load(100.25).
		load(105).
		build(Options{})

	if got := h.Log.Pages[0].PageTimings.OnLoad; !approx(got, 250) {
		t.Errorf("onLoad = %v, want 250", got)
	}
	if got := h.Log.Pages[0].PageTimings.OnContentLoad; got != -1 {
		t.Errorf("onContentLoad = %v, want -1", got)
	}
}

// =============================================================================
// Tests: timings
// =============================================================================

func TestBuilder_TimingsNeverNegative(t *testing.T) {
	tests := []struct {
		name   string
		timing map[string]any
		finish float64
	}{
		{
			name: "reused connection",
			timing: map[string]any{
				"requestTime": 100.0, "dnsStart": -1, "dnsEnd": -1, "connectStart": -1, "connectEnd": -1,
				"sslStart": -1, "sslEnd": -1, "sendStart": 1, "sendEnd": 2, "receiveHeadersEnd": 30,
			},
			finish: 100.1,
		},
		{
			name: "skewed offsets",
			timing: map[string]any{
				"requestTime": 100.0, "dnsStart": 5, "dnsEnd": 3, "connectStart": 9, "connectEnd": 4,
				"sslStart": 8, "sslEnd": 1, "sendStart": 10, "sendEnd": 7, "receiveHeadersEnd": 2,
			},
			finish: 100.001,
		},
		{
			name: "all equal",
			timing: map[string]any{
				"requestTime": 100.0, "dnsStart": 0, "dnsEnd": 0, "connectStart": 0, "connectEnd": 0,
				"sslStart": 0, "sslEnd": 0, "sendStart": 0, "sendEnd": 0, "receiveHeadersEnd": 0,
			},
			finish: 100.0,
		},
		{
			name: "finish before request time",
			timing: map[string]any{
				"requestTime": 100.5, "dnsStart": -1, "dnsEnd": -1, "connectStart": -1, "connectEnd": -1,
				"sslStart": -1, "sslEnd": -1, "sendStart": -1, "sendEnd": -1, "receiveHeadersEnd": 50,
			},
			finish: 100.0,
		},
		{
			name:   "no timing",
			timing: nil,
			finish: 99.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newStream(t).
				frameStarted("F1").
				request("1", "F1", "http://example.com/", 100).
				response("1", 200, tt.timing).
				finished("1", tt.finish, 0).
				build(Options{})

			if len(h.Log.Entries) != 1 {
				t.Fatalf("entries = %d", len(h.Log.Entries))
			}
			e := h.Log.Entries[0]
			phases := map[string]float64{
				"blocked": e.Timings.Blocked,
				"dns":     e.Timings.DNS,
				"connect": e.Timings.Connect,
				"ssl":     e.Timings.SSL,
				"send":    e.Timings.Send,
				"wait":    e.Timings.Wait,
				"receive": e.Timings.Receive,
			}
			for name, v := range phases {
				if v < 0 {
					t.Errorf("%s = %v, want >= 0", name, v)
				}
			}
			if e.Time < 0 || !approx(e.Time, e.Timings.Total()) {
				t.Errorf("time = %v, total = %v", e.Time, e.Timings.Total())
			}
		})
	}
}

// =============================================================================
// Tests: cache filtering
// =============================================================================

func cachedStream(t *testing.T, pushed bool) *stream {
	timing := goodTiming(100.1)
	if pushed {
		timing["pushStart"] = 5.0
		timing["pushEnd"] = 6.0
	}
	return newStream(t).
		frameStarted("F1").
		request("1", "F1", "http://example.com/", 100).
		response("1", 200, goodTiming(100)).
		request("2", "F1", "http://example.com/cached.js", 100.1).
		add(cdproto.EventNetworkResponseReceived, map[string]any{
			"requestId": "2",
			"response": map[string]any{
				"url":           "http://example.com/cached.js",
				"status":        200,
				"statusText":    "OK",
				"headers":       map[string]any{"Content-Type": "application/javascript"},
				"headersText":   "HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\n\r\n",
				"mimeType":      "application/javascript",
				"protocol":      "http/1.1",
				"fromDiskCache": true,
				"timing":        timing,
			},
		}).
		finished("2", 100.2, 0)
}

func TestBuilder_CacheFiltering(t *testing.T) {
	tests := []struct {
		name   string
		pushed bool
		opts   Options
		want   int
	}{
		{"disk cache dropped by default", false, Options{}, 1},
		{"disk cache kept", false, Options{IncludeDiskCacheEntries: true}, 2},
		{"push dropped without flag", true, Options{}, 1},
		{"push kept with flag", true, Options{DoNotSkipPushes: true}, 2},
		{"non push still dropped with flag", false, Options{DoNotSkipPushes: true}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := cachedStream(t, tt.pushed).build(tt.opts)
			if len(h.Log.Entries) != tt.want {
				t.Errorf("entries = %d, want %d", len(h.Log.Entries), tt.want)
			}
		})
	}
}

func TestBuilder_DiskCacheHeaderSizeIsComputed(t *testing.T) {
	h := cachedStream(t, false).build(Options{IncludeDiskCacheEntries: true})
	e := h.Log.Entries[1]

	if e.FromCache != "disk" {
		t.Errorf("_fromCache = %q", e.FromCache)
	}
	want := responseHeadersSize("HTTP/1.1", 200, "OK", e.Response.Headers)
	if e.Response.HeadersSize != want {
		t.Errorf("headersSize = %d, want computed %d", e.Response.HeadersSize, want)
	}
	if e.Response.BodySize != 0 {
		t.Errorf("bodySize = %d, want 0 for cached response", e.Response.BodySize)
	}
}

func TestBuilder_MemoryCache(t *testing.T) {
	h := newStream(t).
		frameStarted("F1").
		request("1", "F1", "http://example.com/", 100).
		add(cdproto.EventNetworkRequestServedFromCache, map[string]any{"requestId": "1"}).
		response("1", 200, goodTiming(100)).
		build(Options{})

	if h.Log.Entries[0].FromCache != "memory" {
		t.Errorf("_fromCache = %q", h.Log.Entries[0].FromCache)
	}
}

// =============================================================================
// Tests: request details
// =============================================================================

func TestBuilder_RequestDetails(t *testing.T) {
	h := newStream(t).
		frameStarted("F1").
		add(cdproto.EventNetworkRequestWillBeSent, map[string]any{
			"requestId": "1",
			"frameId":   "F1",
			"timestamp": 100,
			"wallTime":  1700000100,
			"type":      "XHR",
			"request": map[string]any{
				"url":      "https://example.com/api?b=2&a=hello%20world&b=3",
				"method":   "POST",
				"headers":  map[string]any{"Content-Type": "application/x-www-form-urlencoded", "Cookie": "sid=abc; theme=dark"},
				"postData": "q=go&page=1",
			},
		}).
		response("1", 200, goodTiming(100)).
		build(Options{})

	req := h.Log.Entries[0].Request
	if req.Method != "POST" {
		t.Errorf("method = %q", req.Method)
	}
	wantQuery := []NameValuePair{{Name: "b", Value: "2"}, {Name: "a", Value: "hello world"}, {Name: "b", Value: "3"}}
	if len(req.QueryString) != len(wantQuery) {
		t.Fatalf("queryString = %v", req.QueryString)
	}
	for i, q := range wantQuery {
		if req.QueryString[i] != q {
			t.Errorf("queryString[%d] = %v, want %v", i, req.QueryString[i], q)
		}
	}
	if len(req.Cookies) != 2 || req.Cookies[0].Name != "sid" {
		t.Errorf("cookies = %v", req.Cookies)
	}
	if req.PostData == nil || len(req.PostData.Params) != 2 || req.PostData.Params[0].Value != "go" {
		t.Errorf("postData = %+v", req.PostData)
	}
	if req.BodySize != int64(len("q=go&page=1")) {
		t.Errorf("bodySize = %d", req.BodySize)
	}
	if h.Log.Entries[0].ResourceType != "xhr" {
		t.Errorf("_resourceType = %q", h.Log.Entries[0].ResourceType)
	}
}

func TestHTTPVersion(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http/1.1", "HTTP/1.1"},
		{"http/1.0", "HTTP/1.0"},
		{"h2", "HTTP/2.0"},
		{"h3", "HTTP/3.0"},
		{"h3-29", "HTTP/3.0"},
		{"", ""},
		{"blob", "blob"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := httpVersion(tt.in); got != tt.want {
				t.Errorf("httpVersion(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHAR_JSONFieldNames(t *testing.T) {
	h := newStream(t).
		frameStarted("F1").
		request("1", "F1", "http://example.com/", 100).
		response("1", 200, goodTiming(100)).
		load(101).
		build(Options{})

	data, err := json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{
		`"log"`, `"version":"1.2"`, `"creator"`, `"pages"`, `"entries"`,
		`"startedDateTime"`, `"pageTimings"`, `"onLoad"`, `"onContentLoad"`,
		`"request"`, `"response"`, `"timings"`, `"cache":{}`, `"pageref":"page_1"`,
	} {
		if !bytes.Contains(data, []byte(field)) {
			t.Errorf("HAR JSON missing %s", field)
		}
	}
}
