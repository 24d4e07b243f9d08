package har

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"github.com/randomizedcoder/go-browser-perf/internal/perflog"
)

// Options controls which entries survive into the HAR.
type Options struct {
	// IncludeDiskCacheEntries keeps responses served from the disk cache.
	IncludeDiskCacheEntries bool

	// DoNotSkipPushes keeps server-pushed responses even when cached
	// entries are being dropped.
	DoNotSkipPushes bool
}

// redirectSuffix marks the predecessor of a redirect. It is repeated
// until the id is unique.
const redirectSuffix = "r"

// ignoredMethods produce no HAR data and are dropped without logging.
var ignoredMethods = map[cdproto.MethodType]struct{}{
	"Network.requestWillBeSentExtraInfo":         {},
	"Network.responseReceivedExtraInfo":          {},
	"Network.resourceChangedPriority":            {},
	"Network.webSocketCreated":                   {},
	"Network.webSocketClosed":                    {},
	"Network.webSocketFrameSent":                 {},
	"Network.webSocketFrameReceived":             {},
	"Network.webSocketFrameError":                {},
	"Network.webSocketWillSendHandshakeRequest":  {},
	"Network.webSocketHandshakeResponseReceived": {},
	"Network.eventSourceMessageReceived":         {},
	"Network.dataReceivedExtraInfo":              {},
	"Page.frameStoppedLoading":                   {},
	"Page.frameNavigated":                        {},
	"Page.frameDetached":                         {},
	"Page.frameScheduledNavigation":              {},
	"Page.frameClearedScheduledNavigation":       {},
	"Page.frameRequestedNavigation":              {},
	"Page.frameResized":                          {},
	"Page.lifecycleEvent":                        {},
	"Page.navigatedWithinDocument":               {},
	"Page.windowOpen":                            {},
	"Page.javascriptDialogOpening":               {},
	"Page.javascriptDialogClosed":                {},
	"Page.documentOpened":                        {},
	"Page.screencastFrame":                       {},
	"Page.screencastVisibilityChanged":           {},
}

type pageState struct {
	page    *Page
	frameID cdp.FrameID

	// Monotonic seconds of the page's first request, 0 until seen.
	firstRequestTime float64
}

type entryState struct {
	entry *Entry
	page  *pageState

	requestWillBeSentTime float64
	wallTime              float64
	timing                *network.ResourceTiming

	fromDiskCache bool
	pushed        bool
}

// Builder folds DevTools events, in arrival order, into a HAR document.
// It is not safe for concurrent use; events must be added from a single
// goroutine in the order the browser emitted them.
type Builder struct {
	opts   Options
	logger *slog.Logger

	pages      []*pageState
	pageFrames map[cdp.FrameID]*pageState
	current    *pageState

	entries []*entryState
	index   map[network.RequestID]*entryState

	rootFrames map[cdp.FrameID]cdp.FrameID
	ignored    map[network.RequestID]struct{}
}

// NewBuilder creates an empty builder.
func NewBuilder(opts Options, logger *slog.Logger) *Builder {
	return &Builder{
		opts:       opts,
		logger:     logger,
		pageFrames: make(map[cdp.FrameID]*pageState),
		index:      make(map[network.RequestID]*entryState),
		rootFrames: make(map[cdp.FrameID]cdp.FrameID),
		ignored:    make(map[network.RequestID]struct{}),
	}
}

// FromEvents builds a HAR from a complete event sequence.
func FromEvents(events []perflog.Event, opts Options, logger *slog.Logger) *HAR {
	b := NewBuilder(opts, logger)
	for _, ev := range events {
		b.Add(ev)
	}
	return b.HAR()
}

// Add applies one event. Events that cannot be decoded or correlated are
// logged and skipped.
func (b *Builder) Add(ev perflog.Event) {
	var err error

	switch ev.Method {
	case cdproto.EventPageFrameStartedLoading:
		var p frameStartedLoadingParams
		if err = json.Unmarshal(ev.Params, &p); err == nil {
			b.frameStartedLoading(p)
		}
	case cdproto.EventPageFrameAttached:
		var p frameAttachedParams
		if err = json.Unmarshal(ev.Params, &p); err == nil {
			b.frameAttached(p)
		}
	case cdproto.EventNetworkRequestWillBeSent:
		var p requestWillBeSentParams
		if err = json.Unmarshal(ev.Params, &p); err == nil {
			b.requestWillBeSent(p)
		}
	case cdproto.EventNetworkResponseReceived:
		var p responseReceivedParams
		if err = json.Unmarshal(ev.Params, &p); err == nil {
			b.responseReceived(p)
		}
	case cdproto.EventNetworkDataReceived:
		var p dataReceivedParams
		if err = json.Unmarshal(ev.Params, &p); err == nil {
			b.dataReceived(p)
		}
	case cdproto.EventNetworkLoadingFinished:
		var p loadingFinishedParams
		if err = json.Unmarshal(ev.Params, &p); err == nil {
			b.loadingFinished(p)
		}
	case cdproto.EventNetworkLoadingFailed:
		var p loadingFailedParams
		if err = json.Unmarshal(ev.Params, &p); err == nil {
			b.loadingFailed(p)
		}
	case cdproto.EventNetworkRequestServedFromCache:
		var p requestServedFromCacheParams
		if err = json.Unmarshal(ev.Params, &p); err == nil {
			if e := b.index[p.RequestID]; e != nil {
				e.entry.FromCache = "memory"
			}
		}
	case cdproto.EventPageLoadEventFired:
		var p pageLifecycleParams
		if err = json.Unmarshal(ev.Params, &p); err == nil {
			b.pageLifecycle(p, true)
		}
	case cdproto.EventPageDomContentEventFired:
		var p pageLifecycleParams
		if err = json.Unmarshal(ev.Params, &p); err == nil {
			b.pageLifecycle(p, false)
		}
	default:
		if _, ok := ignoredMethods[ev.Method]; !ok {
			b.logger.Debug("har_event_ignored", "method", string(ev.Method))
		}
		return
	}

	if err != nil {
		b.logger.Warn("har_event_decode_failed", "method", string(ev.Method), "error", err)
	}
}

func (b *Builder) frameStartedLoading(p frameStartedLoadingParams) {
	if _, sub := b.rootFrames[p.FrameID]; sub {
		return
	}
	if _, known := b.pageFrames[p.FrameID]; known {
		return
	}

	ps := &pageState{
		frameID: p.FrameID,
		page: &Page{
			ID:          "page_" + strconv.Itoa(len(b.pages)+1),
			PageTimings: PageTimings{OnContentLoad: -1, OnLoad: -1},
		},
	}
	b.pages = append(b.pages, ps)
	b.pageFrames[p.FrameID] = ps
	b.current = ps
}

func (b *Builder) frameAttached(p frameAttachedParams) {
	if p.ParentFrameID == "" {
		return
	}
	root := p.ParentFrameID
	if grand, ok := b.rootFrames[root]; ok {
		root = grand
	}
	b.rootFrames[p.FrameID] = root

	// Frames attached to this one before it was known point at it; move
	// them to the new root so any nesting depth resolves in one lookup.
	for child, parent := range b.rootFrames {
		if parent == p.FrameID {
			b.rootFrames[child] = root
		}
	}
}

func (b *Builder) rootFrame(id cdp.FrameID) cdp.FrameID {
	if root, ok := b.rootFrames[id]; ok {
		return root
	}
	return id
}

func (b *Builder) requestWillBeSent(p requestWillBeSentParams) {
	if len(b.pages) == 0 {
		b.logger.Debug("har_request_before_page", "request_id", string(p.RequestID), "url", p.Request.URL)
		return
	}

	if !isHTTPURL(p.Request.URL) {
		b.ignored[p.RequestID] = struct{}{}
		return
	}

	ps := b.pageFrames[b.rootFrame(p.FrameID)]
	if ps == nil {
		b.logger.Warn("har_request_without_page",
			"request_id", string(p.RequestID),
			"frame_id", string(p.FrameID),
			"url", p.Request.URL,
		)
		return
	}

	if p.RedirectResponse != nil {
		b.redirect(p)
	}

	rawURL := p.Request.URL + p.Request.URLFragment
	headers := headerPairs(p.Request.Headers)

	e := &Entry{
		Pageref:         ps.page.ID,
		StartedDateTime: wallClock(p.WallTime),
		Request: Request{
			Method:      p.Request.Method,
			URL:         rawURL,
			Cookies:     requestCookies(headers),
			Headers:     headers,
			QueryString: queryString(rawURL),
			PostData:    postData(p.Request.PostData, headers),
			HeadersSize: -1,
			BodySize:    int64(len(p.Request.PostData)),
		},
		RequestID:       string(p.RequestID),
		ResourceType:    strings.ToLower(string(p.Type)),
		InitialPriority: string(p.Request.InitialPriority),
	}

	es := &entryState{
		entry:                 e,
		page:                  ps,
		requestWillBeSentTime: p.Timestamp,
		wallTime:              p.WallTime,
	}

	if ps.firstRequestTime == 0 {
		ps.firstRequestTime = p.Timestamp
		ps.page.StartedDateTime = e.StartedDateTime
		ps.page.Title = rawURL
		ps.page.URL = rawURL
		e.MainRequest = true
	}

	b.entries = append(b.entries, es)
	b.index[p.RequestID] = es
}

// redirect finalizes the entry superseded by a redirect. The old entry is
// re-keyed so the new request can take the plain id.
func (b *Builder) redirect(p requestWillBeSentParams) {
	prev := b.index[p.RequestID]
	if prev == nil {
		b.logger.Debug("har_redirect_without_request", "request_id", string(p.RequestID))
		return
	}

	newID := p.RequestID
	for {
		newID += redirectSuffix
		if _, taken := b.index[newID]; !taken {
			break
		}
	}
	delete(b.index, p.RequestID)
	b.index[newID] = prev
	prev.entry.RequestID = string(newID)

	b.populateResponse(prev, *p.RedirectResponse)
	if prev.entry.Response.RedirectURL == "" {
		prev.entry.Response.RedirectURL = p.Request.URL
	}
	b.finish(prev, p.Timestamp, p.RedirectResponse.EncodedDataLength)
}

func (b *Builder) responseReceived(p responseReceivedParams) {
	if _, skip := b.ignored[p.RequestID]; skip {
		return
	}
	es := b.index[p.RequestID]
	if es == nil {
		b.logger.Debug("har_response_without_request", "request_id", string(p.RequestID), "url", p.Response.URL)
		return
	}
	b.populateResponse(es, p.Response)
}

func (b *Builder) populateResponse(es *entryState, r responseParams) {
	e := es.entry
	version := httpVersion(r.Protocol)

	if len(r.RequestHeaders) > 0 {
		e.Request.Headers = headerPairs(r.RequestHeaders)
		e.Request.Cookies = requestCookies(e.Request.Headers)
	}
	e.Request.HTTPVersion = version

	headers := headerPairs(r.Headers)
	resp := &Response{
		Status:      r.Status,
		StatusText:  r.StatusText,
		HTTPVersion: version,
		Cookies:     responseCookies(headers),
		Headers:     headers,
		Content: Content{
			MimeType: r.MimeType,
		},
		RedirectURL: headerValue(headers, "Location"),
		HeadersSize: -1,
		BodySize:    -1,
	}

	switch {
	case r.RequestHeadersText != "":
		e.Request.HeadersSize = int64(len(r.RequestHeadersText))
	case isHTTP1x(version):
		e.Request.HeadersSize = requestHeadersSize(e.Request.Method, e.Request.URL, version, e.Request.Headers)
	}

	// Cached responses report the headers of the original transfer, so
	// only a computed size is meaningful for them.
	switch {
	case r.HeadersText != "" && !r.FromDiskCache:
		resp.HeadersSize = int64(len(r.HeadersText))
	case isHTTP1x(version):
		resp.HeadersSize = responseHeadersSize(version, r.Status, r.StatusText, headers)
	}

	e.Response = resp
	e.ServerIPAddress = strings.Trim(r.RemoteIPAddress, "[]")
	if r.ConnectionID > 0 {
		e.Connection = strconv.FormatFloat(r.ConnectionID, 'f', -1, 64)
	}

	if r.FromDiskCache {
		es.fromDiskCache = true
		e.FromCache = "disk"
	}

	es.timing = r.Timing
	if r.Timing != nil {
		es.pushed = r.Timing.PushStart > 0
		e.WasPushed = es.pushed
		e.Timings = phaseTimings(r.Timing)

		if r.ConnectionReused && !e.MainRequest && es.wallTime > 0 {
			shift := r.Timing.RequestTime - es.requestWillBeSentTime
			if shift > 0 {
				e.StartedDateTime = wallClock(es.wallTime + shift)
			}
		}
	} else {
		e.Timings = Timings{Comment: "No timings available from the browser"}
	}
	e.Time = e.Timings.Total()
}

func (b *Builder) dataReceived(p dataReceivedParams) {
	if _, skip := b.ignored[p.RequestID]; skip {
		return
	}
	es := b.index[p.RequestID]
	if es == nil || es.entry.Response == nil {
		b.logger.Debug("har_data_without_response", "request_id", string(p.RequestID))
		return
	}
	es.entry.Response.Content.Size += p.DataLength
}

func (b *Builder) loadingFinished(p loadingFinishedParams) {
	if _, skip := b.ignored[p.RequestID]; skip {
		return
	}
	es := b.index[p.RequestID]
	if es == nil || es.entry.Response == nil {
		b.logger.Debug("har_finish_without_response", "request_id", string(p.RequestID))
		return
	}
	b.finish(es, p.Timestamp, p.EncodedDataLength)
}

// finish sets the receive phase, total time and body sizes once the
// response body is complete.
func (b *Builder) finish(es *entryState, timestamp, encodedDataLength float64) {
	e := es.entry

	if es.timing != nil {
		e.Timings.Receive = nonNegative((timestamp-es.timing.RequestTime)*1000 - es.timing.ReceiveHeadersEnd)
	} else if es.requestWillBeSentTime > 0 {
		e.Timings.Receive = nonNegative((timestamp - es.requestWillBeSentTime) * 1000)
	}
	e.Time = e.Timings.Total()

	resp := e.Response
	if es.fromDiskCache {
		resp.BodySize = 0
		return
	}

	encoded := int64(encodedDataLength)
	if encoded <= 0 {
		resp.BodySize = resp.Content.Size
		return
	}

	resp.TransferSize = encoded
	body := encoded
	if resp.HeadersSize > 0 {
		body -= resp.HeadersSize
	}
	if body < 0 {
		body = 0
	}
	resp.BodySize = body
	if c := resp.Content.Size - body; c > 0 {
		resp.Content.Compression = c
	}
}

func (b *Builder) loadingFailed(p loadingFailedParams) {
	if _, skip := b.ignored[p.RequestID]; skip {
		return
	}
	reqURL := ""
	if es := b.index[p.RequestID]; es != nil {
		reqURL = es.entry.Request.URL
	}
	b.logger.Debug("har_loading_failed",
		"request_id", string(p.RequestID),
		"url", reqURL,
		"error_text", p.ErrorText,
		"canceled", p.Canceled,
		"blocked_reason", p.BlockedReason,
	)
}

func (b *Builder) pageLifecycle(p pageLifecycleParams, load bool) {
	ps := b.current
	if ps == nil || ps.firstRequestTime == 0 {
		return
	}
	offset := nonNegative((p.Timestamp - ps.firstRequestTime) * 1000)

	timings := &ps.page.PageTimings
	if load {
		if timings.OnLoad < 0 {
			timings.OnLoad = offset
		}
		return
	}
	if timings.OnContentLoad < 0 {
		timings.OnContentLoad = offset
	}
}

// HAR returns the document built so far. Entries without a response and
// filtered cache entries are left out.
func (b *Builder) HAR() *HAR {
	h := New()

	for _, ps := range b.pages {
		h.Log.Pages = append(h.Log.Pages, ps.page)
	}

	for _, es := range b.entries {
		e := es.entry
		if e.Response == nil {
			if !strings.HasSuffix(strings.ToLower(pathOf(e.Request.URL)), ".ico") {
				b.logger.Warn("har_entry_dropped",
					"reason", "no_response",
					"request_id", e.RequestID,
					"url", e.Request.URL,
				)
			}
			continue
		}
		if es.fromDiskCache && !b.opts.IncludeDiskCacheEntries && !(es.pushed && b.opts.DoNotSkipPushes) {
			continue
		}
		h.Log.Entries = append(h.Log.Entries, e)
	}

	return h
}

// phaseTimings derives the request phases from DevTools resource timing.
// Offsets are milliseconds relative to timing.requestTime, with -1 for
// phases that did not happen.
func phaseTimings(t *network.ResourceTiming) Timings {
	return Timings{
		Blocked: nonNegative(firstNonNegative(t.DNSStart, t.ConnectStart, t.SendStart)),
		DNS:     phase(t.DNSStart, t.DNSEnd),
		Connect: phase(t.ConnectStart, t.ConnectEnd),
		SSL:     phase(t.SslStart, t.SslEnd),
		Send:    nonNegative(t.SendEnd - t.SendStart),
		Wait:    nonNegative(t.ReceiveHeadersEnd - t.SendEnd),
	}
}

func phase(start, end float64) float64 {
	if start < 0 {
		return 0
	}
	return nonNegative(end - start)
}

func firstNonNegative(values ...float64) float64 {
	for _, v := range values {
		if v >= 0 {
			return v
		}
	}
	return 0
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// wallClock converts DevTools wall time (seconds since the epoch).
func wallClock(seconds float64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(seconds)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func isHTTPURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func pathOf(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Path
	}
	return raw
}
