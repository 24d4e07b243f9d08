// Package har builds HAR 1.2 documents from DevTools network events and
// merges documents from repeated page loads.
//
// Field names follow the HAR 1.2 format so the output can be opened by any
// HAR viewer. Browser specific additions use the "_" prefix.
package har

import "time"

const (
	// Version is the HAR format version produced.
	Version = "1.2"

	// CreatorName is written to log.creator.name.
	CreatorName = "go-browser-perf"
)

// HAR is the root object of a HAR file.
// See http://www.softwareishard.com/blog/har-12-spec/#har
type HAR struct {
	Log Log `json:"log"`
}

// Log is the main log object.
// See http://www.softwareishard.com/blog/har-12-spec/#log
type Log struct {
	Version string   `json:"version"`
	Creator Creator  `json:"creator"`
	Browser *Browser `json:"browser,omitempty"`
	Pages   []*Page  `json:"pages"`
	Entries []*Entry `json:"entries"`
	Comment string   `json:"comment,omitempty"`
}

// Creator is information about the HAR creator application.
// See http://www.softwareishard.com/blog/har-12-spec/#creator
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Comment string `json:"comment,omitempty"`
}

// Browser is information about the browser that created the HAR.
// See http://www.softwareishard.com/blog/har-12-spec/#browser
type Browser struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Comment string `json:"comment,omitempty"`
}

// Page contains information about a single page load.
// See http://www.softwareishard.com/blog/har-12-spec/#pages
type Page struct {
	StartedDateTime time.Time   `json:"startedDateTime"`
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	PageTimings     PageTimings `json:"pageTimings"`
	Comment         string      `json:"comment,omitempty"`

	URL           string         `json:"_url,omitempty"`
	Meta          *PageMeta      `json:"_meta,omitempty"`
	VisualMetrics map[string]any `json:"_visualMetrics,omitempty"`
	CPU           any            `json:"_cpu,omitempty"`
}

// PageMeta describes how a page was measured.
type PageMeta struct {
	Iteration  int    `json:"iteration"`
	Alias      string `json:"alias,omitempty"`
	Video      string `json:"video,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
	Connection string `json:"connectivity,omitempty"`
}

// PageTimings describes page loading timings in milliseconds from the
// page's first request. -1 means the event was not observed.
// See http://www.softwareishard.com/blog/har-12-spec/#pageTimings
type PageTimings struct {
	OnContentLoad float64 `json:"onContentLoad"`
	OnLoad        float64 `json:"onLoad"`
	Comment       string  `json:"comment,omitempty"`
}

// Entry represents an HTTP request/response pair.
// See http://www.softwareishard.com/blog/har-12-spec/#entries
type Entry struct {
	Pageref         string    `json:"pageref,omitempty"`
	StartedDateTime time.Time `json:"startedDateTime"`
	Time            float64   `json:"time"`
	Request         Request   `json:"request"`
	Response        *Response `json:"response,omitempty"`
	Cache           Cache     `json:"cache"`
	Timings         Timings   `json:"timings"`
	ServerIPAddress string    `json:"serverIPAddress,omitempty"`
	Connection      string    `json:"connection,omitempty"`
	Comment         string    `json:"comment,omitempty"`

	RequestID       string `json:"_requestId"`
	ResourceType    string `json:"_resourceType,omitempty"`
	InitialPriority string `json:"_initialPriority,omitempty"`
	FromCache       string `json:"_fromCache,omitempty"`
	WasPushed       bool   `json:"_was_pushed,omitempty"`
	MainRequest     bool   `json:"_isMainRequest,omitempty"`
}

// Request contains detailed information about the HTTP request.
// See http://www.softwareishard.com/blog/har-12-spec/#request
type Request struct {
	Method      string          `json:"method"`
	URL         string          `json:"url"`
	HTTPVersion string          `json:"httpVersion"`
	Cookies     []Cookie        `json:"cookies"`
	Headers     []NameValuePair `json:"headers"`
	QueryString []NameValuePair `json:"queryString"`
	PostData    *PostData       `json:"postData,omitempty"`
	HeadersSize int64           `json:"headersSize"` // -1 if unknown
	BodySize    int64           `json:"bodySize"`    // -1 if unknown
	Comment     string          `json:"comment,omitempty"`
}

// Response contains detailed information about the HTTP response.
// See http://www.softwareishard.com/blog/har-12-spec/#response
type Response struct {
	Status       int             `json:"status"`
	StatusText   string          `json:"statusText"`
	HTTPVersion  string          `json:"httpVersion"`
	Cookies      []Cookie        `json:"cookies"`
	Headers      []NameValuePair `json:"headers"`
	Content      Content         `json:"content"`
	RedirectURL  string          `json:"redirectURL"`
	HeadersSize  int64           `json:"headersSize"` // -1 if unknown
	BodySize     int64           `json:"bodySize"`    // -1 if unknown
	Comment      string          `json:"comment,omitempty"`
	TransferSize int64           `json:"_transferSize,omitempty"`
}

// Cookie contains information about a single cookie.
// See http://www.softwareishard.com/blog/har-12-spec/#cookies
type Cookie struct {
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	Path     string     `json:"path,omitempty"`
	Domain   string     `json:"domain,omitempty"`
	Expires  *time.Time `json:"expires,omitempty"`
	HTTPOnly bool       `json:"httpOnly,omitempty"`
	Secure   bool       `json:"secure,omitempty"`
	Comment  string     `json:"comment,omitempty"`
}

// NameValuePair is used for headers and query strings.
// See http://www.softwareishard.com/blog/har-12-spec/#nameValuePair
type NameValuePair struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Comment string `json:"comment,omitempty"`
}

// PostData describes posted data.
// See http://www.softwareishard.com/blog/har-12-spec/#postData
type PostData struct {
	MimeType string      `json:"mimeType"`
	Params   []PostParam `json:"params,omitempty"`
	Text     string      `json:"text"`
}

// PostParam describes a posted parameter.
// See http://www.softwareishard.com/blog/har-12-spec/#params
type PostParam struct {
	Name        string `json:"name"`
	Value       string `json:"value,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Content describes the response content.
// See http://www.softwareishard.com/blog/har-12-spec/#content
type Content struct {
	Size        int64  `json:"size"`
	Compression int64  `json:"compression,omitempty"`
	MimeType    string `json:"mimeType"`
	Text        string `json:"text,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
}

// Cache contains information about the cache entry.
// See http://www.softwareishard.com/blog/har-12-spec/#cache
type Cache struct {
	BeforeRequest *CacheEntry `json:"beforeRequest,omitempty"`
	AfterRequest  *CacheEntry `json:"afterRequest,omitempty"`
	Comment       string      `json:"comment,omitempty"`
}

// CacheEntry describes a cache entry.
// See http://www.softwareishard.com/blog/har-12-spec/#cacheEntry
type CacheEntry struct {
	Expires    *time.Time `json:"expires,omitempty"`
	LastAccess time.Time  `json:"lastAccess"`
	ETag       string     `json:"eTag"`
	HitCount   int        `json:"hitCount"`
}

// Timings are the phases of the request in milliseconds. Every phase is
// non-negative; a phase the browser did not report (for example DNS on a
// reused connection) is 0. Connect includes SSL, so SSL is not added to
// Entry.Time.
// See http://www.softwareishard.com/blog/har-12-spec/#timings
type Timings struct {
	Blocked float64 `json:"blocked"`
	DNS     float64 `json:"dns"`
	Connect float64 `json:"connect"`
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
	SSL     float64 `json:"ssl"`
	Comment string  `json:"comment,omitempty"`
}

// Total returns the sum of all phases that make up Entry.Time.
func (t Timings) Total() float64 {
	return t.Blocked + t.DNS + t.Connect + t.Send + t.Wait + t.Receive
}

// New returns an empty document with this tool as creator.
func New() *HAR {
	return &HAR{
		Log: Log{
			Version: Version,
			Creator: Creator{Name: CreatorName, Version: Version},
			Pages:   []*Page{},
			Entries: []*Entry{},
		},
	}
}

// PageByID returns the page with the given id, or nil.
func (h *HAR) PageByID(id string) *Page {
	for _, p := range h.Log.Pages {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// EntriesForPage returns the entries whose pageref is id, in order.
func (h *HAR) EntriesForPage(id string) []*Entry {
	var out []*Entry
	for _, e := range h.Log.Entries {
		if e.Pageref == id {
			out = append(out, e)
		}
	}
	return out
}
