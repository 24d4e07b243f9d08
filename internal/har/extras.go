package har

import "fmt"

// AddBrowser records the browser that produced the document.
func AddBrowser(h *HAR, name, version string) {
	if h == nil {
		return
	}
	h.Log.Browser = &Browser{Name: name, Version: version}
}

// AddCreator overrides log.creator.
func AddCreator(h *HAR, name, version, comment string) {
	if h == nil {
		return
	}
	h.Log.Creator = Creator{Name: name, Version: version, Comment: comment}
}

// PageInfo is attached to a measured page after the page load.
type PageInfo struct {
	URL           string
	Alias         string
	Iteration     int // 1-based
	VisualMetrics map[string]any
	CPU           any
	Video         string
	Screenshot    string
}

// SetPageInfo decorates page index i (0-based) with the measured URL,
// a "<url> run <n>" title and any collected visual or CPU metrics.
func SetPageInfo(h *HAR, i int, info PageInfo) error {
	if h == nil {
		return nil
	}
	if i < 0 || i >= len(h.Log.Pages) {
		return fmt.Errorf("page %d out of range (%d pages)", i, len(h.Log.Pages))
	}

	page := h.Log.Pages[i]
	if info.URL != "" {
		page.URL = info.URL
		page.Title = fmt.Sprintf("%s run %d", info.URL, info.Iteration)
	}
	page.Meta = &PageMeta{
		Iteration:  info.Iteration,
		Alias:      info.Alias,
		Video:      info.Video,
		Screenshot: info.Screenshot,
	}
	if len(info.VisualMetrics) > 0 {
		page.VisualMetrics = info.VisualMetrics
	}
	if info.CPU != nil {
		page.CPU = info.CPU
	}
	return nil
}

// Summary is a small digest of a document, used for the end of run log
// line and the dashboard.
type Summary struct {
	Pages         int
	Requests      int
	TransferBytes int64
	ContentBytes  int64
	OnLoad        float64
	OnContentLoad float64
}

// Summarize counts requests and bytes of the whole document. Page timings
// come from the first page.
func Summarize(h *HAR) Summary {
	var s Summary
	if h == nil {
		return s
	}
	s.Pages = len(h.Log.Pages)
	s.Requests = len(h.Log.Entries)
	for _, e := range h.Log.Entries {
		if e.Response == nil {
			continue
		}
		transfer := e.Response.TransferSize
		if transfer == 0 && e.Response.BodySize > 0 {
			transfer = e.Response.BodySize
		}
		s.TransferBytes += transfer
		s.ContentBytes += e.Response.Content.Size
	}
	if len(h.Log.Pages) > 0 {
		s.OnLoad = h.Log.Pages[0].PageTimings.OnLoad
		s.OnContentLoad = h.Log.Pages[0].PageTimings.OnContentLoad
	}
	return s
}
