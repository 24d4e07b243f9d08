package har

import (
	"strings"
	"testing"
)

// =============================================================================
// Test Helpers
// =============================================================================

// testDoc builds a document with one entry per page.
func testDoc(pageIDs ...string) *HAR {
	h := New()
	for _, id := range pageIDs {
		h.Log.Pages = append(h.Log.Pages, &Page{ID: id, Title: "http://example.com/" + id, PageTimings: PageTimings{OnLoad: 100, OnContentLoad: 50}})
		h.Log.Entries = append(h.Log.Entries, &Entry{
			Pageref:  id,
			Request:  Request{Method: "GET", URL: "http://example.com/" + id},
			Response: &Response{Status: 200, TransferSize: 100, Content: Content{Size: 300}},
		})
	}
	return h
}

func pageIDs(h *HAR) []string {
	ids := make([]string, 0, len(h.Log.Pages))
	for _, p := range h.Log.Pages {
		ids = append(ids, p.ID)
	}
	return ids
}

// =============================================================================
// Tests: Merge
// =============================================================================

func TestMerge_Degenerate(t *testing.T) {
	if got := Merge(nil); got != nil {
		t.Errorf("Merge(nil) = %v, want nil", got)
	}
	if got := Merge([]*HAR{nil, nil}); got != nil {
		t.Errorf("Merge(nil docs) = %v, want nil", got)
	}

	one := testDoc("page_1")
	if got := Merge([]*HAR{one}); got != one {
		t.Error("single document should be returned unchanged")
	}
	if got := Merge([]*HAR{nil, one}); got != one {
		t.Error("nil documents should be skipped")
	}
}

func TestMerge_RenamesCollidingPages(t *testing.T) {
	tests := []struct {
		name string
		docs [][]string
		want []string
	}{
		{
			name: "no collision",
			docs: [][]string{{"page_1"}, {"page_2"}},
			want: []string{"page_1", "page_2"},
		},
		{
			name: "two runs",
			docs: [][]string{{"page_1"}, {"page_1"}},
			want: []string{"page_1", "page_1-1"},
		},
		{
			name: "three runs",
			docs: [][]string{{"page_1"}, {"page_1"}, {"page_1"}},
			want: []string{"page_1", "page_1-1", "page_1-1-1"},
		},
		{
			name: "multi page runs",
			docs: [][]string{{"page_1", "page_2"}, {"page_1", "page_2"}},
			want: []string{"page_1", "page_2", "page_1-1", "page_2-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var docs []*HAR
			for _, ids := range tt.docs {
				docs = append(docs, testDoc(ids...))
			}

			merged := Merge(docs)
			got := pageIDs(merged)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("page ids = %v, want %v", got, tt.want)
			}

			// Every entry must resolve to a page of the merged document.
			for _, e := range merged.Log.Entries {
				if merged.PageByID(e.Pageref) == nil {
					t.Errorf("entry %s has dangling pageref %q", e.Request.URL, e.Pageref)
				}
			}
			if len(merged.Log.Entries) != len(tt.want) {
				t.Errorf("entries = %d, want %d", len(merged.Log.Entries), len(tt.want))
			}
		})
	}
}

func TestMerge_EntriesFollowTheirPage(t *testing.T) {
	a, b := testDoc("page_1"), testDoc("page_1")
	b.Log.Entries[0].Request.URL = "http://example.com/second"

	merged := Merge([]*HAR{a, b})
	if merged.Log.Entries[1].Request.URL != "http://example.com/second" {
		t.Fatal("entries should keep document order")
	}
	if merged.Log.Entries[1].Pageref != "page_1-1" {
		t.Errorf("second entry pageref = %q, want page_1-1", merged.Log.Entries[1].Pageref)
	}
	if merged.Log.Entries[0].Pageref != "page_1" {
		t.Errorf("first entry pageref = %q, want page_1", merged.Log.Entries[0].Pageref)
	}
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	a, b := testDoc("page_1"), testDoc("page_1")
	_ = Merge([]*HAR{a, b})

	if b.Log.Pages[0].ID != "page_1" {
		t.Errorf("input page id changed to %q", b.Log.Pages[0].ID)
	}
	if b.Log.Entries[0].Pageref != "page_1" {
		t.Errorf("input pageref changed to %q", b.Log.Entries[0].Pageref)
	}
}

func TestMerge_HeaderFromFirstDocument(t *testing.T) {
	a, b := testDoc("page_1"), testDoc("page_1")
	AddBrowser(a, "Chrome", "120.0")
	AddBrowser(b, "Firefox", "115.0")

	merged := Merge([]*HAR{a, b})
	if merged.Log.Browser == nil || merged.Log.Browser.Name != "Chrome" {
		t.Errorf("browser = %+v, want Chrome", merged.Log.Browser)
	}
	if merged.Log.Version != Version {
		t.Errorf("version = %q", merged.Log.Version)
	}
}

// =============================================================================
// Tests: page decoration and summary
// =============================================================================

func TestSetPageInfo(t *testing.T) {
	h := testDoc("page_1")
	err := SetPageInfo(h, 0, PageInfo{
		URL:           "https://www.example.com/",
		Alias:         "home",
		Iteration:     3,
		VisualMetrics: map[string]any{"SpeedIndex": 1200},
		Video:         "video/3.mp4",
	})
	if err != nil {
		t.Fatalf("SetPageInfo() error = %v", err)
	}

	page := h.Log.Pages[0]
	if page.Title != "https://www.example.com/ run 3" {
		t.Errorf("title = %q", page.Title)
	}
	if page.Meta == nil || page.Meta.Iteration != 3 || page.Meta.Alias != "home" || page.Meta.Video != "video/3.mp4" {
		t.Errorf("meta = %+v", page.Meta)
	}
	if page.VisualMetrics["SpeedIndex"] != 1200 {
		t.Errorf("visual metrics = %v", page.VisualMetrics)
	}

	if err := SetPageInfo(h, 1, PageInfo{}); err == nil {
		t.Error("expected error for missing page")
	}
	if err := SetPageInfo(nil, 0, PageInfo{}); err != nil {
		t.Errorf("nil document: %v", err)
	}
}

func TestSummarize(t *testing.T) {
	h := Merge([]*HAR{testDoc("page_1"), testDoc("page_1")})
	s := Summarize(h)

	if s.Pages != 2 || s.Requests != 2 {
		t.Errorf("pages = %d requests = %d", s.Pages, s.Requests)
	}
	if s.TransferBytes != 200 || s.ContentBytes != 600 {
		t.Errorf("transfer = %d content = %d", s.TransferBytes, s.ContentBytes)
	}
	if s.OnLoad != 100 || s.OnContentLoad != 50 {
		t.Errorf("onLoad = %v onContentLoad = %v", s.OnLoad, s.OnContentLoad)
	}
	if got := Summarize(nil); got != (Summary{}) {
		t.Errorf("Summarize(nil) = %+v", got)
	}
}
