package har

// pageIDSuffix is appended to a colliding page id until it is unique.
const pageIDSuffix = "-1"

// Merge combines documents from several page loads into one.
//
// An empty input yields nil and a single document is returned as is.
// Otherwise version, creator, browser and comment come from the first
// document. A page id already used by an earlier document is renamed and
// the entries of its own document are re-pointed at the new id. Entries
// keep document order, then in-document order. Inputs are not modified.
func Merge(hars []*HAR) *HAR {
	docs := make([]*HAR, 0, len(hars))
	for _, h := range hars {
		if h != nil {
			docs = append(docs, h)
		}
	}

	switch len(docs) {
	case 0:
		return nil
	case 1:
		return docs[0]
	}

	first := docs[0].Log
	merged := &HAR{
		Log: Log{
			Version: first.Version,
			Creator: first.Creator,
			Browser: first.Browser,
			Comment: first.Comment,
			Pages:   []*Page{},
			Entries: []*Entry{},
		},
	}

	seen := make(map[string]struct{})
	for _, doc := range docs {
		renamed := make(map[string]string)

		for _, p := range doc.Log.Pages {
			page := *p
			id := page.ID
			for {
				if _, taken := seen[id]; !taken {
					break
				}
				id += pageIDSuffix
			}
			if id != page.ID {
				renamed[page.ID] = id
				page.ID = id
			}
			seen[id] = struct{}{}
			merged.Log.Pages = append(merged.Log.Pages, &page)
		}

		for _, e := range doc.Log.Entries {
			entry := *e
			if id, ok := renamed[entry.Pageref]; ok {
				entry.Pageref = id
			}
			merged.Log.Entries = append(merged.Log.Entries, &entry)
		}
	}

	return merged
}
