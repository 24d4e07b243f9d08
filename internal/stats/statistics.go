// Package stats reduces repeated observations from page-load iterations
// into percentile summaries and formats the end of run report.
//
// Observations are grouped into buckets keyed by a metric path such as
// ["timings", "pageTimings", "pageLoadTime"]. A bucket keeps every sample,
// so summaries are exact rather than sketched.
package stats

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// pathSep joins path segments into a bucket key. Metric names may contain
// dots (user timing marks often do), so a dot cannot be used.
const pathSep = "\x00"

// TransformFunc may rewrite a value before AddDeep walks into it. It
// receives the path of the value and returns the replacement. Returning
// nil skips the value and everything below it.
type TransformFunc func(path []string, value any) any

type bucket struct {
	path   []string
	values []float64
}

// Statistics holds named samples. It is safe for concurrent use.
type Statistics struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	order   []string
}

// New creates an empty Statistics.
func New() *Statistics {
	return &Statistics{
		buckets: make(map[string]*bucket),
	}
}

// Add appends value to the top-level bucket name.
func (s *Statistics) Add(name string, value float64) {
	s.AddPath([]string{name}, value)
}

// AddPath appends value to the bucket at path. NaN and infinite values are
// ignored.
func (s *Statistics) AddPath(path []string, value float64) {
	if len(path) == 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}

	key := strings.Join(path, pathSep)

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{path: append([]string(nil), path...)}
		s.buckets[key] = b
		s.order = append(s.order, key)
	}
	b.values = append(b.values, value)
}

// AddDeep walks nested maps and slices and adds every number found, keyed
// by its path. Numeric strings are parsed; booleans and other strings are
// skipped. Slice elements are keyed by index.
func (s *Statistics) AddDeep(data map[string]any, transform TransformFunc) {
	s.addRecursive(nil, data, transform)
}

func (s *Statistics) addRecursive(path []string, value any, transform TransformFunc) {
	if transform != nil && len(path) > 0 {
		value = transform(path, value)
	}

	switch v := value.(type) {
	case nil, bool:
	case float64:
		s.AddPath(path, v)
	case float32:
		s.AddPath(path, float64(v))
	case int:
		s.AddPath(path, float64(v))
	case int64:
		s.AddPath(path, float64(v))
	case json.Number:
		if f, err := v.Float64(); err == nil {
			s.AddPath(path, f)
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			s.AddPath(path, f)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s.addRecursive(appendPath(path, k), v[k], transform)
		}
	case []any:
		for i, item := range v {
			s.addRecursive(appendPath(path, strconv.Itoa(i)), item, transform)
		}
	}
}

func appendPath(path []string, key string) []string {
	next := make([]string, len(path)+1)
	copy(next, path)
	next[len(path)] = key
	return next
}

// Names returns the bucket paths in first-seen order.
func (s *Statistics) Names() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([][]string, 0, len(s.order))
	for _, key := range s.order {
		names = append(names, append([]string(nil), s.buckets[key].path...))
	}
	return names
}

// Values returns a copy of the samples at path.
func (s *Statistics) Values(path ...string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[strings.Join(path, pathSep)]
	if !ok {
		return nil
	}
	return append([]float64(nil), b.values...)
}

// Summarize returns the summary of the bucket at path. ok is false when
// nothing was observed under that path.
func (s *Statistics) Summarize(opts SummaryOptions, path ...string) (Summary, bool) {
	values := s.Values(path...)
	if len(values) == 0 {
		return Summary{}, false
	}
	return Summarize(values, opts), true
}

// SummarizeAll returns every bucket summary nested by path, e.g.
// {"timings": {"pageTimings": {"pageLoadTime": Summary}}}. When a path is
// both a leaf and a prefix of a longer path the leaf wins.
func (s *Statistics) SummarizeAll(opts SummaryOptions) map[string]any {
	result := make(map[string]any)
	for _, path := range s.Names() {
		summary, ok := s.Summarize(opts, path...)
		if !ok {
			continue
		}
		setPath(result, path, summary)
	}
	return result
}

func setPath(target map[string]any, path []string, value any) {
	node := target
	for _, key := range path[:len(path)-1] {
		child, ok := node[key].(map[string]any)
		if !ok {
			if _, leaf := node[key]; leaf {
				return
			}
			child = make(map[string]any)
			node[key] = child
		}
		node = child
	}
	node[path[len(path)-1]] = value
}

// UserTimingTransform flattens user timing entries so they aggregate by
// name: marks keep their startTime and measures their duration. Resource
// timings are skipped because every URL would become its own bucket.
func UserTimingTransform(path []string, value any) any {
	last := path[len(path)-1]
	parent := ""
	if len(path) > 1 {
		parent = path[len(path)-2]
	}

	switch {
	case last == "resourceTimings":
		return nil
	case parent == "userTimings" && last == "marks":
		return namedValues(value, "startTime")
	case parent == "userTimings" && (last == "measures" || last == "measure"):
		return namedValues(value, "duration")
	}
	return value
}

func namedValues(value any, field string) any {
	list, ok := value.([]any)
	if !ok {
		return value
	}
	out := make(map[string]any, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}
		out[name] = m[field]
	}
	return out
}
