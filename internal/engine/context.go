package engine

import (
	"sync"

	"github.com/google/uuid"
)

// RunContext is the state shared by every iteration of one run. It
// remembers the first URL measured under each alias, so later pages with
// the same alias report that URL even when the browser ended up elsewhere.
type RunContext struct {
	RunID string

	mu      sync.Mutex
	aliases map[string]string
}

// NewRunContext starts a run with a fresh id.
func NewRunContext() *RunContext {
	return &RunContext{
		RunID:   uuid.NewString(),
		aliases: make(map[string]string),
	}
}

// ResolveAlias returns the URL to report for a page. Without an alias the
// page's own URL is used. The first URL seen for an alias wins.
func (rc *RunContext) ResolveAlias(alias, url string) string {
	if alias == "" {
		return url
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if first, ok := rc.aliases[alias]; ok {
		return first
	}
	if url != "" {
		rc.aliases[alias] = url
	}
	return url
}

// Aliases returns a copy of the alias to URL map.
func (rc *RunContext) Aliases() map[string]string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string]string, len(rc.aliases))
	for k, v := range rc.aliases {
		out[k] = v
	}
	return out
}
