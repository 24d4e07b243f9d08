package engine

import (
	"context"
	"log/slog"

	"github.com/randomizedcoder/go-browser-perf/internal/browser"
	"github.com/randomizedcoder/go-browser-perf/internal/har"
)

// Delegate holds the browser specific steps of a run. The engine and the
// iteration controller call the hooks in this order:
//
//	OnStartRun
//	  BeforeBrowserStart, AfterBrowserStart, OnStartIteration
//	    BeforeEachURL, AfterPageCompleteCheck, AfterEachURL (per page)
//	  OnStopIteration, Failing (failed pages only)
//	OnStopRun
//
// A hook error during browser start fails the iteration. Errors from the
// per-page hooks are recorded on the page.
type Delegate interface {
	OnStartRun(ctx context.Context, rc *RunContext) error
	BeforeBrowserStart(ctx context.Context) error
	AfterBrowserStart(ctx context.Context, b browser.Browser) error
	OnStartIteration(ctx context.Context, b browser.Browser, index int) error
	BeforeEachURL(ctx context.Context, b browser.Browser) error
	AfterPageCompleteCheck(ctx context.Context, b browser.Browser, page *PageResult) error
	AfterEachURL(ctx context.Context, b browser.Browser, page *PageResult, index int) error
	OnStopIteration(ctx context.Context, b browser.Browser, result *IterationResult) error
	Failing(page *PageResult, index int)
	OnStopRun(ctx context.Context) error
}

// NoopDelegate implements every hook as a no-op. Embed it to override
// only some hooks.
type NoopDelegate struct{}

func (NoopDelegate) OnStartRun(context.Context, *RunContext) error { return nil }

func (NoopDelegate) BeforeBrowserStart(context.Context) error { return nil }

func (NoopDelegate) AfterBrowserStart(context.Context, browser.Browser) error { return nil }

func (NoopDelegate) OnStartIteration(context.Context, browser.Browser, int) error { return nil }

func (NoopDelegate) BeforeEachURL(context.Context, browser.Browser) error { return nil }

func (NoopDelegate) AfterPageCompleteCheck(context.Context, browser.Browser, *PageResult) error {
	return nil
}

func (NoopDelegate) AfterEachURL(context.Context, browser.Browser, *PageResult, int) error {
	return nil
}

func (NoopDelegate) OnStopIteration(context.Context, browser.Browser, *IterationResult) error {
	return nil
}

func (NoopDelegate) Failing(*PageResult, int) {}

func (NoopDelegate) OnStopRun(context.Context) error { return nil }

// DelegateOptions configure the browser delegates.
type DelegateOptions struct {
	HAR     har.Options
	SkipHAR bool
	Trace   bool
}

// DelegateFor selects the delegate for a browser.
func DelegateFor(id browser.ID, opts DelegateOptions, logger *slog.Logger) Delegate {
	switch id {
	case browser.IDChrome, browser.IDEdge:
		return NewChromeDelegate(opts, logger)
	default:
		return NoopDelegate{}
	}
}
