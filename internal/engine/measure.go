package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/randomizedcoder/go-browser-perf/internal/browser"
)

// Recorder records the screen while a page is measured. *video.Recorder
// implements it.
type Recorder interface {
	Start(ctx context.Context, file string) error
	Stop(ctx context.Context) (string, error)
	Recording() bool
	Cancel()
}

// VisualMetricsRunner analyses a recorded video. *video.VisualMetrics
// implements it.
type VisualMetricsRunner interface {
	Run(ctx context.Context, video, imageDir string) (map[string]any, error)
}

// NavigationScript drives the browser through the pages to measure.
type NavigationScript func(ctx context.Context, cmd *Commands) error

// MeasureURL is the navigation script for measuring a single URL.
func MeasureURL(u string) NavigationScript {
	return func(ctx context.Context, cmd *Commands) error {
		return cmd.Measure.Start(ctx, u)
	}
}

// MeasureURLs measures each URL in turn in the same browser session.
func MeasureURLs(urls []string) NavigationScript {
	return func(ctx context.Context, cmd *Commands) error {
		for _, u := range urls {
			if err := cmd.Measure.Start(ctx, u); err != nil {
				return err
			}
		}
		return nil
	}
}

type measureConfig struct {
	scripts             browser.Categories
	pageCompleteCheck   string
	pageCompleteTimeout time.Duration
	scriptTimeout       time.Duration
	screenshot          bool
	videoDir            string
}

// Measure opens and closes measurements of pages within one iteration.
// Start with a URL loads the page and collects it right away. Start with
// an alias only opens the measurement: the script navigates and then
// calls Stop.
type Measure struct {
	cfg      measureConfig
	b        browser.Browser
	d        Delegate
	rc       *RunContext
	recorder Recorder
	logger   *slog.Logger

	index    int
	result   *IterationResult
	setState func(State)

	page *PageResult
}

// Measuring reports whether a measurement is open.
func (m *Measure) Measuring() bool {
	return m.page != nil
}

// Start begins measuring. target is either a URL or an alias.
func (m *Measure) Start(ctx context.Context, target string) error {
	if isURL(target) {
		return m.StartWithAlias(ctx, target, "")
	}
	return m.StartWithAlias(ctx, "", target)
}

// StartWithAlias begins measuring u and reports the page under alias. With
// an empty u nothing is loaded and the caller must call Stop.
func (m *Measure) StartWithAlias(ctx context.Context, u, alias string) error {
	if m.page != nil {
		return errors.New("measurement already started, call Stop first")
	}
	if u == "" && alias == "" {
		return errors.New("start needs a URL or an alias")
	}
	if u != "" {
		m.logger.Info("measure_url", "url", u, "alias", alias)
	} else {
		m.logger.Info("measure_start", "alias", alias)
	}

	page := &PageResult{URL: u, Alias: alias, Timestamp: time.Now()}
	m.result.Pages = append(m.result.Pages, page)
	m.page = page

	if m.recorder != nil {
		file := m.videoFile(page)
		if err := m.recorder.Start(ctx, file); err != nil {
			m.logger.Warn("video_start_failed", "error", err)
			page.addError(fmt.Errorf("start video: %w", err))
		}
	}

	if err := m.d.BeforeEachURL(ctx, m.b); err != nil {
		m.logger.Warn("before_each_url_failed", "error", err)
		page.addError(err)
	}

	if u == "" {
		return nil
	}

	if err := m.Navigate(ctx, u); err != nil {
		page.addError(err)
		m.abort()
		return err
	}
	return m.Stop(ctx)
}

// Stop collects the open measurement. Without one it does nothing.
func (m *Measure) Stop(ctx context.Context) error {
	page := m.page
	if page == nil {
		m.logger.Debug("measure_stop_without_start")
		return nil
	}
	defer func() { m.page = nil }()

	if err := m.d.AfterPageCompleteCheck(ctx, m.b, page); err != nil {
		m.logger.Warn("after_page_complete_check_failed", "error", err)
		page.addError(err)
	}

	m.setState(StateCollectingScripts)
	collected := make(chan map[string]map[string]any, 1)
	err := runWithTimeout(ctx, "browser scripts", m.cfg.scriptTimeout, func(ctx context.Context) error {
		scripts, err := m.b.RunScripts(ctx, m.cfg.scripts)
		collected <- scripts
		return err
	})
	if err != nil {
		page.addError(err)
	}
	var scripts map[string]map[string]any
	select {
	case scripts = <-collected:
	default:
	}
	page.BrowserScripts = scripts
	if page.URL == "" {
		page.URL = pageURL(scripts)
	}
	if m.rc != nil {
		page.URL = m.rc.ResolveAlias(page.Alias, page.URL)
	}

	if m.recorder != nil && m.recorder.Recording() {
		if file, err := m.recorder.Stop(ctx); err != nil {
			m.logger.Warn("video_stop_failed", "error", err)
			page.addError(fmt.Errorf("stop video: %w", err))
		} else {
			page.VideoPath = file
		}
	}

	if m.cfg.screenshot {
		if s, ok := m.b.(browser.Screenshotter); ok {
			data, err := s.Screenshot(ctx)
			if err != nil {
				m.logger.Warn("screenshot_failed", "error", err)
			} else {
				page.Screenshot = data
			}
		}
	}

	m.setState(StateCollectingMetrics)
	if err := m.d.AfterEachURL(ctx, m.b, page, m.index); err != nil {
		m.logger.Warn("after_each_url_failed", "error", err)
		page.addError(err)
	}
	return nil
}

// Navigate loads u and waits for the page complete check.
func (m *Measure) Navigate(ctx context.Context, u string) error {
	m.setState(StateNavigating)
	m.logger.Debug("navigating", "url", u)

	m.setState(StateWaitingForPageComplete)
	err := runWithTimeout(ctx, "page complete check", m.cfg.pageCompleteTimeout, func(ctx context.Context) error {
		return m.b.LoadAndWait(ctx, u, m.cfg.pageCompleteCheck)
	})
	if err != nil {
		return &URLLoadError{URL: u, Err: err}
	}
	return nil
}

// abort drops the open measurement after a failed load.
func (m *Measure) abort() {
	if m.recorder != nil {
		m.recorder.Cancel()
	}
	m.page = nil
}

// pageURL reads the document URL reported by the pageinfo script.
// videoFile names the video of page as <iteration>/<url or alias>.mp4
// below the video directory, so runs of different URLs sharing the
// directory never collide. A key measured twice in one iteration gets the
// page number appended.
func (m *Measure) videoFile(page *PageResult) string {
	name := pageFileName(page.Key())
	n := len(m.result.Pages)
	for _, p := range m.result.Pages[:n-1] {
		if p.Key() == page.Key() {
			name = fmt.Sprintf("%s-%d", name, n)
			break
		}
	}
	return filepath.Join(m.cfg.videoDir, fmt.Sprint(m.index+1), name+".mp4")
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// pageFileName turns a URL or alias into a file name, e.g.
// "https://www.example.com/a/b" into "www.example.com_a_b".
func pageFileName(key string) string {
	if u, err := url.Parse(key); err == nil && u.Host != "" {
		key = u.Host + u.Path
	}
	s := strings.ReplaceAll(key, "/", "_")
	s = strings.Trim(unsafeFileChars.ReplaceAllString(s, "_"), "_")
	if s == "" {
		return "index"
	}
	return s
}

func pageURL(scripts map[string]map[string]any) string {
	if info, ok := scripts["pageinfo"]; ok {
		if u, ok := info["url"].(string); ok {
			return u
		}
	}
	return ""
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Commands is what navigation, pre and post scripts can do.
type Commands struct {
	Measure *Measure

	b      browser.Browser
	result *IterationResult
	logger *slog.Logger
}

// Browser returns the browser of the current iteration.
func (c *Commands) Browser() browser.Browser {
	return c.b
}

// Navigate loads u without measuring it.
func (c *Commands) Navigate(ctx context.Context, u string) error {
	return c.Measure.Navigate(ctx, u)
}

// JS runs src in the page and returns its result.
func (c *Commands) JS(ctx context.Context, src string) (any, error) {
	return c.b.RunScript(ctx, src, "js")
}

// Wait pauses the script.
func (c *Commands) Wait(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

// Error records an error on the iteration without failing it.
func (c *Commands) Error(msg string) {
	c.logger.Error("script_error", "message", msg)
	c.result.Errors = append(c.result.Errors, msg)
}

// MarkAsFailure fails the iteration once the scripts are done.
func (c *Commands) MarkAsFailure(msg string) {
	c.logger.Info("marked_as_failure", "message", msg)
	c.result.MarkedAsFailure = true
	c.result.FailureMessages = append(c.result.FailureMessages, msg)
}
