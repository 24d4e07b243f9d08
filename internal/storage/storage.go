// Package storage lays out the result directory of a run and writes the
// JSON results, HAR files, screenshots and videos into it.
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/randomizedcoder/go-browser-perf/internal/har"
)

// DefaultBaseDir is where results go unless configured otherwise.
const DefaultBaseDir = "browser-perf-results"

// timestampLayout is used for the per-run directory name.
const timestampLayout = "2006-01-02T15-04-05"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Manager owns one result directory.
type Manager struct {
	dir     string
	gzipHAR bool
	logger  *slog.Logger
}

// NewManager creates a manager for dir. Nothing is written until the
// first file is stored.
func NewManager(dir string, gzipHAR bool, logger *slog.Logger) *Manager {
	return &Manager{dir: dir, gzipHAR: gzipHAR, logger: logger}
}

// ResultDir returns base/<host>/<timestamp> for the first measured URL.
func ResultDir(base, rawURL string, ts time.Time) string {
	if base == "" {
		base = DefaultBaseDir
	}
	return filepath.Join(base, hostDir(rawURL), ts.Format(timestampLayout))
}

func hostDir(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		if name := sanitize(rawURL); name != "" {
			return name
		}
		return "unknown"
	}
	return sanitize(u.Host)
}

// FileName turns a URL or alias into a file name without extension, e.g.
// "example.com_docs_index.html".
func FileName(name string) string {
	if u, err := url.Parse(name); err == nil && u.Host != "" {
		name = u.Host + u.Path
	}
	s := sanitize(strings.ReplaceAll(name, "/", "_"))
	if s == "" {
		return "index"
	}
	return s
}

func sanitize(s string) string {
	return strings.Trim(unsafeChars.ReplaceAllString(s, "_"), "_")
}

// Dir returns the result directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Path joins parts below the result directory.
func (m *Manager) Path(parts ...string) string {
	return filepath.Join(append([]string{m.dir}, parts...)...)
}

// Mkdir creates a directory below the result directory.
func (m *Manager) Mkdir(parts ...string) (string, error) {
	p := m.Path(parts...)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", p, err)
	}
	return p, nil
}

// WriteJSON stores v as indented JSON.
func (m *Manager) WriteJSON(name string, v any) (string, error) {
	path := m.Path(name)
	err := m.writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
	if err != nil {
		return "", err
	}
	m.logger.Debug("result_written", "file", path)
	return path, nil
}

// WriteHAR stores h as name.har, or name.har.gz when compression is on.
func (m *Manager) WriteHAR(name string, h *har.HAR) (string, error) {
	if h == nil {
		return "", nil
	}
	path := m.Path(name + ".har")
	write := func(w io.Writer) error {
		return json.NewEncoder(w).Encode(h)
	}
	if m.gzipHAR {
		path += ".gz"
		write = func(w io.Writer) error {
			zw := gzip.NewWriter(w)
			if err := json.NewEncoder(zw).Encode(h); err != nil {
				zw.Close()
				return err
			}
			return zw.Close()
		}
	}
	if err := m.writeAtomic(path, write); err != nil {
		return "", err
	}
	m.logger.Info("har_written", "file", path, "pages", len(h.Log.Pages), "entries", len(h.Log.Entries))
	return path, nil
}

// WriteFile stores raw bytes, e.g. a screenshot.
func (m *Manager) WriteFile(name string, data []byte) (string, error) {
	path := m.Path(name)
	err := m.writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// writeAtomic writes through a temporary file so readers never see a
// half written result.
func (m *Manager) writeAtomic(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create result directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	writeErr := write(tmp)
	closeErr := tmp.Close()
	if writeErr != nil {
		return fmt.Errorf("write %s: %w", path, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", path, closeErr)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// ReadHAR loads a HAR file written by WriteHAR, compressed or not.
func ReadHAR(path string) (*har.HAR, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	var h har.HAR
	if err := json.NewDecoder(r).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &h, nil
}

// Platform describes the host, e.g. "ubuntu 22.04 x86_64".
func Platform() string {
	info, err := host.Info()
	if err != nil || info.Platform == "" {
		return runtime.GOOS + " " + runtime.GOARCH
	}
	parts := []string{info.Platform}
	if info.PlatformVersion != "" {
		parts = append(parts, info.PlatformVersion)
	}
	if info.KernelArch != "" {
		parts = append(parts, info.KernelArch)
	} else {
		parts = append(parts, runtime.GOARCH)
	}
	return strings.Join(parts, " ")
}
