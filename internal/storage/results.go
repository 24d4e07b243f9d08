package storage

import (
	"fmt"
	"path/filepath"

	"github.com/randomizedcoder/go-browser-perf/internal/engine"
)

// RunFiles lists what WriteRun stored.
type RunFiles struct {
	Result      string
	HAR         string
	Screenshots []string
}

// WriteRun stores the result document, the merged HAR and the screenshots
// of one URL. Files are named after the alias, or the URL without one.
func (m *Manager) WriteRun(r *engine.RunResult, platform string) (RunFiles, error) {
	var files RunFiles
	name := r.Alias
	if name == "" {
		name = r.URL
	}
	base := FileName(name)

	path, err := m.WriteJSON(base+".json", r.Document(platform))
	if err != nil {
		return files, err
	}
	files.Result = path

	if r.HAR != nil {
		path, err := m.WriteHAR(base, r.HAR)
		if err != nil {
			return files, err
		}
		files.HAR = path
	}

	for i, p := range r.Pages {
		if len(p.Screenshot) == 0 {
			continue
		}
		path, err := m.WriteFile(filepath.Join("screenshots", fmt.Sprint(i+1), base+".png"), p.Screenshot)
		if err != nil {
			return files, err
		}
		files.Screenshots = append(files.Screenshots, path)
	}
	return files, nil
}

// VideoDir is where the recorder puts its videos.
func (m *Manager) VideoDir() string {
	return m.Path("video")
}
