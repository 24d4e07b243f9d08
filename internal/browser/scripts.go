package browser

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

//go:embed scripts
var embedded embed.FS

// DefaultCategories are the built-in script categories. Anything else is
// a custom category.
var DefaultCategories = []string{"timings", "pageinfo"}

// IsDefaultCategory reports whether name is a built-in category.
func IsDefaultCategory(name string) bool {
	for _, c := range DefaultCategories {
		if c == name {
			return true
		}
	}
	return false
}

// DefaultPageCompleteCheck is true once the load event has ended and no
// resource finished during the last two seconds.
const DefaultPageCompleteCheck = `(function() {
  const p = window.performance;
  const nav = p.getEntriesByType('navigation')[0];
  const limit = 2000;
  if (!nav || nav.loadEventEnd === 0) {
    return false;
  }
  const resources = p.getEntriesByType('resource');
  const last = resources.length > 0 ? resources[resources.length - 1] : null;
  const loadTime = nav.loadEventEnd;
  if (!last || last.responseEnd < loadTime) {
    return p.now() - loadTime > limit;
  }
  return p.now() - last.responseEnd > limit;
})()`

// DefaultScripts returns the embedded scripts.
func DefaultScripts() (Categories, error) {
	return loadFS(embedded, "scripts")
}

// LoadScripts reads user scripts. A directory of .js files becomes a
// category named after the directory; a single .js file is added to the
// category of its parent directory.
func LoadScripts(paths []string) (Categories, error) {
	cats := make(Categories)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("script path: %w", err)
		}

		if !info.IsDir() {
			src, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("read script: %w", err)
			}
			addScript(cats, filepath.Base(filepath.Dir(p)), filepath.Base(p), string(src))
			continue
		}

		category := filepath.Base(filepath.Clean(p))
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("read script dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".js" {
				continue
			}
			src, err := os.ReadFile(filepath.Join(p, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("read script: %w", err)
			}
			addScript(cats, category, e.Name(), string(src))
		}
	}
	return cats, nil
}

// loadFS reads root/<category>/<name>.js.
func loadFS(fsys fs.FS, root string) (Categories, error) {
	cats := make(Categories)
	dirs, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, err
	}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		files, err := fs.ReadDir(fsys, path.Join(root, d.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.IsDir() || path.Ext(f.Name()) != ".js" {
				continue
			}
			src, err := fs.ReadFile(fsys, path.Join(root, d.Name(), f.Name()))
			if err != nil {
				return nil, err
			}
			addScript(cats, d.Name(), f.Name(), string(src))
		}
	}
	return cats, nil
}

func addScript(cats Categories, category, file, src string) {
	name := strings.TrimSuffix(file, filepath.Ext(file))
	if cats[category] == nil {
		cats[category] = make(map[string]string)
	}
	cats[category][name] = asExpression(src)
}

// asExpression trims the trailing semicolon so the script can be
// evaluated as an expression whose value is returned.
func asExpression(src string) string {
	return strings.TrimRight(strings.TrimSpace(src), ";")
}
