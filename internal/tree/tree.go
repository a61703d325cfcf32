// Package tree renders a bounded text snapshot of a repository's file tree.
package tree

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultExclude lists directory names that never appear in a snapshot: VCS
// metadata, dependency caches and build output.
var DefaultExclude = []string{
	".git", ".hg", ".svn",
	"node_modules", "vendor", "bower_components",
	"__pycache__", ".venv", "venv", ".tox", ".mypy_cache", ".pytest_cache",
	".gradle", ".idea", ".vscode",
	"dist", "build", "target", "out", ".next", "coverage",
}

// Options bounds a rendering.
type Options struct {
	MaxDepth   int      // 0 means unlimited
	MaxEntries int      // 0 means unlimited
	Exclude    []string // added to DefaultExclude
}

// Render walks root and returns one line per entry, indented two spaces per
// level, directories suffixed with "/". Entries are sorted by name so the
// output is stable. When MaxEntries is reached a trailer line says how many
// entries were left out.
func Render(root string, opts Options) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("render tree: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("render tree: %s is not a directory", root)
	}

	r := &renderer{opts: opts, skip: map[string]bool{}}
	for _, name := range DefaultExclude {
		r.skip[name] = true
	}
	for _, name := range opts.Exclude {
		r.skip[strings.TrimSuffix(name, "/")] = true
	}

	if err := r.walk(root, 0); err != nil {
		return "", err
	}
	if r.omitted > 0 {
		fmt.Fprintf(&r.b, "... (%d more entries)\n", r.omitted)
	}
	return r.b.String(), nil
}

type renderer struct {
	opts    Options
	skip    map[string]bool
	b       strings.Builder
	count   int
	omitted int
}

func (r *renderer) walk(dir string, depth int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}
	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})

	indent := strings.Repeat("  ", depth)
	for _, e := range entries {
		if e.IsDir() && r.skip[e.Name()] {
			continue
		}
		if r.opts.MaxEntries > 0 && r.count >= r.opts.MaxEntries {
			r.omitted++
			continue
		}
		r.count++

		if !e.IsDir() {
			fmt.Fprintf(&r.b, "%s%s\n", indent, e.Name())
			continue
		}
		fmt.Fprintf(&r.b, "%s%s/\n", indent, e.Name())
		if r.opts.MaxDepth > 0 && depth+1 >= r.opts.MaxDepth {
			continue
		}
		if err := r.walk(filepath.Join(dir, e.Name()), depth+1); err != nil {
			return err
		}
	}
	return nil
}
