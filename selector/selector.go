// Package selector resolves include/exclude glob patterns against a
// vault root to a finite, stable file set (spec §4.3).
package selector

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Patterns is one vault's include/exclude glob configuration, read from
// .cast/config.yaml's index.include / index.exclude keys.
type Patterns struct {
	Include []string
	Exclude []string
	// IncludeHidden opts dotfiles back into selection; by default they
	// are excluded regardless of Include matching them.
	IncludeHidden bool
}

// Select walks root and returns every regular file whose root-relative,
// forward-slash path matches at least one Include pattern and no
// Exclude pattern. Symlinks are never followed. The result is sorted,
// so repeated calls against an unchanged filesystem are stable (spec
// §4.3's "Selector output is stable under repeated calls").
func Select(root string, patterns Patterns) ([]string, error) {
	var matched []string
	seen := make(map[string]bool)

	for _, include := range patterns.Include {
		paths, err := doublestar.Glob(os.DirFS(root), include)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if seen[p] {
				continue
			}
			seen[p] = true
			matched = append(matched, p)
		}
	}

	out := matched[:0]
	for _, p := range matched {
		ok, err := eligible(root, p, patterns)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}

	sort.Strings(out)
	return out, nil
}

func eligible(root, relPath string, patterns Patterns) (bool, error) {
	if !patterns.IncludeHidden && hasHiddenComponent(relPath) {
		return false, nil
	}
	for _, exclude := range patterns.Exclude {
		ok, err := doublestar.Match(exclude, relPath)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}

	info, err := os.Lstat(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return false, nil
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}
	return true, nil
}

func hasHiddenComponent(relPath string) bool {
	for _, part := range strings.Split(relPath, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
