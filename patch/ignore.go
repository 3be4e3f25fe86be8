package patch

import (
	"path/filepath"
	"strings"
)

// IgnoreSet matches system paths against configured glob patterns, e.g.
// documentation trees, manual pages, configuration default templates and
// editor swap/backup files.
type IgnoreSet struct {
	patterns []string
}

// NewIgnoreSet creates an IgnoreSet from glob patterns.
func NewIgnoreSet(patterns []string) *IgnoreSet {
	return &IgnoreSet{patterns: patterns}
}

// Match reports whether the path falls under any ignore pattern. A pattern
// ending in "/*" covers the whole subtree below it; a pattern without a
// slash matches the base name; anything else is matched against the full
// path.
func (s *IgnoreSet) Match(path string) bool {
	for _, pattern := range s.patterns {
		if strings.HasSuffix(pattern, "/*") {
			if strings.HasPrefix(path, strings.TrimSuffix(pattern, "*")) {
				return true
			}
			continue
		}

		if !strings.Contains(pattern, "/") {
			if ok, _ := filepath.Match(pattern, filepath.Base(path)); ok {
				return true
			}
			continue
		}

		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
	}

	return false
}
