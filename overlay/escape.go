package overlay

import "strings"

// Escape converts an absolute path into a single flat path segment usable
// as a storage subdirectory name. Literal underscores are escaped first so
// the transform stays reversible.
func Escape(path string) string {
	escaped := strings.ReplaceAll(path, "_", "__")
	return strings.ReplaceAll(escaped, "/", "_")
}

// Unescape converts an escaped name back into the original absolute path.
// A lone underscore (not adjacent to another underscore) denotes a former
// path separator; doubled underscores denote a literal underscore.
func Unescape(name string) string {
	runes := []rune(name)
	out := make([]rune, len(runes))

	for i, r := range runes {
		if r != '_' {
			out[i] = r
			continue
		}

		prevUnderscore := i > 0 && runes[i-1] == '_'
		nextUnderscore := i+1 < len(runes) && runes[i+1] == '_'
		if !prevUnderscore && !nextUnderscore {
			out[i] = '/'
		} else {
			out[i] = '_'
		}
	}

	path := strings.ReplaceAll(string(out), "__", "_")
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}

	return path
}
