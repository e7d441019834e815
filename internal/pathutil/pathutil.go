// Package pathutil handles the slash-separated, root-relative paths used by
// the site file API. Paths never start with a slash; "" is the site root.
package pathutil

import "strings"

// SplitPath splits path at its last slash. The parent is "" when the path has
// no slash.
func SplitPath(path string) (parent, base string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// JoinPaths joins segments with "/", trimming trailing slashes from each
// segment and dropping the ones that end up empty.
func JoinPaths(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.TrimRight(s, "/")
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "/")
}

// Segments returns the non-empty segments of path, ignoring "." entries.
func Segments(path string) []string {
	raw := strings.Split(path, "/")
	out := raw[:0]
	for _, s := range raw {
		if s == "" || s == "." {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Base returns the last segment of path.
func Base(path string) string {
	_, base := SplitPath(path)
	return base
}

// HasPrefix reports whether path is prefix or lies underneath it. The root
// "" is a prefix of every path.
func HasPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Rebase moves path from under oldPrefix to under newPrefix. Paths outside
// oldPrefix are returned unchanged.
func Rebase(path, oldPrefix, newPrefix string) string {
	if !HasPrefix(path, oldPrefix) {
		return path
	}
	if path == oldPrefix {
		return newPrefix
	}
	rest := strings.TrimPrefix(path, oldPrefix)
	if oldPrefix != "" {
		rest = rest[1:]
	}
	return JoinPaths(newPrefix, rest)
}

// IsHidden reports whether the entry's basename starts with a dot.
func IsHidden(path string) bool {
	return strings.HasPrefix(Base(path), ".")
}
