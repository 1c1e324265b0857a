package crawler

import (
	"path"
	"strings"
)

// PatternFilter is a glob-based inclusion policy.
//
// Logic:
//  1. If the path matches any exclude pattern, reject it
//  2. Directories that were not excluded are accepted, so the crawl can
//     still reach matching files below them
//  3. If include patterns are set, a file must match at least one
//  4. Otherwise accept
type PatternFilter struct {
	// exclude patterns reject files and directories.
	exclude []string

	// include patterns select files. Empty means all files.
	include []string
}

// NewPatternFilter creates a filter from include and exclude glob patterns.
func NewPatternFilter(include, exclude []string) *PatternFilter {
	return &PatternFilter{
		include: include,
		exclude: exclude,
	}
}

// Allow reports whether p passes the filter.
func (f *PatternFilter) Allow(p string, isDir bool) bool {
	if f == nil {
		return true
	}

	for _, pattern := range f.exclude {
		if MatchPattern(pattern, p) {
			return false
		}
	}

	if isDir || len(f.include) == 0 {
		return true
	}

	for _, pattern := range f.include {
		if MatchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// MatchPattern checks if a slash path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing "/*" to match everything below a directory
//   - a "**" segment to match zero or more path segments
//
// Patterns without a slash are matched against the base name only.
// A "**" pattern that does not start with "/" may match at any depth.
//
// Examples:
//   - "/tmp/*" matches "/tmp/a" and "/tmp/a/b"
//   - "*.iso" matches "/pub/images/debian.iso"
//   - "/data/v?" matches "/data/v1"
//   - "/pub/**/*.iso" matches "/pub/debian.iso" and "/pub/a/b/debian.iso"
//   - "**/cache" matches "/home/user/cache"
func MatchPattern(pattern, p string) bool {
	if strings.Contains(pattern, "**") {
		return matchDoubleStar(pattern, p)
	}

	// Handle subtree patterns like "/tmp/*"
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			return true
		}
	}

	// Handle extension patterns like "*.iso"
	if strings.HasPrefix(pattern, "*.") && !strings.ContainsAny(pattern[2:], "*?[") {
		if strings.HasSuffix(p, pattern[1:]) {
			return true
		}
	}

	matched, err := path.Match(pattern, p)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	if !strings.Contains(pattern, "/") {
		matched, err := path.Match(pattern, path.Base(p))
		if err == nil && matched {
			return true
		}
	}

	return false
}

// matchDoubleStar matches p segment by segment against a pattern holding
// "**" segments.
func matchDoubleStar(pattern, p string) bool {
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/**/" + pattern
	}
	return matchSegments(splitSegments(pattern), splitSegments(p))
}

// splitSegments splits a slash path into its elements; the root has none.
func splitSegments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, segs []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			for i := 0; i <= len(segs); i++ {
				if matchSegments(pattern[1:], segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, err := path.Match(pattern[0], segs[0]); err != nil || !ok {
			return false
		}
		pattern, segs = pattern[1:], segs[1:]
	}
	return len(segs) == 0
}
