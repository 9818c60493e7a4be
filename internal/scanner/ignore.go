package scanner

import (
	"bufio"
	"io"
	"path"
	"strings"
)

// IgnorePattern is a single gitignore-style pattern.
type IgnorePattern struct {
	raw      string
	negate   bool
	dirOnly  bool
	anchored bool
	segments []string
}

// ParseIgnorePattern parses one pattern line. Supported syntax: leading "!"
// negates, leading "/" anchors at the root, trailing "/" matches a directory
// and everything below it, "*", "?" and "[...]" match within a segment and
// "**" matches any number of segments.
func ParseIgnorePattern(line string) IgnorePattern {
	p := IgnorePattern{raw: line}
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}
	// a pattern with an inner slash is relative to the ignore file
	if strings.Contains(line, "/") {
		p.anchored = true
	}
	p.segments = strings.Split(line, "/")
	return p
}

// ParseIgnoreFile reads patterns from r, skipping blank lines and comments.
func ParseIgnoreFile(r io.Reader) ([]IgnorePattern, error) {
	var patterns []IgnorePattern
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, ParseIgnorePattern(line))
	}
	return patterns, sc.Err()
}

// String returns the pattern as written.
func (p IgnorePattern) String() string {
	return p.raw
}

// IsNegation reports whether the pattern re-includes matching paths.
func (p IgnorePattern) IsNegation() bool {
	return p.negate
}

// Match reports whether the slash-separated relative path matches. isDir
// tells whether rel itself is a directory.
func (p IgnorePattern) Match(rel string, isDir bool) bool {
	parts := strings.Split(rel, "/")
	if p.dirOnly {
		// a directory pattern matches the directory or any path below it
		limit := len(parts)
		if !isDir {
			limit--
		}
		for n := 1; n <= limit; n++ {
			if p.matchTail(parts[:n]) {
				return true
			}
		}
		return false
	}
	return p.matchTail(parts)
}

// matchTail matches the pattern against the whole of parts when anchored,
// or against any suffix of parts otherwise.
func (p IgnorePattern) matchTail(parts []string) bool {
	if p.anchored {
		return matchSegments(p.segments, parts)
	}
	for i := range parts {
		if matchSegments(p.segments, parts[i:]) {
			return true
		}
	}
	return false
}

func matchSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := path.Match(strings.ToLower(pattern[0]), strings.ToLower(parts[0]))
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], parts[1:])
}
