// Package ignore implements gitignore-style pattern parsing and matching,
// composed into a per-ancestor stack so the scanner can compute is_ignored
// for a path without re-reading every .gitignore above it on every call.
package ignore

import (
	"path/filepath"
	"strings"
)

// Pattern is a single parsed line from a .gitignore or exclude-format file.
type Pattern struct {
	Text     string // the glob pattern, cleaned of negation/anchor markers
	Negated  bool   // line started with '!'
	DirOnly  bool   // line ended with '/'
	Anchored bool   // pattern is relative to its file's directory, not every descendant
}

// ParsePattern parses a single line from a gitignore-format file. It returns
// false for blank lines and comments.
func ParsePattern(line string) (Pattern, bool) {
	line = strings.TrimRight(line, " \t")
	if line == "" || line[0] == '#' {
		return Pattern{}, false
	}

	var pat Pattern
	if line[0] == '!' {
		pat.Negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		pat.DirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		pat.Anchored = true
		line = line[1:]
	}
	if strings.Contains(line, "/") {
		remainder := strings.TrimPrefix(line, "**/")
		if strings.Contains(remainder, "/") {
			pat.Anchored = true
		} else if !strings.HasPrefix(line, "**/") {
			pat.Anchored = true
		}
	}

	pat.Text = line
	return pat, line != ""
}

// Match reports whether relPath (already relative to whatever base the
// pattern was parsed under) satisfies the pattern, given whether that path
// names a directory.
func (p Pattern) Match(relPath string, isDir bool) bool {
	if p.DirOnly && !isDir {
		return false
	}
	if p.Anchored {
		return matchGlob(p.Text, relPath)
	}
	base := relPath
	if idx := strings.LastIndex(relPath, "/"); idx >= 0 {
		base = relPath[idx+1:]
	}
	if matchGlob(p.Text, base) {
		return true
	}
	return matchGlob(p.Text, relPath)
}

// matchGlob matches a gitignore-style glob against name, with "**" meaning
// zero or more path components (filepath.Match has no such wildcard).
func matchGlob(pattern, name string) bool {
	if !strings.Contains(pattern, "**") {
		matched, _ := filepath.Match(pattern, name)
		return matched
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(patParts, nameParts []string) bool {
	pi, ni := 0, 0
	for pi < len(patParts) && ni < len(nameParts) {
		if patParts[pi] == "**" {
			pi++
			if pi >= len(patParts) {
				return true
			}
			for tryNi := ni; tryNi <= len(nameParts); tryNi++ {
				if matchSegments(patParts[pi:], nameParts[tryNi:]) {
					return true
				}
			}
			return false
		}
		matched, _ := filepath.Match(patParts[pi], nameParts[ni])
		if !matched {
			return false
		}
		pi++
		ni++
	}
	for pi < len(patParts) {
		if patParts[pi] != "**" {
			return false
		}
		pi++
	}
	return ni >= len(nameParts)
}

// ParseLines parses every pattern line in lines, in order, discarding blanks
// and comments.
func ParseLines(lines []string) []Pattern {
	var pats []Pattern
	for _, line := range lines {
		if pat, ok := ParsePattern(line); ok {
			pats = append(pats, pat)
		}
	}
	return pats
}

// matchSet reports the ignored state produced by applying patterns in order
// (later matches override earlier ones, matching git's "last match wins").
func matchSet(patterns []Pattern, relPath string, isDir bool) bool {
	ignored := false
	for _, pat := range patterns {
		if pat.Match(relPath, isDir) {
			ignored = !pat.Negated
		}
	}
	return ignored
}
