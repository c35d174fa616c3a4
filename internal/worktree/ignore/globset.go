package ignore

// GlobSet is a flat list of user-supplied glob patterns evaluated against
// worktree-relative paths, independent of the per-ancestor gitignore stack.
// It backs the three user-configurable pattern families named in §4.1 and
// §9: exclusion (paths never indexed), inclusion (always-included, which
// overrides is_ignored for visibility), and privacy (excluded from
// collaboration sharing).
type GlobSet struct {
	patterns []Pattern
}

// NewGlobSet compiles raw glob lines (same syntax as a .gitignore line,
// minus negation semantics, which don't apply to a flat set) into a GlobSet.
func NewGlobSet(rawPatterns []string) GlobSet {
	return GlobSet{patterns: ParseLines(rawPatterns)}
}

// Match reports whether relPath (worktree-root-relative, forward-slash
// separated) matches any pattern in the set.
func (g GlobSet) Match(relPath string, isDir bool) bool {
	for _, pat := range g.patterns {
		if pat.Match(relPath, isDir) {
			return true
		}
	}
	return false
}

// Empty reports whether the set has no patterns, letting callers skip the
// match loop entirely for the common case of no user configuration.
func (g GlobSet) Empty() bool { return len(g.patterns) == 0 }
