package ignore

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// File is one parsed .gitignore (or .git/info/exclude) file, anchored at
// the absolute directory it governs. Patterns inside it are matched against
// paths relative to AbsDir.
type File struct {
	AbsDir       string
	SourcePath   string
	Patterns     []Pattern
	NeedsRefresh bool
}

// Load reads and parses the gitignore-format file at sourcePath, returning a
// File anchored at absDir. A missing file is not an error: it yields an
// empty, valid File, since most ancestor directories have no .gitignore.
func Load(absDir, sourcePath string) (*File, error) {
	f := &File{AbsDir: absDir, SourcePath: sourcePath}
	if err := f.reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload re-reads SourcePath and replaces Patterns, clearing NeedsRefresh.
// Called by update_ignore_statuses once a watch event has flagged this file.
func (f *File) Reload() error {
	return f.reload()
}

func (f *File) reload() error {
	fh, err := os.Open(f.SourcePath) //nolint:gosec // path is derived from a worktree-relative walk
	if err != nil {
		if os.IsNotExist(err) {
			f.Patterns = nil
			f.NeedsRefresh = false
			return nil
		}
		return fmt.Errorf("ignore: reading %s: %w", f.SourcePath, err)
	}
	defer fh.Close()

	var lines []string
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ignore: scanning %s: %w", f.SourcePath, err)
	}
	f.Patterns = ParseLines(lines)
	f.NeedsRefresh = false
	return nil
}

// MarkNeedsRefresh flags this file for reload on the next
// update_ignore_statuses pass, per §4.1.
func (f *File) MarkNeedsRefresh() { f.NeedsRefresh = true }

// relativize converts an absolute path into the path relative to AbsDir,
// using forward slashes; ok is false if absPath does not descend from AbsDir.
func (f *File) relativize(absPath string) (string, bool) {
	if absPath == f.AbsDir {
		return ".", true
	}
	prefix := f.AbsDir
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if !strings.HasPrefix(absPath, prefix) {
		return "", false
	}
	return strings.TrimPrefix(absPath, prefix), true
}

// match reports the ignored state this file alone would assign to absPath,
// and whether any of its patterns actually fired.
func (f *File) match(absPath string, isDir bool) (ignored, fired bool) {
	rel, ok := f.relativize(absPath)
	if !ok || rel == "." {
		return false, false
	}
	ignoredSoFar := false
	for _, pat := range f.Patterns {
		if pat.Match(rel, isDir) {
			ignoredSoFar = !pat.Negated
			fired = true
		}
	}
	return ignoredSoFar, fired
}

// Stack is the ordered composition of ignore Files in effect while scanning
// some directory, from the worktree's outermost ancestor down to the
// directory's own parent. Pushing a newly discovered .gitignore returns a
// new Stack value; popping back out of a directory is just discarding that
// value, since Stack never mutates a pushed File's slice header in place.
type Stack struct {
	files []*File
}

// NewStack returns an empty ignore stack.
func NewStack() Stack { return Stack{} }

// Push returns a Stack with f composed on top of the receiver.
func (s Stack) Push(f *File) Stack {
	files := make([]*File, len(s.files), len(s.files)+1)
	copy(files, s.files)
	return Stack{files: append(files, f)}
}

// IsIgnored reports whether absPath (naming a file or directory, per isDir)
// is ignored under the composed stack. Later (deeper) files override
// earlier ones, matching git's precedence rules.
func (s Stack) IsIgnored(absPath string, isDir bool) bool {
	ignored := false
	for _, f := range s.files {
		if v, fired := f.match(absPath, isDir); fired {
			ignored = v
		}
	}
	return ignored
}
