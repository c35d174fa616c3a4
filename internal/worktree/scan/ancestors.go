package scan

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/worktreehq/engine/internal/worktree"
	"github.com/worktreehq/engine/internal/worktree/ignore"
)

// registerAncestorGitignoresAndRepos walks upward from the root, per §4.1
// step 1: parse any .gitignore found in an ancestor (registered with
// needs_refresh=false) and, on the first ancestor containing a `.git`
// entry, associate that external repository with the worktree root and
// stop ascending.
func (s *Scanner) registerAncestorGitignoresAndRepos() error {
	dir := filepath.Dir(s.cfg.RootAbsPath)
	suffix := filepath.Base(s.cfg.RootAbsPath)

	for {
		giPath := filepath.Join(dir, ".gitignore")
		if md, err := s.fsi.Metadata(giPath); err == nil && md != nil {
			f, err := ignore.Load(dir, giPath)
			if err == nil {
				s.mu.Lock()
				s.snapshot.ignoreFiles[dir] = f
				s.mu.Unlock()
			}
		}

		dotGit := filepath.Join(dir, ".git")
		if md, err := s.fsi.Metadata(dotGit); err == nil && md != nil {
			repo, err := s.openRepository(dotGit)
			if err == nil {
				s.mu.Lock()
				statuses := worktree.NewRepoStatusMap()
				s.snapshot.Repositories.Put(worktree.RepositoryEntry{
					WorkDirectory:   "",
					LocationInRepo:  strPtr(filepath.ToSlash(suffix)),
					Branch:          branchPtr(repo),
					StatusByPath:    statuses,
				})
				s.mu.Unlock()
			}
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		suffix = filepath.Join(filepath.Base(dir), suffix)
		dir = parent
	}
	return nil
}

func strPtr(s string) *string { return &s }

func branchPtr(r interface{ BranchName() (string, bool) }) *string {
	if r == nil {
		return nil
	}
	if name, ok := r.BranchName(); ok {
		return &name
	}
	return nil
}

// ancestorGitignoreStack returns the Stack composed from every registered
// .gitignore (ancestors above the root, plus any discovered inside the
// tree so far), ordered shallowest-to-deepest so a deeper file's rules
// override a shallower one's, per git's own precedence.
func (s *Scanner) ancestorGitignoreStack() ignore.Stack {
	s.mu.Lock()
	dirs := make([]string, 0, len(s.snapshot.ignoreFiles))
	for dir := range s.snapshot.ignoreFiles {
		dirs = append(dirs, dir)
	}
	files := s.snapshot.ignoreFiles
	s.mu.Unlock()

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) < len(dirs[j]) })

	stack := ignore.NewStack()
	for _, dir := range dirs {
		stack = stack.Push(files[dir])
	}
	return stack
}

// isWithinDotGit reports whether absPath names a file inside a `.git`
// directory, identified either by the literal component name `.git` or by
// an ancestor directory containing both HEAD and config (a bare or
// alternate-named git dir), per §4.1 step 2.
func (s *Scanner) isWithinDotGit(absPath string) (dotGitPath string, ok bool) {
	dir := filepath.Dir(absPath)
	for {
		if filepath.Base(dir) == ".git" {
			return dir, true
		}
		if md, err := s.fsi.Metadata(filepath.Join(dir, "HEAD")); err == nil && md != nil {
			if md2, err := s.fsi.Metadata(filepath.Join(dir, "config")); err == nil && md2 != nil {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir || !strings.HasPrefix(dir, s.cfg.RootAbsPath) {
			return "", false
		}
		dir = parent
	}
}
