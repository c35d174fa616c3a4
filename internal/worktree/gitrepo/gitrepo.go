// Package gitrepo adapts internal/gitcore's from-scratch Git reader into
// the §6 Git repository capability: dot_git_dir, branch_name, status,
// load_index_text, reload_index.
package gitrepo

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/worktreehq/engine/internal/gitcore"
	"github.com/worktreehq/engine/internal/worktree"
)

// RepoPath is a slash-separated path relative to a repository's work
// directory, mirroring §6's RepoPath.
type RepoPath string

// Statuses is the ordered status result §6's status() returns.
type Statuses struct {
	Entries []StatusEntryPair
}

// StatusEntryPair pairs a repo-relative path with its computed status.
type StatusEntryPair struct {
	Path   RepoPath
	Status worktree.FileStatus
}

// Repository is the Git repository capability, backed by a trimmed
// internal/gitcore.Repository (status/branch/index reading only — the
// diff/merge/blame/mailmap machinery gitcore also offers is unused here).
type Repository struct {
	repo   *gitcore.Repository
	gitDir string
}

// Open parses the repository rooted at dotGitPath (a `.git` directory or
// file), returning a wrapped error when gitcore cannot open a repository
// there.
func Open(dotGitPath string) (*Repository, error) {
	workDir := filepath.Dir(dotGitPath)
	repo, err := gitcore.NewRepository(workDir)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: open %s: %w", workDir, err)
	}
	return &Repository{repo: repo, gitDir: repo.GitDir()}, nil
}

// DotGitDir returns the repository's `.git` directory.
func (r *Repository) DotGitDir() string { return r.gitDir }

// BranchName returns the current branch, or "" if HEAD is detached or the
// repository has no commits yet.
func (r *Repository) BranchName() (string, bool) {
	if r.repo.HeadDetached() {
		return "", false
	}
	ref := r.repo.HeadRef()
	const prefix = "refs/heads/"
	if !strings.HasPrefix(ref, prefix) {
		return "", false
	}
	return strings.TrimPrefix(ref, prefix), true
}

// Status computes the working tree status and returns the subset matching
// paths, ordered by RepoPath. An empty paths slice returns every entry.
func (r *Repository) Status(paths []RepoPath) (Statuses, error) {
	wts, err := gitcore.ComputeWorkingTreeStatus(r.repo)
	if err != nil {
		return Statuses{}, fmt.Errorf("gitrepo: status: %w", err)
	}

	want := make(map[RepoPath]bool, len(paths))
	for _, p := range paths {
		want[p] = true
	}

	var entries []StatusEntryPair
	for _, f := range wts.Files {
		p := RepoPath(f.Path)
		if len(want) > 0 && !want[p] {
			continue
		}
		entries = append(entries, StatusEntryPair{Path: p, Status: convertStatus(f)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return Statuses{Entries: entries}, nil
}

func convertStatus(f gitcore.FileStatus) worktree.FileStatus {
	if f.IsUntracked {
		return worktree.FileStatus{Kind: worktree.StatusUntracked}
	}
	return worktree.FileStatus{
		Kind:           worktree.StatusTracked,
		IndexStatus:    convertTrackedCode(f.IndexStatus),
		WorktreeStatus: convertTrackedCode(f.WorkStatus),
	}
}

func convertTrackedCode(code string) worktree.TrackedCode {
	switch code {
	case "added":
		return worktree.TrackedAdded
	case "modified":
		return worktree.TrackedModified
	case "deleted":
		return worktree.TrackedDeleted
	default:
		return worktree.TrackedUnmodified
	}
}

// LoadIndexText returns the index's raw textual representation for path,
// or ("", false) if path is absent from the index.
func (r *Repository) LoadIndexText(path RepoPath) (string, bool, error) {
	idx, err := gitcore.ReadIndex(r.gitDir)
	if err != nil {
		return "", false, fmt.Errorf("gitrepo: load index text: %w", err)
	}
	for _, e := range idx.Entries {
		if e.Path == string(path) {
			blob, err := r.repo.GetBlob(e.Hash)
			if err != nil {
				return "", false, fmt.Errorf("gitrepo: load blob for %s: %w", path, err)
			}
			return string(blob), true, nil
		}
	}
	return "", false, nil
}

// ReloadIndex re-parses .git/index, dropping any cached view a caller held.
// gitcore.ReadIndex already re-reads from disk on every call, so this is a
// no-op retained to satisfy the §6 capability surface explicitly.
func (r *Repository) ReloadIndex() error {
	_, err := gitcore.ReadIndex(r.gitDir)
	if err != nil {
		return fmt.Errorf("gitrepo: reload index: %w", err)
	}
	return nil
}
