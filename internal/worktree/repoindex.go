package worktree

import (
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
)

// RepoStatusMap is an ordered map from repo-relative path to StatusEntry,
// backed by a red-black tree (github.com/emirpasic/gods, pulled into this
// module's stack from go-git's dependency graph). Unlike the path tree and
// identity index, a repository's status map is rebuilt wholesale whenever
// Git status is recomputed rather than edited file-by-file on the
// scanner's hot path, so gods' in-place mutation plus an explicit Clone on
// snapshot boundaries is an acceptable trade for real library support
// instead of the hand-rolled persistent tree in package omap.
type RepoStatusMap struct {
	tree *redblacktree.Tree
}

// NewRepoStatusMap returns an empty RepoStatusMap.
func NewRepoStatusMap() RepoStatusMap {
	return RepoStatusMap{tree: redblacktree.NewWith(utils.StringComparator)}
}

// Get looks up the StatusEntry for a repo-relative path.
func (m RepoStatusMap) Get(repoPath string) (StatusEntry, bool) {
	if m.tree == nil {
		return StatusEntry{}, false
	}
	v, found := m.tree.Get(repoPath)
	if !found {
		return StatusEntry{}, false
	}
	return v.(StatusEntry), true
}

// Put inserts or replaces the StatusEntry for a repo-relative path.
func (m RepoStatusMap) Put(e StatusEntry) {
	m.tree.Put(e.RepoPath, e)
}

// Remove deletes the entry for a repo-relative path, if present.
func (m RepoStatusMap) Remove(repoPath string) {
	m.tree.Remove(repoPath)
}

// Len returns the number of entries.
func (m RepoStatusMap) Len() int {
	if m.tree == nil {
		return 0
	}
	return m.tree.Size()
}

// Each calls fn for every entry in ascending repo-path order.
func (m RepoStatusMap) Each(fn func(StatusEntry) bool) {
	if m.tree == nil {
		return
	}
	it := m.tree.Iterator()
	for it.Next() {
		if !fn(it.Value().(StatusEntry)) {
			return
		}
	}
}

// Clone returns an independent copy of the map: further Put/Remove calls
// on either copy do not affect the other.
func (m RepoStatusMap) Clone() RepoStatusMap {
	out := NewRepoStatusMap()
	m.Each(func(e StatusEntry) bool {
		out.Put(e)
		return true
	})
	return out
}

// Diff compares m (new) against old, producing the set of inserted or
// changed entries ("updated") and the set of repo-relative paths present
// in old but absent from m ("removed"). Used by the delta builder (see
// internal/worktree/delta) to turn two RepoStatusMap snapshots into the
// updated_statuses/removed_statuses wire lists.
func (m RepoStatusMap) Diff(old RepoStatusMap) (updated []StatusEntry, removed []string) {
	m.Each(func(e StatusEntry) bool {
		if prev, ok := old.Get(e.RepoPath); !ok || prev != e {
			updated = append(updated, e)
		}
		return true
	})
	old.Each(func(e StatusEntry) bool {
		if _, ok := m.Get(e.RepoPath); !ok {
			removed = append(removed, e.RepoPath)
		}
		return true
	})
	return updated, removed
}

// RepositoryIndex is the ordered map from worktree-relative work-directory
// path to RepositoryEntry.
type RepositoryIndex struct {
	tree *redblacktree.Tree
}

// NewRepositoryIndex returns an empty RepositoryIndex.
func NewRepositoryIndex() RepositoryIndex {
	return RepositoryIndex{tree: redblacktree.NewWith(utils.StringComparator)}
}

// Get looks up a repository by its worktree-relative work-directory path.
func (idx RepositoryIndex) Get(workDir string) (RepositoryEntry, bool) {
	if idx.tree == nil {
		return RepositoryEntry{}, false
	}
	v, found := idx.tree.Get(workDir)
	if !found {
		return RepositoryEntry{}, false
	}
	return v.(RepositoryEntry), true
}

// Put inserts or replaces a RepositoryEntry.
func (idx RepositoryIndex) Put(e RepositoryEntry) {
	idx.tree.Put(e.WorkDirectory, e)
}

// Remove deletes the repository at workDir, if present.
func (idx RepositoryIndex) Remove(workDir string) {
	idx.tree.Remove(workDir)
}

// Len returns the number of repositories indexed.
func (idx RepositoryIndex) Len() int {
	if idx.tree == nil {
		return 0
	}
	return idx.tree.Size()
}

// Each calls fn for every repository in ascending work-directory-path
// order; because work directories are lexicographically sorted, deeper
// nested repositories always appear after their parents.
func (idx RepositoryIndex) Each(fn func(RepositoryEntry) bool) {
	if idx.tree == nil {
		return
	}
	it := idx.tree.Iterator()
	for it.Next() {
		if !fn(it.Value().(RepositoryEntry)) {
			return
		}
	}
}

// Clone returns an independent copy of the index.
func (idx RepositoryIndex) Clone() RepositoryIndex {
	out := NewRepositoryIndex()
	idx.Each(func(e RepositoryEntry) bool {
		out.Put(RepositoryEntry{
			WorkDirectory:   e.WorkDirectory,
			WorkDirectoryId: e.WorkDirectoryId,
			LocationInRepo:  e.LocationInRepo,
			Branch:          e.Branch,
			StatusByPath:    e.StatusByPath.Clone(),
		})
		return true
	})
	return out
}

// RepositoryForPath returns the deepest repository whose work directory is
// a prefix of path, per §4.2: walk the ordered index forward (since
// repositories sort lexicographically, a deeper repo's work-directory
// path sorts after its parent's) and keep the last match.
func (idx RepositoryIndex) RepositoryForPath(path string) (RepositoryEntry, bool) {
	var best RepositoryEntry
	found := false
	idx.Each(func(e RepositoryEntry) bool {
		if isWithinWorkDir(path, e.WorkDirectory) {
			best = e
			found = true
		}
		return true
	})
	return best, found
}

func isWithinWorkDir(path, workDir string) bool {
	if workDir == "" {
		return true
	}
	if path == workDir {
		return true
	}
	return len(path) > len(workDir) && path[:len(workDir)] == workDir && path[len(workDir)] == '/'
}
