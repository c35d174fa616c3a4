package worktree

import (
	"errors"
	"path"
	"strings"

	"github.com/worktreehq/engine/internal/worktree/omap"
)

// Sentinel errors surfaced by Snapshot operations, per spec §7's error
// kinds (NotFound, InvalidPath).
var (
	ErrNotFound    = errors.New("worktree: entry not found")
	ErrInvalidPath = errors.New("worktree: invalid path")
)

func entryLeaf(e Entry) omap.Counts {
	isDir := e.IsDir()
	switch {
	case isDir && e.IsIgnored:
		return omap.Counts{IgnoredDirs: 1}
	case isDir:
		return omap.Counts{Dirs: 1}
	case e.IsIgnored:
		return omap.Counts{IgnoredFiles: 1}
	default:
		return omap.Counts{Files: 1}
	}
}

func pathEntryLeaf(PathEntry) omap.Counts { return omap.Counts{} }

// PathTree is the persistent ordered map from relative path to Entry.
type PathTree = omap.Tree[string, Entry]

// IdentityIndex is the persistent ordered map from EntryId to PathEntry.
type IdentityIndex = omap.Tree[EntryId, PathEntry]

// Snapshot is an immutable-by-convention value capturing the entire
// worktree state at some scan generation. Clone shares the persistent path
// and identity trees in O(1) and copies the repository index and
// AlwaysIncludedPaths.
type Snapshot struct {
	Id   string
	AbsPath string
	RootName string
	RootCharBag uint64

	Paths        PathTree
	Ids          IdentityIndex
	Repositories RepositoryIndex

	// AlwaysIncludedPaths lists relative paths that override IsIgnored
	// for visibility purposes (see §4.1's is_always_included).
	AlwaysIncludedPaths []string

	ScanId          uint64
	CompletedScanId uint64
}

// NewSnapshot returns an empty Snapshot rooted at absPath.
func NewSnapshot(id, absPath, rootName string) Snapshot {
	return Snapshot{
		Id:           id,
		AbsPath:      absPath,
		RootName:     rootName,
		RootCharBag:  CharBagFor(rootName),
		Paths:        omap.New[string, Entry](entryLeaf),
		Ids:          omap.New[EntryId, PathEntry](pathEntryLeaf),
		Repositories: NewRepositoryIndex(),
	}
}

// Clone returns an independent copy that shares structure with the
// receiver; only RepositoryIndex (gods-backed, not persistent) requires
// an explicit deep copy, per the trade-off documented in DESIGN.md.
func (s Snapshot) Clone() Snapshot {
	clone := s
	clone.Repositories = s.Repositories.Clone()
	clone.AlwaysIncludedPaths = append([]string(nil), s.AlwaysIncludedPaths...)
	return clone
}

// Absolutize joins rel with the worktree root, rejecting paths with
// parent-traversal or other non-"normal" components. An empty rel (no
// file-name component) returns the root itself.
func (s Snapshot) Absolutize(rel string) (string, error) {
	if rel == "" || rel == "." {
		return s.AbsPath, nil
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return s.AbsPath + "/" + clean, nil
}

// EntryForPath returns the entry at the given relative path.
func (s Snapshot) EntryForPath(p string) (Entry, bool) {
	return s.Paths.Get(p)
}

// EntryForId returns the entry with the given id, resolved through the
// identity index then the path tree (never via a back-pointer, per §9).
func (s Snapshot) EntryForId(id EntryId) (Entry, bool) {
	pe, ok := s.Ids.Get(id)
	if !ok {
		return Entry{}, false
	}
	return s.Paths.Get(pe.Path)
}

// InodeForPath returns the inode recorded for a path, if any.
func (s Snapshot) InodeForPath(p string) (uint64, bool) {
	e, ok := s.Paths.Get(p)
	if !ok {
		return 0, false
	}
	return e.Inode, true
}

// TraversalFilter selects which entries a traversal visits.
type TraversalFilter struct {
	IncludeFiles   bool
	IncludeDirs    bool
	IncludeIgnored bool
}

func (f TraversalFilter) keep(e Entry) bool {
	if e.IsIgnored && !f.IncludeIgnored {
		return false
	}
	if e.IsDir() {
		return f.IncludeDirs
	}
	return f.IncludeFiles
}

// weight converts the filter into the Counts accessor NthFiltered needs
// to descend the tree without visiting every node.
func (f TraversalFilter) weight() func(omap.Counts) int {
	switch {
	case f.IncludeFiles && f.IncludeDirs && f.IncludeIgnored:
		return omap.Counts.All
	case f.IncludeFiles && f.IncludeDirs && !f.IncludeIgnored:
		return omap.Counts.NonIgnored
	case f.IncludeFiles && !f.IncludeDirs && f.IncludeIgnored:
		return omap.Counts.FilesWithIgnored
	case f.IncludeFiles && !f.IncludeDirs && !f.IncludeIgnored:
		return omap.Counts.NonIgnoredFiles
	default:
		// Dirs-only combinations and the empty filter are rare in
		// practice; fall back to a linear predicate-count scan rather
		// than special-casing every remaining combination of three
		// booleans in the aggregate.
		return nil
	}
}

// Traverse calls fn for every entry matching filter, in path order,
// starting at the given relative path (use "" to start from the
// beginning). Traverse stops early if fn returns false.
func (s Snapshot) Traverse(filter TraversalFilter, startPath string, fn func(Entry) bool) {
	s.Paths.Range(startPath, func(_ string, e Entry) bool {
		if !filter.keep(e) {
			return true
		}
		return fn(e)
	})
}

// TraverseFromCount calls fn for every entry matching filter starting at
// the zero-based position startCount among matching entries; the seek to
// that position is O(log n) when the filter has a matching Counts
// aggregate (see TraversalFilter.weight), and O(n) otherwise.
func (s Snapshot) TraverseFromCount(filter TraversalFilter, startCount int, fn func(Entry) bool) {
	if w := filter.weight(); w != nil {
		key, first, ok := omap.NthFiltered(s.Paths, startCount, filter.keep, w)
		if !ok {
			return
		}
		started := false
		s.Paths.Range(key, func(k string, e Entry) bool {
			if !started {
				if k != key {
					return true
				}
				started = true
				return fn(first)
			}
			if !filter.keep(e) {
				return true
			}
			return fn(e)
		})
		return
	}
	n := 0
	s.Paths.Each(func(_ string, e Entry) bool {
		if !filter.keep(e) {
			return true
		}
		if n < startCount {
			n++
			return true
		}
		return fn(e)
	})
}

// ChildEntries iterates the direct children of parent, in path order.
func (s Snapshot) ChildEntries(parent string, fn func(Entry) bool) {
	prefix := parent
	if prefix != "" {
		prefix += "/"
	}
	s.Paths.Range(prefix, func(p string, e Entry) bool {
		if prefix != "" && !strings.HasPrefix(p, prefix) {
			return false
		}
		if prefix == "" && p == "" {
			return true
		}
		rest := strings.TrimPrefix(p, prefix)
		if rest == "" || strings.Contains(rest, "/") {
			return true
		}
		return fn(e)
	})
}

// RepositoryForPath returns the deepest repository containing path.
func (s Snapshot) RepositoryForPath(p string) (RepositoryEntry, bool) {
	return s.Repositories.RepositoryForPath(p)
}

// StatusForFile resolves the owning repository for path and looks up its
// Git status by the repo-relative path.
func (s Snapshot) StatusForFile(p string) (FileStatus, bool) {
	repo, ok := s.RepositoryForPath(p)
	if !ok {
		return FileStatus{}, false
	}
	rel := strings.TrimPrefix(p, repo.WorkDirectory)
	rel = strings.TrimPrefix(rel, "/")
	repoPath := repo.Relativize(rel)
	se, ok := repo.StatusByPath.Get(repoPath)
	if !ok {
		return FileStatus{}, false
	}
	return se.Status, true
}

// EntryWithRepository pairs an Entry with the RepositoryEntry containing
// it, if any.
type EntryWithRepository struct {
	Entry      Entry
	Repository *RepositoryEntry
}

// EntriesWithRepositories zips an ordered iteration of entries with their
// containing repository, resolved once per entry.
func (s Snapshot) EntriesWithRepositories(filter TraversalFilter, fn func(EntryWithRepository) bool) {
	s.Traverse(filter, "", func(e Entry) bool {
		var repoPtr *RepositoryEntry
		if repo, ok := s.RepositoryForPath(e.Path); ok {
			repoPtr = &repo
		}
		return fn(EntryWithRepository{Entry: e, Repository: repoPtr})
	})
}

// InsertEntry adds or replaces an entry in both the path tree and the
// identity index, used by the delta applier (§4.3) and the scanner.
func (s Snapshot) InsertEntry(e Entry) Snapshot {
	s = s.shallowCopyForPathsEdit()
	if old, ok := s.Paths.Get(e.Path); ok && old.Id != e.Id {
		s.Ids, _ = s.Ids.Delete(old.Id)
	}
	if oldPE, ok := s.Ids.Get(e.Id); ok && oldPE.Path != e.Path {
		s.Paths, _ = s.Paths.Delete(oldPE.Path)
	}
	s.Paths = s.Paths.Insert(e.Path, e)
	s.Ids = s.Ids.Insert(e.Id, PathEntry{Id: e.Id, Path: e.Path, IsIgnored: e.IsIgnored, ScanId: s.ScanId})
	return s
}

// DeleteEntry removes the entry with the given id from both indices.
func (s Snapshot) DeleteEntry(id EntryId) Snapshot {
	pe, ok := s.Ids.Get(id)
	if !ok {
		return s
	}
	s = s.shallowCopyForPathsEdit()
	s.Paths, _ = s.Paths.Delete(pe.Path)
	s.Ids, _ = s.Ids.Delete(id)
	return s
}

// shallowCopyForPathsEdit returns a value copy of s; since Paths/Ids are
// persistent trees, further edits to the copy never affect the receiver.
func (s Snapshot) shallowCopyForPathsEdit() Snapshot { return s }

// CheckInvariants validates the §3/§8 structural invariants. Intended for
// use in tests (and optionally in debug builds) after every mutation
// batch; it is not on the hot path of normal operation.
func (s Snapshot) CheckInvariants() error {
	mismatches := 0
	s.Paths.Each(func(p string, e Entry) bool {
		pe, ok := s.Ids.Get(e.Id)
		if !ok || pe.Path != p {
			mismatches++
		}
		return true
	})
	s.Ids.Each(func(id EntryId, pe PathEntry) bool {
		e, ok := s.Paths.Get(pe.Path)
		if !ok || e.Id != id {
			mismatches++
		}
		return true
	})
	if mismatches != 0 {
		return errors.New("worktree: path tree and identity index disagree")
	}

	if s.CompletedScanId > s.ScanId {
		return errors.New("worktree: completed_scan_id exceeds scan_id")
	}

	var invariantErr error
	s.Repositories.Each(func(r RepositoryEntry) bool {
		if _, ok := s.Paths.Get(r.WorkDirectory); !ok && r.WorkDirectory != "" {
			invariantErr = errors.New("worktree: repository work directory missing from path tree")
			return false
		}
		return true
	})
	return invariantErr
}

// LocalSnapshot extends Snapshot with local-only bookkeeping: per-ancestor
// ignore-refresh state and the local repository map. Both live in package
// scan (internal/worktree/scan) since they are mutated exclusively under
// the scanner's lock; Snapshot itself stays a pure, lock-free value type.
