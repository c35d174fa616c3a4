// Package worktree implements the snapshot data model: an immutably
// cloneable, persistently indexed representation of every file and
// directory under a worktree root, keyed simultaneously by path and by
// stable entry identity, with auxiliary ordered indices for Git
// repositories and per-path Git status.
package worktree

import "time"

// EntryId is a stable identifier for an Entry, unique within one host
// process for as long as that process runs. It is never reused except
// when the scanner detects a rename by inode (see allocateOrReuseId in
// package scan).
type EntryId uint64

// EntryKind classifies what kind of filesystem node an Entry represents.
type EntryKind int

const (
	// KindFile is a regular file (or symlink to one).
	KindFile EntryKind = iota
	// KindDir is a directory that has been scanned; its children are
	// present in the path tree.
	KindDir
	// KindPendingDir is a directory discovered but not yet scanned; a
	// scan job for it has been enqueued.
	KindPendingDir
	// KindUnloadedDir is a directory known to exist but deliberately not
	// recursed into (ignored, excluded, or deferred).
	KindUnloadedDir
)

// String returns a short name for the kind, used in logging and tests.
func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindPendingDir:
		return "pending_dir"
	case KindUnloadedDir:
		return "unloaded_dir"
	default:
		return "unknown"
	}
}

// IsDir reports whether the kind represents some form of directory.
func (k EntryKind) IsDir() bool {
	return k == KindDir || k == KindPendingDir || k == KindUnloadedDir
}

// Entry represents one filesystem node tracked by a worktree.
type Entry struct {
	Id   EntryId
	Kind EntryKind
	// Path is relative to the worktree root, using forward slashes.
	Path string
	Inode uint64
	// ModTime is optional; the zero Time means unknown.
	ModTime time.Time
	// CanonicalPath is set for symlinks: the path the link resolves to.
	CanonicalPath string

	IsIgnored         bool
	IsAlwaysIncluded  bool
	IsExternal        bool // symlink target escapes the worktree root
	IsPrivate         bool // matches a privacy pattern
	IsFifo            bool

	Size int64

	// CharBag is a lowercase bitset over the path's characters, used for
	// quick external fuzzy-match pre-filtering (see Snapshot.FuzzyMatchPaths).
	CharBag uint64
}

// IsDir reports whether the entry represents a directory in any state.
func (e Entry) IsDir() bool { return e.Kind.IsDir() }

// CharBagFor computes the lowercase character bag for a string: bit i is
// set if rune 'a'+i (or a non-letter bucketed to bit 26) occurs in s.
func CharBagFor(s string) uint64 {
	var bag uint64
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			bag |= 1 << uint(r-'A')
		case r >= 'a' && r <= 'z':
			bag |= 1 << uint(r-'a')
		default:
			bag |= 1 << 26
		}
	}
	return bag
}

// PathEntry is the identity-index row: it exists exactly when an Entry
// with that id exists in the path tree.
type PathEntry struct {
	Id            EntryId
	Path          string
	IsIgnored     bool
	ScanId        uint64
}

// UnmergedCode classifies one side of a Git merge conflict.
type UnmergedCode int

const (
	UnmergedAdded UnmergedCode = iota
	UnmergedUpdated
	UnmergedDeleted
)

// TrackedCode classifies a tracked file's index or worktree status.
type TrackedCode int

const (
	TrackedUnmodified TrackedCode = iota
	TrackedModified
	TrackedTypeChanged
	TrackedAdded
	TrackedDeleted
	TrackedRenamed
	TrackedCopied
)

// FileStatusKind discriminates the FileStatus tagged union.
type FileStatusKind int

const (
	StatusUntracked FileStatusKind = iota
	StatusIgnored
	StatusUnmerged
	StatusTracked
)

// FileStatus is a tagged union over the four ways Git classifies a path:
// Untracked, Ignored, Unmerged (with per-side codes), or Tracked (with
// independent index/worktree codes).
type FileStatus struct {
	Kind FileStatusKind

	// Valid when Kind == StatusUnmerged.
	FirstHead  UnmergedCode
	SecondHead UnmergedCode

	// Valid when Kind == StatusTracked.
	IndexStatus    TrackedCode
	WorktreeStatus TrackedCode
}

// SimpleStatus encodes the coarsest status as a single fallback code, per
// the wire format's simple_status field: Untracked/Ignored collapse to
// Added, Unmerged collapses to Conflict, and Tracked reports its
// worktree status if non-unmodified, else its index status.
type SimpleStatus int

const (
	SimpleAdded SimpleStatus = iota
	SimpleModified
	SimpleDeleted
	SimpleTypeChanged
	SimpleRenamed
	SimpleCopied
	SimpleConflict
	SimpleUnmodified
)

// Simple computes the SimpleStatus fallback for a FileStatus.
func (fs FileStatus) Simple() SimpleStatus {
	switch fs.Kind {
	case StatusUntracked, StatusIgnored:
		return SimpleAdded
	case StatusUnmerged:
		return SimpleConflict
	case StatusTracked:
		code := fs.WorktreeStatus
		if code == TrackedUnmodified {
			code = fs.IndexStatus
		}
		return trackedToSimple(code)
	default:
		return SimpleUnmodified
	}
}

func trackedToSimple(c TrackedCode) SimpleStatus {
	switch c {
	case TrackedModified:
		return SimpleModified
	case TrackedTypeChanged:
		return SimpleTypeChanged
	case TrackedAdded:
		return SimpleAdded
	case TrackedDeleted:
		return SimpleDeleted
	case TrackedRenamed:
		return SimpleRenamed
	case TrackedCopied:
		return SimpleCopied
	default:
		return SimpleUnmodified
	}
}

// StatusEntry pairs a repo-relative path with its FileStatus, as stored in
// a RepositoryEntry's status map.
type StatusEntry struct {
	RepoPath string
	Status   FileStatus
}

// RepositoryEntry describes one Git repository intersecting the worktree.
type RepositoryEntry struct {
	// WorkDirectory is the worktree-relative path to the repository's
	// work directory (empty string if the worktree root itself is inside
	// the repository's work directory, e.g. an external repo case).
	WorkDirectory string
	WorkDirectoryId EntryId

	// LocationInRepo is set when this repository's ".git" is an ancestor
	// of the worktree root: it is the suffix path from the repo root down
	// to the worktree root.
	LocationInRepo *string

	Branch *string

	// StatusByPath is keyed by repo-relative path.
	StatusByPath RepoStatusMap
}

// Relativize maps a worktree-relative path to a repo-relative path,
// accounting for LocationInRepo.
func (r RepositoryEntry) Relativize(worktreeRelPath string) string {
	if r.LocationInRepo == nil || *r.LocationInRepo == "" {
		return worktreeRelPath
	}
	if worktreeRelPath == "" {
		return *r.LocationInRepo
	}
	return *r.LocationInRepo + "/" + worktreeRelPath
}

// LocalRepositoryEntry is local-side-only bookkeeping for a discovered Git
// repository: the opaque repo handle plus scan-id watermarks.
type LocalRepositoryEntry struct {
	WorkDirectory EntryId
	// GitDirAbsPath is the absolute path of the repository's .git directory.
	GitDirAbsPath string
	// DotGitFileAbsPath is set when the worktree uses a linked work tree
	// (a ".git" file pointing elsewhere rather than a ".git" directory).
	DotGitFileAbsPath *string

	GitDirScanId   uint64
	StatusScanId   uint64
}
