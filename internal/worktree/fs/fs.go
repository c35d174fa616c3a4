// Package fs abstracts the filesystem primitives the scanner and mutation
// API need, so tests can substitute an in-memory capability without
// touching disk and the real implementation can be swapped for a
// networked or virtualized filesystem without touching scanner logic.
package fs

import (
	"context"
	"io"
	"time"
)

// Metadata describes a single filesystem entry, independent of OS.
type Metadata struct {
	IsDir     bool
	IsSymlink bool
	IsFifo    bool
	Inode     uint64
	ModTime   time.Time
	Len       int64
}

// LineEnding records which newline convention Save should write.
type LineEnding int

const (
	LineEndingUnix LineEnding = iota
	LineEndingWindows
)

// CreateOptions controls CreateFile/CreateDir behavior.
type CreateOptions struct {
	// IgnoreIfExists makes creation a no-op (success) when the target
	// already exists, instead of returning an error.
	IgnoreIfExists bool
}

// RemoveOptions controls Remove{File,Dir} behavior.
type RemoveOptions struct {
	Recursive      bool
	IgnoreIfNotExists bool
}

// RenameOptions controls Rename behavior.
type RenameOptions struct {
	// OverwriteIfExists allows the rename to replace an existing dst, used
	// internally to resolve case-only-rename conflicts on case-insensitive
	// filesystems.
	OverwriteIfExists bool
}

// Event describes a single filesystem change delivered by a Watcher.
type Event struct {
	Path string
}

// Watcher is a live filesystem watch; Add registers additional paths
// (directories discovered after the initial Watch call, e.g. a `.git`
// directory found mid-scan).
type Watcher interface {
	Events() <-chan Event
	Errors() <-chan error
	Add(path string) error
	Close() error
}

// Filesystem is the capability surface consumed by the scanner, the
// mutation API, and the Git repository adapter. Every method takes an
// absolute, OS-native path.
type Filesystem interface {
	// Metadata returns nil, nil if path does not exist.
	Metadata(path string) (*Metadata, error)
	Canonicalize(path string) (string, error)
	IsCaseSensitive() (bool, error)

	ReadDir(path string) ([]string, error)
	Load(path string) (string, error)
	LoadBytes(path string) ([]byte, error)
	Save(path string, r io.Reader, ending LineEnding) error

	CreateDir(path string, opts CreateOptions) error
	CreateFile(path string, opts CreateOptions) error
	Rename(src, dst string, opts RenameOptions) error
	RemoveFile(path string, opts RemoveOptions) error
	RemoveDir(path string, opts RemoveOptions) error
	TrashFile(path string, opts RemoveOptions) error
	TrashDir(path string, opts RemoveOptions) error

	// Watch returns a live stream of events under path, debounced by
	// latency. The returned Watcher must be closed by the caller.
	Watch(ctx context.Context, path string, latency time.Duration) (Watcher, error)
}
