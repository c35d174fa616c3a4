// Package scan implements the background scanner (§4.1): the initial
// recursive walk, filesystem-event processing, ignore-stack propagation,
// and rename-by-inode detection that keep a Snapshot live.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/worktreehq/engine/internal/worktree"
	"github.com/worktreehq/engine/internal/worktree/fs"
	"github.com/worktreehq/engine/internal/worktree/gitrepo"
	"github.com/worktreehq/engine/internal/worktree/ignore"
)

// Phase tracks where the scanner is in its lifecycle, per §4.1. It is
// reported by Scanner.Phase; buildChangeSet does not consult it, so there
// is no separate Loaded classification for the initial scan.
type Phase int

const (
	PhaseInitialScan Phase = iota
	PhaseEventsReceivedDuringInitialScan
	PhaseEvents
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialScan:
		return "initial_scan"
	case PhaseEventsReceivedDuringInitialScan:
		return "events_received_during_initial_scan"
	case PhaseEvents:
		return "events"
	default:
		return "unknown"
	}
}

// UpdateKind discriminates the three status-update variants the scanner
// emits to the facade.
type UpdateKind int

const (
	UpdateStarted UpdateKind = iota
	UpdateSnapshot
	UpdateRootMoved
)

// Update is sent on the Scanner's status channel.
type Update struct {
	Kind        UpdateKind
	Snapshot    worktree.Snapshot
	Changes     []ChangedPath
	Scanning    bool
	Barrier     uint64
	NewRootPath string
}

// Config bundles the scanner's tunables, populated from cmd/worktreed's
// flags (see SPEC_FULL.md's AMBIENT STACK).
type Config struct {
	RootAbsPath         string
	RootName            string
	NumWorkers          int
	LocalSettingsFolder string
	ExcludePatterns     []string
	IncludePatterns     []string
	PrivatePatterns     []string
	CaseInsensitive     bool
	Logger              *slog.Logger
}

// LocalRepositoryEntry mirrors the identically-named §3 type: a repository
// known to the scanner, keyed by its work-directory EntryId.
type LocalRepositoryEntry struct {
	WorkDirectory   worktree.EntryId
	Repo            *gitrepo.Repository
	GitDirScanId    uint64
	StatusScanId    uint64
}

// LocalSnapshot extends worktree.Snapshot with the scanner-private state
// named in §3: per-ancestor ignore-refresh tracking and the local
// repository map. It is never exposed outside this package; Subscribe/
// Snapshot callers only ever see the embedded worktree.Snapshot.
type LocalSnapshot struct {
	worktree.Snapshot

	ignoreFiles  map[string]*ignore.File // keyed by absolute ancestor directory
	repositories map[worktree.EntryId]*LocalRepositoryEntry
}

func newLocalSnapshot(id, absPath, rootName string) LocalSnapshot {
	return LocalSnapshot{
		Snapshot:     worktree.NewSnapshot(id, absPath, rootName),
		ignoreFiles:  make(map[string]*ignore.File),
		repositories: make(map[worktree.EntryId]*LocalRepositoryEntry),
	}
}

// removedEntry records an entry removed during the current update batch,
// kept briefly so a same-inode reappearance can reuse its id (§3
// "rename reuse").
type removedEntry struct {
	entry worktree.Entry
}

// Scanner owns the mutex-protected BackgroundScannerState (§5): the local
// snapshot, the removed-by-inode map, and registered path prefixes. All
// mutation happens under mu; no I/O is performed while mu is held.
type Scanner struct {
	cfg Config
	fsi fs.Filesystem
	ids *worktree.IdAllocator

	exclude ignore.GlobSet
	include ignore.GlobSet
	private ignore.GlobSet

	mu              sync.Mutex
	snapshot        LocalSnapshot
	prevSnapshot    worktree.Snapshot
	removedByInode  map[uint64]removedEntry
	pathPrefixes    []string
	pendingRefresh  []string
	scannedSet      map[string]bool
	scanning        bool
	phase           Phase

	updates chan Update
	refresh chan []string
	prefix  chan string
	events  chan []string
}

// New constructs a Scanner for cfg, ready to Run. The caller owns cfg.Logger
// (falling back to slog.Default() when nil).
func New(cfg Config, filesystem fs.Filesystem) *Scanner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.LocalSettingsFolder == "" {
		cfg.LocalSettingsFolder = ".worktree"
	}
	return &Scanner{
		cfg:            cfg,
		fsi:            filesystem,
		ids:            worktree.NewIdAllocator(),
		exclude:        ignore.NewGlobSet(cfg.ExcludePatterns),
		include:        ignore.NewGlobSet(cfg.IncludePatterns),
		private:        ignore.NewGlobSet(cfg.PrivatePatterns),
		snapshot:       newLocalSnapshot(cfg.RootName, cfg.RootAbsPath, cfg.RootName),
		removedByInode: make(map[uint64]removedEntry),
		updates:        make(chan Update, 8),
		refresh:        make(chan []string, 8),
		prefix:         make(chan string, 8),
		events:         make(chan []string, 8),
	}
}

// openRepository opens the Git repository rooted at dotGitPath.
func (s *Scanner) openRepository(dotGitPath string) (*gitrepo.Repository, error) {
	return gitrepo.Open(dotGitPath)
}

// Updates returns the channel the facade should drain for UpdateStarted/
// UpdateSnapshot/UpdateRootMoved notifications.
func (s *Scanner) Updates() <-chan Update { return s.updates }

// Phase returns the scanner's current lifecycle phase.
func (s *Scanner) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// IsExcluded reports whether relPath matches the scanner's exclusion
// patterns, the check the mutation API runs before indexing a
// freshly-created path (§4.5's "excluded" marker).
func (s *Scanner) IsExcluded(relPath string, isDir bool) bool {
	return s.exclude.Match(relPath, isDir)
}

// SharePrivateFiles implements §4.5's share_private_files: clears the
// privacy filter and forces every currently-private path to be
// reconsidered by re-requesting the whole tree.
func (s *Scanner) SharePrivateFiles() {
	s.mu.Lock()
	s.private = ignore.GlobSet{}
	s.mu.Unlock()
	s.RequestRefresh([]string{""})
}

// Snapshot returns the current public snapshot. Safe for concurrent use.
func (s *Scanner) Snapshot() worktree.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Snapshot.Clone()
}

// RequestRefresh enqueues relative paths for event-style reprocessing, used
// by the mutation API after create/rename/write so the caller's change is
// reflected without waiting for a filesystem-watch round trip.
func (s *Scanner) RequestRefresh(relPaths []string) {
	select {
	case s.refresh <- relPaths:
	default:
		go func() { s.refresh <- relPaths }()
	}
}

// AddPathPrefixToScan installs a prefix that causes any directory beneath
// it to be scanned eagerly, even if currently UnloadedDir (§4.5).
func (s *Scanner) AddPathPrefixToScan(prefix string) {
	select {
	case s.prefix <- prefix:
	default:
		go func() { s.prefix <- prefix }()
	}
}

// NotifyEvents feeds a raw batch of absolute paths observed by an
// fs.Watcher into the scanner's event queue.
func (s *Scanner) NotifyEvents(absPaths []string) {
	select {
	case s.events <- absPaths:
	default:
		go func() { s.events <- absPaths }()
	}
}

// Run drives the scanner's lifecycle until ctx is canceled: it performs
// the initial scan, then services refresh/prefix/event requests with a
// biased select favoring user-driven requests over raw filesystem events
// (§5 "Coroutine control flow").
func (s *Scanner) Run(ctx context.Context) error {
	s.updates <- Update{Kind: UpdateStarted}

	if err := s.registerAncestorGitignoresAndRepos(); err != nil {
		return fmt.Errorf("scan: ancestor walk: %w", err)
	}

	s.mu.Lock()
	s.scanning = true
	s.phase = PhaseInitialScan
	s.mu.Unlock()

	if err := s.runInitialScan(ctx); err != nil {
		return fmt.Errorf("scan: initial scan: %w", err)
	}

	s.mu.Lock()
	s.snapshot.CompletedScanId = s.snapshot.ScanId
	s.scanning = false
	if s.phase == PhaseInitialScan {
		s.phase = PhaseEvents
	}
	s.mu.Unlock()
	s.emitUpdate(nil)

	for {
		// User-driven requests are taken first whenever one is ready, so a
		// burst of filesystem events cannot delay them.
		select {
		case relPaths := <-s.refresh:
			s.processEventBatch(ctx, relPaths, true)
			continue
		case p := <-s.prefix:
			s.mu.Lock()
			s.pathPrefixes = append(s.pathPrefixes, p)
			s.mu.Unlock()
			s.processEventBatch(ctx, []string{p}, true)
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case relPaths := <-s.refresh:
			s.processEventBatch(ctx, relPaths, true)
		case p := <-s.prefix:
			s.mu.Lock()
			s.pathPrefixes = append(s.pathPrefixes, p)
			s.mu.Unlock()
			s.processEventBatch(ctx, []string{p}, true)
		case absPaths := <-s.events:
			rel := s.relativizeEventPaths(absPaths)
			s.processEventBatch(ctx, rel, false)
		}
	}
}

func (s *Scanner) relativizeEventPaths(absPaths []string) []string {
	root := s.cfg.RootAbsPath
	var rel []string
	for _, p := range absPaths {
		if p == root {
			rel = append(rel, "")
			continue
		}
		prefix := root
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if !strings.HasPrefix(p, prefix) {
			continue // outside the root; dropped per §4.1 step 2
		}
		rel = append(rel, filepath.ToSlash(strings.TrimPrefix(p, prefix)))
	}
	return dedupeSortedPrefixes(rel)
}

// dedupeSortedPrefixes sorts paths and collapses any path that is a prefix
// of another, per §4.1 step 2's batch deduplication.
func dedupeSortedPrefixes(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	out := sorted[:1]
	for _, p := range sorted[1:] {
		last := out[len(out)-1]
		if last == "" || p == last || strings.HasPrefix(p, last+"/") {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Scanner) emitUpdate(changes []ChangedPath) {
	s.mu.Lock()
	snap := s.snapshot.Snapshot.Clone()
	scanning := s.scanning
	barrier := s.snapshot.ScanId
	s.mu.Unlock()

	select {
	case s.updates <- Update{Kind: UpdateSnapshot, Snapshot: snap, Changes: changes, Scanning: scanning, Barrier: barrier}:
	case <-time.After(time.Second):
		s.cfg.Logger.Warn("scan: update channel full, dropping snapshot notification")
	}
}
