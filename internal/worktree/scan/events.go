package scan

import (
	"context"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/worktreehq/engine/internal/worktree"
	"github.com/worktreehq/engine/internal/worktree/fs"
)

// processEventBatch implements §4.1's event-processing steps 2-8 for one
// batch of relative paths. userDriven distinguishes refresh/path-prefix
// requests (always processed) from raw filesystem events (subject to the
// "parent must already be Loaded" and exclusion filters).
func (s *Scanner) processEventBatch(ctx context.Context, relPaths []string, userDriven bool) {
	relPaths = dedupeSortedPrefixes(relPaths)

	var surviving []string
	for _, p := range relPaths {
		if !userDriven {
			if s.exclude.Match(p, false) {
				continue
			}
			if !s.parentIsLoaded(p) {
				continue
			}
		}
		surviving = append(surviving, p)
	}
	if len(surviving) == 0 {
		return
	}

	s.mu.Lock()
	prev := s.snapshot.Snapshot.Clone()
	s.snapshot.ScanId++
	s.scanning = true
	s.mu.Unlock()

	touched := s.reloadEntriesForPaths(surviving)
	s.updateIgnoreStatuses(ctx)

	s.mu.Lock()
	s.snapshot.CompletedScanId = s.snapshot.ScanId
	s.scanning = false
	s.removedByInode = make(map[uint64]removedEntry)
	cur := s.snapshot.Snapshot.Clone()
	s.mu.Unlock()

	s.emitUpdate(buildChangeSet(prev, cur, touched))
}

func (s *Scanner) parentIsLoaded(relPath string) bool {
	parent := parentOf(relPath)
	if parent == "" {
		return true // worktree root is always considered loaded
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.snapshot.Paths.Get(parent)
	return ok && e.Kind != worktree.KindUnloadedDir
}

func parentOf(relPath string) string {
	idx := strings.LastIndex(relPath, "/")
	if idx < 0 {
		return ""
	}
	return relPath[:idx]
}

// reloadedPath is a requested path that still exists on disk after the
// removal pass, carrying what reloadEntriesForPaths needs to build and
// insert its fresh entry.
type reloadedPath struct {
	relPath string
	absPath string
	md      *fs.Metadata
}

// reloadEntriesForPaths re-stats each relative path, removing entries that
// have disappeared and inserting fresh ones for paths whose metadata is
// still present, enqueuing any newly-loaded directory for a scan. It
// returns the touched relative paths for build_change_set to classify.
//
// Per §4.1, every requested path is removed first, then every still-present
// path is re-added. Removing up front — rather than interleaving remove and
// add per path — makes rename-id reuse order-independent: a rename from
// b/x to a/x must free x's old id before a/x is built, regardless of
// whether "a/x" or "b/x" sorts first in this batch.
func (s *Scanner) reloadEntriesForPaths(relPaths []string) []string {
	touched := append([]string(nil), relPaths...)

	present := make([]reloadedPath, 0, len(relPaths))
	for _, relPath := range relPaths {
		absPath := filepath.Join(s.cfg.RootAbsPath, filepath.FromSlash(relPath))
		if relPath == "" {
			absPath = s.cfg.RootAbsPath
		}

		md, err := s.fsi.Metadata(absPath)
		if err != nil {
			s.cfg.Logger.Warn("scan: stat failed", "path", absPath, "err", err)
			md = nil
		}

		// On a case-insensitive filesystem, Metadata succeeds for any
		// case of an existing name. A result whose on-disk case disagrees
		// with the requested relPath must be treated as gone: only the
		// canonical-case path (also present in this batch for a rename)
		// should survive.
		if md != nil && relPath != "" && s.cfg.CaseInsensitive && s.isCaseMismatch(absPath, relPath) {
			md = nil
		}

		s.mu.Lock()
		old, hadOld := s.snapshot.Paths.Get(relPath)
		if hadOld {
			s.removedByInode[old.Inode] = removedEntry{entry: old}
			s.snapshot.Snapshot = s.snapshot.DeleteEntry(old.Id)
			// Descendants of the path are removed with it.
			prefix := strings.TrimPrefix(relPath+"/", "/")
			var stale []worktree.Entry
			s.snapshot.Paths.Range(prefix, func(p string, e worktree.Entry) bool {
				if !strings.HasPrefix(p, prefix) {
					return false
				}
				stale = append(stale, e)
				return true
			})
			for _, e := range stale {
				s.removedByInode[e.Inode] = removedEntry{entry: e}
				s.snapshot.Snapshot = s.snapshot.DeleteEntry(e.Id)
			}
		}
		s.mu.Unlock()

		if md == nil {
			continue
		}
		present = append(present, reloadedPath{relPath: relPath, absPath: absPath, md: md})
	}

	for _, p := range present {
		if filepath.Base(p.relPath) == ".gitignore" {
			s.mu.Lock()
			if f, ok := s.snapshot.ignoreFiles[filepath.Dir(p.absPath)]; ok {
				f.MarkNeedsRefresh()
			}
			s.mu.Unlock()
		}

		stack := s.ancestorGitignoreStack()
		job := scanJob{absDir: filepath.Dir(p.absPath), relDir: parentOf(p.relPath)}
		entry := s.buildEntry(p.relPath, p.absPath, p.md, stack, job)

		s.mu.Lock()
		s.snapshot.Snapshot = s.snapshot.InsertEntry(entry)
		s.mu.Unlock()

		if entry.IsDir() {
			if s.shouldScanDirectory(entry, job) || (p.relPath != "" && filepath.Base(p.relPath) == ".git") {
				s.scanOneDirectory(p.absPath, p.relPath)
			} else {
				s.mu.Lock()
				if e2, ok := s.snapshot.Paths.Get(p.relPath); ok {
					e2.Kind = worktree.KindUnloadedDir
					s.snapshot.Snapshot = s.snapshot.InsertEntry(e2)
				}
				s.mu.Unlock()
			}
		}
	}

	return touched
}

// isCaseMismatch reports whether relPath's requested case disagrees with
// the filesystem's canonical on-disk case for absPath.
func (s *Scanner) isCaseMismatch(absPath, relPath string) bool {
	canon, err := s.fsi.Canonicalize(absPath)
	if err != nil {
		return false
	}
	return filepath.Base(canon) != filepath.Base(relPath)
}

// scanOneDirectory runs a recursive scan starting at absDir, used by event
// processing when a directory transitions from UnloadedDir to scanned, or
// needs its children relisted (e.g. after a `.git` directory appears).
func (s *Scanner) scanOneDirectory(absDir, relDir string) {
	eg, ctx := errgroup.WithContext(context.Background())
	sem := semaphore.NewWeighted(int64(s.cfg.NumWorkers))
	var enqueue func(job scanJob)
	enqueue = func(job scanJob) {
		eg.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			children, err := s.scanDirectory(job)
			if err != nil {
				s.cfg.Logger.Warn("scan: directory failed", "dir", job.absDir, "err", err)
			}
			for _, c := range children {
				enqueue(c)
			}
			return nil
		})
	}
	enqueue(scanJob{absDir: absDir, relDir: relDir, ignoreStack: s.ancestorGitignoreStack(), ancestorInodes: map[uint64]bool{}})
	eg.Wait() //nolint:errcheck // per-directory errors are logged, not fatal to the batch
}
