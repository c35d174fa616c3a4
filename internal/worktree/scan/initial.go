package scan

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/worktreehq/engine/internal/worktree"
	"github.com/worktreehq/engine/internal/worktree/fs"
	"github.com/worktreehq/engine/internal/worktree/ignore"
)

// runInitialScan performs the §4.1 initial recursive walk using a
// work-stealing pool of cfg.NumWorkers goroutines: scanDirectory's
// recursive fan-out is expressed as nested errgroup.Go calls bounded by a
// weighted semaphore, so dynamically discovered subdirectories are
// scheduled without a separate queue-draining loop.
func (s *Scanner) runInitialScan(ctx context.Context) error {
	s.mu.Lock()
	s.snapshot.ScanId++
	s.mu.Unlock()

	eg, egCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(s.cfg.NumWorkers))

	var enqueue func(job scanJob)
	enqueue = func(job scanJob) {
		eg.Go(func() error {
			if err := sem.Acquire(egCtx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			children, err := s.scanDirectory(job)
			if err != nil {
				s.cfg.Logger.Warn("scan: directory failed", "dir", job.absDir, "err", err)
			}
			for _, child := range children {
				enqueue(child)
			}
			return nil
		})
	}

	rootJob := scanJob{
		absDir:         s.cfg.RootAbsPath,
		relDir:         "",
		ignoreStack:    s.ancestorGitignoreStack(),
		ancestorInodes: map[uint64]bool{},
	}
	enqueue(rootJob)

	if err := eg.Wait(); err != nil {
		return err
	}

	s.fixupRootRepositoryId()
	return nil
}

// fixupRootRepositoryId patches the WorkDirectoryId of a repository
// registered above the worktree root (§4.1 step 1), which cannot be known
// until the root directory's own Entry exists.
func (s *Scanner) fixupRootRepositoryId() {
	s.mu.Lock()
	defer s.mu.Unlock()
	rootEntry, ok := s.snapshot.Paths.Get("")
	if !ok {
		return
	}
	if repo, ok := s.snapshot.Repositories.Get(""); ok && repo.WorkDirectoryId == 0 {
		repo.WorkDirectoryId = rootEntry.Id
		s.snapshot.Repositories.Put(repo)
	}
}

// scanDirectory lists absDir's children, builds an Entry for each, and
// returns the child directories that should_scan_directory permits
// recursing into.
func (s *Scanner) scanDirectory(job scanJob) ([]scanJob, error) {
	names, err := s.fsi.ReadDir(job.absDir)
	if err != nil {
		return nil, fmt.Errorf("scan: read dir %s: %w", job.absDir, err)
	}
	sortChildrenGitFirst(names)

	stack := job.ignoreStack
	var entries []worktree.Entry
	var children []scanJob
	var errs error

	for _, name := range names {
		relPath := joinRel(job.relDir, name)
		absPath := filepath.Join(job.absDir, name)

		if s.exclude.Match(relPath, false) {
			continue
		}

		if name == ".git" {
			if err := s.registerRepositoryAt(absPath, job.relDir); err != nil {
				errs = multierr.Append(errs, err)
			}
		}

		md, err := s.fsi.Metadata(absPath)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("scan: stat %s: %w", absPath, err))
			continue
		}
		if md == nil {
			continue // disappeared between ReadDir and Metadata
		}

		if name == ".gitignore" {
			f, err := ignore.Load(job.absDir, absPath)
			if err == nil {
				stack = stack.Push(f)
				s.mu.Lock()
				s.snapshot.ignoreFiles[job.absDir] = f
				s.mu.Unlock()
			}
		}

		entry := s.buildEntry(relPath, absPath, md, stack, job)
		entries = append(entries, entry)

		if entry.IsDir() {
			if s.shouldScanDirectory(entry, job) {
				inodes := job.ancestorInodes
				if md.IsSymlink {
					if inodes[entry.Inode] {
						continue // recursive symlink; do not recurse further
					}
					next := make(map[uint64]bool, len(inodes)+1)
					for k := range inodes {
						next[k] = true
					}
					next[entry.Inode] = true
					inodes = next
				}
				children = append(children, scanJob{
					absDir:         absPath,
					relDir:         relPath,
					ignoreStack:    stack,
					ancestorInodes: inodes,
				})
			} else {
				entries[len(entries)-1].Kind = worktree.KindUnloadedDir
			}
		}
	}

	s.insertEntries(entries)
	s.markScanned(job.relDir)
	return children, errs
}

// buildEntry computes an Entry's ignore/always-included/external/private
// flags per §4.1.
func (s *Scanner) buildEntry(relPath, absPath string, md *fs.Metadata, stack ignore.Stack, job scanJob) worktree.Entry {
	isDir := md.IsDir
	entry := worktree.Entry{
		Kind:             worktree.KindFile,
		Path:             relPath,
		Inode:            md.Inode,
		ModTime:          md.ModTime,
		Size:             md.Len,
		IsFifo:           md.IsFifo,
		IsAlwaysIncluded: s.include.Match(relPath, isDir),
		IsPrivate:        s.private.Match(relPath, isDir),
		CharBag:          worktree.CharBagFor(relPath),
	}
	if isDir {
		entry.Kind = worktree.KindDir
	}
	if md.IsSymlink {
		if real, err := s.fsi.Canonicalize(absPath); err == nil {
			entry.CanonicalPath = real
			rootReal, err2 := s.fsi.Canonicalize(s.cfg.RootAbsPath)
			if err2 != nil || !strings.HasPrefix(real, rootReal) {
				entry.IsExternal = true
			}
		} else {
			entry.IsExternal = true
		}
	}
	entry.IsIgnored = stack.IsIgnored(absPath, isDir)

	entry.Id = s.allocateOrReuseId(entry)
	return entry
}

// allocateOrReuseId implements §3's "rename reuse": an entry removed
// earlier in the current update with the same inode reuses its id when
// mtime or path matches; otherwise an entry already at the target path
// reuses its id; otherwise a fresh id is allocated.
func (s *Scanner) allocateOrReuseId(e worktree.Entry) worktree.EntryId {
	s.mu.Lock()
	defer s.mu.Unlock()

	if removed, ok := s.removedByInode[e.Inode]; ok {
		if removed.entry.ModTime.Equal(e.ModTime) || removed.entry.Path == e.Path {
			delete(s.removedByInode, e.Inode)
			return removed.entry.Id
		}
	}
	if existing, ok := s.snapshot.Paths.Get(e.Path); ok {
		return existing.Id
	}
	return s.ids.Next()
}

func (s *Scanner) insertEntries(entries []worktree.Entry) {
	if len(entries) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.snapshot.Snapshot = s.snapshot.InsertEntry(e)
	}
}

func (s *Scanner) markScanned(relDir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scannedSet == nil {
		s.scannedSet = make(map[string]bool)
	}
	s.scannedSet[relDir] = true
}

func (s *Scanner) wasScanned(relDir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scannedSet[relDir]
}

// shouldScanDirectory implements §4.1's should_scan_directory predicate.
func (s *Scanner) shouldScanDirectory(e worktree.Entry, job scanJob) bool {
	if (!e.IsExternal && !e.IsIgnored) || e.IsAlwaysIncluded {
		return true
	}
	name := path.Base(e.Path)
	if name == ".git" || name == s.cfg.LocalSettingsFolder {
		return true
	}
	if s.wasScanned(e.Path) {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pendingRefresh {
		if strings.HasPrefix(p, e.Path) {
			return true
		}
	}
	for _, p := range s.pathPrefixes {
		if strings.HasPrefix(e.Path, p) {
			return true
		}
	}
	return false
}

// sortChildrenGitFirst brings `.git` and `.gitignore` to the front of
// names so they are processed before their siblings, per §4.1.
func sortChildrenGitFirst(names []string) {
	rank := func(n string) int {
		switch n {
		case ".git":
			return 0
		case ".gitignore":
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		ri, rj := rank(names[i]), rank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
}

func joinRel(relDir, name string) string {
	if relDir == "" {
		return name
	}
	return relDir + "/" + name
}

func (s *Scanner) registerRepositoryAt(dotGitAbsPath, workDirRelPath string) error {
	repo, err := s.openRepository(dotGitAbsPath)
	if err != nil {
		return fmt.Errorf("scan: open repository at %s: %w", dotGitAbsPath, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := worktree.NewRepoStatusMap()
	var branch *string
	if name, ok := repo.BranchName(); ok {
		branch = &name
	}
	s.snapshot.Repositories.Put(worktree.RepositoryEntry{
		WorkDirectory: workDirRelPath,
		Branch:        branch,
		StatusByPath:  statuses,
	})
	return nil
}
