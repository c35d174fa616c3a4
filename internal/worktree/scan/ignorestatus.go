package scan

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/worktreehq/engine/internal/worktree"
)

// updateIgnoreStatuses implements §4.1's update_ignore_statuses: every
// registered gitignore flagged NeedsRefresh is reloaded, then each of its
// directory's direct children has is_ignored recomputed from the updated
// stack. A child directory that becomes unignored is enqueued for a full
// scan when should_scan_directory now permits it.
func (s *Scanner) updateIgnoreStatuses(ctx context.Context) {
	var dirty []string
	s.mu.Lock()
	for dir, f := range s.snapshot.ignoreFiles {
		if f.NeedsRefresh {
			dirty = append(dirty, dir)
		}
	}
	s.mu.Unlock()
	if len(dirty) == 0 {
		return
	}
	sort.Strings(dirty)

	for _, dir := range dirty {
		s.mu.Lock()
		f := s.snapshot.ignoreFiles[dir]
		s.mu.Unlock()
		if f == nil {
			continue
		}
		if err := f.Reload(); err != nil {
			s.cfg.Logger.Warn("scan: reloading gitignore failed", "path", f.SourcePath, "err", err)
			continue
		}
		s.refreshChildrenIgnoreStatus(ctx, dir)
	}
}

func (s *Scanner) refreshChildrenIgnoreStatus(ctx context.Context, absDir string) {
	relDir := relFromRoot(s.cfg.RootAbsPath, absDir)
	stack := s.ancestorGitignoreStack()

	var toRescan []string
	s.mu.Lock()
	var children []worktree.Entry
	s.snapshot.Snapshot.ChildEntries(relDir, func(e worktree.Entry) bool {
		children = append(children, e)
		return true
	})
	s.mu.Unlock()

	for _, e := range children {
		absChild := filepath.Join(s.cfg.RootAbsPath, filepath.FromSlash(e.Path))
		newIgnored := stack.IsIgnored(absChild, e.IsDir())
		if newIgnored == e.IsIgnored {
			continue
		}
		e.IsIgnored = newIgnored
		s.mu.Lock()
		s.snapshot.Snapshot = s.snapshot.InsertEntry(e)
		s.mu.Unlock()

		if e.IsDir() && !newIgnored && s.shouldScanDirectory(e, scanJob{relDir: e.Path}) {
			toRescan = append(toRescan, absChild)
		}
	}

	for _, absChild := range toRescan {
		s.scanOneDirectory(absChild, relFromRoot(s.cfg.RootAbsPath, absChild))
	}
}

func relFromRoot(root, abs string) string {
	if abs == root {
		return ""
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return ""
	}
	return filepath.ToSlash(rel)
}
