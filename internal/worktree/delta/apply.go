package delta

import "github.com/worktreehq/engine/internal/worktree"

// Apply implements the §4.3 remote-side apply step: update root identity,
// remove/insert entries, remove/update repositories, and advance scan_id
// (completed_scan_id only when IsLastUpdate).
func Apply(snap worktree.Snapshot, u UpdateWorktree) worktree.Snapshot {
	// RepositoryIndex is gods-backed and not copy-on-write like the rest of
	// Snapshot, so a caller holding an earlier promoted snapshot must not
	// see its Repositories mutate once this call starts Put/Remove-ing.
	snap.Repositories = snap.Repositories.Clone()

	if u.AbsPath != "" {
		snap.AbsPath = u.AbsPath
	}
	if u.RootName != "" && u.RootName != snap.RootName {
		snap.RootName = u.RootName
		snap.RootCharBag = worktree.CharBagFor(u.RootName)
	}

	for _, id := range u.RemovedEntries {
		snap = snap.DeleteEntry(id)
	}

	for _, e := range u.UpdatedEntries {
		if old, ok := snap.EntryForId(e.Id); ok && old.Path != e.Path {
			snap = snap.DeleteEntry(old.Id)
		}
		if occupant, ok := snap.EntryForPath(e.Path); ok && occupant.Id != e.Id {
			snap = snap.DeleteEntry(occupant.Id)
		}
		snap = snap.InsertEntry(e)
	}

	for _, workDir := range u.RemovedRepositories {
		snap.Repositories.Remove(workDir)
	}
	for _, r := range u.UpdatedRepositories {
		if r.WorkDirectory == "" {
			// The wire form only carries WorkDirectoryId; resolve it against
			// the now-updated entry set (the corresponding Entry, if new,
			// was applied above in this same call).
			if e, ok := snap.EntryForId(r.WorkDirectoryId); ok {
				r.WorkDirectory = e.Path
			}
		}
		applyRepository(snap, r)
	}

	snap.ScanId = u.ScanId
	if u.IsLastUpdate {
		snap.CompletedScanId = u.ScanId
	}
	return snap
}

// applyRepository implements "replay the ordered-edits diff, refresh the
// branch" for an already-known repository, or a fresh construction
// (location_in_repo = None) for a newly-seen one.
func applyRepository(snap worktree.Snapshot, r worktree.RepositoryEntry) {
	existing, ok := snap.Repositories.Get(r.WorkDirectory)
	if !ok {
		r.LocationInRepo = nil
		snap.Repositories.Put(r)
		return
	}
	existing.Branch = r.Branch
	existing.WorkDirectoryId = r.WorkDirectoryId

	var stale []string
	existing.StatusByPath.Each(func(e worktree.StatusEntry) bool {
		if _, ok := r.StatusByPath.Get(e.RepoPath); !ok {
			stale = append(stale, e.RepoPath)
		}
		return true
	})
	for _, p := range stale {
		existing.StatusByPath.Remove(p)
	}
	r.StatusByPath.Each(func(e worktree.StatusEntry) bool {
		existing.StatusByPath.Put(e)
		return true
	})
	snap.Repositories.Put(existing)
}
