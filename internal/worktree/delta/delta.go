// Package delta implements §4.3: computing a compact UpdateWorktree from
// two snapshots, applying one to a snapshot, and splitting an oversized
// update for transport. Grounded on gitcore.Repository.Diff/RepositoryDelta,
// generalized from commits/branches/tags to worktree entries/repositories.
package delta

import (
	"sort"

	"github.com/worktreehq/engine/internal/worktree"
)

// UpdateWorktree is the wire-level delta sent from a local worktree to a
// remote mirror, per the wire format's UpdateWorktree message.
type UpdateWorktree struct {
	ProjectId  string
	WorktreeId string

	AbsPath  string
	RootName string

	UpdatedEntries []worktree.Entry
	RemovedEntries []worktree.EntryId

	UpdatedRepositories []worktree.RepositoryEntry
	RemovedRepositories []string

	ScanId       uint64
	IsLastUpdate bool
}

// Build computes an UpdateWorktree from prev and cur, restricted to the
// relative paths named in touchedPaths (the scanner's build_change_set
// output narrowed to just the paths, since this package classifies
// Added/Updated/Removed itself rather than depending on the scanner's
// own ChangedPath type).
func Build(prev, cur worktree.Snapshot, touchedPaths []string, projectId, worktreeId string) UpdateWorktree {
	u := UpdateWorktree{
		ProjectId:    projectId,
		WorktreeId:   worktreeId,
		AbsPath:      cur.AbsPath,
		RootName:     cur.RootName,
		ScanId:       cur.ScanId,
		IsLastUpdate: cur.CompletedScanId == cur.ScanId,
	}

	updatedById := make(map[worktree.EntryId]worktree.Entry)
	removedIds := make(map[worktree.EntryId]bool)

	for _, p := range touchedPaths {
		oldEntry, hadOld := prev.EntryForPath(p)
		newEntry, hasNew := cur.EntryForPath(p)
		if hasNew {
			updatedById[newEntry.Id] = newEntry
		}
		if hadOld && (!hasNew || oldEntry.Id != newEntry.Id) {
			removedIds[oldEntry.Id] = true
		}
	}

	// A path re-created with a new id legitimately contributes its old id
	// to removed_entries and its new id to updated_entries; only same-id
	// duplicates (an entry updated in place, or moved to another touched
	// path) are suppressed from removed_entries.
	for id := range updatedById {
		delete(removedIds, id)
	}

	for _, e := range updatedById {
		u.UpdatedEntries = append(u.UpdatedEntries, e)
	}
	sort.Slice(u.UpdatedEntries, func(i, j int) bool { return u.UpdatedEntries[i].Id < u.UpdatedEntries[j].Id })

	for id := range removedIds {
		u.RemovedEntries = append(u.RemovedEntries, id)
	}
	sort.Slice(u.RemovedEntries, func(i, j int) bool { return u.RemovedEntries[i] < u.RemovedEntries[j] })

	buildRepositoryChanges(&u, prev, cur)
	return u
}

// buildRepositoryChanges implements changed_repos: any repository present
// in cur that is new or whose branch/status map changed is updated_
// repositories; any repository present in prev but absent from cur is
// removed_repositories.
func buildRepositoryChanges(u *UpdateWorktree, prev, cur worktree.Snapshot) {
	prevRepos := make(map[string]worktree.RepositoryEntry)
	prev.Repositories.Each(func(r worktree.RepositoryEntry) bool {
		prevRepos[r.WorkDirectory] = r
		return true
	})

	seen := make(map[string]bool)
	cur.Repositories.Each(func(r worktree.RepositoryEntry) bool {
		seen[r.WorkDirectory] = true
		old, hadOld := prevRepos[r.WorkDirectory]
		if !hadOld || repositoryChanged(old, r) {
			u.UpdatedRepositories = append(u.UpdatedRepositories, r)
		}
		return true
	})
	sort.Slice(u.UpdatedRepositories, func(i, j int) bool {
		return u.UpdatedRepositories[i].WorkDirectoryId < u.UpdatedRepositories[j].WorkDirectoryId
	})

	for workDir := range prevRepos {
		if !seen[workDir] {
			u.RemovedRepositories = append(u.RemovedRepositories, workDir)
		}
	}
	sort.Strings(u.RemovedRepositories)
}

func repositoryChanged(old, cur worktree.RepositoryEntry) bool {
	if (old.Branch == nil) != (cur.Branch == nil) {
		return true
	}
	if old.Branch != nil && cur.Branch != nil && *old.Branch != *cur.Branch {
		return true
	}
	if old.StatusByPath.Len() != cur.StatusByPath.Len() {
		return true
	}
	changed := false
	cur.StatusByPath.Each(func(e worktree.StatusEntry) bool {
		prevEntry, ok := old.StatusByPath.Get(e.RepoPath)
		if !ok || prevEntry.Status != e.Status {
			changed = true
			return false
		}
		return true
	})
	return changed
}
