package wire

import (
	"github.com/worktreehq/engine/internal/worktree"
	"github.com/worktreehq/engine/internal/worktree/delta"
)

// ToEntry converts a wire Entry back into a worktree.Entry. The resulting
// Kind is KindDir/KindFile based on IsDir; a remote mirror never needs the
// KindPendingDir/KindUnloadedDir distinction since it only ever receives
// fully-resolved entries.
func ToEntry(e Entry) worktree.Entry {
	kind := worktree.KindFile
	if e.IsDir {
		kind = worktree.KindDir
	}
	out := worktree.Entry{
		Id:         worktree.EntryId(e.Id),
		Kind:       kind,
		Path:       e.Path,
		Inode:      e.Inode,
		ModTime:    e.ModTime,
		IsIgnored:  e.IsIgnored,
		IsExternal: e.IsExternal,
		IsFifo:     e.IsFifo,
		Size:       e.Size,
	}
	if e.CanonicalPath != nil {
		out.CanonicalPath = *e.CanonicalPath
	}
	return out
}

// ToStatus converts a wire Status back into a worktree.FileStatus.
func ToStatus(s Status) worktree.FileStatus {
	return worktree.FileStatus{
		Kind:           worktree.FileStatusKind(s.Kind),
		FirstHead:      worktree.UnmergedCode(s.FirstHead),
		SecondHead:     worktree.UnmergedCode(s.SecondHead),
		IndexStatus:    worktree.TrackedCode(s.IndexStatus),
		WorktreeStatus: worktree.TrackedCode(s.WorktreeStatus),
	}
}

// ToUpdateWorktree converts a wire UpdateWorktree back into the in-memory
// delta.UpdateWorktree. snap is the remote's current (pre-apply) snapshot,
// used to resolve each repository's WorkDirectoryId back to its
// worktree-relative path and to recover the status-map baseline the wire
// form's updated/removed-statuses-only payload was diffed against; a
// WorkDirectoryId not yet present in snap names a newly-discovered
// repository, whose work directory resolves once its Entry (carried in
// the same update's UpdatedEntries) has been applied.
func ToUpdateWorktree(u UpdateWorktree, snap worktree.Snapshot) delta.UpdateWorktree {
	out := delta.UpdateWorktree{
		ProjectId:           u.ProjectId,
		WorktreeId:          u.WorktreeId,
		AbsPath:             u.AbsPath,
		RootName:            u.RootName,
		ScanId:              u.ScanId,
		IsLastUpdate:        u.IsLastUpdate,
		RemovedRepositories: append([]string(nil), u.RemovedRepositories...),
	}
	for _, id := range u.RemovedEntries {
		out.RemovedEntries = append(out.RemovedEntries, worktree.EntryId(id))
	}
	for _, e := range u.UpdatedEntries {
		out.UpdatedEntries = append(out.UpdatedEntries, ToEntry(e))
	}
	for _, r := range u.UpdatedRepositories {
		out.UpdatedRepositories = append(out.UpdatedRepositories, toRepositoryEntry(r, snap))
	}
	return out
}

func toRepositoryEntry(r RepositoryEntry, snap worktree.Snapshot) worktree.RepositoryEntry {
	// WorkDirectory is resolved here when its Entry is already in snap;
	// otherwise it stays empty and delta.Apply resolves WorkDirectoryId
	// after this same update's entries have been applied, since a
	// newly-discovered repository's work-directory Entry may ride in the
	// same message.
	workDir := ""
	resolved := false
	if e, ok := snap.EntryForId(worktree.EntryId(r.WorkDirectoryId)); ok {
		workDir = e.Path
		resolved = true
	}

	statuses := worktree.NewRepoStatusMap()
	if resolved {
		if prior, ok := snap.Repositories.Get(workDir); ok {
			prior.StatusByPath.Each(func(e worktree.StatusEntry) bool {
				statuses.Put(e)
				return true
			})
		}
	}
	for _, removed := range r.RemovedStatuses {
		statuses.Remove(removed)
	}
	for _, e := range r.UpdatedStatuses {
		status := worktree.FileStatus{}
		if e.Status != nil {
			status = ToStatus(*e.Status)
		}
		statuses.Put(worktree.StatusEntry{RepoPath: e.RepoPath, Status: status})
	}
	return worktree.RepositoryEntry{
		WorkDirectory:   workDir,
		WorkDirectoryId: worktree.EntryId(r.WorkDirectoryId),
		Branch:          r.Branch,
		StatusByPath:    statuses,
	}
}
