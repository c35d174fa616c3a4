package delta

// Split breaks u into an ordered sequence of partial updates, each holding
// at most maxEntries of UpdatedEntries/RemovedEntries combined, per §4.3's
// splitting rule: the receiver tolerates any prefix of partial updates
// followed by one last update carrying IsLastUpdate. Root identity rides on
// every part; repository changes ride only on the last part, together with
// IsLastUpdate, so a receiver applying only a prefix sees entry changes but
// no repository changes yet.
func Split(u UpdateWorktree, maxEntries int) []UpdateWorktree {
	total := len(u.UpdatedEntries) + len(u.RemovedEntries)
	if maxEntries <= 0 || total <= maxEntries {
		return []UpdateWorktree{u}
	}

	var parts []UpdateWorktree
	updated, removed := u.UpdatedEntries, u.RemovedEntries

	for len(updated) > 0 || len(removed) > 0 {
		part := UpdateWorktree{
			ProjectId:  u.ProjectId,
			WorktreeId: u.WorktreeId,
			AbsPath:    u.AbsPath,
			RootName:   u.RootName,
			ScanId:     u.ScanId,
		}
		budget := maxEntries
		if n := min(budget, len(updated)); n > 0 {
			part.UpdatedEntries = updated[:n]
			updated = updated[n:]
			budget -= n
		}
		if n := min(budget, len(removed)); n > 0 {
			part.RemovedEntries = removed[:n]
			removed = removed[n:]
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		parts = append(parts, UpdateWorktree{
			ProjectId: u.ProjectId, WorktreeId: u.WorktreeId,
			AbsPath: u.AbsPath, RootName: u.RootName, ScanId: u.ScanId,
		})
	}

	last := &parts[len(parts)-1]
	last.UpdatedRepositories = u.UpdatedRepositories
	last.RemovedRepositories = u.RemovedRepositories
	last.IsLastUpdate = u.IsLastUpdate
	return parts
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
