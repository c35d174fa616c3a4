package scan

import "github.com/worktreehq/engine/internal/worktree"

// ChangeKind classifies one path's transition for build_change_set, per
// §4.1. A freshly-discovered path is ChangeAdded whatever the scanner's
// Phase; Update does not carry the phase, which only Scanner.Phase reports.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeUpdated
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ChangedPath is one entry in build_change_set's output: a relative path
// and how it changed between the scanner's prev_snapshot and its current
// snapshot.
type ChangedPath struct {
	Path string
	Kind ChangeKind
}

// buildChangeSet compares prev against cur restricted to touchedPaths,
// classifying each as Added/Updated/Removed. Grounded on
// gitcore.Repository.Diff's added/deleted/amended classification over two
// in-memory states, generalized from commits to worktree entries.
func buildChangeSet(prev, cur worktree.Snapshot, touchedPaths []string) []ChangedPath {
	var changes []ChangedPath
	for _, p := range touchedPaths {
		oldEntry, hadOld := prev.EntryForPath(p)
		newEntry, hasNew := cur.EntryForPath(p)
		switch {
		case hasNew && !hadOld:
			changes = append(changes, ChangedPath{Path: p, Kind: ChangeAdded})
		case hasNew && hadOld:
			if oldEntry.Id != newEntry.Id || oldEntry.IsIgnored != newEntry.IsIgnored || !oldEntry.ModTime.Equal(newEntry.ModTime) {
				changes = append(changes, ChangedPath{Path: p, Kind: ChangeUpdated})
			}
		case !hasNew && hadOld:
			changes = append(changes, ChangedPath{Path: p, Kind: ChangeRemoved})
		}
	}
	return changes
}
