// Package wire defines the §6 wire format: the JSON-serializable shapes
// exchanged between a local worktree and a remote mirror over the demo
// websocket transport, plus converters to and from the in-memory
// worktree/delta types. Field naming and JSON-tag style follow
// server/types.go's UpdateMessage.
package wire

import (
	"time"

	"github.com/worktreehq/engine/internal/worktree"
	"github.com/worktreehq/engine/internal/worktree/delta"
)

// Entry is the wire form of worktree.Entry.
type Entry struct {
	Id            uint64    `json:"id"`
	IsDir         bool      `json:"isDir"`
	Path          string    `json:"path"`
	Inode         uint64    `json:"inode"`
	ModTime       time.Time `json:"mtime"`
	IsIgnored     bool      `json:"isIgnored"`
	IsExternal    bool      `json:"isExternal"`
	IsFifo        bool      `json:"isFifo"`
	Size          int64     `json:"size"`
	CanonicalPath *string   `json:"canonicalPath,omitempty"`
}

// StatusEntry is the wire form of worktree.StatusEntry.
type StatusEntry struct {
	RepoPath     string  `json:"repoPath"`
	SimpleStatus int     `json:"simpleStatus"`
	Status       *Status `json:"status,omitempty"`
}

// Status is the wire form of the worktree.FileStatus tagged union,
// flattened into one struct with a discriminant (JSON has no native
// tagged unions, so this mirrors server/types.go's approach of sending
// every variant's fields and a Kind discriminant).
type Status struct {
	Kind           int `json:"kind"`
	FirstHead      int `json:"firstHead,omitempty"`
	SecondHead     int `json:"secondHead,omitempty"`
	IndexStatus    int `json:"indexStatus,omitempty"`
	WorktreeStatus int `json:"worktreeStatus,omitempty"`
}

// RepositoryEntry is the wire form of a repository delta: only the
// statuses that changed since the last update are carried, per §6.
type RepositoryEntry struct {
	WorkDirectoryId uint64        `json:"workDirectoryId"`
	Branch          *string       `json:"branch,omitempty"`
	UpdatedStatuses []StatusEntry `json:"updatedStatuses,omitempty"`
	RemovedStatuses []string      `json:"removedStatuses,omitempty"`
}

// UpdateWorktree is the wire form of delta.UpdateWorktree.
type UpdateWorktree struct {
	ProjectId  string `json:"projectId"`
	WorktreeId string `json:"worktreeId"`

	AbsPath  string `json:"absPath"`
	RootName string `json:"rootName"`

	UpdatedEntries []Entry  `json:"updatedEntries"`
	RemovedEntries []uint64 `json:"removedEntries"`

	UpdatedRepositories []RepositoryEntry `json:"updatedRepositories"`
	RemovedRepositories []string          `json:"removedRepositories"`

	ScanId       uint64 `json:"scanId"`
	IsLastUpdate bool   `json:"isLastUpdate"`
}

// FromEntry converts a worktree.Entry to its wire form.
func FromEntry(e worktree.Entry) Entry {
	w := Entry{
		Id:         uint64(e.Id),
		IsDir:      e.IsDir(),
		Path:       e.Path,
		Inode:      e.Inode,
		ModTime:    e.ModTime,
		IsIgnored:  e.IsIgnored,
		IsExternal: e.IsExternal,
		IsFifo:     e.IsFifo,
		Size:       e.Size,
	}
	if e.CanonicalPath != "" {
		w.CanonicalPath = &e.CanonicalPath
	}
	return w
}

// FromStatus converts a worktree.FileStatus to its wire form.
func FromStatus(s worktree.FileStatus) Status {
	return Status{
		Kind:           int(s.Kind),
		FirstHead:      int(s.FirstHead),
		SecondHead:     int(s.SecondHead),
		IndexStatus:    int(s.IndexStatus),
		WorktreeStatus: int(s.WorktreeStatus),
	}
}

// FromUpdateWorktree converts an in-memory delta.UpdateWorktree (plus the
// prior/current repository status maps needed to compute each
// repository's changed-statuses-only wire payload) into its wire form.
func FromUpdateWorktree(u delta.UpdateWorktree, prevStatuses map[string]worktree.RepoStatusMap) UpdateWorktree {
	out := UpdateWorktree{
		ProjectId:    u.ProjectId,
		WorktreeId:   u.WorktreeId,
		AbsPath:      u.AbsPath,
		RootName:     u.RootName,
		ScanId:       u.ScanId,
		IsLastUpdate: u.IsLastUpdate,
	}
	for _, id := range u.RemovedEntries {
		out.RemovedEntries = append(out.RemovedEntries, uint64(id))
	}
	for _, e := range u.UpdatedEntries {
		out.UpdatedEntries = append(out.UpdatedEntries, FromEntry(e))
	}
	for _, r := range u.UpdatedRepositories {
		out.UpdatedRepositories = append(out.UpdatedRepositories, fromRepositoryEntry(r, prevStatuses[r.WorkDirectory]))
	}
	out.RemovedRepositories = append(out.RemovedRepositories, u.RemovedRepositories...)
	return out
}

func fromRepositoryEntry(r worktree.RepositoryEntry, prev worktree.RepoStatusMap) RepositoryEntry {
	out := RepositoryEntry{
		WorkDirectoryId: uint64(r.WorkDirectoryId),
		Branch:          r.Branch,
	}
	updated, removed := r.StatusByPath.Diff(prev)
	for _, e := range updated {
		out.UpdatedStatuses = append(out.UpdatedStatuses, StatusEntry{
			RepoPath:     e.RepoPath,
			SimpleStatus: int(e.Status.Simple()),
			Status:       statusPtr(FromStatus(e.Status)),
		})
	}
	out.RemovedStatuses = append(out.RemovedStatuses, removed...)
	return out
}

func statusPtr(s Status) *Status { return &s }
