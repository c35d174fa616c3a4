package scan

import "github.com/worktreehq/engine/internal/worktree/ignore"

// scanJob is one directory awaiting a recursive listing. ancestorInodes
// carries every directory inode visited on the path from the root to this
// job, used to detect a recursive symlink before infinitely recursing
// into it.
type scanJob struct {
	absDir         string
	relDir         string
	ignoreStack    ignore.Stack
	ancestorInodes map[uint64]bool
}
