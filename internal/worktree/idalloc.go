package worktree

import "sync/atomic"

// IdAllocator hands out monotonically increasing EntryId values, unique
// within the process. A worktree's scanner and its mutation API share a
// single allocator so that no two live entries ever collide.
type IdAllocator struct {
	next atomic.Uint64
}

// NewIdAllocator returns an allocator starting at id 1 (0 is reserved to
// mean "no id" in zero-valued structs).
func NewIdAllocator() *IdAllocator {
	a := &IdAllocator{}
	a.next.Store(1)
	return a
}

// Next allocates and returns the next EntryId.
func (a *IdAllocator) Next() EntryId {
	return EntryId(a.next.Add(1) - 1)
}
