// Package omap implements a persistent (structurally shared) ordered map.
//
// A Tree is immutable: Insert and Delete return a new Tree that shares
// every subtree untouched by the edit with the original, so cloning a
// Tree for a new Snapshot is an O(1) pointer copy while a single edit is
// O(log n). This is the data structure the worktree's path tree and
// identity index sit on, since both are mutated on every scan batch while
// older snapshots must stay valid for any foreground consumer still
// holding them.
package omap

import "cmp"

// Counts is the per-subtree aggregate the path tree keeps so that counted
// traversal (files/dirs, with/without ignored entries) can seek in
// O(log n) instead of walking every entry.
type Counts struct {
	Files         int
	Dirs          int
	IgnoredFiles  int
	IgnoredDirs   int
}

// Add returns the element-wise sum of two Counts.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Files:        c.Files + o.Files,
		Dirs:         c.Dirs + o.Dirs,
		IgnoredFiles: c.IgnoredFiles + o.IgnoredFiles,
		IgnoredDirs:  c.IgnoredDirs + o.IgnoredDirs,
	}
}

// All returns the total entry count regardless of kind or ignore status.
func (c Counts) All() int { return c.Files + c.Dirs + c.IgnoredFiles + c.IgnoredDirs }

// NonIgnored returns the count of entries that are not ignored.
func (c Counts) NonIgnored() int { return c.Files + c.Dirs }

// FilesWithIgnored returns the count of files, ignored or not.
func (c Counts) FilesWithIgnored() int { return c.Files + c.IgnoredFiles }

// NonIgnoredFiles returns the count of files that are not ignored.
func (c Counts) NonIgnoredFiles() int { return c.Files }

// LeafFunc computes the Counts contribution of a single value, independent
// of its subtree.
type LeafFunc[V any] func(V) Counts

// node is one AVL node. Never mutated after construction; edits build new
// nodes along the path from the root to the edited leaf and reuse every
// sibling subtree.
type node[K cmp.Ordered, V any] struct {
	key         K
	value       V
	left, right *node[K, V]
	height      int
	size        int
	agg         Counts
}

func height[K cmp.Ordered, V any](n *node[K, V]) int {
	if n == nil {
		return 0
	}
	return n.height
}

func size[K cmp.Ordered, V any](n *node[K, V]) int {
	if n == nil {
		return 0
	}
	return n.size
}

func agg[K cmp.Ordered, V any](n *node[K, V]) Counts {
	if n == nil {
		return Counts{}
	}
	return n.agg
}

func newNode[K cmp.Ordered, V any](key K, value V, left, right *node[K, V], leaf Counts) *node[K, V] {
	return &node[K, V]{
		key:    key,
		value:  value,
		left:   left,
		right:  right,
		height: 1 + max(height(left), height(right)),
		size:   1 + size(left) + size(right),
		agg:    agg(left).Add(leaf).Add(agg(right)),
	}
}

func balanceFactor[K cmp.Ordered, V any](n *node[K, V]) int {
	if n == nil {
		return 0
	}
	return height(n.left) - height(n.right)
}

func rotateLeft[K cmp.Ordered, V any](n *node[K, V], leafOf func(V) Counts) *node[K, V] {
	r := n.right
	newLeft := newNode(n.key, n.value, n.left, r.left, leafOf(n.value))
	return newNode(r.key, r.value, newLeft, r.right, leafOf(r.value))
}

func rotateRight[K cmp.Ordered, V any](n *node[K, V], leafOf func(V) Counts) *node[K, V] {
	l := n.left
	newRight := newNode(n.key, n.value, l.right, n.right, leafOf(n.value))
	return newNode(l.key, l.value, l.left, newRight, leafOf(l.value))
}

func rebalance[K cmp.Ordered, V any](n *node[K, V], leafOf func(V) Counts) *node[K, V] {
	bf := balanceFactor(n)
	switch {
	case bf > 1:
		if balanceFactor(n.left) < 0 {
			n = newNode(n.key, n.value, rotateLeft(n.left, leafOf), n.right, leafOf(n.value))
		}
		return rotateRight(n, leafOf)
	case bf < -1:
		if balanceFactor(n.right) > 0 {
			n = newNode(n.key, n.value, n.left, rotateRight(n.right, leafOf), leafOf(n.value))
		}
		return rotateLeft(n, leafOf)
	default:
		return n
	}
}

func insert[K cmp.Ordered, V any](n *node[K, V], key K, value V, leafOf func(V) Counts) (*node[K, V], bool) {
	if n == nil {
		return newNode(key, value, nil, nil, leafOf(value)), true
	}
	switch {
	case key < n.key:
		left, created := insert(n.left, key, value, leafOf)
		return rebalance(newNode(n.key, n.value, left, n.right, leafOf(n.value)), leafOf), created
	case key > n.key:
		right, created := insert(n.right, key, value, leafOf)
		return rebalance(newNode(n.key, n.value, n.left, right, leafOf(n.value)), leafOf), created
	default:
		return newNode(key, value, n.left, n.right, leafOf(value)), false
	}
}

func minNode[K cmp.Ordered, V any](n *node[K, V]) *node[K, V] {
	for n.left != nil {
		n = n.left
	}
	return n
}

func remove[K cmp.Ordered, V any](n *node[K, V], key K, leafOf func(V) Counts) (*node[K, V], bool) {
	if n == nil {
		return nil, false
	}
	switch {
	case key < n.key:
		left, removed := remove(n.left, key, leafOf)
		if !removed {
			return n, false
		}
		return rebalance(newNode(n.key, n.value, left, n.right, leafOf(n.value)), leafOf), true
	case key > n.key:
		right, removed := remove(n.right, key, leafOf)
		if !removed {
			return n, false
		}
		return rebalance(newNode(n.key, n.value, n.left, right, leafOf(n.value)), leafOf), true
	default:
		switch {
		case n.left == nil:
			return n.right, true
		case n.right == nil:
			return n.left, true
		default:
			succ := minNode(n.right)
			newRight, _ := remove(n.right, succ.key, leafOf)
			return rebalance(newNode(succ.key, succ.value, n.left, newRight, leafOf(succ.value)), leafOf), true
		}
	}
}

func get[K cmp.Ordered, V any](n *node[K, V], key K) (V, bool) {
	for n != nil {
		switch {
		case key < n.key:
			n = n.left
		case key > n.key:
			n = n.right
		default:
			return n.value, true
		}
	}
	var zero V
	return zero, false
}

// Tree is a persistent ordered map from K to V with cumulative Counts
// aggregation for O(log n) counted traversal.
type Tree[K cmp.Ordered, V any] struct {
	root *node[K, V]
	leaf LeafFunc[V]
}

// New returns an empty Tree. leaf computes the Counts contribution of a
// single stored value; pass a function that always returns the zero
// Counts if the tree does not need aggregation (e.g. the identity index).
func New[K cmp.Ordered, V any](leaf LeafFunc[V]) Tree[K, V] {
	if leaf == nil {
		leaf = func(V) Counts { return Counts{} }
	}
	return Tree[K, V]{leaf: leaf}
}

// Len returns the number of entries in the tree.
func (t Tree[K, V]) Len() int { return size(t.root) }

// Totals returns the aggregated Counts over the whole tree.
func (t Tree[K, V]) Totals() Counts { return agg(t.root) }

// Get returns the value stored at key, and whether it was present.
func (t Tree[K, V]) Get(key K) (V, bool) { return get(t.root, key) }

// Has reports whether key is present.
func (t Tree[K, V]) Has(key K) bool {
	_, ok := get(t.root, key)
	return ok
}

// Insert returns a new Tree with key bound to value. The receiver is left
// untouched; only nodes along the path to key are copied.
func (t Tree[K, V]) Insert(key K, value V) Tree[K, V] {
	root, _ := insert(t.root, key, value, t.leaf)
	return Tree[K, V]{root: root, leaf: t.leaf}
}

// Delete returns a new Tree with key removed. ok reports whether key was
// present (and thus whether the returned Tree differs from the receiver).
func (t Tree[K, V]) Delete(key K) (Tree[K, V], bool) {
	root, removed := remove(t.root, key, t.leaf)
	if !removed {
		return t, false
	}
	return Tree[K, V]{root: root, leaf: t.leaf}, true
}

// Each calls fn for every (key, value) pair in ascending key order. Each
// stops early if fn returns false.
func (t Tree[K, V]) Each(fn func(K, V) bool) {
	var walk func(*node[K, V]) bool
	walk = func(n *node[K, V]) bool {
		if n == nil {
			return true
		}
		if !walk(n.left) {
			return false
		}
		if !fn(n.key, n.value) {
			return false
		}
		return walk(n.right)
	}
	walk(t.root)
}

// Range calls fn for every (key, value) pair with key >= from, in
// ascending order, until fn returns false.
func (t Tree[K, V]) Range(from K, fn func(K, V) bool) {
	var walk func(*node[K, V]) bool
	walk = func(n *node[K, V]) bool {
		if n == nil {
			return true
		}
		if n.key >= from {
			if !walk(n.left) {
				return false
			}
			if !fn(n.key, n.value) {
				return false
			}
		}
		return walk(n.right)
	}
	walk(t.root)
}

// NthFiltered returns the (key, value) pair at zero-based position idx
// among entries that satisfy keep, along with whether idx was in range.
// This is the O(log n) counted-seek primitive: weight reports the number
// of entries in a subtree's aggregate Counts that satisfy keep, letting
// the search descend without visiting every node.
func NthFiltered[K cmp.Ordered, V any](t Tree[K, V], idx int, keep func(V) bool, weight func(Counts) int) (K, V, bool) {
	n := t.root
	for n != nil {
		leftWeight := weight(agg(n.left))
		if idx < leftWeight {
			n = n.left
			continue
		}
		idx -= leftWeight
		if keep(n.value) {
			if idx == 0 {
				return n.key, n.value, true
			}
			idx--
		}
		n = n.right
	}
	var zk K
	var zv V
	return zk, zv, false
}
