// Package remote implements §4.4: a remote worktree mirror that applies
// incoming UpdateWorktree deltas to a background snapshot, promotes it to
// the public one, relays the raw updates to any observer, and releases
// wait_for_snapshot(scan_id) awaiters. Grounded on server.RepoSession's
// background-channel/broadcast shape, generalized from a single cached
// *gitcore.Repository to a full worktree.Snapshot mirror.
package remote

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/worktreehq/engine/internal/worktree"
	"github.com/worktreehq/engine/internal/worktree/delta"
)

// ErrDisconnected is returned by any operation issued after
// DisconnectedFromHost, per §7's Disconnected error kind.
var ErrDisconnected = errors.New("remote: disconnected from host")

type waiter struct {
	target uint64
	done   chan struct{}
}

// Worktree is the remote-side mirror: a background apply channel feeding a
// foreground promotion step, matching §4.4's "locks its background
// snapshot, applies, appends to a queue, signals the foreground" flow.
type Worktree struct {
	logger *slog.Logger

	incoming chan delta.UpdateWorktree
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu           sync.Mutex
	background   worktree.Snapshot
	public       worktree.Snapshot
	queue        []delta.UpdateWorktree
	waiters      []waiter
	observers    map[chan delta.UpdateWorktree]struct{}
	disconnected bool
}

// New constructs a Worktree mirror rooted at the given project/worktree
// identity, starting empty at scan_id 0.
func New(id, absPath, rootName string, logger *slog.Logger) *Worktree {
	if logger == nil {
		logger = slog.Default()
	}
	snap := worktree.NewSnapshot(id, absPath, rootName)
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worktree{
		logger:     logger,
		incoming:   make(chan delta.UpdateWorktree, 64),
		ctx:        ctx,
		cancel:     cancel,
		background: snap,
		public:     snap,
		observers:  make(map[chan delta.UpdateWorktree]struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Apply enqueues an incoming update for background application. Returns
// ErrDisconnected if DisconnectedFromHost has already been called.
func (w *Worktree) Apply(u delta.UpdateWorktree) error {
	w.mu.Lock()
	if w.disconnected {
		w.mu.Unlock()
		return ErrDisconnected
	}
	w.mu.Unlock()

	select {
	case w.incoming <- u:
		return nil
	case <-w.ctx.Done():
		return ErrDisconnected
	}
}

func (w *Worktree) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case u := <-w.incoming:
			w.mu.Lock()
			w.background = delta.Apply(w.background, u)
			w.queue = append(w.queue, u)
			bg := w.background
			w.mu.Unlock()

			w.promote(bg, u)
		}
	}
}

// promote implements the foreground half: publish the background snapshot,
// relay the raw update to observers, and release scan-id waiters.
func (w *Worktree) promote(bg worktree.Snapshot, u delta.UpdateWorktree) {
	w.mu.Lock()
	w.public = bg
	w.releaseWaitersLocked(bg.CompletedScanId)
	for ch := range w.observers {
		select {
		case ch <- u:
		default:
			w.logger.Warn("remote: observer channel full, dropping update")
		}
	}
	w.mu.Unlock()
}

func (w *Worktree) releaseWaitersLocked(completed uint64) {
	var remaining []waiter
	for _, wt := range w.waiters {
		if wt.target <= completed {
			close(wt.done)
		} else {
			remaining = append(remaining, wt)
		}
	}
	w.waiters = remaining
}

// Snapshot returns the latest publicly-promoted snapshot.
func (w *Worktree) Snapshot() worktree.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.public
}

// WaitForSnapshot blocks until the public snapshot's completed_scan_id is
// at least target, or ctx/disconnection ends the wait first.
func (w *Worktree) WaitForSnapshot(ctx context.Context, target uint64) error {
	w.mu.Lock()
	if w.public.CompletedScanId >= target {
		w.mu.Unlock()
		return nil
	}
	if w.disconnected {
		w.mu.Unlock()
		return ErrDisconnected
	}
	done := make(chan struct{})
	w.waiters = append(w.waiters, waiter{target: target, done: done})
	w.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrDisconnected
	}
}

// Observe registers a channel that receives every raw UpdateWorktree as it
// is promoted, implementing §4.4's update_observer relay.
func (w *Worktree) Observe() <-chan delta.UpdateWorktree {
	ch := make(chan delta.UpdateWorktree, 16)
	w.mu.Lock()
	w.observers[ch] = struct{}{}
	w.mu.Unlock()
	return ch
}

// Unobserve removes and closes a previously-registered observer channel.
func (w *Worktree) Unobserve(ch <-chan delta.UpdateWorktree) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for c := range w.observers {
		if c == ch {
			delete(w.observers, c)
			close(c)
			return
		}
	}
}

// DisconnectedFromHost implements §7's Disconnected: drops the updates
// channel and fails every pending scan-id awaiter.
func (w *Worktree) DisconnectedFromHost() {
	w.mu.Lock()
	w.disconnected = true
	w.waiters = nil
	w.mu.Unlock()
	w.cancel()
	w.wg.Wait()
}
