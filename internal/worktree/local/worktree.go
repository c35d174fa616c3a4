// Package local implements §4.5's mutation API facade over a running
// background scanner: the single surface project tooling uses to create,
// write, rename, copy, delete, and expand entries, each refreshing the
// scanner and waiting for the resulting scan to land before returning.
// Grounded on server.RepoSession's shape: one mutex-guarded cached state
// plus a broadcast channel plus background goroutines started/stopped via
// context.Context.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/worktreehq/engine/internal/worktree"
	"github.com/worktreehq/engine/internal/worktree/fs"
	"github.com/worktreehq/engine/internal/worktree/scan"
)

// ErrShuttingDown is returned by mutation calls made after Close.
var ErrShuttingDown = errors.New("local: worktree is shutting down")

// CreateResult is create_entry's return value: either the created Entry or
// an excluded marker carrying the absolute path that would have been
// indexed, per §4.5.
type CreateResult struct {
	Entry        *worktree.Entry
	ExcludedPath string
}

// FileDescriptor is write_file's return value: the resulting Entry, or a
// synthetic descriptor (no indexed Entry) when the path is excluded.
type FileDescriptor struct {
	Entry        *worktree.Entry
	ExcludedPath string
}

// Config bundles a Worktree's tunables, forwarded mostly unchanged into
// scan.Config.
type Config struct {
	RootAbsPath         string
	RootName            string
	NumWorkers          int
	LocalSettingsFolder string
	ExcludePatterns     []string
	IncludePatterns     []string
	PrivatePatterns     []string
	CaseInsensitive     bool
	Logger              *slog.Logger

	WatchLatency time.Duration
}

// Worktree is the local-side mutation API facade: it owns a scan.Scanner,
// keeps its own copy of the latest snapshot (so readers never touch the
// scanner's internal lock), and exposes a channel of raw updates for a
// remote peer to relay.
type Worktree struct {
	cfg Config
	fsi fs.Filesystem

	scanner *scan.Scanner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	snapshot      worktree.Snapshot
	scanning      bool
	waiters       []waiter
	observers     map[chan scan.Update]struct{}
	lastBarrier   uint64
}

type waiter struct {
	target uint64
	done   chan struct{}
}

// New constructs a Worktree and starts its background scanner and
// watcher. Call Close to stop both.
func New(cfg Config, filesystem fs.Filesystem) (*Worktree, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WatchLatency <= 0 {
		cfg.WatchLatency = 300 * time.Millisecond
	}

	scanner := scan.New(scan.Config{
		RootAbsPath:         cfg.RootAbsPath,
		RootName:            cfg.RootName,
		NumWorkers:          cfg.NumWorkers,
		LocalSettingsFolder: cfg.LocalSettingsFolder,
		ExcludePatterns:     cfg.ExcludePatterns,
		IncludePatterns:     cfg.IncludePatterns,
		PrivatePatterns:     cfg.PrivatePatterns,
		CaseInsensitive:     cfg.CaseInsensitive,
		Logger:              cfg.Logger,
	}, filesystem)

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worktree{
		cfg:       cfg,
		fsi:       filesystem,
		scanner:   scanner,
		ctx:       ctx,
		cancel:    cancel,
		observers: make(map[chan scan.Update]struct{}),
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := scanner.Run(ctx); err != nil && ctx.Err() == nil {
			cfg.Logger.Error("local: scanner exited", "err", err)
		}
	}()

	w.wg.Add(1)
	go w.pumpUpdates()

	watcher, err := filesystem.Watch(ctx, cfg.RootAbsPath, cfg.WatchLatency)
	if err != nil {
		cfg.Logger.Warn("local: filesystem watch unavailable, relying on explicit refresh", "err", err)
	} else {
		w.wg.Add(1)
		go w.pumpWatchEvents(watcher)
	}

	return w, nil
}

// Close stops the scanner and any watcher, and releases every pending
// wait_for_snapshot waiter with an error.
func (w *Worktree) Close() {
	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	for _, wt := range w.waiters {
		close(wt.done)
	}
	w.waiters = nil
	for ch := range w.observers {
		close(ch)
	}
	w.observers = nil
	w.mu.Unlock()
}

func (w *Worktree) pumpUpdates() {
	defer w.wg.Done()
	for u := range w.scanner.Updates() {
		w.mu.Lock()
		if u.Kind == scan.UpdateSnapshot {
			w.snapshot = u.Snapshot
			w.scanning = u.Scanning
			w.lastBarrier = u.Barrier
			w.releaseWaitersLocked(u.Barrier)
		}
		for ch := range w.observers {
			select {
			case ch <- u:
			default:
			}
		}
		w.mu.Unlock()
	}
}

func (w *Worktree) pumpWatchEvents(watcher fs.Watcher) {
	defer w.wg.Done()
	defer watcher.Close()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-watcher.Events():
			if !ok {
				return
			}
			w.scanner.NotifyEvents([]string{ev.Path})
		case err, ok := <-watcher.Errors():
			if !ok {
				return
			}
			w.cfg.Logger.Warn("local: watch error", "err", err)
		}
	}
}

func (w *Worktree) releaseWaitersLocked(barrier uint64) {
	var remaining []waiter
	for _, wt := range w.waiters {
		if wt.target <= barrier {
			close(wt.done)
		} else {
			remaining = append(remaining, wt)
		}
	}
	w.waiters = remaining
}

// Snapshot returns the latest known snapshot. Safe for concurrent use.
func (w *Worktree) Snapshot() worktree.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot
}

// Observe registers a channel that receives every raw scan.Update, used by
// the remote-facing relay (§4.4's update_observer). The channel is closed
// on Close; callers should Unobserve when done to stop draining it.
func (w *Worktree) Observe() <-chan scan.Update {
	ch := make(chan scan.Update, 16)
	w.mu.Lock()
	w.observers[ch] = struct{}{}
	w.mu.Unlock()
	return ch
}

// Unobserve removes and closes a channel previously returned by Observe.
func (w *Worktree) Unobserve(ch <-chan scan.Update) {
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

// WaitForSnapshot blocks until the scanner's completed_scan_id reaches at
// least target, or ctx is done, per §4.4/§4.5's wait_for_snapshot.
func (w *Worktree) WaitForSnapshot(ctx context.Context, target uint64) error {
	w.mu.Lock()
	if w.lastBarrier >= target {
		w.mu.Unlock()
		return nil
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
		return ErrShuttingDown
	}
}

// refreshAndWait requests reprocessing of relPaths, waits for the
// resulting batch to complete, and returns the scan id it landed at.
func (w *Worktree) refreshAndWait(ctx context.Context, relPaths []string) (uint64, error) {
	base := w.scanner.Snapshot().ScanId
	w.scanner.RequestRefresh(relPaths)
	// Give the request a moment to land on the scan id counter before we
	// read it back; the scanner always bumps ScanId synchronously with
	// accepting a refresh request off its channel.
	deadline := time.Now().Add(2 * time.Second)
	var target uint64
	for {
		snap := w.scanner.Snapshot()
		if snap.ScanId > base {
			target = snap.ScanId
		}
		if target > 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("local: timed out waiting for refresh to start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := w.WaitForSnapshot(ctx, target); err != nil {
		return 0, err
	}
	return target, nil
}

func ancestorsOf(relPath string) []string {
	if relPath == "" {
		return nil
	}
	var out []string
	for dir := path.Dir(relPath); dir != "." && dir != "/"; dir = path.Dir(dir) {
		out = append([]string{dir}, out...)
	}
	return out
}

func absPath(root, relPath string) string {
	if relPath == "" {
		return root
	}
	return root + "/" + relPath
}

func isCaseOnlyRename(oldPath, newPath string) bool {
	return oldPath != newPath && strings.EqualFold(oldPath, newPath)
}
