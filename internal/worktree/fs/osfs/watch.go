package osfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/worktreehq/engine/internal/worktree/fs"
)

// watcher adapts fsnotify into fs.Watcher, debouncing bursts of events for
// the same path the way internal/server/watcher.go's watchLoop does for
// Git ref changes, generalized to every watched path rather than just
// refs/heads|tags|remotes.
type watcher struct {
	fsw     *fsnotify.Watcher
	events  chan fs.Event
	errs    chan error
	done    chan struct{}
	latency time.Duration
}

// Watch registers a recursive watch rooted at path. fsnotify does not
// recurse, so every subdirectory discovered under path is walked and
// added individually, mirroring walkAndWatch.
func (OS) Watch(ctx context.Context, path string, latency time.Duration) (fs.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := walkAndWatch(fsw, path); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &watcher{
		fsw:     fsw,
		events:  make(chan fs.Event, 256),
		errs:    make(chan error, 16),
		done:    make(chan struct{}),
		latency: latency,
	}
	go w.loop(ctx)
	return w, nil
}

func walkAndWatch(fsw *fsnotify.Watcher, dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}
	return filepath.Walk(dir, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // skip unreadable subtrees rather than aborting the whole watch
		}
		if fi.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func shouldIgnoreEvent(name string) bool {
	return strings.Contains(name, string(filepath.Separator)+"fsmonitor--daemon"+string(filepath.Separator)+"cookies"+string(filepath.Separator))
}

func (w *watcher) loop(ctx context.Context) {
	defer close(w.done)

	pending := make(map[string]*time.Timer)
	fire := make(chan string, 64)

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if shouldIgnoreEvent(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					walkAndWatch(w.fsw, ev.Name)
				}
			}
			name := ev.Name
			if t, ok := pending[name]; ok {
				t.Stop()
			}
			pending[name] = time.AfterFunc(w.latency, func() {
				select {
				case fire <- name:
				case <-ctx.Done():
				}
			})
		case name := <-fire:
			delete(pending, name)
			select {
			case w.events <- fs.Event{Path: name}:
			case <-ctx.Done():
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func (w *watcher) Events() <-chan fs.Event { return w.events }
func (w *watcher) Errors() <-chan error     { return w.errs }
func (w *watcher) Add(path string) error    { return walkAndWatch(w.fsw, path) }
func (w *watcher) Close() error             { return w.fsw.Close() }
