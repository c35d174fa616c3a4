package local

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/worktreehq/engine/internal/worktree"
	"github.com/worktreehq/engine/internal/worktree/fs"
)

// CreateEntry implements §4.5's create_entry: creates the file or directory
// on disk (creating any missing intermediate directories along the way),
// then refreshes the target path and every intermediate ancestor.
func (w *Worktree) CreateEntry(ctx context.Context, relPath string, isDirectory bool) (CreateResult, error) {
	abs := absPath(w.cfg.RootAbsPath, relPath)

	for _, ancestor := range ancestorsOf(relPath) {
		if err := w.fsi.CreateDir(absPath(w.cfg.RootAbsPath, ancestor), fs.CreateOptions{IgnoreIfExists: true}); err != nil {
			return CreateResult{}, fmt.Errorf("local: create ancestor %s: %w", ancestor, err)
		}
	}

	var err error
	if isDirectory {
		err = w.fsi.CreateDir(abs, fs.CreateOptions{})
	} else {
		err = w.fsi.CreateFile(abs, fs.CreateOptions{})
	}
	if err != nil {
		return CreateResult{}, fmt.Errorf("local: create %s: %w", relPath, err)
	}

	touched := append(ancestorsOf(relPath), relPath)
	if _, err := w.refreshAndWait(ctx, touched); err != nil {
		return CreateResult{}, err
	}

	if w.scanner.IsExcluded(relPath, isDirectory) {
		return CreateResult{ExcludedPath: abs}, nil
	}
	entry, ok := w.Snapshot().EntryForPath(relPath)
	if !ok {
		return CreateResult{ExcludedPath: abs}, nil
	}
	return CreateResult{Entry: &entry}, nil
}

// WriteFile implements §4.5's write_file: writes atomically, refreshes, and
// returns a descriptor for the resulting entry.
func (w *Worktree) WriteFile(ctx context.Context, relPath, text string, ending fs.LineEnding) (FileDescriptor, error) {
	abs := absPath(w.cfg.RootAbsPath, relPath)

	for _, ancestor := range ancestorsOf(relPath) {
		if err := w.fsi.CreateDir(absPath(w.cfg.RootAbsPath, ancestor), fs.CreateOptions{IgnoreIfExists: true}); err != nil {
			return FileDescriptor{}, fmt.Errorf("local: create ancestor %s: %w", ancestor, err)
		}
	}

	if err := w.fsi.Save(abs, bytes.NewReader([]byte(text)), ending); err != nil {
		return FileDescriptor{}, fmt.Errorf("local: write %s: %w", relPath, err)
	}

	touched := append(ancestorsOf(relPath), relPath)
	if _, err := w.refreshAndWait(ctx, touched); err != nil {
		return FileDescriptor{}, err
	}

	if w.scanner.IsExcluded(relPath, false) {
		return FileDescriptor{ExcludedPath: abs}, nil
	}
	entry, ok := w.Snapshot().EntryForPath(relPath)
	if !ok {
		return FileDescriptor{ExcludedPath: abs}, nil
	}
	return FileDescriptor{Entry: &entry}, nil
}

// RenameEntry implements §4.5's rename_entry, including the case-insensitive
// pure-case-rename special case: on a case-insensitive filesystem a rename
// that only changes casing must pass OverwriteIfExists, since the OS would
// otherwise report the destination as already existing (it is the same
// inode under a different case).
func (w *Worktree) RenameEntry(ctx context.Context, id worktree.EntryId, newPath string) (*worktree.Entry, error) {
	snap := w.Snapshot()
	old, ok := snap.EntryForId(id)
	if !ok {
		return nil, fmt.Errorf("local: rename: entry %d not found", id)
	}

	overwrite := w.cfg.CaseInsensitive && isCaseOnlyRename(old.Path, newPath)
	oldAbs := absPath(w.cfg.RootAbsPath, old.Path)
	newAbs := absPath(w.cfg.RootAbsPath, newPath)
	for _, ancestor := range ancestorsOf(newPath) {
		if err := w.fsi.CreateDir(absPath(w.cfg.RootAbsPath, ancestor), fs.CreateOptions{IgnoreIfExists: true}); err != nil {
			return nil, fmt.Errorf("local: create ancestor %s: %w", ancestor, err)
		}
	}
	if err := w.fsi.Rename(oldAbs, newAbs, fs.RenameOptions{OverwriteIfExists: overwrite}); err != nil {
		return nil, fmt.Errorf("local: rename %s -> %s: %w", old.Path, newPath, err)
	}

	touched := append([]string{old.Path}, append(ancestorsOf(newPath), newPath)...)
	if _, err := w.refreshAndWait(ctx, touched); err != nil {
		return nil, err
	}

	entry, ok := w.Snapshot().EntryForPath(newPath)
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// CopyEntry implements §4.5's copy_entry: a recursive copy of either the
// entry itself (sourceOverride empty) or a different source path within
// the worktree, landing at newPath.
func (w *Worktree) CopyEntry(ctx context.Context, id worktree.EntryId, sourceOverride, newPath string) (*worktree.Entry, error) {
	snap := w.Snapshot()
	entry, ok := snap.EntryForId(id)
	if !ok {
		return nil, fmt.Errorf("local: copy: entry %d not found", id)
	}
	sourcePath := entry.Path
	if sourceOverride != "" {
		sourcePath = sourceOverride
	}

	if err := w.copyRecursive(snap, sourcePath, newPath); err != nil {
		return nil, err
	}

	touched := append(ancestorsOf(newPath), newPath)
	if _, err := w.refreshAndWait(ctx, touched); err != nil {
		return nil, err
	}
	result, ok := w.Snapshot().EntryForPath(newPath)
	if !ok {
		return nil, nil
	}
	return &result, nil
}

// CopyExternalEntries implements the corresponding §4.5 bulk-import
// operation: each absolute source path outside the worktree is copied in
// under destRelDir, named by its own base name.
func (w *Worktree) CopyExternalEntries(ctx context.Context, externalAbsPaths []string, destRelDir string) ([]worktree.Entry, error) {
	var touched []string
	touched = append(touched, ancestorsOf(destRelDir)...)
	if destRelDir != "" {
		touched = append(touched, destRelDir)
	}

	for _, src := range externalAbsPaths {
		dest := destRelDir
		base := path.Base(src)
		if dest == "" {
			dest = base
		} else {
			dest = dest + "/" + base
		}
		if err := w.copyAbsRecursive(src, absPath(w.cfg.RootAbsPath, dest)); err != nil {
			return nil, err
		}
		touched = append(touched, dest)
	}

	if _, err := w.refreshAndWait(ctx, touched); err != nil {
		return nil, err
	}

	snap := w.Snapshot()
	var results []worktree.Entry
	for _, p := range touched {
		if e, ok := snap.EntryForPath(p); ok {
			results = append(results, e)
		}
	}
	return results, nil
}

// DeleteEntry implements §4.5's delete_entry: removes the entry (via
// system trash when requested), refreshes the removed path, and reports
// the deleted id plus every descendant id, depth-first, for the caller to
// emit DeletedEntry events.
func (w *Worktree) DeleteEntry(ctx context.Context, id worktree.EntryId, useTrash bool) ([]worktree.EntryId, error) {
	snap := w.Snapshot()
	entry, ok := snap.EntryForId(id)
	if !ok {
		return nil, fmt.Errorf("local: delete: entry %d not found", id)
	}

	deleted := collectDescendantsDepthFirst(snap, entry)

	abs := absPath(w.cfg.RootAbsPath, entry.Path)
	opts := fs.RemoveOptions{Recursive: true, IgnoreIfNotExists: true}
	var err error
	switch {
	case entry.IsDir() && useTrash:
		err = w.fsi.TrashDir(abs, opts)
	case entry.IsDir():
		err = w.fsi.RemoveDir(abs, opts)
	case useTrash:
		err = w.fsi.TrashFile(abs, opts)
	default:
		err = w.fsi.RemoveFile(abs, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("local: delete %s: %w", entry.Path, err)
	}

	if _, err := w.refreshAndWait(ctx, []string{entry.Path}); err != nil {
		return nil, err
	}
	return deleted, nil
}

// ExpandEntry implements §4.5's expand_entry: installs a path prefix so the
// directory scans eagerly even if currently UnloadedDir, then waits for
// the resulting scan to complete.
func (w *Worktree) ExpandEntry(ctx context.Context, id worktree.EntryId) error {
	entry, ok := w.Snapshot().EntryForId(id)
	if !ok {
		return fmt.Errorf("local: expand: entry %d not found", id)
	}
	w.scanner.AddPathPrefixToScan(entry.Path)
	_, err := w.refreshAndWait(ctx, []string{entry.Path})
	return err
}

// AddPathPrefixToScan implements §4.5's add_path_prefix_to_scan.
func (w *Worktree) AddPathPrefixToScan(prefix string) {
	w.scanner.AddPathPrefixToScan(prefix)
}

// SharePrivateFiles implements §4.5's share_private_files.
func (w *Worktree) SharePrivateFiles() {
	w.scanner.SharePrivateFiles()
}

func collectDescendantsDepthFirst(snap worktree.Snapshot, root worktree.Entry) []worktree.EntryId {
	var ids []worktree.EntryId
	var walk func(e worktree.Entry)
	walk = func(e worktree.Entry) {
		if e.IsDir() {
			snap.ChildEntries(e.Path, func(child worktree.Entry) bool {
				walk(child)
				return true
			})
		}
		ids = append(ids, e.Id)
	}
	walk(root)
	return ids
}

func (w *Worktree) copyRecursive(snap worktree.Snapshot, sourceRelPath, destRelPath string) error {
	return w.copyAbsRecursive(absPath(w.cfg.RootAbsPath, sourceRelPath), absPath(w.cfg.RootAbsPath, destRelPath))
}

func (w *Worktree) copyAbsRecursive(srcAbs, destAbs string) error {
	md, err := w.fsi.Metadata(srcAbs)
	if err != nil {
		return fmt.Errorf("local: stat %s: %w", srcAbs, err)
	}
	if md == nil {
		return fmt.Errorf("local: copy source %s does not exist", srcAbs)
	}

	if err := w.fsi.CreateDir(parentOfAbs(destAbs), fs.CreateOptions{IgnoreIfExists: true}); err != nil {
		return err
	}

	if md.IsDir {
		if err := w.fsi.CreateDir(destAbs, fs.CreateOptions{IgnoreIfExists: true}); err != nil {
			return err
		}
		children, err := w.fsi.ReadDir(srcAbs)
		if err != nil {
			return err
		}
		for _, name := range children {
			if err := w.copyAbsRecursive(srcAbs+"/"+name, destAbs+"/"+name); err != nil {
				return err
			}
		}
		return nil
	}

	content, err := w.fsi.LoadBytes(srcAbs)
	if err != nil {
		return err
	}
	return w.fsi.Save(destAbs, bytes.NewReader(content), fs.LineEndingUnix)
}

func parentOfAbs(absPath string) string {
	if idx := strings.LastIndex(absPath, "/"); idx > 0 {
		return absPath[:idx]
	}
	return "/"
}
