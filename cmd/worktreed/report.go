package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/worktreehq/engine/internal/worktree"
)

// writeReport renders a short Markdown summary of snap through goldmark
// and writes the resulting HTML to path, giving the -report flag a
// browser-viewable document instead of raw Markdown source.
func writeReport(path string, snap worktree.Snapshot) error {
	totals := snap.Paths.Totals()

	var md strings.Builder
	fmt.Fprintf(&md, "# Worktree scan report\n\n")
	fmt.Fprintf(&md, "- root: `%s`\n", snap.AbsPath)
	fmt.Fprintf(&md, "- files: %d\n", totals.Files)
	fmt.Fprintf(&md, "- directories: %d\n", totals.Dirs)
	fmt.Fprintf(&md, "- ignored files: %d\n", totals.IgnoredFiles)
	fmt.Fprintf(&md, "- ignored directories: %d\n", totals.IgnoredDirs)
	fmt.Fprintf(&md, "- repositories: %d\n\n", snap.Repositories.Len())

	if snap.Repositories.Len() > 0 {
		fmt.Fprintf(&md, "## Repositories\n\n")
		snap.Repositories.Each(func(r worktree.RepositoryEntry) bool {
			branch := "(detached)"
			if r.Branch != nil {
				branch = *r.Branch
			}
			fmt.Fprintf(&md, "- `%s` — branch `%s`, %d path(s) with a Git status\n", r.WorkDirectory, branch, r.StatusByPath.Len())
			return true
		})
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &html); err != nil {
		return err
	}

	return os.WriteFile(path, html.Bytes(), 0o644)
}
