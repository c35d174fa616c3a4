// Package main is the entry point for worktreed, a daemon that scans a
// worktree root in the background and serves its live snapshot over a
// demo websocket replication endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/robfig/cron/v3"

	"github.com/worktreehq/engine/internal/termcolor"
	"github.com/worktreehq/engine/internal/worktree"
	"github.com/worktreehq/engine/internal/worktree/fs/osfs"
	"github.com/worktreehq/engine/internal/worktree/local"
	"github.com/worktreehq/engine/internal/worktree/scan"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	root := flag.String("root", getEnv("WORKTREED_ROOT", "."), "Path to the worktree root to scan")
	addr := flag.String("addr", getEnv("WORKTREED_ADDR", ":7070"), "Address for the /subscribe websocket endpoint")
	watchLatency := flag.Duration("watch-latency", 300*time.Millisecond, "Filesystem watch debounce latency")
	excludeFlag := flag.String("exclude", "", "Comma-separated extra exclusion glob patterns")
	privateFlag := flag.String("private", "", "Comma-separated privacy glob patterns")
	alwaysIncludeFlag := flag.String("always-include", "", "Comma-separated paths to always include despite ignore rules")
	numWorkers := flag.Int("num-workers", runtime.NumCPU(), "Background scan worker pool size")
	caseInsensitive := flag.Bool("case-insensitive", false, "Force case-insensitive path handling (auto-detected when unset)")
	logFormat := flag.String("log-format", getEnv("WORKTREED_LOG_FORMAT", "text"), "Log format: text, json")
	configPath := flag.String("config", ".worktreeignore.yaml", "Path to a YAML file with exclude/include/private pattern lists")
	report := flag.String("report", "", "Write an HTML scan report (rendered from Markdown) to this path on completion")
	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Parse()

	initLogger(*logFormat)

	if *showVersion {
		fmt.Printf("worktreed %s (%s)\n", version, commit)
		os.Exit(0)
	}

	absRoot, err := filepath.Abs(*root)
	if err != nil {
		slog.Error("failed to resolve root", "root", *root, "err", err)
		os.Exit(1)
	}

	patterns, err := loadPatternConfig(filepath.Join(absRoot, *configPath))
	if err != nil {
		slog.Error("failed to load pattern config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	patterns.Exclude = append(patterns.Exclude, splitCommaList(*excludeFlag)...)
	patterns.Private = append(patterns.Private, splitCommaList(*privateFlag)...)
	patterns.Include = append(patterns.Include, splitCommaList(*alwaysIncludeFlag)...)

	filesystem := osfs.New()
	caseSensitive, err := filesystem.IsCaseSensitive()
	insensitive := *caseInsensitive
	if err == nil {
		insensitive = insensitive || !caseSensitive
	}

	cw := termcolor.NewWriter(os.Stdout, termcolor.ColorAuto)

	wt, err := local.New(local.Config{
		RootAbsPath:     absRoot,
		RootName:        filepath.Base(absRoot),
		NumWorkers:      *numWorkers,
		ExcludePatterns: patterns.Exclude,
		IncludePatterns: patterns.Include,
		PrivatePatterns: patterns.Private,
		CaseInsensitive: insensitive,
		WatchLatency:    *watchLatency,
		Logger:          slog.Default(),
	}, filesystem)
	if err != nil {
		slog.Error("failed to start worktree", "err", err)
		os.Exit(1)
	}
	defer wt.Close()

	projectId := uuid.NewString()
	worktreeId := uuid.NewString()

	slog.Info("worktreed starting", "version", version, "root", absRoot, "projectId", projectId, "worktreeId", worktreeId)

	snap := waitForInitialScan(wt)
	printScanSummary(cw, snap)
	if *report != "" {
		if err := writeReport(*report, snap); err != nil {
			slog.Warn("failed to write scan report", "path", *report, "err", err)
		} else {
			slog.Info("scan report written", "path", *report)
		}
	}

	c := cron.New()
	if _, err := c.AddFunc("@every 5m", func() {
		slog.Debug("periodic full reload tick")
		wt.AddPathPrefixToScan("")
	}); err != nil {
		slog.Warn("failed to schedule periodic reload", "err", err)
	}
	c.Start()
	defer c.Stop()

	broadcaster := newBroadcaster(wt, projectId, worktreeId, slog.Default())
	go broadcaster.run()
	defer broadcaster.close()

	mux := http.NewServeMux()
	mux.HandleFunc("/subscribe", broadcaster.handleSubscribe)

	srv := &http.Server{Addr: *addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", *addr, "endpoint", "/subscribe")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		slog.Error("server error", "err", err)
		os.Exit(1)
	case <-ctx.Done():
		slog.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown error", "err", err)
		}
	}
}

func initLogger(format string) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// waitForInitialScan blocks, with a spinner, until the background scanner
// reports its first settled snapshot.
func waitForInitialScan(wt *local.Worktree) worktree.Snapshot {
	spinner, _ := pterm.DefaultSpinner.Start("scanning worktree...")
	ch := wt.Observe()
	defer wt.Unobserve(ch)

	for u := range ch {
		if u.Kind == scan.UpdateSnapshot && !u.Scanning {
			spinner.Success("initial scan complete")
			return u.Snapshot
		}
	}
	spinner.Stop()
	return wt.Snapshot()
}

func printScanSummary(cw *termcolor.Writer, snap worktree.Snapshot) {
	totals := snap.Paths.Totals()
	data := pterm.TableData{
		{"metric", "count"},
		{"files", fmt.Sprintf("%d", totals.Files)},
		{"directories", fmt.Sprintf("%d", totals.Dirs)},
		{"ignored files", fmt.Sprintf("%d", totals.IgnoredFiles)},
		{"ignored directories", fmt.Sprintf("%d", totals.IgnoredDirs)},
		{"repositories", fmt.Sprintf("%d", snap.Repositories.Len())},
	}
	fmt.Printf("%s %s\n", cw.BoldCyan("worktreed"), cw.Green(version))
	fmt.Printf("  root: %s\n", snap.AbsPath)
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
