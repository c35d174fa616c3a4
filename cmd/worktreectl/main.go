// Package main is the entry point for worktreectl, a small client that
// connects to a worktreed /subscribe endpoint and drives a remote
// worktree mirror, printing each UpdateWorktree delta as it arrives.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/worktreehq/engine/internal/termcolor"
	"github.com/worktreehq/engine/internal/worktree/delta"
	"github.com/worktreehq/engine/internal/worktree/remote"
	"github.com/worktreehq/engine/internal/worktree/wire"
)

func main() {
	addr := flag.String("addr", getEnv("WORKTREECTL_ADDR", "localhost:7070"), "worktreed address (host:port)")
	filterFlag := flag.String("filter", "", "Only print updated entries whose path fuzzy-matches this query")
	logFormat := flag.String("log-format", getEnv("WORKTREECTL_LOG_FORMAT", "text"), "Log format: text, json")
	flag.Parse()

	initLogger(*logFormat)

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/subscribe"}
	slog.Info("worktreectl connecting", "url", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		slog.Error("failed to connect", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	cw := termcolor.NewWriter(os.Stdout, termcolor.ColorAuto)

	rw := remote.New("", "", "", slog.Default())
	defer rw.DisconnectedFromHost()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go readLoop(conn, rw, cw, *filterFlag, done)

	select {
	case <-ctx.Done():
		slog.Info("worktreectl shutting down")
	case <-done:
		slog.Info("connection closed by host")
	}
}

func readLoop(conn *websocket.Conn, rw *remote.Worktree, cw *termcolor.Writer, filter string, done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("worktreectl: read error", "err", err)
			return
		}

		var msg wire.UpdateWorktree
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("worktreectl: malformed update", "err", err)
			continue
		}

		d := wire.ToUpdateWorktree(msg, rw.Snapshot())
		if err := rw.Apply(d); err != nil {
			slog.Warn("worktreectl: apply failed", "err", err)
			return
		}

		printUpdate(cw, d, filter)
	}
}

// printUpdate reports an applied delta's size, optionally narrowed to
// entries whose path fuzzy-matches filter — a quick-open-style way to
// watch just the part of the tree an operator cares about.
func printUpdate(cw *termcolor.Writer, d delta.UpdateWorktree, filter string) {
	shown := 0
	for _, e := range d.UpdatedEntries {
		if filter != "" && !fuzzy.MatchFold(filter, e.Path) {
			continue
		}
		fmt.Printf("  %s %s\n", cw.Green("+"), e.Path)
		shown++
	}
	for _, id := range d.RemovedEntries {
		fmt.Printf("  %s entry %d\n", cw.Red("-"), id)
		shown++
	}
	for _, r := range d.UpdatedRepositories {
		fmt.Printf("  %s repository %s\n", cw.Cyan("~"), r.WorkDirectory)
		shown++
	}

	if shown == 0 && filter == "" {
		return
	}
	fmt.Printf("%s scan_id=%d last=%v\n", cw.Bold("update"), d.ScanId, d.IsLastUpdate)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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
