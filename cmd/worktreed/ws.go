package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/worktreehq/engine/internal/worktree"
	"github.com/worktreehq/engine/internal/worktree/delta"
	"github.com/worktreehq/engine/internal/worktree/local"
	"github.com/worktreehq/engine/internal/worktree/scan"
	"github.com/worktreehq/engine/internal/worktree/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(_ *http.Request) bool { return true },
	EnableCompression: true,
}

// broadcaster relays the local worktree's updates to every connected
// /subscribe client as framed UpdateWorktree wire messages, grounded on
// RepoSession's registerClient/broadcastUpdate/clientWritePump shape.
type broadcaster struct {
	wt         *local.Worktree
	projectId  string
	worktreeId string
	logger     *slog.Logger

	mu      sync.Mutex
	clients map[chan wire.UpdateWorktree]struct{}

	prevSnapshot worktree.Snapshot
	prevStatuses map[string]worktree.RepoStatusMap
}

func newBroadcaster(wt *local.Worktree, projectId, worktreeId string, logger *slog.Logger) *broadcaster {
	return &broadcaster{
		wt:           wt,
		projectId:    projectId,
		worktreeId:   worktreeId,
		logger:       logger,
		clients:      make(map[chan wire.UpdateWorktree]struct{}),
		prevSnapshot: worktree.NewSnapshot(worktreeId, "", ""),
		prevStatuses: make(map[string]worktree.RepoStatusMap),
	}
}

// run drains the worktree's raw scan updates, computes a delta against the
// previously-broadcast snapshot, and fans the wire-encoded result out to
// every connected client.
func (b *broadcaster) run() {
	ch := b.wt.Observe()
	defer b.wt.Unobserve(ch)

	for u := range ch {
		if u.Kind != scan.UpdateSnapshot {
			continue
		}
		touched := make([]string, 0, len(u.Changes))
		for _, c := range u.Changes {
			touched = append(touched, c.Path)
		}

		b.mu.Lock()
		prev := b.prevSnapshot
		prevStatuses := b.prevStatuses
		d := delta.Build(prev, u.Snapshot, touched, b.projectId, b.worktreeId)
		msg := wire.FromUpdateWorktree(d, prevStatuses)

		b.prevSnapshot = u.Snapshot
		b.prevStatuses = statusBaselines(u.Snapshot)

		for client := range b.clients {
			select {
			case client <- msg:
			default:
				b.logger.Warn("worktreed: client channel full, dropping update")
			}
		}
		b.mu.Unlock()
	}
}

func statusBaselines(snap worktree.Snapshot) map[string]worktree.RepoStatusMap {
	out := make(map[string]worktree.RepoStatusMap)
	snap.Repositories.Each(func(r worktree.RepositoryEntry) bool {
		out[r.WorkDirectory] = r.StatusByPath
		return true
	})
	return out
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		close(ch)
	}
	b.clients = nil
}

// handleSubscribe upgrades the connection, sends the full current snapshot
// as an initial delta against an empty baseline, then relays every
// subsequent broadcast update, per §4.4's replication flow.
func (b *broadcaster) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("worktreed: websocket upgrade failed", "err", err)
		return
	}
	b.logger.Info("worktreed: client connected", "addr", conn.RemoteAddr())

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	client := make(chan wire.UpdateWorktree, 32)
	b.sendInitialState(client)

	b.mu.Lock()
	b.clients[client] = struct{}{}
	b.mu.Unlock()

	done := make(chan struct{})
	go b.readPump(conn, done)
	b.writePump(conn, client, done)

	b.mu.Lock()
	delete(b.clients, client)
	b.mu.Unlock()
}

func (b *broadcaster) sendInitialState(client chan<- wire.UpdateWorktree) {
	snap := b.wt.Snapshot()
	var touched []string
	snap.Traverse(worktree.TraversalFilter{IncludeFiles: true, IncludeDirs: true, IncludeIgnored: true}, "", func(e worktree.Entry) bool {
		touched = append(touched, e.Path)
		return true
	})

	d := delta.Build(worktree.NewSnapshot(b.worktreeId, snap.AbsPath, snap.RootName), snap, touched, b.projectId, b.worktreeId)
	client <- wire.FromUpdateWorktree(d, nil)
}

func (b *broadcaster) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				b.logger.Warn("worktreed: client read error", "err", err)
			}
			return
		}
	}
}

func (b *broadcaster) writePump(conn *websocket.Conn, client <-chan wire.UpdateWorktree, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-client:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				b.logger.Error("worktreed: failed to encode update", "err", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
