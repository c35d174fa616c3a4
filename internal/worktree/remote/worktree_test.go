package remote

import (
	"context"
	"testing"
	"time"

	"github.com/worktreehq/engine/internal/worktree"
	"github.com/worktreehq/engine/internal/worktree/delta"
)

func TestApplyPromotesAndReleasesWaiter(t *testing.T) {
	w := New("root", "/tmp/root", "root", nil)
	defer w.DisconnectedFromHost()

	obs := w.Observe()

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- w.WaitForSnapshot(context.Background(), 5)
	}()

	u := delta.UpdateWorktree{
		UpdatedEntries: []worktree.Entry{{Id: 1, Kind: worktree.KindDir, Path: "a"}},
		ScanId:         5,
		IsLastUpdate:   true,
	}
	if err := w.Apply(u); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	select {
	case err := <-waitDone:
		if err != nil {
			t.Fatalf("WaitForSnapshot: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for WaitForSnapshot to resolve")
	}

	snap := w.Snapshot()
	if _, ok := snap.EntryForPath("a"); !ok {
		t.Fatal("expected promoted snapshot to contain entry a")
	}
	if snap.CompletedScanId != 5 {
		t.Fatalf("expected CompletedScanId=5, got %d", snap.CompletedScanId)
	}

	select {
	case got := <-obs:
		if got.ScanId != 5 {
			t.Fatalf("expected relayed update with ScanId=5, got %d", got.ScanId)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for observed update")
	}
}

func TestDisconnectedFromHostFailsPendingWaiters(t *testing.T) {
	w := New("root", "/tmp/root", "root", nil)

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- w.WaitForSnapshot(context.Background(), 99)
	}()
	time.Sleep(20 * time.Millisecond)

	w.DisconnectedFromHost()

	select {
	case err := <-waitDone:
		if err != ErrDisconnected {
			t.Fatalf("expected ErrDisconnected, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for waiter to be released on disconnect")
	}

	if err := w.Apply(delta.UpdateWorktree{}); err != ErrDisconnected {
		t.Fatalf("expected Apply after disconnect to fail, got %v", err)
	}
}
