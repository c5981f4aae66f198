package diag

import (
	"path/filepath"
	"testing"

	"github.com/huanluu/claude-history-server/internal/ringbuf"
	"github.com/huanluu/claude-history-server/internal/sessionstore"
	"github.com/huanluu/claude-history-server/internal/store"
)

func TestSnapshotReportsAvailableComponents(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer st.Close()

	sessions := sessionstore.New()
	errs := ringbuf.New(8)
	errs.Add(ringbuf.ErrorEntry{Component: "indexer", Message: "boom"})

	svc := New(st, nil, nil, sessions, nil, errs)
	snap, ok := svc.Snapshot().(Snapshot)
	if !ok {
		t.Fatalf("Snapshot() returned %T, want diag.Snapshot", svc.Snapshot())
	}

	if snap.UptimeSeconds < 0 {
		t.Errorf("expected non-negative uptime, got %v", snap.UptimeSeconds)
	}
	if snap.WebsocketClients != 0 {
		t.Errorf("expected zero websocket clients, got %d", snap.WebsocketClients)
	}
	if len(snap.RecentErrors) != 1 || snap.RecentErrors[0].Message != "boom" {
		t.Errorf("expected one recent error, got %+v", snap.RecentErrors)
	}
	if snap.Heartbeat != nil {
		t.Errorf("expected nil heartbeat status when no service is wired, got %+v", snap.Heartbeat)
	}
}

func TestSnapshotToleratesAllNilOptionalDependencies(t *testing.T) {
	svc := New(nil, nil, nil, nil, nil, nil)
	snap := svc.Snapshot().(Snapshot)
	if snap.RecentErrors == nil {
		t.Error("expected RecentErrors to default to an empty slice, not nil")
	}
}
