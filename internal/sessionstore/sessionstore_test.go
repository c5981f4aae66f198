package sessionstore

import "testing"

type noopExecutor struct{ cancelled bool }

func (n *noopExecutor) Cancel() { n.cancelled = true }

func TestCreateGetHasRemove(t *testing.T) {
	s := New()
	s.Create(Entry{SessionID: "s1", ClientID: "c1", Executor: &noopExecutor{}})

	if !s.Has("s1") {
		t.Fatal("expected s1 to be tracked")
	}
	entry, ok := s.Get("s1")
	if !ok || entry.ClientID != "c1" {
		t.Fatalf("expected to get entry for s1, got %+v ok=%v", entry, ok)
	}

	s.Remove("s1")
	if s.Has("s1") {
		t.Error("expected s1 to be removed")
	}
}

func TestRemoveByClientDropsAllItsSessions(t *testing.T) {
	s := New()
	s.Create(Entry{SessionID: "s1", ClientID: "c1"})
	s.Create(Entry{SessionID: "s2", ClientID: "c1"})
	s.Create(Entry{SessionID: "s3", ClientID: "c2"})

	removed := s.RemoveByClient("c1")
	if len(removed) != 2 {
		t.Fatalf("expected 2 sessions removed for c1, got %d", len(removed))
	}
	if s.Has("s1") || s.Has("s2") {
		t.Error("expected c1's sessions to be gone")
	}
	if !s.Has("s3") {
		t.Error("expected c2's session to remain")
	}
}

func TestGetAllReturnsEverySession(t *testing.T) {
	s := New()
	s.Create(Entry{SessionID: "s1", ClientID: "c1"})
	s.Create(Entry{SessionID: "s2", ClientID: "c2"})

	all := s.GetAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
}

func TestRemoveByClientUnknownClientIsNoop(t *testing.T) {
	s := New()
	removed := s.RemoveByClient("ghost")
	if removed != nil {
		t.Errorf("expected nil for unknown client, got %v", removed)
	}
}
