package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/huanluu/claude-history-server/internal/apperr"
	"github.com/huanluu/claude-history-server/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history_test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIndexAndGetSession(t *testing.T) {
	s := openTestStore(t)

	parsed := model.ParsedSession{
		SessionID:      "sess-1",
		Project:        "my-project",
		StartedAt:      1000,
		LastActivityAt: 2000,
		Preview:        "hello there",
		Messages: []model.Message{
			{UUID: "m1", Role: model.RoleUser, Content: "hello there", Timestamp: 1000, HasTime: true},
			{UUID: "m2", Role: model.RoleAssistant, Content: "general kenobi", Timestamp: 1500, HasTime: true},
		},
	}

	if err := s.IndexSession(parsed, 9999, true); err != nil {
		t.Fatalf("IndexSession failed: %v", err)
	}

	sess, err := s.GetSessionByID("sess-1")
	if err != nil {
		t.Fatalf("GetSessionByID failed: %v", err)
	}
	if sess.MessageCount != 2 {
		t.Errorf("expected message count 2, got %d", sess.MessageCount)
	}
	if !sess.IsUnread {
		t.Error("expected session to be marked unread")
	}

	msgs, err := s.GetMessagesBySessionID("sess-1")
	if err != nil {
		t.Fatalf("GetMessagesBySessionID failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].UUID != "m1" || msgs[1].UUID != "m2" {
		t.Errorf("expected messages ordered by timestamp, got %s then %s", msgs[0].UUID, msgs[1].UUID)
	}
}

func TestIndexSessionPreservesHiddenAndUnread(t *testing.T) {
	s := openTestStore(t)

	base := model.ParsedSession{
		SessionID: "sess-2", StartedAt: 1, LastActivityAt: 1,
		Messages: []model.Message{{UUID: "m1", Role: model.RoleUser, Content: "hi"}},
	}
	if err := s.IndexSession(base, 1, true); err != nil {
		t.Fatalf("initial index failed: %v", err)
	}
	if err := s.HideSession("sess-2"); err != nil {
		t.Fatalf("HideSession failed: %v", err)
	}
	if err := s.MarkRead("sess-2"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	if err := s.IndexSession(base, 2, false); err != nil {
		t.Fatalf("re-index failed: %v", err)
	}

	sess, err := s.GetSessionByID("sess-2")
	if err != nil {
		t.Fatalf("GetSessionByID failed: %v", err)
	}
	if !sess.IsHidden {
		t.Error("expected hidden flag to survive re-index")
	}
	if sess.IsUnread {
		t.Error("expected unread flag to survive re-index as false")
	}
}

func TestGetSessionByIDNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetSessionByID("does-not-exist")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("expected not_found kind, got %v", err)
	}
}

func TestListRecentSessionsExcludesHiddenAndFilters(t *testing.T) {
	s := openTestStore(t)

	manual := model.ParsedSession{SessionID: "manual", StartedAt: 1, LastActivityAt: 10}
	auto := model.ParsedSession{SessionID: "auto", StartedAt: 1, LastActivityAt: 20, IsAutomatic: true}
	hidden := model.ParsedSession{SessionID: "hidden", StartedAt: 1, LastActivityAt: 30}

	for _, p := range []model.ParsedSession{manual, auto, hidden} {
		if err := s.IndexSession(p, 1, false); err != nil {
			t.Fatalf("index %s failed: %v", p.SessionID, err)
		}
	}
	if err := s.HideSession("hidden"); err != nil {
		t.Fatalf("HideSession failed: %v", err)
	}

	all, err := s.ListRecentSessions(model.FilterAll, 10, 0)
	if err != nil {
		t.Fatalf("ListRecentSessions failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 visible sessions, got %d", len(all))
	}
	if all[0].ID != "auto" {
		t.Errorf("expected most-recent-activity session first, got %s", all[0].ID)
	}

	manualOnly, err := s.ListRecentSessions(model.FilterManualOnly, 10, 0)
	if err != nil {
		t.Fatalf("ListRecentSessions(manualOnly) failed: %v", err)
	}
	if len(manualOnly) != 1 || manualOnly[0].ID != "manual" {
		t.Errorf("expected only manual session, got %+v", manualOnly)
	}
}

func TestSearchMessagesHighlightsAndExcludesHidden(t *testing.T) {
	s := openTestStore(t)

	visible := model.ParsedSession{
		SessionID: "vis", StartedAt: 5, LastActivityAt: 5, Preview: "preview",
		Messages: []model.Message{{UUID: "v1", Role: model.RoleUser, Content: "the quick brown fox"}},
	}
	hidden := model.ParsedSession{
		SessionID: "hid", StartedAt: 1, LastActivityAt: 1,
		Messages: []model.Message{{UUID: "h1", Role: model.RoleUser, Content: "quick silver fox"}},
	}
	if err := s.IndexSession(visible, 1, false); err != nil {
		t.Fatalf("index visible failed: %v", err)
	}
	if err := s.IndexSession(hidden, 1, false); err != nil {
		t.Fatalf("index hidden failed: %v", err)
	}
	if err := s.HideSession("hid"); err != nil {
		t.Fatalf("HideSession failed: %v", err)
	}

	hits, err := s.SearchMessages(`"quick"*`, model.SortRelevance, model.FilterAll, 10, 0)
	if err != nil {
		t.Fatalf("SearchMessages failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit (hidden session excluded), got %d", len(hits))
	}
	if hits[0].SessionID != "vis" {
		t.Errorf("expected hit from visible session, got %s", hits[0].SessionID)
	}
	if !strings.Contains(hits[0].HighlightedContent, "<mark>") {
		t.Errorf("expected highlighted content, got %q", hits[0].HighlightedContent)
	}
}

func TestHeartbeatStateRoundTrip(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetState("missing")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if got.LastProcessed != 0 {
		t.Errorf("expected zero-value state for unseen key, got %+v", got)
	}

	if err := s.UpsertState(model.HeartbeatState{Key: "k1", LastChanged: "2026-07-01T00:00:00Z", LastProcessed: 42}); err != nil {
		t.Fatalf("UpsertState failed: %v", err)
	}
	got, err = s.GetState("k1")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if got.LastProcessed != 42 {
		t.Errorf("expected last processed 42, got %d", got.LastProcessed)
	}

	all, err := s.GetAllState()
	if err != nil {
		t.Fatalf("GetAllState failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 state row, got %d", len(all))
	}
}
