package heartbeat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/huanluu/claude-history-server/internal/config"
	"github.com/huanluu/claude-history-server/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}
	if err := cfg.UpdateSection(config.SectionHeartbeat, map[string]any{"enabled": true, "intervalMs": float64(60000)}); err != nil {
		t.Fatalf("UpdateSection failed: %v", err)
	}

	return New(st, cfg)
}

func TestRunHeartbeatSkipsWhenDisabledAndNotForced(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer st.Close()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}

	s := New(st, cfg)
	called := false
	s.checkForChanges = func(ctx context.Context, task Task) ([]WorkItem, error) {
		called = true
		return nil, nil
	}

	result := s.RunHeartbeat(false)
	if called {
		t.Error("expected checkForChanges not to run when heartbeat disabled and not forced")
	}
	if result.TasksProcessed != 0 || result.SessionsCreated != 0 {
		t.Errorf("expected a no-op result, got %+v", result)
	}
}

func TestRunHeartbeatClassifiesNewUpdatedUnchanged(t *testing.T) {
	s := newTestService(t)

	s.checkForChanges = func(ctx context.Context, task Task) ([]WorkItem, error) {
		return []WorkItem{
			{ID: "42", Fields: map[string]string{changedDateField: "2024-01-14T10:00:00Z"}},
		}, nil
	}
	var spawned []string
	s.spawn = func(ctx context.Context, workingDir, prompt string) (string, error) {
		spawned = append(spawned, prompt)
		return "session-1", nil
	}

	dir := t.TempDir()
	writeChecklist(t, dir, "## Backlog\n- [x] list-items\n")
	if err := s.cfg.UpdateSection(config.SectionHeartbeat, map[string]any{"workingDirectory": dir}); err != nil {
		t.Fatalf("UpdateSection failed: %v", err)
	}

	first := s.RunHeartbeat(false)
	if first.SessionsCreated != 1 || len(first.SessionIDs) != 1 {
		t.Fatalf("expected one new session created, got %+v", first)
	}
	if len(spawned) != 1 {
		t.Fatalf("expected exactly one spawn, got %d", len(spawned))
	}

	// Same changed date again: now unchanged, no new spawn.
	second := s.RunHeartbeat(false)
	if second.SessionsCreated != 0 {
		t.Errorf("expected no new sessions for an unchanged item, got %+v", second)
	}
	if len(spawned) != 1 {
		t.Errorf("expected spawn count to stay at 1, got %d", len(spawned))
	}

	// Changed date: classified as updated, spawns again.
	s.checkForChanges = func(ctx context.Context, task Task) ([]WorkItem, error) {
		return []WorkItem{
			{ID: "42", Fields: map[string]string{changedDateField: "2024-01-15T10:00:00Z"}},
		}, nil
	}
	third := s.RunHeartbeat(false)
	if third.SessionsCreated != 1 {
		t.Errorf("expected one session for an updated item, got %+v", third)
	}
	if len(spawned) != 2 {
		t.Errorf("expected spawn count 2 after update, got %d", len(spawned))
	}
}

func TestRunHeartbeatAccumulatesErrorsWithoutShortCircuiting(t *testing.T) {
	s := newTestService(t)

	dir := t.TempDir()
	writeChecklist(t, dir, "## A\n- [x] task-a\n## B\n- [x] task-b\n")
	if err := s.cfg.UpdateSection(config.SectionHeartbeat, map[string]any{"workingDirectory": dir}); err != nil {
		t.Fatalf("UpdateSection failed: %v", err)
	}

	calls := 0
	s.checkForChanges = func(ctx context.Context, task Task) ([]WorkItem, error) {
		calls++
		if task.Section == "A" {
			return nil, errors.New("item source unreachable")
		}
		return []WorkItem{{ID: "7", Fields: map[string]string{changedDateField: "d1"}}}, nil
	}
	s.spawn = func(ctx context.Context, workingDir, prompt string) (string, error) {
		return "session-x", nil
	}

	result := s.RunHeartbeat(false)
	if calls != 2 {
		t.Fatalf("expected both tasks polled despite A's error, got %d calls", calls)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected exactly one accumulated error, got %+v", result.Errors)
	}
	if result.SessionsCreated != 1 {
		t.Errorf("expected task B's item to still be processed, got %+v", result)
	}
}

func TestStatusReportsConfigAndWatermarks(t *testing.T) {
	s := newTestService(t)
	status, err := s.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Enabled {
		t.Error("expected enabled=true from test fixture")
	}
	if status.Watermarks == nil {
		t.Error("expected a non-nil (possibly empty) watermarks slice")
	}
}

func writeChecklist(t *testing.T, dir, content string) {
	t.Helper()
	path := filepath.Join(dir, "HEARTBEAT.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write HEARTBEAT.md: %v", err)
	}
}
