package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to be created, stat failed: %v", err)
	}
	if s.Heartbeat().Enabled {
		t.Error("expected heartbeat disabled by default")
	}
}

func TestGetAllEditableSectionsHidesApiKeyHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := s.SetApiKeyHash("deadbeef"); err != nil {
		t.Fatalf("SetApiKeyHash failed: %v", err)
	}

	sections := s.GetAllEditableSections()
	sec, ok := sections[SectionSecurity].(SecurityConfig)
	if !ok {
		t.Fatalf("expected SecurityConfig, got %T", sections[SectionSecurity])
	}
	if sec.ApiKeyHash != "" {
		t.Errorf("expected apiKeyHash to be hidden, got %q", sec.ApiKeyHash)
	}
	if s.ApiKeyHash() != "deadbeef" {
		t.Errorf("expected internal ApiKeyHash to still be stored, got %q", s.ApiKeyHash())
	}
}

func TestSetApiKeyHashStampsCreatedAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := s.SetApiKeyHash("deadbeef"); err != nil {
		t.Fatalf("SetApiKeyHash failed: %v", err)
	}
	if s.doc.Security.ApiKeyCreatedAt == "" {
		t.Error("expected apiKeyCreatedAt to be stamped")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.doc.Security.ApiKeyCreatedAt != s.doc.Security.ApiKeyCreatedAt {
		t.Errorf("expected apiKeyCreatedAt to survive reload, got %q want %q",
			reloaded.doc.Security.ApiKeyCreatedAt, s.doc.Security.ApiKeyCreatedAt)
	}
}

func TestUnknownTopLevelKeySurvivesUpdateAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{
		"heartbeat": {"enabled": false, "intervalMs": 300000, "workingDirectory": "", "maxItems": 0},
		"security": {"allowedWorkingDirs": []},
		"logging": {"requestLogLevel": "errors-only"},
		"futureFeatureFlag": {"nested": true}
	}`), 0o640); err != nil {
		t.Fatalf("seed config file: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := s.UpdateSection(SectionLogging, map[string]any{"requestLogLevel": "all"}); err != nil {
		t.Fatalf("UpdateSection failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}
	if !strings.Contains(string(data), "futureFeatureFlag") {
		t.Errorf("expected unknown top-level key to survive a section update, got:\n%s", data)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if _, ok := reloaded.doc.Extras["futureFeatureFlag"]; !ok {
		t.Error("expected futureFeatureFlag to be preserved in Extras after reload")
	}
}

func TestUpdateSectionRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	err = s.UpdateSection(SectionHeartbeat, map[string]any{"bogus": true})
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestUpdateSectionRejectsBelowMinimumInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	err = s.UpdateSection(SectionHeartbeat, map[string]any{"intervalMs": float64(1000)})
	if err == nil {
		t.Fatal("expected error for interval below minimum")
	}
}

func TestUpdateSectionAppliesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := s.SetApiKeyHash("keephash"); err != nil {
		t.Fatalf("SetApiKeyHash failed: %v", err)
	}

	var notified Section
	s.SetOnChanged(func(sec Section) { notified = sec })

	err = s.UpdateSection(SectionLogging, map[string]any{"requestLogLevel": "all"})
	if err != nil {
		t.Fatalf("UpdateSection failed: %v", err)
	}
	if notified != SectionLogging {
		t.Errorf("expected onChanged callback for logging, got %q", notified)
	}
	if s.RequestLogLevel() != "all" {
		t.Errorf("expected requestLogLevel 'all', got %q", s.RequestLogLevel())
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.RequestLogLevel() != "all" {
		t.Errorf("expected persisted requestLogLevel 'all', got %q", reloaded.RequestLogLevel())
	}
	if reloaded.ApiKeyHash() != "keephash" {
		t.Errorf("expected apiKeyHash preserved across unrelated section update, got %q", reloaded.ApiKeyHash())
	}
}

func TestUpdateSectionRejectsInvalidLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	err = s.UpdateSection(SectionLogging, map[string]any{"requestLogLevel": "verbose"})
	if err == nil {
		t.Fatal("expected error for invalid requestLogLevel")
	}
}
