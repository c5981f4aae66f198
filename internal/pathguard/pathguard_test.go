package pathguard

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateEmptyAllowlistDenies(t *testing.T) {
	v := New(nil)
	res := v.Validate("/tmp")
	if res.Allowed || res.Error == "" {
		t.Errorf("expected deny with explanatory error, got %+v", res)
	}
}

func TestValidateEmptyCandidateDenies(t *testing.T) {
	v := New([]string{"/tmp"})
	res := v.Validate("")
	if res.Allowed {
		t.Errorf("expected deny for empty candidate, got %+v", res)
	}
}

func TestValidateAcceptsExactMatch(t *testing.T) {
	dir := t.TempDir()
	v := New([]string{dir})
	res := v.Validate(dir)
	if !res.Allowed {
		t.Errorf("expected exact allowlist entry to be allowed, got %+v", res)
	}
}

func TestValidateAcceptsDescendant(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "child", "grandchild")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	v := New([]string{dir})
	res := v.Validate(sub)
	if !res.Allowed {
		t.Errorf("expected descendant path to be allowed, got %+v", res)
	}
}

func TestValidateRejectsSiblingWithSimilarPrefix(t *testing.T) {
	dir := t.TempDir()
	evil := dir + "-evil"
	if err := os.MkdirAll(evil, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	v := New([]string{dir})
	res := v.Validate(evil)
	if res.Allowed {
		t.Errorf("expected %s-evil to be rejected as a non-descendant of %s, got %+v", dir, dir, res)
	}
}

func TestValidateAllowsNonExistentTrailingSegments(t *testing.T) {
	dir := t.TempDir()
	candidate := filepath.Join(dir, "not-created-yet")
	v := New([]string{dir})
	res := v.Validate(candidate)
	if !res.Allowed {
		t.Errorf("expected a not-yet-created subdirectory to be allowed, got %+v", res)
	}
}

func TestSetAllowedDirsHotSwaps(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	v := New([]string{a})

	if !v.Validate(a).Allowed {
		t.Fatal("expected a to be allowed initially")
	}
	if v.Validate(b).Allowed {
		t.Fatal("expected b to be denied initially")
	}

	v.SetAllowedDirs([]string{b})

	if v.Validate(a).Allowed {
		t.Error("expected a to be denied after hot-swap")
	}
	if !v.Validate(b).Allowed {
		t.Error("expected b to be allowed after hot-swap")
	}
}
