// Package pathguard validates that a candidate working directory lives
// inside an operator-configured allowlist before any subprocess is allowed
// to run there.
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Result is the outcome of a Validate call.
type Result struct {
	Allowed      bool
	ResolvedPath string
	Error        string
}

// Validator holds a hot-swappable allowlist of absolute directories.
type Validator struct {
	mu      sync.RWMutex
	allowed []string
}

// New builds a Validator with the given initial allowlist.
func New(allowedDirs []string) *Validator {
	v := &Validator{}
	v.SetAllowedDirs(allowedDirs)
	return v
}

// SetAllowedDirs hot-swaps the allowlist.
func (v *Validator) SetAllowedDirs(dirs []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowed = append([]string(nil), dirs...)
}

// Validate checks candidate against the current allowlist.
func (v *Validator) Validate(candidate string) Result {
	v.mu.RLock()
	allowed := v.allowed
	v.mu.RUnlock()

	if len(allowed) == 0 {
		return Result{Error: "no allowed working directories are configured"}
	}
	if strings.TrimSpace(candidate) == "" {
		return Result{Error: "candidate path must be a non-empty string"}
	}

	resolved, err := canonicalize(candidate)
	if err != nil {
		return Result{Error: fmt.Sprintf("failed to resolve candidate path: %v", err)}
	}

	for _, entry := range allowed {
		resolvedEntry, err := canonicalize(entry)
		if err != nil {
			continue
		}
		if resolved == resolvedEntry || isDescendant(resolved, resolvedEntry) {
			return Result{Allowed: true, ResolvedPath: resolved}
		}
	}

	return Result{ResolvedPath: resolved, Error: "candidate path is not within any allowed working directory"}
}

// isDescendant reports whether candidate is a proper path-component
// descendant of root — prefix equality alone is not enough, since that
// would let "/tmp-evil" pass as a descendant of "/tmp".
func isDescendant(candidate, root string) bool {
	root = strings.TrimRight(root, string(filepath.Separator))
	prefix := root + string(filepath.Separator)
	return strings.HasPrefix(candidate, prefix)
}

// canonicalize resolves symlinks for the longest existing prefix of path,
// then reappends any trailing segments that don't exist yet (so callers may
// validate a directory an agent is about to create).
func canonicalize(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("path must be absolute: %q", path)
	}

	clean := filepath.Clean(path)
	remainder := ""
	cur := clean

	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			if remainder == "" {
				return resolved, nil
			}
			return filepath.Join(resolved, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			// reached root without finding an existing prefix
			return clean, nil
		}
		base := filepath.Base(cur)
		if remainder == "" {
			remainder = base
		} else {
			remainder = filepath.Join(base, remainder)
		}
		cur = parent
	}
}
