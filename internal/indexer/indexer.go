// Package indexer walks the transcript tree and drives the TranscriptParser
// and Store to keep indexed sessions in sync with what's on disk.
package indexer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/huanluu/claude-history-server/internal/logging"
	"github.com/huanluu/claude-history-server/internal/store"
	"github.com/huanluu/claude-history-server/internal/transcript"
)

// Result reports how many files a Run call touched.
type Result struct {
	Indexed int
	Skipped int
}

// Indexer owns the transcript root and serializes all writes to the store
// through a single mutex, matching the "indexing is serialized per process"
// rule; reads elsewhere proceed unhindered since SQLite handles that locking
// itself.
type Indexer struct {
	root  string
	store *store.Store
	mu    sync.Mutex

	lastResult Result
	lastRunAt  int64
}

// New builds an Indexer rooted at root (typically ~/.claude/projects).
func New(root string, st *store.Store) *Indexer {
	return &Indexer{root: root, store: st}
}

// Run walks every project directory under the transcript root and indexes
// each transcript file that needs it. force bypasses the mtime/lastIndexed
// skip check.
func (idx *Indexer) Run(force bool) (Result, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var result Result

	projectDirs, err := os.ReadDir(idx.root)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, err
	}

	for _, projectDir := range projectDirs {
		if !projectDir.IsDir() {
			continue
		}
		projectPath := filepath.Join(idx.root, projectDir.Name())
		titles := loadTitleMap(projectPath)

		entries, err := os.ReadDir(projectPath)
		if err != nil {
			L_warn("indexer: failed to read project directory", "path", projectPath, "error", err)
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
				continue
			}
			stem := strings.TrimSuffix(entry.Name(), ".jsonl")
			if skipStem(stem) {
				continue
			}

			indexed, err := idx.indexOne(filepath.Join(projectPath, entry.Name()), stem, titles, force)
			if err != nil {
				L_warn("indexer: failed to index file", "path", entry.Name(), "error", err)
				result.Skipped++
				continue
			}
			if indexed {
				result.Indexed++
			} else {
				result.Skipped++
			}
		}
	}

	idx.lastResult = result
	idx.lastRunAt = time.Now().UnixMilli()
	return result, nil
}

// LastResult returns the outcome and timestamp of the most recent Run call,
// or a zero Result and timestamp 0 if Run has never completed.
func (idx *Indexer) LastResult() (Result, int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.lastResult, idx.lastRunAt
}

// RunFile indexes a single transcript file (used by the file watcher), by
// path rather than by walking the whole tree.
func (idx *Indexer) RunFile(path string, force bool) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".jsonl") {
		return false, nil
	}
	stem := strings.TrimSuffix(name, ".jsonl")
	if skipStem(stem) {
		return false, nil
	}

	titles := loadTitleMap(filepath.Dir(path))
	return idx.indexOne(path, stem, titles, force)
}

// indexOne applies steps 1-5 of the indexing procedure to a single file.
// Caller must hold idx.mu.
func (idx *Indexer) indexOne(path, stem string, titles map[string]string, force bool) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	if !force {
		lastIndexed, err := idx.store.GetSessionLastIndexed(stem)
		if err != nil {
			return false, err
		}
		if lastIndexed > 0 && info.ModTime().UnixMilli() <= lastIndexed {
			return false, nil
		}
	}

	parsed, err := transcript.Parse(path)
	if err != nil {
		return false, err
	}
	if parsed.SessionID == "" || len(parsed.Messages) == 0 {
		return false, nil
	}

	// The filename stem is the canonical session id; a transcript's own
	// embedded sessionId field is only used above to confirm the file has
	// real content worth indexing.
	parsed.SessionID = stem

	now := time.Now().UnixMilli()
	if err := idx.store.IndexSession(parsed, now, parsed.IsAutomatic); err != nil {
		return false, err
	}

	if title, ok := titles[stem]; ok && title != "" {
		if err := idx.store.SetSessionTitle(stem, title); err != nil {
			L_warn("indexer: failed to set session title", "sessionId", stem, "error", err)
		}
	}

	return true, nil
}

// skipStem reports whether a transcript filename stem is a non-session
// artifact the Indexer must not touch.
func skipStem(stem string) bool {
	return strings.HasPrefix(stem, "agent-") || stem == "sessions-index"
}

func loadTitleMap(projectPath string) map[string]string {
	titles := map[string]string{}
	data, err := os.ReadFile(filepath.Join(projectPath, "sessions-index.json"))
	if err != nil {
		return titles
	}
	if err := json.Unmarshal(data, &titles); err != nil {
		L_warn("indexer: malformed sessions-index.json", "path", projectPath, "error", err)
		return map[string]string{}
	}
	return titles
}
