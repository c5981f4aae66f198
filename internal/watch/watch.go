// Package watch notifies the Indexer about transcript file changes as they
// happen, instead of waiting for the next periodic full reindex.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	. "github.com/huanluu/claude-history-server/internal/logging"
)

// quiescence is the minimum gap with no further writes before a file change
// is considered settled and handed to the indexer. Variable rather than
// const so tests can shrink it.
var quiescence = 2 * time.Second

// indexerFile is the subset of *indexer.Indexer this package depends on.
type indexerFile interface {
	RunFile(path string, force bool) (bool, error)
}

// Watcher watches every project directory under a transcript root and
// debounces write bursts before invoking the indexer on the changed file.
type Watcher struct {
	root    string
	indexer indexerFile
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Watcher rooted at root. Call Start to begin watching.
func New(root string, idx indexerFile) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:    root,
		indexer: idx,
		fsw:     fsw,
		timers:  make(map[string]*time.Timer),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start adds watches for the root and every existing project subdirectory,
// then begins the event loop in the background.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(w.root); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.root)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				if err := w.fsw.Add(filepath.Join(w.root, e.Name())); err != nil {
					L_warn("watch: failed to watch project directory", "dir", e.Name(), "error", err)
				}
			}
		}
	}

	w.wg.Add(1)
	go w.loop()

	L_info("watch: started", "root", w.root)
	return nil
}

// Stop halts the event loop and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.fsw.Close()
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.timers {
		t.Stop()
	}
}

// PendingCount returns the number of files currently debounced, awaiting a
// settled write before the indexer runs on them.
func (w *Watcher) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			L_warn("watch: fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	info, err := os.Stat(event.Name)
	if err == nil && info.IsDir() {
		if event.Op&fsnotify.Create == fsnotify.Create {
			if err := w.fsw.Add(event.Name); err != nil {
				L_warn("watch: failed to watch new project directory", "dir", event.Name, "error", err)
			}
		}
		return
	}

	if !strings.HasSuffix(event.Name, ".jsonl") {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.debounce(event.Name)
}

// debounce resets a per-file timer on every event; the indexer only runs
// once writes to that file have been quiet for the full quiescence window.
func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(quiescence, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		if _, err := w.indexer.RunFile(path, false); err != nil {
			L_warn("watch: failed to index changed file", "path", path, "error", err)
		}
	})
}
