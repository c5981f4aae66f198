// Package diag assembles a point-in-time snapshot of server health for the
// /diagnostics endpoint, pulling from every long-lived service without
// owning any of them.
package diag

import (
	"time"

	"github.com/huanluu/claude-history-server/internal/heartbeat"
	"github.com/huanluu/claude-history-server/internal/indexer"
	"github.com/huanluu/claude-history-server/internal/model"
	"github.com/huanluu/claude-history-server/internal/ringbuf"
	"github.com/huanluu/claude-history-server/internal/sessionstore"
	"github.com/huanluu/claude-history-server/internal/store"
	"github.com/huanluu/claude-history-server/internal/watch"
)

// IndexResult mirrors indexer.Result, copied here so this package doesn't
// need to export indexer's internal Result shape verbatim in JSON.
type IndexResult struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
}

// Snapshot is the full JSON body returned by /diagnostics.
type Snapshot struct {
	UptimeSeconds    float64                `json:"uptimeSeconds"`
	DB               model.Stats            `json:"db"`
	WatcherPending   int                    `json:"watcherPendingFiles"`
	LastIndex        IndexResult            `json:"lastIndex"`
	LastIndexAtMs    int64                  `json:"lastIndexAtMs,omitempty"`
	WebsocketClients int                    `json:"websocketClients"`
	Heartbeat        *heartbeat.Status      `json:"heartbeat,omitempty"`
	RecentErrors     []ringbuf.ErrorEntry   `json:"recentErrors"`
}

// Service holds references to every component Snapshot reports on. All
// fields except startedAt are optional; a nil dependency is simply omitted
// or zero-valued in the snapshot rather than causing an error.
type Service struct {
	startedAt time.Time

	store     *store.Store
	watcher   *watch.Watcher
	indexer   *indexer.Indexer
	sessions  *sessionstore.Store
	heartbeat *heartbeat.Service
	errors    *ringbuf.Buffer
}

// New builds a Service. Any of watcher, idx, sessions, hb may be nil if that
// component isn't running; errors may be nil if no ring buffer is kept.
func New(st *store.Store, watcher *watch.Watcher, idx *indexer.Indexer, sessions *sessionstore.Store, hb *heartbeat.Service, errors *ringbuf.Buffer) *Service {
	return &Service{
		startedAt: time.Now(),
		store:     st,
		watcher:   watcher,
		indexer:   idx,
		sessions:  sessions,
		heartbeat: hb,
		errors:    errors,
	}
}

// Snapshot satisfies httpx's diagProvider interface.
func (s *Service) Snapshot() any {
	snap := Snapshot{
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		RecentErrors:  []ringbuf.ErrorEntry{},
	}

	if s.store != nil {
		if stats, err := s.store.GetStats(); err == nil {
			snap.DB = stats
		}
	}

	if s.watcher != nil {
		snap.WatcherPending = s.watcher.PendingCount()
	}

	if s.indexer != nil {
		result, at := s.indexer.LastResult()
		snap.LastIndex = IndexResult{Indexed: result.Indexed, Skipped: result.Skipped}
		snap.LastIndexAtMs = at
	}

	if s.sessions != nil {
		snap.WebsocketClients = len(s.sessions.GetAll())
	}

	if s.heartbeat != nil {
		if status, err := s.heartbeat.Status(); err == nil {
			snap.Heartbeat = &status
		}
	}

	if s.errors != nil {
		snap.RecentErrors = s.errors.Entries()
	}

	return snap
}
