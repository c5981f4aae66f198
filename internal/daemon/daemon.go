// Package daemon is the composition root: it wires every service together,
// binds the single shared TCP socket, and owns the startup/shutdown order.
package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/huanluu/claude-history-server/internal/authgate"
	"github.com/huanluu/claude-history-server/internal/config"
	"github.com/huanluu/claude-history-server/internal/diag"
	"github.com/huanluu/claude-history-server/internal/heartbeat"
	"github.com/huanluu/claude-history-server/internal/httpx"
	"github.com/huanluu/claude-history-server/internal/indexer"
	. "github.com/huanluu/claude-history-server/internal/logging"
	"github.com/huanluu/claude-history-server/internal/pathguard"
	"github.com/huanluu/claude-history-server/internal/ringbuf"
	"github.com/huanluu/claude-history-server/internal/sessionstore"
	"github.com/huanluu/claude-history-server/internal/store"
	"github.com/huanluu/claude-history-server/internal/watch"
	"github.com/huanluu/claude-history-server/internal/wsx"
)

const (
	periodicReindexInterval = 5 * time.Minute
	errorRingSize           = 200
)

// Options configures one Daemon, sourced from CLI flags and environment by
// the cmd/history-server entry point.
type Options struct {
	ConfigPath     string
	TranscriptRoot string
	DBPath         string
	Addr           string
}

// Daemon owns every long-lived service and their shared lifecycle.
type Daemon struct {
	opts Options

	store     *store.Store
	cfg       *config.Service
	validator *pathguard.Validator
	auth      *authgate.Gate
	idx       *indexer.Indexer
	watcher   *watch.Watcher
	hb        *heartbeat.Service
	sessions  *sessionstore.Store
	errs      *ringbuf.Buffer
	diagSvc   *diag.Service

	httpServer *httpx.Server
	wsServer   *wsx.Server
	listener   net.Listener
	server     *http.Server

	reindexStop chan struct{}
	reindexWg   sync.WaitGroup

	stopOnce sync.Once
}

// New builds every service. No goroutine runs and no socket is bound until
// Run is called.
func New(opts Options) (*Daemon, error) {
	st, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load config: %w", err)
	}
	SetLevel(LevelFromRequestLogSetting(cfg.RequestLogLevel()))

	validator := pathguard.New(cfg.AllowedWorkingDirs())
	auth := authgate.New(cfg)
	idx := indexer.New(opts.TranscriptRoot, st)
	sessions := sessionstore.New()
	errs := ringbuf.New(errorRingSize)

	watcher, err := watch.New(opts.TranscriptRoot, idx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	hb := heartbeat.New(st, cfg)

	diagSvc := diag.New(st, watcher, idx, sessions, hb, errs)

	d := &Daemon{
		opts:        opts,
		store:       st,
		cfg:         cfg,
		validator:   validator,
		auth:        auth,
		idx:         idx,
		watcher:     watcher,
		hb:          hb,
		sessions:    sessions,
		errs:        errs,
		diagSvc:     diagSvc,
		reindexStop: make(chan struct{}),
	}

	d.httpServer = httpx.NewServer(httpx.Deps{
		Store:     st,
		Config:    cfg,
		Indexer:   idx,
		Heartbeat: hb,
		Validator: validator,
		Auth:      auth,
		Diag:      diagSvc,
	})
	d.wsServer = wsx.NewServer(wsx.Deps{Sessions: sessions, Validator: validator, Auth: auth})

	cfg.SetOnChanged(d.onConfigChanged)

	return d, nil
}

// onConfigChanged rebinds the affected service after a successful
// ConfigService.UpdateSection call.
func (d *Daemon) onConfigChanged(section config.Section) {
	switch section {
	case config.SectionSecurity:
		d.validator.SetAllowedDirs(d.cfg.AllowedWorkingDirs())
	case config.SectionLogging:
		SetLevel(LevelFromRequestLogSetting(d.cfg.RequestLogLevel()))
	case config.SectionHeartbeat:
		if d.cfg.Heartbeat().Enabled {
			d.hb.StartScheduler()
			d.hb.Reschedule() // no-op if StartScheduler just started it with the current interval
		} else {
			d.hb.StopScheduler()
		}
	}
}

// Run binds the shared socket, starts every background loop, and blocks
// until ctx is cancelled or the HTTP server fails fatally.
func (d *Daemon) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", d.wsServer.HandleUpgrade)
	mux.Handle("/", d.httpServer.Handler())

	ln, err := net.Listen("tcp", d.opts.Addr)
	if err != nil {
		return fmt.Errorf("bind socket: %w", err)
	}
	d.listener = ln
	d.server = httpx.NewHTTPServer(d.opts.Addr, httpx.CORS(mux))

	if err := d.watcher.Start(); err != nil {
		L_warn("daemon: failed to start file watcher", "error", err)
	}

	if result, err := d.idx.Run(false); err != nil {
		L_warn("daemon: initial index pass failed", "error", err)
		d.errs.Add(ringbuf.ErrorEntry{Time: time.Now().UnixMilli(), Component: "indexer", Message: err.Error()})
	} else {
		L_info("daemon: initial index pass complete", "indexed", result.Indexed, "skipped", result.Skipped)
	}

	d.startPeriodicReindex()

	if d.cfg.Heartbeat().Enabled {
		d.hb.StartScheduler()
	}

	errCh := make(chan error, 1)
	go func() {
		L_info("daemon: listening", "addr", d.opts.Addr)
		errCh <- d.server.Serve(ln)
	}()

	L_info("daemon: ready")

	select {
	case <-ctx.Done():
		return d.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			d.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

func (d *Daemon) startPeriodicReindex() {
	d.reindexWg.Add(1)
	go func() {
		defer d.reindexWg.Done()
		ticker := time.NewTicker(periodicReindexInterval)
		defer ticker.Stop()
		for {
			select {
			case <-d.reindexStop:
				return
			case <-ticker.C:
				result, err := d.idx.Run(false)
				if err != nil {
					L_warn("daemon: periodic reindex failed", "error", err)
					d.errs.Add(ringbuf.ErrorEntry{Time: time.Now().UnixMilli(), Component: "indexer", Message: err.Error()})
					continue
				}
				if result.Indexed > 0 {
					L_info("daemon: periodic reindex complete", "indexed", result.Indexed, "skipped", result.Skipped)
				}
			}
		}
	}()
}

// Shutdown stops every background loop and releases every held resource, in
// the reverse order of startup. Idempotent, so a signal received during
// startup never double-closes anything.
func (d *Daemon) Shutdown(ctx context.Context) error {
	var err error
	d.stopOnce.Do(func() {
		SetShuttingDown()

		close(d.reindexStop)
		d.reindexWg.Wait()

		d.hb.StopScheduler()

		for _, entry := range d.sessions.GetAll() {
			if entry.Executor != nil {
				entry.Executor.Cancel()
			}
		}

		d.watcher.Stop()

		if d.server != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if serr := d.server.Shutdown(shutdownCtx); serr != nil {
				err = serr
			}
		}

		if cerr := d.store.Close(); cerr != nil && err == nil {
			err = cerr
		}

		L_info("daemon: shutdown complete")
	})
	return err
}
