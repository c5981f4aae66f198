// Package httpx is the HTTP surface: REST endpoints over the Store, Indexer,
// ConfigService, and HeartbeatService, with a request-log/auth middleware
// chain in front of the router. CORS (see CORS in middleware.go) wraps the
// combined mux one level up, in the composition root, so it sees requests
// before Go's method-based routing rejects an unmatched-method OPTIONS.
package httpx

import (
	"net/http"
	"time"

	"github.com/huanluu/claude-history-server/internal/authgate"
	"github.com/huanluu/claude-history-server/internal/config"
	"github.com/huanluu/claude-history-server/internal/heartbeat"
	"github.com/huanluu/claude-history-server/internal/indexer"
	"github.com/huanluu/claude-history-server/internal/pathguard"
	"github.com/huanluu/claude-history-server/internal/store"
)

// diagProvider is the subset of *diag.Service the /diagnostics endpoint
// depends on. Declared here rather than imported, so httpx never depends on
// internal/diag.
type diagProvider interface {
	Snapshot() any
}

// Deps wires every service the router's handlers call into.
type Deps struct {
	Store      *store.Store
	Config     *config.Service
	Indexer    *indexer.Indexer
	Heartbeat  *heartbeat.Service // nil only in tests that construct Deps without one
	Validator  *pathguard.Validator
	Auth       *authgate.Gate
	Diag       diagProvider // nil until the composition root wires diagnostics
}

// Server builds the REST handler tree. It owns no socket or *http.Server of
// its own: the composition root mounts Handler() alongside the websocket
// upgrade path on one shared listener.
type Server struct {
	deps    Deps
	handler http.Handler
}

// NewServer builds the full route tree.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps}
	s.handler = s.routes()
	return s
}

// Handler returns the composed handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// NewHTTPServer wraps handler in an *http.Server with the same timeouts the
// reference HTTP server applies. handler is typically a top-level mux
// combining Handler() with the websocket upgrade route.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return s.logRequest(h)
	}
	wrapAuth := func(h http.HandlerFunc) http.HandlerFunc {
		return wrap(s.requireAuth(h))
	}

	mux.HandleFunc("GET /health", wrap(s.handleHealth))
	mux.HandleFunc("GET /admin", wrap(s.handleAdmin))

	mux.HandleFunc("GET /sessions", wrapAuth(s.handleListSessions))
	mux.HandleFunc("GET /sessions/{id}", wrapAuth(s.handleGetSession))
	mux.HandleFunc("DELETE /sessions/{id}", wrapAuth(s.handleDeleteSession))
	mux.HandleFunc("POST /sessions/{id}/read", wrapAuth(s.handleMarkRead))

	mux.HandleFunc("GET /search", wrapAuth(s.handleSearch))
	mux.HandleFunc("POST /reindex", wrapAuth(s.handleReindex))

	mux.HandleFunc("POST /heartbeat", wrapAuth(s.handleRunHeartbeat))
	mux.HandleFunc("GET /heartbeat/status", wrapAuth(s.handleHeartbeatStatus))

	mux.HandleFunc("GET /api/config", wrapAuth(s.handleGetAllConfig))
	mux.HandleFunc("GET /api/config/{section}", wrapAuth(s.handleGetConfigSection))
	mux.HandleFunc("PUT /api/config/{section}", wrapAuth(s.handlePutConfigSection))

	mux.HandleFunc("GET /diagnostics", wrapAuth(s.handleDiagnostics))

	return mux
}
