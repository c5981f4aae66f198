package httpx

import (
	"net/http"
	"time"

	. "github.com/huanluu/claude-history-server/internal/logging"
)

// loggingResponseWriter captures the status code a handler ultimately wrote,
// so the request log can report it after the handler returns.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}

// logRequest wraps a handler to log method/path/status/duration at trace
// level, matching the reference's per-request log line.
func (s *Server) logRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(lw, r)

		L_trace("httpx: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lw.statusCode,
			"durationMs", time.Since(start).Milliseconds())
	}
}

// CORS answers preflight requests and annotates every response so a
// companion web client on a different origin can call this API. It must
// wrap the combined mux (REST routes plus the /ws upgrade route) ahead of
// Go's method-based routing: an OPTIONS request never matches a "GET /foo"
// pattern, so a per-route wrapper never runs for it and the router answers
// 405 before CORS gets a say.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth enforces the shared-secret gate on every endpoint but /health,
// which never passes through this wrapper.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.deps.Auth.Open() && !s.deps.Auth.CheckRequest(r) {
			writeError(w, http.StatusUnauthorized, "invalid or missing X-API-Key")
			return
		}
		next(w, r)
	}
}
