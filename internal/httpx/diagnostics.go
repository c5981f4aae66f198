package httpx

import "net/http"

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Diag == nil {
		writeError(w, http.StatusServiceUnavailable, "diagnostics not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Diag.Snapshot())
}
