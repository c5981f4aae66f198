package httpx

import "net/http"

func (s *Server) handleRunHeartbeat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Heartbeat == nil {
		writeError(w, http.StatusServiceUnavailable, "heartbeat service not configured")
		return
	}
	result := s.deps.Heartbeat.RunHeartbeat(true)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHeartbeatStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Heartbeat == nil {
		writeError(w, http.StatusServiceUnavailable, "heartbeat service not configured")
		return
	}
	status, err := s.deps.Heartbeat.Status()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
