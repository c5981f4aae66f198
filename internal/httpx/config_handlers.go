package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/huanluu/claude-history-server/internal/config"
)

func (s *Server) handleGetAllConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Config.GetAllEditableSections())
}

func (s *Server) handleGetConfigSection(w http.ResponseWriter, r *http.Request) {
	name := config.Section(r.PathValue("section"))
	section, ok := s.deps.Config.GetSection(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown config section")
		return
	}
	writeJSON(w, http.StatusOK, section)
}

func (s *Server) handlePutConfigSection(w http.ResponseWriter, r *http.Request) {
	name := config.Section(r.PathValue("section"))

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	if err := s.deps.Config.UpdateSection(name, patch); err != nil {
		writeAppError(w, err)
		return
	}

	section, _ := s.deps.Config.GetSection(name)
	writeJSON(w, http.StatusOK, section)
}
