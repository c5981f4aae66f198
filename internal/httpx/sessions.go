package httpx

import (
	"net/http"
	"strconv"

	"github.com/huanluu/claude-history-server/internal/apperr"
	"github.com/huanluu/claude-history-server/internal/model"
)

const (
	defaultSessionsLimit = 20
	maxSessionsLimit     = 100
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := clampLimit(r.URL.Query().Get("limit"), defaultSessionsLimit, maxSessionsLimit)
	offset := nonNegativeInt(r.URL.Query().Get("offset"), 0)
	filter := model.FilterAll
	switch r.URL.Query().Get("automatic") {
	case "true":
		filter = model.FilterAutomaticOnly
	case "false":
		filter = model.FilterManualOnly
	}

	sessions, err := s.deps.Store.ListRecentSessions(filter, limit, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"pagination": map[string]any{
			"limit":   limit,
			"offset":  offset,
			"hasMore": len(sessions) == limit,
		},
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, err := s.deps.Store.GetSessionByID(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	messages, err := s.deps.Store.GetMessagesBySessionID(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  session,
		"messages": messages,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Store.HideSession(id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Store.MarkRead(id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	result, err := s.deps.Indexer.Run(force)
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindIO, "reindex failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"indexed": result.Indexed,
		"skipped": result.Skipped,
	})
}

// clampLimit parses raw as a positive int, defaulting and capping it.
func clampLimit(raw string, def, max int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func nonNegativeInt(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
