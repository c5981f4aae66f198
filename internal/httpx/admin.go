package httpx

import (
	"embed"
	"net/http"
)

//go:embed html/*.html
var adminHTML embed.FS

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	data, err := adminHTML.ReadFile("html/admin.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "admin page unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
