package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/huanluu/claude-history-server/internal/apperr"
	. "github.com/huanluu/claude-history-server/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		L_warn("httpx: failed to encode response body", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps err through apperr's kind→status table. Non-apperr
// errors fall back to 500, per the global last-resort handler policy.
func writeAppError(w http.ResponseWriter, err error) {
	writeError(w, apperr.HTTPStatus(err), err.Error())
}
