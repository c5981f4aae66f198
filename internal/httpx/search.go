package httpx

import (
	"net/http"
	"strings"

	. "github.com/huanluu/claude-history-server/internal/logging"
	"github.com/huanluu/claude-history-server/internal/model"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200

	// searchOverfetchFloor is the minimum overfetch regardless of the
	// requested page, so small pages near offset 0 still pull enough
	// candidate rows to dedup against.
	searchOverfetchFloor = 200
)

// searchOverfetchCount returns how many raw ranked hits to pull from the
// store before per-session dedup: 3x the requested page (limit+offset)
// covers sessions with several matching messages each consuming a rank slot
// without filling the page, with a floor for small pages near offset 0.
func searchOverfetchCount(limit, offset int) int {
	n := 3 * (limit + offset)
	if n < searchOverfetchFloor {
		return searchOverfetchFloor
	}
	return n
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	ftsQuery := sanitizeSearchQuery(q.Get("q"))
	if ftsQuery == "" {
		writeError(w, http.StatusBadRequest, "q must contain at least one searchable term")
		return
	}

	limit := clampLimit(q.Get("limit"), defaultSearchLimit, maxSearchLimit)
	offset := nonNegativeInt(q.Get("offset"), 0)

	sort := model.SortRelevance
	if q.Get("sort") == "date" {
		sort = model.SortDate
	}

	filter := model.FilterAll
	switch q.Get("automatic") {
	case "true":
		filter = model.FilterAutomaticOnly
	case "false":
		filter = model.FilterManualOnly
	}

	overfetch := searchOverfetchCount(limit, offset)
	raw, err := s.deps.Store.SearchMessages(ftsQuery, sort, filter, overfetch, 0)
	if err != nil {
		writeAppError(w, err)
		return
	}

	deduped := dedupBySession(raw)
	if len(raw) >= overfetch && len(deduped) < offset+limit {
		L_warn("httpx: search overfetch exhausted before filling the requested page", "query", ftsQuery, "overfetch", overfetch)
	}

	page := paginate(deduped, offset, limit)

	writeJSON(w, http.StatusOK, map[string]any{
		"results": page,
		"pagination": map[string]any{
			"limit":   limit,
			"offset":  offset,
			"hasMore": len(deduped) > offset+limit,
		},
		"query": q.Get("q"),
		"sort":  string(sort),
	})
}

// sanitizeSearchQuery strips FTS5 special characters the raw query could
// otherwise use to break out of a simple phrase match, then turns every
// remaining whitespace-delimited token into a prefix match.
func sanitizeSearchQuery(raw string) string {
	stripped := strings.NewReplacer(`'`, "", `"`, "", "*", "", "(", "", ")", "", "`", "").Replace(raw)

	fields := strings.Fields(stripped)
	if len(fields) == 0 {
		return ""
	}
	for i, f := range fields {
		fields[i] = f + "*"
	}
	return strings.Join(fields, " ")
}

// dedupBySession keeps only the first (highest-ranked, since raw is already
// ordered) hit per session.
func dedupBySession(raw []model.SearchHit) []model.SearchHit {
	seen := make(map[string]bool, len(raw))
	out := make([]model.SearchHit, 0, len(raw))
	for _, hit := range raw {
		if seen[hit.SessionID] {
			continue
		}
		seen[hit.SessionID] = true
		out = append(out, hit)
	}
	return out
}

func paginate(hits []model.SearchHit, offset, limit int) []model.SearchHit {
	if offset >= len(hits) {
		return []model.SearchHit{}
	}
	end := offset + limit
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end]
}
