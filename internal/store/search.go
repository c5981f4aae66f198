package store

import (
	"database/sql"

	"github.com/huanluu/claude-history-server/internal/apperr"
	"github.com/huanluu/claude-history-server/internal/model"
)

// SearchMessages runs a full-text search against message content. ftsQuery
// must already be sanitized into FTS5 match syntax by the caller (the HTTP
// layer owns the exact character-stripping rules); this method only executes
// it. Hidden sessions are always excluded. Per-session deduplication and
// pagination-aware overfetch are caller-layer concerns, not implemented
// here — this returns exactly limit/offset worth of raw, ranked hits.
func (s *Store) SearchMessages(ftsQuery string, sort model.SearchSort, filter model.ListFilter, limit, offset int) ([]model.SearchHit, error) {
	orderBy := "bm25(messages_fts) ASC"
	if sort == model.SortDate {
		orderBy = "sessions.started_at DESC, bm25(messages_fts) ASC"
	}

	where := "WHERE messages_fts MATCH ? AND sessions.is_hidden = 0"
	switch filter {
	case model.FilterManualOnly:
		where += " AND sessions.is_automatic = 0"
	case model.FilterAutomaticOnly:
		where += " AND sessions.is_automatic = 1"
	}

	query := `
		SELECT
			messages.session_id,
			messages.uuid,
			messages.role,
			highlight(messages_fts, 0, '<mark>', '</mark>') AS highlighted,
			messages.timestamp,
			messages.has_time,
			bm25(messages_fts) AS rank,
			sessions.started_at,
			sessions.preview,
			sessions.project
		FROM messages_fts
		JOIN messages ON messages.rowid = messages_fts.rowid
		JOIN sessions ON sessions.id = messages.session_id
		` + where + `
		ORDER BY ` + orderBy + `
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.Query(query, ftsQuery, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDB, "search messages", err)
	}
	defer rows.Close()

	var out []model.SearchHit
	for rows.Next() {
		var hit model.SearchHit
		var ts sql.NullInt64
		var hasTime bool
		if err := rows.Scan(
			&hit.SessionID, &hit.MessageUUID, &hit.Role, &hit.HighlightedContent,
			&ts, &hasTime, &hit.Rank, &hit.SessionStartedAt, &hit.SessionPreview, &hit.SessionProject,
		); err != nil {
			return nil, apperr.Wrap(apperr.KindDB, "scan search hit", err)
		}
		if hasTime && ts.Valid {
			hit.Timestamp = ts.Int64
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}
