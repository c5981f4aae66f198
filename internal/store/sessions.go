package store

import (
	"database/sql"
	"errors"

	"github.com/huanluu/claude-history-server/internal/apperr"
	. "github.com/huanluu/claude-history-server/internal/logging"
	"github.com/huanluu/claude-history-server/internal/model"
)

// IndexSession replaces a session's messages and upserts its summary row.
// isHidden and isUnread are preserved across re-indexing of an existing
// session; markUnread only sets isUnread on a session's first insert.
func (s *Store) IndexSession(parsed model.ParsedSession, lastIndexed int64, markUnread bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperr.Wrap(apperr.KindDB, "begin index transaction", err)
	}
	defer tx.Rollback()

	var existingHidden, existingUnread sql.NullBool
	err = tx.QueryRow("SELECT is_hidden, is_unread FROM sessions WHERE id = ?", parsed.SessionID).
		Scan(&existingHidden, &existingUnread)
	isHidden := false
	// markUnread only seeds the flag for a brand-new session row; an
	// existing row always keeps its current value so a client's explicit
	// markRead isn't undone by the next reindex.
	isUnread := markUnread
	if err == nil {
		isHidden = existingHidden.Bool
		isUnread = existingUnread.Bool
	} else if !errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.KindDB, "load existing session flags", err)
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", parsed.SessionID); err != nil {
		return apperr.Wrap(apperr.KindDB, "clear prior messages", err)
	}

	_, err = tx.Exec(`
		INSERT INTO sessions (id, project, started_at, last_activity_at, message_count, preview, last_indexed, is_automatic, is_unread, is_hidden)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project = excluded.project,
			started_at = excluded.started_at,
			last_activity_at = excluded.last_activity_at,
			message_count = excluded.message_count,
			preview = excluded.preview,
			last_indexed = excluded.last_indexed,
			is_automatic = excluded.is_automatic,
			is_unread = excluded.is_unread,
			is_hidden = excluded.is_hidden
	`,
		parsed.SessionID, parsed.Project, parsed.StartedAt, parsed.LastActivityAt,
		len(parsed.Messages), parsed.Preview, lastIndexed, parsed.IsAutomatic, isUnread, isHidden,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindDB, "upsert session", err)
	}

	insertMsg, err := tx.Prepare(`
		INSERT INTO messages (uuid, session_id, role, content, timestamp, has_time)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET content = excluded.content, timestamp = excluded.timestamp, has_time = excluded.has_time
	`)
	if err != nil {
		return apperr.Wrap(apperr.KindDB, "prepare message insert", err)
	}
	defer insertMsg.Close()

	for _, m := range parsed.Messages {
		var ts sql.NullInt64
		if m.HasTime {
			ts = sql.NullInt64{Int64: m.Timestamp, Valid: true}
		}
		if _, err := insertMsg.Exec(m.UUID, parsed.SessionID, m.Role, m.Content, ts, m.HasTime); err != nil {
			return apperr.Wrap(apperr.KindDB, "insert message", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindDB, "commit index transaction", err)
	}

	L_debug("store: indexed session", "sessionId", parsed.SessionID, "messages", len(parsed.Messages))
	return nil
}

// GetSessionByID returns a single session, or a not_found error.
func (s *Store) GetSessionByID(id string) (model.Session, error) {
	row := s.db.QueryRow(`
		SELECT id, project, started_at, last_activity_at, message_count, preview, title, last_indexed, is_automatic, is_unread, is_hidden
		FROM sessions WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, apperr.New(apperr.KindNotFound, "session not found")
	}
	if err != nil {
		return model.Session{}, apperr.Wrap(apperr.KindDB, "get session", err)
	}
	return sess, nil
}

// GetMessagesBySessionID returns all messages for a session, ordered by
// timestamp ascending; messages missing a timestamp sort after ones that
// have it.
func (s *Store) GetMessagesBySessionID(sessionID string) ([]model.Message, error) {
	rows, err := s.db.Query(`
		SELECT uuid, session_id, role, content, timestamp, has_time
		FROM messages
		WHERE session_id = ?
		ORDER BY has_time DESC, timestamp ASC
	`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDB, "query messages", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var ts sql.NullInt64
		if err := rows.Scan(&m.UUID, &m.SessionID, &m.Role, &m.Content, &ts, &m.HasTime); err != nil {
			return nil, apperr.Wrap(apperr.KindDB, "scan message", err)
		}
		if ts.Valid {
			m.Timestamp = ts.Int64
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListRecentSessions returns non-hidden sessions ordered by most recent
// activity, applying filter and pagination.
func (s *Store) ListRecentSessions(filter model.ListFilter, limit, offset int) ([]model.Session, error) {
	query := `
		SELECT id, project, started_at, last_activity_at, message_count, preview, title, last_indexed, is_automatic, is_unread, is_hidden
		FROM sessions
		WHERE is_hidden = 0
	`
	switch filter {
	case model.FilterManualOnly:
		query += " AND is_automatic = 0"
	case model.FilterAutomaticOnly:
		query += " AND is_automatic = 1"
	}
	query += " ORDER BY COALESCE(NULLIF(last_activity_at, 0), started_at) DESC LIMIT ? OFFSET ?"

	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDB, "list sessions", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDB, "scan session", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// MarkRead clears a session's unread flag.
func (s *Store) MarkRead(id string) error {
	res, err := s.db.Exec("UPDATE sessions SET is_unread = 0 WHERE id = ?", id)
	if err != nil {
		return apperr.Wrap(apperr.KindDB, "mark read", err)
	}
	return requireAffected(res, "session not found")
}

// HideSession sets a session's hidden flag, removing it from future listings.
func (s *Store) HideSession(id string) error {
	res, err := s.db.Exec("UPDATE sessions SET is_hidden = 1 WHERE id = ?", id)
	if err != nil {
		return apperr.Wrap(apperr.KindDB, "hide session", err)
	}
	return requireAffected(res, "session not found")
}

// SetSessionTitle applies a project-supplied title (from sessions-index.json)
// to an already-indexed session.
func (s *Store) SetSessionTitle(id, title string) error {
	res, err := s.db.Exec("UPDATE sessions SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return apperr.Wrap(apperr.KindDB, "set session title", err)
	}
	return requireAffected(res, "session not found")
}

// GetSessionLastIndexed returns the last_indexed watermark for a session, or
// zero if the session is not yet known.
func (s *Store) GetSessionLastIndexed(id string) (int64, error) {
	var lastIndexed int64
	err := s.db.QueryRow("SELECT last_indexed FROM sessions WHERE id = ?", id).Scan(&lastIndexed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.KindDB, "get last indexed", err)
	}
	return lastIndexed, nil
}

func requireAffected(res sql.Result, notFoundMsg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindDB, "check rows affected", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, notFoundMsg)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.Session, error) {
	return scanSessionRows(row)
}

func scanSessionRows(row rowScanner) (model.Session, error) {
	var sess model.Session
	var title sql.NullString
	err := row.Scan(
		&sess.ID, &sess.Project, &sess.StartedAt, &sess.LastActivityAt, &sess.MessageCount,
		&sess.Preview, &title, &sess.LastIndexed, &sess.IsAutomatic, &sess.IsUnread, &sess.IsHidden,
	)
	if err != nil {
		return model.Session{}, err
	}
	sess.Title = title.String
	return sess, nil
}
