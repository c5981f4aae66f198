package store

import (
	"database/sql"
	"errors"

	"github.com/huanluu/claude-history-server/internal/apperr"
	"github.com/huanluu/claude-history-server/internal/model"
)

// GetState returns the watermark for key, or a state carrying only the key
// (zero watermarks) if unseen.
func (s *Store) GetState(key string) (model.HeartbeatState, error) {
	var state model.HeartbeatState
	err := s.db.QueryRow("SELECT key, last_changed, last_processed FROM heartbeat_state WHERE key = ?", key).
		Scan(&state.Key, &state.LastChanged, &state.LastProcessed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.HeartbeatState{Key: key}, nil
	}
	if err != nil {
		return model.HeartbeatState{}, apperr.Wrap(apperr.KindDB, "get heartbeat state", err)
	}
	return state, nil
}

// UpsertState persists a watermark for key.
func (s *Store) UpsertState(state model.HeartbeatState) error {
	_, err := s.db.Exec(`
		INSERT INTO heartbeat_state (key, last_changed, last_processed)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET last_changed = excluded.last_changed, last_processed = excluded.last_processed
	`, state.Key, state.LastChanged, state.LastProcessed)
	if err != nil {
		return apperr.Wrap(apperr.KindDB, "upsert heartbeat state", err)
	}
	return nil
}

// GetAllState returns every known watermark, for diagnostics snapshots.
func (s *Store) GetAllState() ([]model.HeartbeatState, error) {
	rows, err := s.db.Query("SELECT key, last_changed, last_processed FROM heartbeat_state")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDB, "list heartbeat state", err)
	}
	defer rows.Close()

	var out []model.HeartbeatState
	for rows.Next() {
		var state model.HeartbeatState
		if err := rows.Scan(&state.Key, &state.LastChanged, &state.LastProcessed); err != nil {
			return nil, apperr.Wrap(apperr.KindDB, "scan heartbeat state", err)
		}
		out = append(out, state)
	}
	return out, rows.Err()
}
