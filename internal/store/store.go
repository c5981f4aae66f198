// Package store is the sole owner of the SQLite database: session and
// message rows, full-text search, and heartbeat watermarks.
package store

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/huanluu/claude-history-server/internal/apperr"
	. "github.com/huanluu/claude-history-server/internal/logging"
	"github.com/huanluu/claude-history-server/internal/model"
)

// Store wraps the SQLite connection pool. All exported methods are safe for
// concurrent use; SQLite's own WAL locking serializes writers.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (if needed) and migrates the database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDB, "open database", err)
	}

	// FTS5 content tables are not safe for concurrent writers; SQLite itself
	// serializes through the busy_timeout above, so a single-conn pool avoids
	// SQLITE_BUSY noise from internal pooling/retries.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindDB, "migrate database", err)
	}

	L_info("store: opened", "path", path)
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetStats returns session/message counts and the on-disk database size.
func (s *Store) GetStats() (model.Stats, error) {
	var stats model.Stats
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&stats.SessionCount); err != nil {
		return stats, apperr.Wrap(apperr.KindDB, "count sessions", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&stats.MessageCount); err != nil {
		return stats, apperr.Wrap(apperr.KindDB, "count messages", err)
	}
	if fi, statErr := os.Stat(s.path); statErr == nil {
		stats.DBSizeBytes = fi.Size()
	}
	return stats, nil
}
