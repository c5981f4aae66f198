package store

import (
	"database/sql"
	"fmt"

	. "github.com/huanluu/claude-history-server/internal/logging"
)

const currentSchemaVersion = 1

// migrate creates missing tables/columns. Matches the reference store's
// tolerant migration style: ALTER TABLE failures from already-present
// columns are swallowed rather than treated as fatal.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		version = 0
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			last_activity_at INTEGER NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			preview TEXT NOT NULL DEFAULT '',
			title TEXT,
			last_indexed INTEGER NOT NULL DEFAULT 0,
			is_automatic INTEGER NOT NULL DEFAULT 0,
			is_unread INTEGER NOT NULL DEFAULT 0,
			is_hidden INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	// Columns added after the initial cut are applied the same tolerant way
	// the reference store applies them — attempt, ignore "duplicate column".
	addColumnIfMissing(db, "sessions", "last_activity_at", "INTEGER NOT NULL DEFAULT 0")
	addColumnIfMissing(db, "sessions", "title", "TEXT")
	addColumnIfMissing(db, "sessions", "is_automatic", "INTEGER NOT NULL DEFAULT 0")
	addColumnIfMissing(db, "sessions", "is_unread", "INTEGER NOT NULL DEFAULT 0")
	addColumnIfMissing(db, "sessions", "is_hidden", "INTEGER NOT NULL DEFAULT 0")

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity_at)`); err != nil {
		return fmt.Errorf("create idx_sessions_activity: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_hidden ON sessions(is_hidden)`); err != nil {
		return fmt.Errorf("create idx_sessions_hidden: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			uuid TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			timestamp INTEGER,
			has_time INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)
	`); err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp)`); err != nil {
		return fmt.Errorf("create idx_messages_session: %w", err)
	}

	if _, err := db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			content,
			uuid UNINDEXED,
			session_id UNINDEXED,
			content='messages',
			content_rowid='rowid'
		)
	`); err != nil {
		return fmt.Errorf("create messages_fts table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(rowid, content, uuid, session_id)
			VALUES (NEW.rowid, NEW.content, NEW.uuid, NEW.session_id);
		END
	`); err != nil {
		return fmt.Errorf("create messages insert trigger: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content, uuid, session_id)
			VALUES ('delete', OLD.rowid, OLD.content, OLD.uuid, OLD.session_id);
		END
	`); err != nil {
		return fmt.Errorf("create messages delete trigger: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content, uuid, session_id)
			VALUES ('delete', OLD.rowid, OLD.content, OLD.uuid, OLD.session_id);
			INSERT INTO messages_fts(rowid, content, uuid, session_id)
			VALUES (NEW.rowid, NEW.content, NEW.uuid, NEW.session_id);
		END
	`); err != nil {
		return fmt.Errorf("create messages update trigger: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS heartbeat_state (
			key TEXT PRIMARY KEY,
			last_changed TEXT NOT NULL,
			last_processed INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create heartbeat_state table: %w", err)
	}

	if version < currentSchemaVersion {
		if _, err := db.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, strftime('%s','now'))", currentSchemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}

	L_debug("store: schema ready", "version", currentSchemaVersion)
	return nil
}

// addColumnIfMissing attempts an ALTER TABLE ADD COLUMN, swallowing the
// "duplicate column name" failure that occurs when it already exists.
func addColumnIfMissing(db *sql.DB, table, column, ddl string) {
	_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl))
	if err != nil {
		L_debug("store: alter table skipped (likely already present)", "table", table, "column", column, "error", err)
	}
}
