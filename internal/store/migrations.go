package store

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Schema versions:
// v1: cases and query_log tables
// v2: suggested_status and updated_at columns on cases
const CurrentSchemaVersion = 2

const schema = `
CREATE TABLE IF NOT EXISTS cases (
	case_id        TEXT NOT NULL,
	tribunal       TEXT NOT NULL,
	status         TEXT NOT NULL,
	parties        TEXT NOT NULL DEFAULT '',
	classification TEXT NOT NULL DEFAULT '',
	decision       TEXT NOT NULL DEFAULT '',
	movement       TEXT NOT NULL DEFAULT '',
	link           TEXT NOT NULL DEFAULT '',
	queried_at     TEXT NOT NULL DEFAULT '',
	loaded_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (case_id, tribunal)
);
CREATE INDEX IF NOT EXISTS idx_cases_worklist ON cases(tribunal, status);

CREATE TABLE IF NOT EXISTS query_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	attempt_id TEXT NOT NULL,
	case_id    TEXT NOT NULL,
	tribunal   TEXT NOT NULL,
	state      TEXT NOT NULL,
	terminal   TEXT NOT NULL,
	movement   TEXT NOT NULL DEFAULT '',
	decision   TEXT NOT NULL DEFAULT '',
	detected   TEXT NOT NULL DEFAULT '',
	artifact   TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_query_log_case ON query_log(case_id, tribunal);

CREATE TABLE IF NOT EXISTS schema_versions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	version     INTEGER NOT NULL,
	applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
	description TEXT
);
`

// Migration adds a column to databases created by an older schema.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations handle tables that exist but are missing newer columns.
var pendingMigrations = []Migration{
	{"cases", "suggested_status", "TEXT NOT NULL DEFAULT ''"},
	{"cases", "updated_at", "DATETIME"},
}

// migrate creates the schema and applies column migrations.
func (s *SQLStore) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	applied := 0
	for _, m := range pendingMigrations {
		if columnExists(s.db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("migration %s.%s: %w", m.Table, m.Column, err)
		}
		s.logger.Debug("Migration applied", zap.String("table", m.Table), zap.String("column", m.Column))
		applied++
	}

	if GetSchemaVersion(s.db) < CurrentSchemaVersion {
		if err := SetSchemaVersion(s.db, CurrentSchemaVersion); err != nil {
			return err
		}
	}
	if applied > 0 {
		s.logger.Info("Schema migrations complete", zap.Int("applied", applied))
	}
	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// GetSchemaVersion returns the latest recorded schema version, 0 if none.
func GetSchemaVersion(db *sql.DB) int {
	var version int
	err := db.QueryRow("SELECT version FROM schema_versions ORDER BY id DESC LIMIT 1").Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// SetSchemaVersion records a new schema version in the database.
func SetSchemaVersion(db *sql.DB, version int) error {
	desc := fmt.Sprintf("Migrated to schema version %d", version)
	if _, err := db.Exec("INSERT INTO schema_versions (version, description) VALUES (?, ?)", version, desc); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}
