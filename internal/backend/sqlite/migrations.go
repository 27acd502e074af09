package sqlite

import (
	"database/sql"
	"fmt"

	"imaspy/internal/logging"
)

// Schema versions:
// v1: occurrences and nodes
// v2: put_journal, occurrences.put_id and occurrences.updated_at
const CurrentSchemaVersion = 2

// Migration adds a column to a table of an older database.
type Migration struct {
	Table  string
	Column string
	Def    string
}

var pendingMigrations = []Migration{
	{"occurrences", "put_id", "TEXT DEFAULT ''"},
	{"occurrences", "updated_at", "DATETIME"},
}

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS occurrences (
	ids TEXT NOT NULL,
	occurrence INTEGER NOT NULL,
	dd_version TEXT NOT NULL,
	put_id TEXT DEFAULT '',
	updated_at DATETIME,
	PRIMARY KEY (ids, occurrence)
);
CREATE TABLE IF NOT EXISTS nodes (
	ids TEXT NOT NULL,
	occurrence INTEGER NOT NULL,
	path TEXT NOT NULL,
	seq INTEGER NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	value BLOB,
	PRIMARY KEY (ids, occurrence, path)
);
CREATE INDEX IF NOT EXISTS idx_nodes_seq ON nodes(ids, occurrence, seq);
CREATE TABLE IF NOT EXISTS put_journal (
	id TEXT PRIMARY KEY,
	ids TEXT NOT NULL,
	occurrence INTEGER NOT NULL,
	dd_version TEXT NOT NULL,
	nodes INTEGER NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	if err := RunMigrations(s.db); err != nil {
		return err
	}
	return setSchemaVersion(s.db, CurrentSchemaVersion)
}

// RunMigrations adds the columns missing from databases written by older versions.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryBackend, "sqlite.RunMigrations")
	defer timer.Stop()

	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) || columnExists(db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			logging.BackendWarn("Migration failed: %s.%s: %v", m.Table, m.Column, err)
			continue
		}
		logging.Backend("Migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}
	logging.BackendDebug("Schema migrations complete: applied=%d", applied)
	return nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid, notnull, pk int
			name, ctype      string
			dflt             any
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

func tableExists(db *sql.DB, table string) bool {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// SchemaVersion returns the schema version recorded in db, 0 when none is.
func SchemaVersion(db *sql.DB) int {
	var v int
	if err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&v); err != nil {
		return 0
	}
	return v
}

func setSchemaVersion(db *sql.DB, v int) error {
	if SchemaVersion(db) >= v {
		return nil
	}
	_, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", v)
	return err
}
