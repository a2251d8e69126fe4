package storage

import "fmt"

// migrate creates the schema if it doesn't exist.
func (db *DB) migrate() error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	db.logger.Info("database migrations applied")
	return nil
}

// Snapshot tables written by the collector are not listed here: their schema
// follows the polled payload and is checked on every insert (see EnsureTable).
var migrations = []string{
	// Historical stop events, the training corpus
	`CREATE TABLE IF NOT EXISTS stop_events (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		codeArret     TEXT NOT NULL,
		libelleArret  TEXT NOT NULL DEFAULT '',
		terminus      TEXT NOT NULL DEFAULT '',
		sens          INTEGER NOT NULL DEFAULT 0,
		numLigne      TEXT NOT NULL DEFAULT '',
		typeLigne     TEXT NOT NULL DEFAULT '',
		ModeTransport TEXT NOT NULL DEFAULT '',
		dernierDepart INTEGER NOT NULL DEFAULT 0,
		tempsReel     INTEGER NOT NULL DEFAULT 0,
		infotrafic    INTEGER NOT NULL DEFAULT 0,
		temps         TEXT,
		Date          TEXT NOT NULL
	)`,

	// Import/collection bookkeeping (imported_at, collected_at, ...)
	`CREATE TABLE IF NOT EXISTS feed_metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_stop_events_stop ON stop_events(codeArret)`,
	`CREATE INDEX IF NOT EXISTS idx_stop_events_line_date ON stop_events(codeArret, numLigne, Date)`,
}
