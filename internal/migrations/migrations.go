package migrations

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: 1,
		Name:    "Add run lookup indices",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_runs_started_at ON conversation_runs(started_at DESC);
			CREATE INDEX IF NOT EXISTS idx_runs_status ON conversation_runs(status);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_runs_started_at;
			DROP INDEX IF EXISTS idx_runs_status;
		`,
	},
	{
		Version: 2,
		Name:    "Add session and turn indices",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_sessions_run_id ON conversation_sessions(run_id);
			CREATE INDEX IF NOT EXISTS idx_sessions_conversation_id ON conversation_sessions(conversation_id);
			CREATE INDEX IF NOT EXISTS idx_turns_session_id ON conversation_turns(session_id, turn_index);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_sessions_run_id;
			DROP INDEX IF EXISTS idx_sessions_conversation_id;
			DROP INDEX IF EXISTS idx_turns_session_id;
		`,
	},
}

// InitSchema creates all tables required across all modules
// This must be called before running migrations to ensure all tables exist
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversation_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		target TEXT,
		event_log TEXT,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		status TEXT NOT NULL,
		conversations_completed INTEGER DEFAULT 0,
		conversations_failed INTEGER DEFAULT 0,
		total_turns INTEGER DEFAULT 0,
		completed_turns INTEGER DEFAULT 0,
		timeouts INTEGER DEFAULT 0,
		intermediates INTEGER DEFAULT 0,
		avg_latency_ms REAL DEFAULT 0,
		min_latency_ms INTEGER DEFAULT 0,
		max_latency_ms INTEGER DEFAULT 0,
		p50_latency_ms INTEGER DEFAULT 0,
		p95_latency_ms INTEGER DEFAULT 0,
		p99_latency_ms INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS conversation_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		script_id TEXT NOT NULL,
		conversation_id TEXT,
		id_source TEXT,
		identity_degraded INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		total_turns INTEGER DEFAULT 0,
		turns_completed INTEGER DEFAULT 0,
		timeouts INTEGER DEFAULT 0,
		intermediates INTEGER DEFAULT 0,
		error TEXT,
		created_at DATETIME NOT NULL,
		finished_at DATETIME,
		FOREIGN KEY (run_id) REFERENCES conversation_runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		turn_index INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		intermediates INTEGER DEFAULT 0,
		FOREIGN KEY (session_id) REFERENCES conversation_sessions(id) ON DELETE CASCADE
	);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Run executes all pending migrations on the database
func Run(db *sql.DB) error {
	// Initialize schema first to ensure all tables exist
	if err := InitSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := GetCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, migration := range AllMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// GetCurrentVersion returns the current database schema version
func GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_migrations
	`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return version, nil
}
