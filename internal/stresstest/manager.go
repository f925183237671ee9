package stresstest

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/studiowebux/chatstress/internal/migrations"
)

// RunRecord is a persisted run summary
type RunRecord struct {
	ID                     int64
	RunUUID                string
	Name                   string
	Target                 string
	EventLog               string
	StartedAt              time.Time
	CompletedAt            *time.Time
	Status                 string
	ConversationsCompleted int
	ConversationsFailed    int
	TotalTurns             int
	CompletedTurns         int
	Timeouts               int
	Intermediates          int
	AvgLatencyMs           float64
	MinLatencyMs           int64
	MaxLatencyMs           int64
	P50LatencyMs           int64
	P95LatencyMs           int64
	P99LatencyMs           int64
}

// SessionRecord is a persisted conversation outcome
type SessionRecord struct {
	ID               int64
	RunID            int64
	ScriptID         string
	ConversationID   string
	IDSource         string
	IdentityDegraded bool
	State            string
	TotalTurns       int
	TurnsCompleted   int
	Timeouts         int
	Intermediates    int
	Error            string
	CreatedAt        time.Time
	FinishedAt       *time.Time
}

// Manager handles run summary persistence
type Manager struct {
	db *sql.DB
}

// NewManager creates a new manager backed by the SQLite file at dbPath
func NewManager(dbPath string) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps :memory: databases intact
	db.SetMaxOpenConns(1)

	m := &Manager{db: db}

	// Run database migrations (includes schema initialization)
	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return m, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}

// SaveSummary stores a finished run with its sessions and turns in one
// transaction and returns the run's row id
func (m *Manager) SaveSummary(summary *Summary, target, eventLog string) (int64, error) {
	tx, err := m.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stats := summary.Stats
	if stats == nil {
		stats = NewStats()
	}
	result, err := tx.Exec(`
		INSERT INTO conversation_runs
		(run_uuid, name, target, event_log, started_at, completed_at, status,
		 conversations_completed, conversations_failed, total_turns, completed_turns, timeouts, intermediates,
		 avg_latency_ms, min_latency_ms, max_latency_ms, p50_latency_ms, p95_latency_ms, p99_latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, summary.RunID, summary.Name, target, eventLog, summary.StartedAt, summary.CompletedAt, summary.Status(),
		summary.Completed, summary.Failed, stats.TotalTurns, stats.CompletedTurns, stats.TimeoutCount, stats.IntermediateCount,
		stats.AvgDurationMs(), stats.Min(), stats.Max(), stats.P50(), stats.P95(), stats.P99())
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	sessStmt, err := tx.Prepare(`
		INSERT INTO conversation_sessions
		(run_id, script_id, conversation_id, id_source, identity_degraded, state,
		 total_turns, turns_completed, timeouts, intermediates, error, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer sessStmt.Close()

	turnStmt, err := tx.Prepare(`
		INSERT INTO conversation_turns (session_id, turn_index, latency_ms, outcome, intermediates)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer turnStmt.Close()

	for _, sess := range summary.Sessions {
		var errMsg sql.NullString
		if sess.Err != nil {
			errMsg = sql.NullString{String: sess.Err.Error(), Valid: true}
		}
		var finished sql.NullTime
		if !sess.FinishedAt.IsZero() {
			finished = sql.NullTime{Time: sess.FinishedAt, Valid: true}
		}
		res, err := sessStmt.Exec(runID, sess.ScriptID, sess.ConversationID, string(sess.IDSource), sess.IdentityDegraded,
			string(sess.State), sess.TotalTurns, sess.TurnsCompleted, sess.Timeouts, sess.Intermediates,
			errMsg, sess.CreatedAt, finished)
		if err != nil {
			return 0, fmt.Errorf("failed to insert session %s: %w", sess.ScriptID, err)
		}
		sessionID, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get last insert id: %w", err)
		}
		for _, turn := range sess.Turns {
			if _, err := turnStmt.Exec(sessionID, turn.Index, turn.Latency.Milliseconds(), string(turn.Outcome), turn.Intermediates); err != nil {
				return 0, fmt.Errorf("failed to insert turn %d of %s: %w", turn.Index, sess.ScriptID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

const runColumns = `
	id, run_uuid, name, COALESCE(target, ''), COALESCE(event_log, ''), started_at, completed_at, status,
	conversations_completed, conversations_failed, total_turns, completed_turns, timeouts, intermediates,
	COALESCE(avg_latency_ms, 0), COALESCE(min_latency_ms, 0), COALESCE(max_latency_ms, 0),
	COALESCE(p50_latency_ms, 0), COALESCE(p95_latency_ms, 0), COALESCE(p99_latency_ms, 0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	run := &RunRecord{}
	var completedAt sql.NullTime

	err := row.Scan(&run.ID, &run.RunUUID, &run.Name, &run.Target, &run.EventLog, &run.StartedAt, &completedAt,
		&run.Status, &run.ConversationsCompleted, &run.ConversationsFailed, &run.TotalTurns, &run.CompletedTurns,
		&run.Timeouts, &run.Intermediates, &run.AvgLatencyMs, &run.MinLatencyMs, &run.MaxLatencyMs,
		&run.P50LatencyMs, &run.P95LatencyMs, &run.P99LatencyMs)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// ListRuns returns the most recent runs first
func (m *Manager) ListRuns(limit int) ([]*RunRecord, error) {
	query := "SELECT " + runColumns + " FROM conversation_runs ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := m.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns a single run by id
func (m *Manager) GetRun(id int64) (*RunRecord, error) {
	row := m.db.QueryRow("SELECT "+runColumns+" FROM conversation_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

// GetSessions returns the sessions stored for a run in script order
func (m *Manager) GetSessions(runID int64) ([]*SessionRecord, error) {
	rows, err := m.db.Query(`
		SELECT id, run_id, script_id, COALESCE(conversation_id, ''), COALESCE(id_source, ''), identity_degraded, state,
		       total_turns, turns_completed, timeouts, intermediates, COALESCE(error, ''), created_at, finished_at
		FROM conversation_sessions
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		s := &SessionRecord{}
		var finishedAt sql.NullTime
		err := rows.Scan(&s.ID, &s.RunID, &s.ScriptID, &s.ConversationID, &s.IDSource, &s.IdentityDegraded, &s.State,
			&s.TotalTurns, &s.TurnsCompleted, &s.Timeouts, &s.Intermediates, &s.Error, &s.CreatedAt, &finishedAt)
		if err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			s.FinishedAt = &finishedAt.Time
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteRun deletes a run with its sessions and turns
func (m *Manager) DeleteRun(id int64) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM conversation_turns
		WHERE session_id IN (SELECT id FROM conversation_sessions WHERE run_id = ?)
	`, id); err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM conversation_sessions WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	res, err := tx.Exec("DELETE FROM conversation_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d not found", id)
	}
	return tx.Commit()
}
