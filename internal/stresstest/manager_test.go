package stresstest

import (
	"testing"
	"time"

	"github.com/studiowebux/chatstress/internal/eventlog"
)

// createTestManager creates a new Manager with in-memory SQLite database for testing
func createTestManager(t *testing.T) *Manager {
	manager, err := NewManager(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test manager: %v", err)
	}
	return manager
}

func sampleSummary(runID string, started time.Time) *Summary {
	stats := NewStats()
	sessions := []*Session{
		{
			ScriptID:       "script1",
			ConversationID: "conv-1",
			IDSource:       eventlog.IDSourceUI,
			CreatedAt:      started,
			FinishedAt:     started.Add(3 * time.Second),
			TotalTurns:     2,
			TurnsCompleted: 2,
			Timeouts:       1,
			State:          SessionCompleted,
			Turns: []TurnSummary{
				{Index: 0, Latency: 250 * time.Millisecond, Outcome: eventlog.OutcomeFinal},
				{Index: 1, Latency: 45 * time.Second, Outcome: eventlog.OutcomeTimeout},
			},
		},
		{
			ScriptID:   "script2",
			CreatedAt:  started,
			TotalTurns: 3,
			State:      SessionFailed,
			Err:        ErrGreetingTimeout,
		},
	}
	for _, s := range sessions {
		stats.AddSession(s)
	}
	return &Summary{
		RunID:       runID,
		Name:        "nightly",
		StartedAt:   started,
		CompletedAt: started.Add(50 * time.Second),
		Completed:   1,
		Failed:      1,
		Sessions:    sessions,
		Stats:       stats,
	}
}

func TestManager_SaveAndList(t *testing.T) {
	manager := createTestManager(t)
	defer manager.Close()

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	runID, err := manager.SaveSummary(sampleSummary("run-1", started), "ws://localhost:8089/chat", "conversations.jsonl")
	if err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}
	if _, err := manager.SaveSummary(sampleSummary("run-2", started.Add(time.Hour)), "ws://localhost:8089/chat", "conversations.jsonl"); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}

	runs, err := manager.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunUUID != "run-2" {
		t.Errorf("Expected newest run first, got %s", runs[0].RunUUID)
	}

	first := runs[1]
	if first.ID != runID {
		t.Errorf("Expected id %d, got %d", runID, first.ID)
	}
	if first.Status != StatusPartial {
		t.Errorf("Expected partial status, got %s", first.Status)
	}
	if first.ConversationsCompleted != 1 || first.ConversationsFailed != 1 {
		t.Errorf("Unexpected conversation counts %d/%d", first.ConversationsCompleted, first.ConversationsFailed)
	}
	if first.TotalTurns != 5 || first.CompletedTurns != 2 || first.Timeouts != 1 {
		t.Errorf("Unexpected turn counts total=%d completed=%d timeouts=%d", first.TotalTurns, first.CompletedTurns, first.Timeouts)
	}
	if first.MaxLatencyMs != 45000 || first.MinLatencyMs != 250 {
		t.Errorf("Unexpected latency range %d..%d", first.MinLatencyMs, first.MaxLatencyMs)
	}
	if first.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}

	limited, err := manager.ListRuns(1)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected limit to apply, got %d runs", len(limited))
	}
}

func TestManager_GetSessions(t *testing.T) {
	manager := createTestManager(t)
	defer manager.Close()

	runID, err := manager.SaveSummary(sampleSummary("run-1", time.Now().UTC()), "", "")
	if err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}

	sessions, err := manager.GetSessions(runID)
	if err != nil {
		t.Fatalf("GetSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ConversationID != "conv-1" || sessions[0].IDSource != "ui" {
		t.Errorf("Unexpected first session %+v", sessions[0])
	}
	if sessions[0].FinishedAt == nil {
		t.Error("Expected finished_at on completed session")
	}
	if sessions[1].State != string(SessionFailed) || sessions[1].Error == "" {
		t.Errorf("Expected failed session with error, got %+v", sessions[1])
	}
	if sessions[1].FinishedAt != nil {
		t.Error("Expected no finished_at for a session that never finished")
	}

	var turns int
	if err := manager.db.QueryRow("SELECT COUNT(*) FROM conversation_turns").Scan(&turns); err != nil {
		t.Fatalf("Failed to count turns: %v", err)
	}
	if turns != 2 {
		t.Errorf("Expected 2 stored turns, got %d", turns)
	}
}

func TestManager_DeleteRun(t *testing.T) {
	manager := createTestManager(t)
	defer manager.Close()

	runID, err := manager.SaveSummary(sampleSummary("run-1", time.Now().UTC()), "", "")
	if err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}
	if err := manager.DeleteRun(runID); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}

	runs, err := manager.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("Expected no runs, got %d", len(runs))
	}
	var leftover int
	if err := manager.db.QueryRow("SELECT COUNT(*) FROM conversation_sessions").Scan(&leftover); err != nil {
		t.Fatalf("Failed to count sessions: %v", err)
	}
	if leftover != 0 {
		t.Errorf("Expected sessions to be deleted, got %d", leftover)
	}

	if err := manager.DeleteRun(runID); err == nil {
		t.Error("Expected error deleting a missing run")
	}
}

func TestManager_DuplicateRunID(t *testing.T) {
	manager := createTestManager(t)
	defer manager.Close()

	started := time.Now().UTC()
	if _, err := manager.SaveSummary(sampleSummary("dup", started), "", ""); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}
	_, err := manager.SaveSummary(sampleSummary("dup", started), "", "")
	if err == nil {
		t.Fatal("Expected unique constraint violation")
	}

	runs, _ := manager.ListRuns(0)
	if len(runs) != 1 {
		t.Errorf("Failed save must roll back, got %d runs", len(runs))
	}
}

func TestManager_GetRun(t *testing.T) {
	manager := createTestManager(t)
	defer manager.Close()

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id, err := manager.SaveSummary(sampleSummary("run-1", started), "ws://localhost:8089/chat", "conversations.jsonl")
	if err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}

	run, err := manager.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.RunUUID != "run-1" || run.Status != StatusPartial || run.Timeouts != 1 {
		t.Errorf("Unexpected run: %+v", run)
	}
	if run.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}

	if _, err := manager.GetRun(id + 100); err == nil {
		t.Error("Expected error for unknown run")
	}
}
