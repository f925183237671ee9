package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/studiowebux/chatstress/internal/eventlog"
	"github.com/studiowebux/chatstress/internal/stresstest"
)

// Row status values
const (
	RowStarting  = "starting"
	RowRunning   = "running"
	RowCompleted = "completed"
	RowFailed    = "failed"
)

// ConversationRow is the dashboard line of one conversation
type ConversationRow struct {
	ScriptID       string
	ConversationID string
	Status         string
	TurnsDone      int
	TotalTurns     int
	Timeouts       int
	Intermediates  int
	LastLatency    time.Duration
	Err            error
}

// RunState collects progress notifications with thread safety. The
// executor writes from its goroutines; the dashboard reads on every tick.
type RunState struct {
	mu sync.RWMutex

	rows      []*ConversationRow
	index     map[string]*ConversationRow
	stats     *stresstest.Stats
	narration []string
	startedAt time.Time
	now       func() time.Time
}

// NewRunState creates an empty state for a run of the given scripts
func NewRunState(scripts []string, totalTurns map[string]int) *RunState {
	s := &RunState{
		index:     make(map[string]*ConversationRow),
		stats:     stresstest.NewStats(),
		narration: make([]string, 0, NarrationBuffer),
		now:       time.Now,
	}
	s.startedAt = s.now()
	for _, id := range scripts {
		row := &ConversationRow{ScriptID: id, Status: RowStarting, TotalTurns: totalTurns[id]}
		s.rows = append(s.rows, row)
		s.index[id] = row
		s.stats.TotalTurns += totalTurns[id]
	}
	return s
}

// Apply folds one progress notification into the state
func (s *RunState) Apply(p stresstest.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.index[p.ScriptID]
	if !ok {
		row = &ConversationRow{ScriptID: p.ScriptID, TotalTurns: p.TotalTurns}
		s.rows = append(s.rows, row)
		s.index[p.ScriptID] = row
		s.stats.TotalTurns += p.TotalTurns
	}
	if p.ConversationID != "" {
		row.ConversationID = p.ConversationID
	}
	label := row.ScriptID
	if row.ConversationID != "" && row.ConversationID != row.ScriptID {
		label = fmt.Sprintf("%s (%s)", row.ScriptID, shortID(row.ConversationID))
	}

	switch p.Kind {
	case stresstest.ProgressStarted:
		row.Status = RowStarting
		s.narrate("%s: starting, %d turns", label, p.TotalTurns)
	case stresstest.ProgressGreeting:
		row.Status = RowRunning
		s.narrate("%s: greeting received", label)
	case stresstest.ProgressIntermediate:
		row.Intermediates++
		s.stats.IntermediateCount++
		s.narrate("%s: turn %d interim reply after %s", label, p.TurnIndex, p.Latency.Round(time.Millisecond))
	case stresstest.ProgressTurn:
		row.TurnsDone++
		row.LastLatency = p.Latency
		timedOut := p.Outcome == eventlog.OutcomeTimeout
		if timedOut {
			row.Timeouts++
			s.narrate("%s: turn %d timed out after %s", label, p.TurnIndex, p.Latency.Round(time.Millisecond))
		} else {
			s.narrate("%s: turn %d answered in %s", label, p.TurnIndex, p.Latency.Round(time.Millisecond))
		}
		s.stats.AddTurn(p.Latency.Milliseconds(), timedOut)
	case stresstest.ProgressCompleted:
		row.Status = RowCompleted
		s.narrate("%s: completed", label)
	case stresstest.ProgressFailed:
		row.Status = RowFailed
		row.Err = p.Err
		s.narrate("%s: failed: %v", label, p.Err)
	}
}

func (s *RunState) narrate(format string, args ...any) {
	line := fmt.Sprintf("%s %s", s.now().Format("15:04:05"), fmt.Sprintf(format, args...))
	s.narration = append(s.narration, line)
	if len(s.narration) > NarrationBuffer {
		s.narration = s.narration[len(s.narration)-NarrationBuffer:]
	}
}

// Rows returns a copy of the conversation rows in start order
func (s *RunState) Rows() []ConversationRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]ConversationRow, len(s.rows))
	for i, r := range s.rows {
		rows[i] = *r
	}
	return rows
}

// Narration returns a copy of the narration lines
func (s *RunState) Narration() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.narration...)
}

// Snapshot returns a copy of the running statistics
func (s *RunState) Snapshot() stresstest.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := *s.stats
	snap.Durations = append([]int64(nil), s.stats.Durations...)
	return snap
}

// Elapsed returns the time since the run started
func (s *RunState) Elapsed() time.Duration {
	return s.now().Sub(s.startedAt)
}

// Counts returns how many conversations are completed and failed
func (s *RunState) Counts() (completed, failed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rows {
		switch r.Status {
		case RowCompleted:
			completed++
		case RowFailed:
			failed++
		}
	}
	return completed, failed
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
