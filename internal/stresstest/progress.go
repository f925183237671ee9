package stresstest

import (
	"time"

	"github.com/studiowebux/chatstress/internal/eventlog"
)

// ProgressKind classifies a progress notification
type ProgressKind string

const (
	ProgressStarted      ProgressKind = "started"
	ProgressGreeting     ProgressKind = "greeting"
	ProgressIntermediate ProgressKind = "intermediate"
	ProgressTurn         ProgressKind = "turn"
	ProgressCompleted    ProgressKind = "completed"
	ProgressFailed       ProgressKind = "failed"
)

// Progress is emitted by conversations as they advance. It is advisory;
// the event log remains the authoritative record.
type Progress struct {
	Kind           ProgressKind
	ScriptID       string
	ConversationID string
	TurnIndex      int
	TotalTurns     int
	Latency        time.Duration
	Outcome        eventlog.Outcome
	Err            error
}
