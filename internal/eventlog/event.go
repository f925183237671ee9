package eventlog

import (
	"fmt"
	"math"
	"time"
)

// TimestampFormat is the ISO-8601 UTC layout used for capture timestamps.
// Fixed-width fractional seconds keep records lexically sortable.
const TimestampFormat = "2006-01-02T15:04:05.000000Z07:00"

// Kind identifies what produced an event
type Kind string

const (
	KindGreeting     Kind = "greeting"
	KindIntermediate Kind = "intermediate"
	KindTurn         Kind = "turn"
)

// Outcome is the resolution of a turn
type Outcome string

const (
	OutcomeFinal   Outcome = "final"
	OutcomeTimeout Outcome = "timeout"
)

// IDSource tells where a conversation identifier came from.
// The two sources are separate namespaces and are never merged.
type IDSource string

const (
	IDSourceUI   IDSource = "ui"
	IDSourceFile IDSource = "file"
)

// Event is one newline-delimited JSON record of the event log
type Event struct {
	ConversationID  string   `json:"conversation_id"`
	Timestamp       string   `json:"timestamp"`
	UserMessage     *string  `json:"user_message"`
	UserUITimestamp *string  `json:"user_ui_timestamp"`
	AIResponse      string   `json:"ai_response"`
	AIUITimestamp   *string  `json:"ai_ui_timestamp"`
	LatencyMs       float64  `json:"latency_ms"`
	Kind            Kind     `json:"event_type"`
	TurnIndex       *int     `json:"turn_index,omitempty"`
	Outcome         Outcome  `json:"outcome,omitempty"`
	IDSource        IDSource `json:"id_source,omitempty"`
}

// FormatTimestamp renders t in the log's timestamp layout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// ParseTimestamp parses a capture timestamp written by FormatTimestamp
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampFormat, s)
}

// LatencyMs converts a duration to milliseconds rounded to two decimals
func LatencyMs(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*100) / 100
}

// Optional returns a pointer to s, or nil when s is empty
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Validate checks the structural rules every record must satisfy
func Validate(ev Event) error {
	if ev.ConversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	if ev.Timestamp == "" {
		return fmt.Errorf("timestamp is required")
	}
	if ev.LatencyMs < 0 || math.IsNaN(ev.LatencyMs) || math.IsInf(ev.LatencyMs, 0) {
		return fmt.Errorf("latency_ms must be a non-negative number, got %v", ev.LatencyMs)
	}
	switch ev.Kind {
	case KindGreeting:
		if ev.UserMessage != nil {
			return fmt.Errorf("greeting must not carry a user message")
		}
		if ev.LatencyMs != 0 {
			return fmt.Errorf("greeting latency must be 0, got %v", ev.LatencyMs)
		}
	case KindIntermediate:
	case KindTurn:
		if ev.Outcome != OutcomeFinal && ev.Outcome != OutcomeTimeout {
			return fmt.Errorf("turn event has invalid outcome %q", ev.Outcome)
		}
	default:
		return fmt.Errorf("unknown event type %q", ev.Kind)
	}
	return nil
}
