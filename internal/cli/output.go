package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/studiowebux/chatstress/internal/stresstest"
)

// ANSI color codes
const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
)

func getStatusColor(status string) string {
	switch status {
	case stresstest.StatusCompleted:
		return colorGreen
	case stresstest.StatusFailed:
		return colorRed
	default:
		return colorYellow
	}
}

// runOutput is what a finished run prints
type runOutput struct {
	summary    *stresstest.Summary
	eventLog   string
	transcript string
	databaseID int64
}

type summaryReport struct {
	RunID         string               `json:"run_id" yaml:"run_id"`
	Name          string               `json:"name" yaml:"name"`
	Status        string               `json:"status" yaml:"status"`
	StartedAt     time.Time            `json:"started_at" yaml:"started_at"`
	CompletedAt   time.Time            `json:"completed_at" yaml:"completed_at"`
	DurationMs    int64                `json:"duration_ms" yaml:"duration_ms"`
	Completed     int                  `json:"completed" yaml:"completed"`
	Failed        int                  `json:"failed" yaml:"failed"`
	Stats         statsReport          `json:"stats" yaml:"stats"`
	Conversations []conversationReport `json:"conversations" yaml:"conversations"`
	Collisions    []collisionReport    `json:"collisions,omitempty" yaml:"collisions,omitempty"`
	EventLog      string               `json:"event_log" yaml:"event_log"`
	Transcript    string               `json:"transcript,omitempty" yaml:"transcript,omitempty"`
	DatabaseID    int64                `json:"database_id,omitempty" yaml:"database_id,omitempty"`
}

type statsReport struct {
	TotalTurns     int     `json:"total_turns" yaml:"total_turns"`
	CompletedTurns int     `json:"completed_turns" yaml:"completed_turns"`
	Timeouts       int     `json:"timeouts" yaml:"timeouts"`
	Intermediates  int     `json:"intermediates" yaml:"intermediates"`
	AvgMs          float64 `json:"avg_ms" yaml:"avg_ms"`
	MinMs          int64   `json:"min_ms" yaml:"min_ms"`
	MaxMs          int64   `json:"max_ms" yaml:"max_ms"`
	P50Ms          int64   `json:"p50_ms" yaml:"p50_ms"`
	P95Ms          int64   `json:"p95_ms" yaml:"p95_ms"`
	P99Ms          int64   `json:"p99_ms" yaml:"p99_ms"`
}

type conversationReport struct {
	Script           string `json:"script" yaml:"script"`
	ConversationID   string `json:"conversation_id" yaml:"conversation_id"`
	IDSource         string `json:"id_source" yaml:"id_source"`
	IdentityDegraded bool   `json:"identity_degraded,omitempty" yaml:"identity_degraded,omitempty"`
	State            string `json:"state" yaml:"state"`
	Turns            int    `json:"turns" yaml:"turns"`
	TurnsCompleted   int    `json:"turns_completed" yaml:"turns_completed"`
	Timeouts         int    `json:"timeouts" yaml:"timeouts"`
	Intermediates    int    `json:"intermediates" yaml:"intermediates"`
	Error            string `json:"error,omitempty" yaml:"error,omitempty"`
}

type collisionReport struct {
	ID     string `json:"id" yaml:"id"`
	First  string `json:"first_script" yaml:"first_script"`
	Second string `json:"second_script" yaml:"second_script"`
}

func newSummaryReport(out runOutput) summaryReport {
	s := out.summary
	stats := s.Stats
	if stats == nil {
		stats = stresstest.NewStats()
	}
	r := summaryReport{
		RunID:       s.RunID,
		Name:        s.Name,
		Status:      s.Status(),
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		DurationMs:  s.Duration().Milliseconds(),
		Completed:   s.Completed,
		Failed:      s.Failed,
		Stats: statsReport{
			TotalTurns:     stats.TotalTurns,
			CompletedTurns: stats.CompletedTurns,
			Timeouts:       stats.TimeoutCount,
			Intermediates:  stats.IntermediateCount,
			AvgMs:          stats.AvgDurationMs(),
			MinMs:          stats.Min(),
			MaxMs:          stats.Max(),
			P50Ms:          stats.P50(),
			P95Ms:          stats.P95(),
			P99Ms:          stats.P99(),
		},
		EventLog:   out.eventLog,
		Transcript: out.transcript,
		DatabaseID: out.databaseID,
	}
	for _, sess := range s.Sessions {
		c := conversationReport{
			Script:           sess.ScriptID,
			ConversationID:   sess.ConversationID,
			IDSource:         string(sess.IDSource),
			IdentityDegraded: sess.IdentityDegraded,
			State:            string(sess.State),
			Turns:            sess.TotalTurns,
			TurnsCompleted:   sess.TurnsCompleted,
			Timeouts:         sess.Timeouts,
			Intermediates:    sess.Intermediates,
		}
		if sess.Err != nil {
			c.Error = sess.Err.Error()
		}
		r.Conversations = append(r.Conversations, c)
	}
	for _, col := range s.Collisions {
		r.Collisions = append(r.Collisions, collisionReport{ID: col.ID, First: col.FirstScript, Second: col.SecondScript})
	}
	return r
}

// formatSummary formats the run summary based on the output format
func formatSummary(out runOutput, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(newSummaryReport(out), "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil

	case "yaml":
		data, err := yaml.Marshal(newSummaryReport(out))
		if err != nil {
			return "", err
		}
		return string(data), nil

	case "text", "":
		return formatSummaryText(out), nil

	default:
		return "", fmt.Errorf("unknown output format %q (use text, json or yaml)", format)
	}
}

func formatSummaryText(out runOutput) string {
	s := out.summary
	r := newSummaryReport(out)
	var sb strings.Builder

	status := s.Status()
	sb.WriteString(fmt.Sprintf("%s%s%s: %d completed, %d failed in %s\n",
		getStatusColor(status), strings.ToUpper(status), colorReset,
		s.Completed, s.Failed, s.Duration().Round(time.Millisecond)))

	st := r.Stats
	sb.WriteString(fmt.Sprintf("Turns: %d/%d | Timeouts: %d | Intermediates: %d\n",
		st.CompletedTurns, st.TotalTurns, st.Timeouts, st.Intermediates))
	if st.CompletedTurns > 0 {
		sb.WriteString(fmt.Sprintf("Latency: avg %.0fms | min %dms | max %dms | p50 %dms | p95 %dms | p99 %dms\n",
			st.AvgMs, st.MinMs, st.MaxMs, st.P50Ms, st.P95Ms, st.P99Ms))
	}

	sb.WriteString("\nConversations:\n")
	for _, c := range r.Conversations {
		line := fmt.Sprintf("  %-24s %-38s %d/%d turns", c.Script, c.ConversationID, c.TurnsCompleted, c.Turns)
		if c.Timeouts > 0 {
			line += fmt.Sprintf(" %s(%d timeouts)%s", colorYellow, c.Timeouts, colorReset)
		}
		if c.IdentityDegraded {
			line += " [file id]"
		}
		if c.Error != "" {
			line += fmt.Sprintf(" %sError: %s%s", colorRed, c.Error, colorReset)
		}
		sb.WriteString(line + "\n")
	}

	for _, col := range r.Collisions {
		sb.WriteString(fmt.Sprintf("%sWarning: conversation id %s reported by %s and %s%s\n",
			colorYellow, col.ID, col.First, col.Second, colorReset))
	}

	sb.WriteString(fmt.Sprintf("\nEvent log: %s\n", out.eventLog))
	if out.transcript != "" {
		sb.WriteString(fmt.Sprintf("Transcript: %s\n", out.transcript))
	}
	if out.databaseID > 0 {
		sb.WriteString(fmt.Sprintf("Saved as run #%d\n", out.databaseID))
	}
	return sb.String()
}

// formatRuns renders stored runs as a table
func formatRuns(runs []*stresstest.RunRecord) string {
	if len(runs) == 0 {
		return "No runs recorded\n"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-5s %-20s %-10s %-11s %-9s %-9s %s\n", "ID", "Started", "Status", "Convs", "Turns", "Timeouts", "Name"))
	for _, run := range runs {
		status := fmt.Sprintf("%-10s", run.Status)
		sb.WriteString(fmt.Sprintf("%-5d %-20s %s%s%s %-11s %-9s %-9d %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			getStatusColor(run.Status), status, colorReset,
			fmt.Sprintf("%d/%d", run.ConversationsCompleted, run.ConversationsCompleted+run.ConversationsFailed),
			fmt.Sprintf("%d/%d", run.CompletedTurns, run.TotalTurns),
			run.Timeouts,
			run.Name))
	}
	return sb.String()
}

// formatRunDetail renders one stored run with its conversations
func formatRunDetail(run *stresstest.RunRecord, sessions []*stresstest.SessionRecord) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run #%d %s (%s)\n", run.ID, run.Name, run.RunUUID))
	sb.WriteString(fmt.Sprintf("Status: %s%s%s\n", getStatusColor(run.Status), run.Status, colorReset))
	sb.WriteString(fmt.Sprintf("Target: %s\n", run.Target))
	sb.WriteString(fmt.Sprintf("Event log: %s\n", run.EventLog))
	sb.WriteString(fmt.Sprintf("Started: %s", run.StartedAt.Local().Format(time.RFC3339)))
	if run.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf(" | Duration: %s", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond)))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Turns: %d/%d | Timeouts: %d | Intermediates: %d\n",
		run.CompletedTurns, run.TotalTurns, run.Timeouts, run.Intermediates))
	sb.WriteString(fmt.Sprintf("Latency: avg %.0fms | min %dms | max %dms | p50 %dms | p95 %dms | p99 %dms\n",
		run.AvgLatencyMs, run.MinLatencyMs, run.MaxLatencyMs, run.P50LatencyMs, run.P95LatencyMs, run.P99LatencyMs))

	sb.WriteString("\nConversations:\n")
	for _, s := range sessions {
		line := fmt.Sprintf("  %-24s %-38s %-10s %d/%d turns", s.ScriptID, s.ConversationID, s.State, s.TurnsCompleted, s.TotalTurns)
		if s.Timeouts > 0 {
			line += fmt.Sprintf(" (%d timeouts)", s.Timeouts)
		}
		if s.Error != "" {
			line += fmt.Sprintf(" %sError: %s%s", colorRed, s.Error, colorReset)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}
