package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/studiowebux/chatstress/internal/stresstest"
)

// Adaptive color definitions for light/dark terminal support
var (
	colorGreen  = lipgloss.AdaptiveColor{Light: "#006400", Dark: "#00ff00"} // Dark green / Bright green
	colorRed    = lipgloss.AdaptiveColor{Light: "#8b0000", Dark: "#ff0000"} // Dark red / Bright red
	colorYellow = lipgloss.AdaptiveColor{Light: "#b8860b", Dark: "#ffff00"} // Dark goldenrod / Yellow
	colorGray   = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#888888"} // Dark gray / Light gray
	colorCyan   = lipgloss.AdaptiveColor{Light: "#008b8b", Dark: "#00ffff"} // Dark cyan / Cyan
)

// Style definitions
var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	styleTitleFocused = lipgloss.NewStyle().
				Bold(true)

	styleSuccess = lipgloss.NewStyle().
			Foreground(colorGreen)

	styleError = lipgloss.NewStyle().
			Foreground(colorRed)

	styleWarning = lipgloss.NewStyle().
			Foreground(colorYellow)

	styleSubtle = lipgloss.NewStyle().
			Foreground(colorGray)
)

// View renders the dashboard
func (m Model) View() string {
	if m.width == 0 {
		return ""
	}

	boxWidth := m.width - 2
	if boxWidth > MaxDashboardWidth {
		boxWidth = MaxDashboardWidth
	}

	var content strings.Builder
	content.WriteString(styleTitle.Render(m.title) + "\n\n")

	stats := m.state.Snapshot()
	content.WriteString(renderProgress(&stats, m.state.Elapsed()))
	content.WriteString("\n")
	content.WriteString(renderStats(&stats))
	content.WriteString("\n")
	content.WriteString(renderRows(m.state.Rows()))
	content.WriteString("\n")

	content.WriteString(styleTitleFocused.Render("Narration") + "\n")
	content.WriteString(m.viewport.View() + "\n\n")

	content.WriteString(m.statusLine() + "\n")
	footer := "q/ESC: Stop run | ↑/↓: Scroll | G: Follow"
	if m.done {
		footer = "q: Close dashboard | ↑/↓: Scroll"
	} else if m.stopping {
		footer = "Stopping... waiting for conversations to end"
	}
	content.WriteString(styleSubtle.Render(footer))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorCyan).
		Padding(0, 1).
		Width(boxWidth).
		Render(content.String())
}

// renderProgress draws the turn progress bar
func renderProgress(stats *stresstest.Stats, elapsed time.Duration) string {
	var b strings.Builder
	progress := stats.Progress()
	b.WriteString(styleTitleFocused.Render("Progress") + "\n")
	b.WriteString(fmt.Sprintf("%d/%d turns (%.1f%%)\n", stats.CompletedTurns, stats.TotalTurns, progress))

	filled := int(progress / 100.0 * float64(ProgressBarWidth))
	if filled > ProgressBarWidth {
		filled = ProgressBarWidth
	}
	b.WriteString(strings.Repeat("█", filled) + strings.Repeat("░", ProgressBarWidth-filled) + "\n")
	b.WriteString(fmt.Sprintf("Elapsed: %s\n", formatDuration(elapsed)))
	return b.String()
}

// renderStats draws the two-column latency statistics
func renderStats(stats *stresstest.Stats) string {
	var b strings.Builder
	b.WriteString(styleTitleFocused.Render("Statistics") + "\n")

	leftCol := []string{
		fmt.Sprintf("Final:         %d", stats.FinalCount),
		fmt.Sprintf("Timeouts:      %d", stats.TimeoutCount),
		fmt.Sprintf("Intermediates: %d", stats.IntermediateCount),
		fmt.Sprintf("Avg:           %.0fms", stats.AvgDurationMs()),
	}
	rightCol := []string{
		fmt.Sprintf("Min: %dms", stats.Min()),
		fmt.Sprintf("Max: %dms", stats.Max()),
		fmt.Sprintf("P50: %dms", stats.P50()),
		fmt.Sprintf("P95: %dms  P99: %dms", stats.P95(), stats.P99()),
	}
	for i := range leftCol {
		b.WriteString(fmt.Sprintf("%-28s%s\n", leftCol[i], rightCol[i]))
	}
	return b.String()
}

// renderRows draws one line per conversation
func renderRows(rows []ConversationRow) string {
	var b strings.Builder
	b.WriteString(styleTitleFocused.Render(fmt.Sprintf("%-24s %-10s %-8s %-8s %s", "Conversation", "Status", "Turns", "Timeouts", "Last")) + "\n")
	for _, r := range rows {
		name := r.ScriptID
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		last := "-"
		if r.LastLatency > 0 {
			last = formatDuration(r.LastLatency)
		}
		status := fmt.Sprintf("%-10s", r.Status)
		switch r.Status {
		case RowCompleted:
			status = styleSuccess.Render(status)
		case RowFailed:
			status = styleError.Render(status)
		}
		timeouts := fmt.Sprintf("%-8d", r.Timeouts)
		if r.Timeouts > 0 {
			timeouts = styleWarning.Render(timeouts)
		}
		b.WriteString(fmt.Sprintf("%-24s %s %-8s %s %s\n", name, status, fmt.Sprintf("%d/%d", r.TurnsDone, r.TotalTurns), timeouts, last))
	}
	return b.String()
}

// formatDuration renders durations the way the rest of the dashboard does
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
