package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/studiowebux/chatstress/internal/eventlog"
	"github.com/studiowebux/chatstress/internal/stresstest"
)

func sizedModel(t *testing.T, cancel func()) Model {
	t.Helper()
	m := NewModel("Chat stress test", newTestState(), cancel)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model)
}

func TestModel_ViewBeforeSize(t *testing.T) {
	m := NewModel("t", newTestState(), nil)
	if m.View() != "" {
		t.Error("View should be empty until the window size is known")
	}
}

func TestModel_ViewShowsProgress(t *testing.T) {
	m := sizedModel(t, nil)
	m.state.Apply(stresstest.Progress{Kind: stresstest.ProgressTurn, ScriptID: "a", TurnIndex: 0, Latency: 800 * time.Millisecond, Outcome: eventlog.OutcomeFinal})

	updated, cmd := m.Update(tickMsg(time.Now()))
	m = updated.(Model)
	if cmd == nil {
		t.Error("Tick should reschedule while the run is active")
	}

	view := m.View()
	for _, want := range []string{"Chat stress test", "1/5 turns", "Statistics", "Narration", "turn 0 answered in 800ms", "Running: 0/2"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q", want)
		}
	}
}

func TestModel_StopKeyCancelsRun(t *testing.T) {
	cancelled := 0
	m := sizedModel(t, func() { cancelled++ })

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = updated.(Model)
	if cancelled != 1 || !m.stopping {
		t.Errorf("q during a run should cancel it, cancelled=%d stopping=%v", cancelled, m.stopping)
	}
	if cmd != nil {
		t.Error("The dashboard should stay open while conversations wind down")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cancelled != 1 {
		t.Errorf("Cancel should only be called once, got %d", cancelled)
	}
	if !strings.Contains(m.View(), "Stopping") {
		t.Error("Expected stopping status")
	}
}

func TestModel_RunFinished(t *testing.T) {
	m := sizedModel(t, nil)
	start := time.Now()
	summary := &stresstest.Summary{StartedAt: start, CompletedAt: start.Add(90 * time.Second), Completed: 2}

	updated, _ := m.Update(runFinishedMsg{summary: summary})
	m = updated.(Model)
	if !m.Done() {
		t.Fatal("Expected model to be done")
	}
	if _, cmd := m.Update(tickMsg(time.Now())); cmd != nil {
		t.Error("Ticks should stop once the run is done")
	}
	if !strings.Contains(m.View(), "Finished in 1m30s: 2 completed, 0 failed (completed)") {
		t.Errorf("Unexpected status line in view:\n%s", m.View())
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q after the run should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected a quit command")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		250 * time.Millisecond: "250ms",
		1500 * time.Millisecond: "1.50s",
		125 * time.Second:       "2m05s",
	}
	for d, want := range tests {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
