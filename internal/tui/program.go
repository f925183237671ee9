package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/studiowebux/chatstress/internal/stresstest"
)

// RunDashboard shows the dashboard while run executes. run receives a
// context the operator can cancel from the dashboard. The dashboard stays
// up after the run so the final numbers can be read; it returns once the
// operator closes it.
func RunDashboard(ctx context.Context, title string, state *RunState, run func(ctx context.Context) *stresstest.Summary) (*stresstest.Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(title, state, cancel)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	result := make(chan *stresstest.Summary, 1)
	go func() {
		summary := run(runCtx)
		result <- summary
		program.Send(runFinishedMsg{summary: summary})
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-result
		return nil, fmt.Errorf("dashboard failed: %w", err)
	}

	// Closing early cancels the run; wait for conversations to wind down
	return <-result, nil
}
