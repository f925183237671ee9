package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/studiowebux/chatstress/internal/stresstest"
)

// Model is the live run dashboard
type Model struct {
	state    *RunState
	title    string
	viewport viewport.Model
	width    int
	height   int

	// follow keeps the narration pane scrolled to the newest line
	follow   bool
	done     bool
	stopping bool
	summary  *stresstest.Summary
	cancel   context.CancelFunc
}

// NewModel creates a dashboard over state. cancel aborts the run when the
// operator asks to stop before it has finished.
func NewModel(title string, state *RunState, cancel context.CancelFunc) Model {
	return Model{
		state:    state,
		title:    title,
		viewport: viewport.New(80, 10),
		follow:   true,
		cancel:   cancel,
	}
}

// Message types
type tickMsg time.Time

type runFinishedMsg struct {
	summary *stresstest.Summary
}

func tick() tea.Cmd {
	return tea.Tick(RefreshIntervalMs*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the refresh loop
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles window, key, tick and completion messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()
		m.refreshNarration()
		return m, nil

	case tickMsg:
		m.refreshNarration()
		if m.done {
			return m, nil
		}
		return m, tick()

	case runFinishedMsg:
		m.done = true
		m.summary = msg.summary
		m.refreshNarration()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit

	case "q", "esc":
		if m.done {
			return m, tea.Quit
		}
		if !m.stopping && m.cancel != nil {
			m.stopping = true
			m.cancel()
		}
		return m, nil

	case "up", "k":
		m.follow = false
		m.viewport.LineUp(1)
	case "down", "j":
		m.viewport.LineDown(1)
		m.follow = m.viewport.AtBottom()
	case "pgup":
		m.follow = false
		m.viewport.HalfViewUp()
	case "pgdown":
		m.viewport.HalfViewDown()
		m.follow = m.viewport.AtBottom()
	case "G", "end":
		m.follow = true
		m.viewport.GotoBottom()
	}
	return m, nil
}

func (m *Model) resizeViewport() {
	width := m.width - ViewportPaddingHorizontal
	if width > MaxDashboardWidth-ViewportPaddingHorizontal {
		width = MaxDashboardWidth - ViewportPaddingHorizontal
	}
	if width < 20 {
		width = 20
	}
	height := m.height - DashboardHeaderLines - len(m.state.Rows())
	if height < 3 {
		height = 3
	}
	m.viewport.Width = width
	m.viewport.Height = height
}

func (m *Model) refreshNarration() {
	m.viewport.SetContent(strings.Join(m.state.Narration(), "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

// Done reports whether the run has finished
func (m Model) Done() bool {
	return m.done
}

// statusLine summarizes where the run is
func (m Model) statusLine() string {
	completed, failed := m.state.Counts()
	total := len(m.state.Rows())
	switch {
	case m.done && m.summary != nil:
		return fmt.Sprintf("Finished in %s: %d completed, %d failed (%s)",
			formatDuration(m.summary.Duration()), m.summary.Completed, m.summary.Failed, m.summary.Status())
	case m.stopping:
		return fmt.Sprintf("Stopping... %d/%d conversations finished", completed+failed, total)
	default:
		return fmt.Sprintf("Running: %d/%d conversations finished", completed+failed, total)
	}
}
