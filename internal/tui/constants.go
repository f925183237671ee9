package tui

// Dashboard layout
const (
	// MaxDashboardWidth caps the bordered dashboard on wide terminals
	MaxDashboardWidth = 100

	// ViewportPaddingHorizontal accounts for the border and padding
	// around the narration viewport
	ViewportPaddingHorizontal = 4

	ProgressBarWidth = 40

	// DashboardHeaderLines is the fixed number of lines rendered above and
	// below the narration viewport, excluding conversation rows
	DashboardHeaderLines = 14
)

// Live updates
const (
	// NarrationBuffer is how many narration lines are kept in memory
	NarrationBuffer = 500

	// RefreshIntervalMs is how often the dashboard polls the run state
	RefreshIntervalMs = 100
)
