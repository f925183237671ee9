/*
Package tui implements the live dashboard shown while a stress run executes.

# Architecture

The dashboard follows the Bubble Tea Model-Update-View pattern:
  - RunState: thread-safe aggregate of progress notifications
  - Model: polls RunState on a tick and owns the narration viewport
  - View: renders progress, latency statistics, one row per
    conversation and the scrolling narration

The executor never talks to the Model directly. Progress callbacks are
folded into RunState from the conversation goroutines, and the Model
reads a snapshot on every tick:

	state := tui.NewRunState(ids, turns)
	exec, _ := stresstest.NewExecutor(cfg, browser, log,
		stresstest.WithProgress(state.Apply))
	summary, err := tui.RunDashboard(ctx, "Chat stress test", state,
		func(ctx context.Context) *stresstest.Summary {
			return exec.Run(ctx, scripts)
		})

# Keys

  - q/ESC: stop the run (conversations end at their next turn), or close
    the dashboard once the run is done
  - Ctrl+C: stop and close immediately
  - ↑/↓, PgUp/PgDn: scroll the narration
  - G: follow the newest narration line
*/
package tui
