package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/studiowebux/chatstress/internal/config"
	"github.com/studiowebux/chatstress/internal/eventlog"
	"github.com/studiowebux/chatstress/internal/lifecycle"
	"github.com/studiowebux/chatstress/internal/mock"
	"github.com/studiowebux/chatstress/internal/report"
	"github.com/studiowebux/chatstress/internal/stresstest"
)

// MockOptions contains options for serving the mock chat interface
type MockOptions struct {
	ScenarioPath string
	// Port overrides the scenario port when > 0
	Port     int
	LogLevel string
	Stdin    io.Reader
	Stderr   io.Writer
}

// Mock serves the scenario until the operator types the exit keyword,
// a signal arrives or ctx is cancelled
func Mock(ctx context.Context, opts MockOptions) error {
	scenario := mock.DefaultScenario()
	if opts.ScenarioPath != "" {
		loaded, err := mock.LoadScenario(opts.ScenarioPath)
		if err != nil {
			return err
		}
		scenario = loaded
	}
	if opts.Port > 0 {
		scenario.Port = opts.Port
	}

	stdin, stderr := opts.Stdin, opts.Stderr
	if stdin == nil {
		stdin = os.Stdin
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	logger, closeLogger := config.SetupLoggerTo(stderr, "", config.ParseLogLevel(opts.LogLevel))
	defer closeLogger()

	server := mock.NewServer(scenario, logger)
	if err := server.Start(); err != nil {
		return err
	}
	fmt.Fprintf(stderr, "Mock chat interface at %s\n", server.Address())

	controller := lifecycle.NewController(server.Stop,
		lifecycle.WithInput(stdin),
		lifecycle.WithPrompt(stderr),
		lifecycle.WithBanner("Mock chat interface running."),
		lifecycle.WithLogger(logger))
	reason, err := controller.AwaitShutdown(ctx)
	logger.Info("mock chat interface stopped", "reason", reason, "exchanges", len(server.GetLogs()))
	return err
}

// InitScenario writes the default scenario to path
func InitScenario(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return mock.SaveScenario(mock.DefaultScenario(), path)
}

// InitConfig writes the default run configuration to path
func InitConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return config.Default().Save(path)
}

// TranscriptOptions contains options for rendering a transcript
type TranscriptOptions struct {
	LogPath string
	// OutPath is written when set; otherwise the transcript goes to Stdout
	OutPath string
	Copy    bool
	Stdout  io.Writer
}

// Transcript renders the event log as a conversation transcript
func Transcript(opts TranscriptOptions) error {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	var text string
	var err error
	if opts.OutPath != "" {
		text, err = report.GenerateFile(opts.LogPath, opts.OutPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Transcript written to %s\n", opts.OutPath)
	} else {
		events, err := eventlog.ReadFile(opts.LogPath)
		if err != nil {
			return err
		}
		text, err = report.Render(events)
		if err != nil {
			return err
		}
		fmt.Fprint(stdout, text)
	}

	if opts.Copy {
		if err := report.CopyToClipboard(text); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Transcript copied to clipboard")
	}
	return nil
}

// RunsOptions selects the run database and output stream
type RunsOptions struct {
	Database string
	Limit    int
	// Interactive allows picking a run from a list when no id is given
	Interactive bool
	Stdout      io.Writer
}

func (o RunsOptions) open() (*stresstest.Manager, io.Writer, error) {
	stdout := o.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	dbPath := o.Database
	if dbPath == "" {
		dbPath = config.DatabasePath
	}
	if dbPath == "" {
		return nil, nil, fmt.Errorf("no database configured")
	}
	path, err := config.ExpandPath(dbPath)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := stresstest.NewManager(path)
	if err != nil {
		return nil, nil, err
	}
	return mgr, stdout, nil
}

// ListRuns prints the most recent stored runs
func ListRuns(opts RunsOptions) error {
	mgr, stdout, err := opts.open()
	if err != nil {
		return err
	}
	defer mgr.Close()

	runs, err := mgr.ListRuns(opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	fmt.Fprint(stdout, formatRuns(runs))
	return nil
}

// ShowRun prints one stored run with its conversations. An id of 0 opens
// a picker when interactive.
func ShowRun(opts RunsOptions, id int64) error {
	mgr, stdout, err := opts.open()
	if err != nil {
		return err
	}
	defer mgr.Close()

	if id == 0 {
		if id, err = pickRun(mgr, opts); err != nil {
			return err
		}
	}
	run, err := mgr.GetRun(id)
	if err != nil {
		return err
	}
	sessions, err := mgr.GetSessions(id)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}
	fmt.Fprint(stdout, formatRunDetail(run, sessions))
	return nil
}

// DeleteRun removes a stored run. An id of 0 opens a picker when interactive.
func DeleteRun(opts RunsOptions, id int64) error {
	mgr, stdout, err := opts.open()
	if err != nil {
		return err
	}
	defer mgr.Close()

	if id == 0 {
		if id, err = pickRun(mgr, opts); err != nil {
			return err
		}
	}
	if err := mgr.DeleteRun(id); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Deleted run #%d\n", id)
	return nil
}

func pickRun(mgr *stresstest.Manager, opts RunsOptions) (int64, error) {
	if !opts.Interactive {
		return 0, fmt.Errorf("a run id is required (non-interactive mode)")
	}
	runs, err := mgr.ListRuns(opts.Limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return 0, fmt.Errorf("no runs recorded")
	}
	return promptForRun(runs)
}
