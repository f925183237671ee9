package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/studiowebux/chatstress/internal/config"
	"github.com/studiowebux/chatstress/internal/eventlog"
	"github.com/studiowebux/chatstress/internal/lifecycle"
	"github.com/studiowebux/chatstress/internal/report"
	"github.com/studiowebux/chatstress/internal/script"
	"github.com/studiowebux/chatstress/internal/stresstest"
	"github.com/studiowebux/chatstress/internal/tui"
	"github.com/studiowebux/chatstress/internal/uidriver"
)

// RunOptions contains the options of a stress run. Empty fields keep the
// value from the config file and environment.
type RunOptions struct {
	ConfigPath string
	EnvFile    string

	Target     string
	ScriptDir  string
	EventLog   string
	Transcript string
	Database   string
	LogLevel   string
	// MaxConcurrent overrides the config when >= 0
	MaxConcurrent int

	OutputFormat string // text, json, yaml
	TUI          bool
	NoHold       bool
	// Interactive allows prompting for missing required setup fields
	Interactive bool

	// Stdin, Stdout and Stderr default to the process streams
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Browser replaces the WebSocket driver; used by tests
	Browser uidriver.Browser
}

func (o *RunOptions) streams() (io.Reader, io.Writer, io.Writer) {
	in, out, errOut := o.Stdin, o.Stdout, o.Stderr
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return in, out, errOut
}

// LoadConfig resolves the run configuration: env file first, then the
// config file over the defaults, then CHATSTRESS_* variables, then flags
func LoadConfig(opts RunOptions) (*config.Config, error) {
	if err := config.LoadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)

	if opts.Target != "" {
		cfg.Target = opts.Target
	}
	if opts.ScriptDir != "" {
		cfg.ScriptDir = opts.ScriptDir
	}
	if opts.EventLog != "" {
		cfg.EventLog = opts.EventLog
	}
	if opts.Transcript != "" {
		cfg.Transcript = opts.Transcript
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.MaxConcurrent >= 0 {
		cfg.MaxConcurrent = opts.MaxConcurrent
	}
	if cfg.MaxConcurrent < 0 {
		return nil, fmt.Errorf("max concurrency cannot be negative")
	}
	return cfg, nil
}

// Run executes every script against the target, writes the event log,
// optional transcript and database summary, prints the summary, then holds
// the conversations open until the operator releases them
func Run(ctx context.Context, opts RunOptions) (*stresstest.Summary, error) {
	in, stdout, stderr := opts.streams()
	// Setup prompts and the release keyword read the same buffered stream
	stdin := bufio.NewReader(in)

	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}

	// Prompt for missing setup values before validation rejects them
	if opts.Interactive {
		if err := promptMissingFields(cfg, stdin, stderr); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	narration := stderr
	if opts.TUI {
		narration = io.Discard
	}
	logger, closeLogger := config.SetupLoggerTo(narration, cfg.Log.File, config.ParseLogLevel(cfg.Log.Level))
	defer closeLogger()

	scripts, err := script.Discover(cfg.ScriptDir, cfg.ScriptExt)
	if err != nil {
		return nil, err
	}
	if len(scripts) == 0 {
		return nil, fmt.Errorf("no %s scripts found in %s", cfg.ScriptExt, cfg.ScriptDir)
	}

	if err := eventlog.Reset(cfg.EventLog); err != nil {
		return nil, err
	}
	var logOpts []eventlog.Option
	if cfg.SyncWrites {
		logOpts = append(logOpts, eventlog.WithSync())
	}
	events, err := eventlog.Open(cfg.EventLog, logOpts...)
	if err != nil {
		return nil, err
	}
	defer events.Close()

	browser := opts.Browser
	if browser == nil {
		ws, err := uidriver.NewWebSocketBrowser(cfg.DriverOptions(ctx))
		if err != nil {
			return nil, err
		}
		browser = ws
	}

	controller := lifecycle.NewController(browser.Close,
		lifecycle.WithInput(stdin),
		lifecycle.WithPrompt(stderr),
		lifecycle.WithLogger(logger))
	// Every early return still releases the surfaces
	defer controller.Release()

	summary, err := execute(ctx, cfg, opts.TUI, scripts, browser, events, logger)
	if err != nil {
		return nil, err
	}

	// The transcript reads the file back, so flush and close it first
	if err := events.Close(); err != nil {
		logger.Error("failed to close event log", "error", err)
	}

	out := runOutput{summary: summary, eventLog: cfg.EventLog}
	if cfg.Transcript != "" {
		if _, err := report.GenerateFile(cfg.EventLog, cfg.Transcript); err != nil {
			logger.Error("failed to write transcript", "error", err, "path", cfg.Transcript)
		} else {
			out.transcript = cfg.Transcript
			logger.Info("transcript written", "path", cfg.Transcript)
		}
	}

	if cfg.Database != "" {
		id, err := saveSummary(cfg, summary)
		if err != nil {
			logger.Error("failed to save run summary", "error", err, "database", cfg.Database)
		} else {
			out.databaseID = id
		}
	}

	text, err := formatSummary(out, opts.OutputFormat)
	if err != nil {
		return summary, fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Fprint(stdout, text)

	if opts.NoHold {
		return summary, controller.Release()
	}

	reason, err := controller.AwaitShutdown(ctx)
	logger.Info("conversations released", "reason", reason)
	return summary, err
}

// execute runs the executor, under the live dashboard when requested
func execute(ctx context.Context, cfg *config.Config, withTUI bool, scripts []*script.Script, browser uidriver.Browser, events stresstest.Appender, logger *slog.Logger) (*stresstest.Summary, error) {
	execOpts := []stresstest.ExecutorOption{stresstest.WithLogger(logger)}

	var state *tui.RunState
	if withTUI {
		ids := make([]string, len(scripts))
		turns := make(map[string]int, len(scripts))
		for i, s := range scripts {
			ids[i] = s.ID
			turns[s.ID] = s.Len()
		}
		state = tui.NewRunState(ids, turns)
		execOpts = append(execOpts, stresstest.WithProgress(state.Apply))
	}

	exec, err := stresstest.NewExecutor(cfg.StressConfig(), browser, events, execOpts...)
	if err != nil {
		return nil, err
	}

	if !withTUI {
		return exec.Run(ctx, scripts), nil
	}
	return tui.RunDashboard(ctx, cfg.Name, state, func(ctx context.Context) *stresstest.Summary {
		return exec.Run(ctx, scripts)
	})
}

func saveSummary(cfg *config.Config, summary *stresstest.Summary) (int64, error) {
	path, err := config.ExpandPath(cfg.Database)
	if err != nil {
		return 0, err
	}
	mgr, err := stresstest.NewManager(path)
	if err != nil {
		return 0, err
	}
	defer mgr.Close()
	return mgr.SaveSummary(summary, cfg.Target, cfg.EventLog)
}

// promptMissingFields asks for every required setup field that has no value
func promptMissingFields(cfg *config.Config, reader *bufio.Reader, out io.Writer) error {
	for _, name := range cfg.RequiredFields {
		if strings.TrimSpace(cfg.SetupFields[name]) != "" {
			continue
		}
		value, err := promptForField(reader, out, name)
		if err != nil {
			return fmt.Errorf("failed to read input for '%s': %w", name, err)
		}
		if cfg.SetupFields == nil {
			cfg.SetupFields = make(map[string]string)
		}
		cfg.SetupFields[name] = value
	}
	return nil
}

// promptForField prompts the operator for a setup field value
func promptForField(reader *bufio.Reader, out io.Writer, name string) (string, error) {
	fmt.Fprintf(out, "Enter value for setup field '%s': ", name)
	value, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || value == "") {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// IsInteractive checks if stdin is a terminal (not piped)
func IsInteractive() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
