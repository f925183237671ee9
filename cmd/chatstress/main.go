package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/studiowebux/chatstress/internal/cli"
	"github.com/studiowebux/chatstress/internal/config"
	"github.com/studiowebux/chatstress/internal/version"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chatstress",
	Short: "Concurrent conversation stress tester for chat interfaces",
	Long: `chatstress replays scripted conversations against a chat interface, one
isolated session per script, all at once. Every AI message is recorded with
its latency in an append-only event log.

Examples:
  chatstress config init chatstress.yaml   # Write a starter config
  chatstress mock                          # Serve the built-in mock chat
  chatstress run -c chatstress.yaml        # Run every script in script_dir
  chatstress run --tui --no-hold           # Live dashboard, release at the end
  chatstress transcript --log conversations.jsonl --out result.txt
  chatstress runs                          # List stored run summaries`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every conversation script against the target",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve a scripted mock chat interface",
	Long: `Serve a WebSocket chat endpoint driven by a scenario file. Without
--scenario the built-in scenario is used. Type 'exit' or press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Mock(cmd.Context(), cli.MockOptions{
			ScenarioPath: flagScenario,
			Port:         flagMockPort,
			LogLevel:     flagLogLevel,
		})
	},
}

var mockInitCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Write the built-in scenario to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.InitScenario(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Scenario written to %s\n", args[0])
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage run configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Write the default configuration to a file (.yaml or .json)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.InitConfig(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Config written to %s\n", args[0])
		return nil
	},
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Render the event log as a readable transcript",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Transcript(cli.TranscriptOptions{
			LogPath: flagTranscriptLog,
			OutPath: flagTranscriptOut,
			Copy:    flagTranscriptCopy,
		})
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored run summaries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ListRuns(runsOptions())
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a stored run with its conversations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRunID(args)
		if err != nil {
			return err
		}
		return cli.ShowRun(runsOptions(), id)
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a stored run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRunID(args)
		if err != nil {
			return err
		}
		return cli.DeleteRun(runsOptions(), id)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version, optionally checking for a newer release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("chatstress %s\n", version.Version)
		if !flagCheck {
			return nil
		}
		release, newer, err := version.NewChecker().Check(cmd.Context(), version.Version)
		if err != nil {
			return err
		}
		if newer {
			fmt.Printf("A newer release is available: %s (%s)\n", release.Version(), release.HTMLURL)
		} else {
			fmt.Println("You are on the latest release")
		}
		return nil
	},
}

var flagCheck bool

// Flags for run
var (
	flagConfig        string
	flagEnvFile       string
	flagTarget        string
	flagScripts       string
	flagEventLog      string
	flagTranscript    string
	flagDatabase      string
	flagMaxConcurrent int
	flagTUI           bool
	flagNoHold        bool
	flagOutput        string
	flagLogLevel      string
)

// Flags for mock
var (
	flagScenario string
	flagMockPort int
)

// Flags for transcript
var (
	flagTranscriptLog  string
	flagTranscriptOut  string
	flagTranscriptCopy bool
)

// Flags for runs
var (
	flagRunsDB    string
	flagRunsLimit int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (DEBUG/INFO/WARN/ERROR)")

	// Run command flags
	runCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "Config file (.yaml, .yml, .json, .jsonc)")
	runCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "Load environment variables from file")
	runCmd.Flags().StringVarP(&flagTarget, "target", "t", "", "Chat interface WebSocket URL")
	runCmd.Flags().StringVarP(&flagScripts, "scripts", "s", "", "Directory of conversation scripts")
	runCmd.Flags().StringVar(&flagEventLog, "event-log", "", "Event log path (NDJSON)")
	runCmd.Flags().StringVar(&flagTranscript, "transcript", "", "Write a transcript after the run")
	runCmd.Flags().StringVar(&flagDatabase, "db", "", "Save the run summary to this SQLite database")
	runCmd.Flags().IntVarP(&flagMaxConcurrent, "max-concurrent", "m", -1, "Conversations at once (0 = all)")
	runCmd.Flags().BoolVar(&flagTUI, "tui", false, "Show the live dashboard")
	runCmd.Flags().BoolVar(&flagNoHold, "no-hold", false, "Release the sessions as soon as the run ends")
	runCmd.Flags().StringVarP(&flagOutput, "output", "o", "text", "Summary format (text/json/yaml)")

	// Mock command flags
	mockCmd.Flags().StringVar(&flagScenario, "scenario", "", "Scenario file (.yaml, .yml, .json, .jsonc)")
	mockCmd.Flags().IntVarP(&flagMockPort, "port", "p", 0, "Override the scenario port")

	// Transcript flags
	transcriptCmd.Flags().StringVarP(&flagTranscriptLog, "log", "l", "conversations.jsonl", "Event log to read")
	transcriptCmd.Flags().StringVar(&flagTranscriptOut, "out", "", "Write the transcript to a file instead of stdout")
	transcriptCmd.Flags().BoolVar(&flagTranscriptCopy, "copy", false, "Copy the transcript to the clipboard")

	// Runs flags
	runsCmd.PersistentFlags().StringVar(&flagRunsDB, "db", "", "SQLite database (default ~/.chatstress/chatstress.db)")
	runsCmd.PersistentFlags().IntVarP(&flagRunsLimit, "limit", "n", 20, "Number of runs to list")

	versionCmd.Flags().BoolVar(&flagCheck, "check", false, "Check for a newer release")

	// Add subcommands
	mockCmd.AddCommand(mockInitCmd)
	configCmd.AddCommand(configInitCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(mockCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(transcriptCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)
}

// runRun executes a stress run; Ctrl+C during the run ends every
// conversation at its next turn boundary
func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := cli.RunOptions{
		ConfigPath:    flagConfig,
		EnvFile:       flagEnvFile,
		Target:        flagTarget,
		ScriptDir:     flagScripts,
		EventLog:      flagEventLog,
		Transcript:    flagTranscript,
		Database:      flagDatabase,
		LogLevel:      flagLogLevel,
		MaxConcurrent: flagMaxConcurrent,
		OutputFormat:  flagOutput,
		TUI:           flagTUI,
		NoHold:        flagNoHold,
		Interactive:   cli.IsInteractive(),
	}
	summary, err := cli.Run(ctx, opts)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d conversations failed", summary.Failed, summary.Failed+summary.Completed)
	}
	return nil
}

func runsOptions() cli.RunsOptions {
	return cli.RunsOptions{
		Database:    flagRunsDB,
		Limit:       flagRunsLimit,
		Interactive: cli.IsInteractive(),
	}
}

func parseRunID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run id %q", args[0])
	}
	return id, nil
}
