package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/studiowebux/chatstress/internal/stresstest"
	"github.com/studiowebux/chatstress/internal/uidriver"
)

// Environment variables that override the config file
const (
	EnvTarget    = "CHATSTRESS_TARGET"
	EnvScriptDir = "CHATSTRESS_SCRIPT_DIR"
	EnvEventLog  = "CHATSTRESS_EVENT_LOG"
	EnvLogLevel  = "CHATSTRESS_LOG_LEVEL"
	EnvDatabase  = "CHATSTRESS_DB"
)

// Duration is a time.Duration read from strings such as "45s"
type Duration time.Duration

// UnmarshalYAML accepts a duration string or a number of seconds
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

// MarshalYAML writes the duration as a string
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON accepts a duration string or a number of seconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	return d.parse(s)
}

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Timeouts holds the bounded waits of a conversation
type Timeouts struct {
	Setup        Duration `yaml:"setup" json:"setup"`
	Greeting     Duration `yaml:"greeting" json:"greeting"`
	Turn         Duration `yaml:"turn" json:"turn"`
	Pacing       Duration `yaml:"pacing" json:"pacing"`
	EmptyBackoff Duration `yaml:"empty_backoff" json:"empty_backoff"`
	Poll         Duration `yaml:"poll" json:"poll"`
}

// Markers holds the reserved strings the interface uses
type Markers struct {
	Intermediate string `yaml:"intermediate" json:"intermediate"`
	Timeout      string `yaml:"timeout" json:"timeout"`
	StripPrefix  string `yaml:"strip_prefix" json:"strip_prefix"`
	ClockPattern string `yaml:"clock_pattern" json:"clock_pattern"`
}

// LogConfig selects where and how much to log
type LogConfig struct {
	File  string `yaml:"file" json:"file"`
	Level string `yaml:"level" json:"level"`
}

// Config is the complete description of a stress run
type Config struct {
	Name       string `yaml:"name" json:"name"`
	Target     string `yaml:"target" json:"target"`
	ScriptDir  string `yaml:"script_dir" json:"script_dir"`
	ScriptExt  string `yaml:"script_ext" json:"script_ext"`
	EventLog   string `yaml:"event_log" json:"event_log"`
	Transcript string `yaml:"transcript" json:"transcript"`
	Database   string `yaml:"database" json:"database"`
	// SyncWrites fsyncs the event log after every record
	SyncWrites bool `yaml:"sync_writes" json:"sync_writes"`

	SetupFields    map[string]string `yaml:"setup_fields" json:"setup_fields"`
	RequiredFields []string          `yaml:"required_fields" json:"required_fields"`

	Timeouts            Timeouts `yaml:"timeouts" json:"timeouts"`
	Markers             Markers  `yaml:"markers" json:"markers"`
	CaptureUITimestamps bool     `yaml:"capture_ui_timestamps" json:"capture_ui_timestamps"`
	MaxConcurrent       int      `yaml:"max_concurrent" json:"max_concurrent"`

	Selectors          uidriver.Selectors      `yaml:"selectors" json:"selectors"`
	Headers            map[string]string       `yaml:"headers" json:"headers"`
	InsecureSkipVerify bool                    `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
	Auth               *uidriver.OAuth2Options `yaml:"auth,omitempty" json:"auth,omitempty"`

	Log LogConfig `yaml:"log" json:"log"`
}

// Default returns a configuration with the standard bounds and markers
func Default() *Config {
	return &Config{
		Name:        "conversation stress test",
		Target:      "ws://localhost:8089/chat",
		ScriptDir:   "scripts",
		ScriptExt:   ".txt",
		EventLog:    "conversations.jsonl",
		SetupFields: map[string]string{},
		Timeouts: Timeouts{
			Setup:        Duration(stresstest.DefaultSetupTimeout),
			Greeting:     Duration(stresstest.DefaultGreetingTimeout),
			Turn:         Duration(stresstest.DefaultTurnTimeout),
			Pacing:       Duration(stresstest.DefaultPacingDelay),
			EmptyBackoff: Duration(stresstest.DefaultEmptyBackoff),
			Poll:         Duration(stresstest.DefaultPollInterval),
		},
		Markers: Markers{
			Intermediate: stresstest.DefaultIntermediateMarker,
			Timeout:      stresstest.DefaultTimeoutMarker,
			StripPrefix:  stresstest.DefaultStripPrefix,
			ClockPattern: stresstest.DefaultClockPattern,
		},
		CaptureUITimestamps: true,
		Selectors:           uidriver.DefaultSelectors(),
		Log:                 LogConfig{Level: "INFO"},
	}
}

// Load reads a YAML or JSON (comments allowed) config file over the defaults
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, .json or .jsonc)", ext)
	}

	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables that are already set
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from CHATSTRESS_* variables. lookup is
// os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvTarget, &c.Target)
	set(EnvScriptDir, &c.ScriptDir)
	set(EnvEventLog, &c.EventLog)
	set(EnvLogLevel, &c.Log.Level)
	set(EnvDatabase, &c.Database)
}

// Validate checks the fields a run cannot do without
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Target) == "" {
		return fmt.Errorf("target is required")
	}
	if strings.TrimSpace(c.ScriptDir) == "" {
		return fmt.Errorf("script directory is required")
	}
	if strings.TrimSpace(c.EventLog) == "" {
		return fmt.Errorf("event log path is required")
	}
	if c.Auth != nil && c.Auth.TokenURL != "" && c.Auth.ClientID == "" {
		return fmt.Errorf("auth: client_id is required with token_url")
	}
	return c.StressConfig().Validate()
}

// StressConfig maps the file configuration onto the conversation engine
func (c *Config) StressConfig() *stresstest.Config {
	fields := make(map[string]string, len(c.SetupFields))
	for k, v := range c.SetupFields {
		fields[k] = v
	}
	return &stresstest.Config{
		Name:                c.Name,
		SetupFields:         fields,
		RequiredFields:      append([]string(nil), c.RequiredFields...),
		SetupTimeout:        time.Duration(c.Timeouts.Setup),
		GreetingTimeout:     time.Duration(c.Timeouts.Greeting),
		TurnTimeout:         time.Duration(c.Timeouts.Turn),
		PacingDelay:         time.Duration(c.Timeouts.Pacing),
		EmptyBackoff:        time.Duration(c.Timeouts.EmptyBackoff),
		PollInterval:        time.Duration(c.Timeouts.Poll),
		IntermediateMarker:  c.Markers.Intermediate,
		TimeoutMarker:       c.Markers.Timeout,
		StripPrefix:         c.Markers.StripPrefix,
		ClockPattern:        c.Markers.ClockPattern,
		CaptureUITimestamps: c.CaptureUITimestamps,
		MaxConcurrent:       c.MaxConcurrent,
	}
}

// DriverOptions builds the WebSocket driver options, including a
// client-credentials token source when auth is configured
func (c *Config) DriverOptions(ctx context.Context) uidriver.WebSocketOptions {
	opts := uidriver.WebSocketOptions{
		URL:                c.Target,
		Headers:            c.Headers,
		Selectors:          c.Selectors,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
	if c.Auth != nil && c.Auth.Enabled() {
		opts.TokenSource = uidriver.ClientCredentialsTokenSource(ctx, *c.Auth)
	}
	return opts
}

// Save writes the configuration as YAML or JSON depending on the extension
func (c *Config) Save(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data, err = json.MarshalIndent(c, "", "  ")
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, FilePermissions); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
