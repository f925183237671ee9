package config

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/studiowebux/chatstress/internal/uidriver"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), FilePermissions); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	path := writeFile(t, "chatstress.yaml", `
target: wss://chat.example.com/ws
script_dir: ./inputs
setup_fields:
  center_id: "204"
  contact: "5551234"
required_fields: [center_id]
timeouts:
  turn: 30s
  pacing: 2
markers:
  intermediate: "ONE MOMENT"
selectors:
  text: payload.body
max_concurrent: 4
auth:
  token_url: https://auth.example.com/token
  client_id: stress
  client_secret: secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Target != "wss://chat.example.com/ws" || cfg.ScriptDir != "./inputs" {
		t.Errorf("Unexpected target/script dir: %s %s", cfg.Target, cfg.ScriptDir)
	}
	if cfg.EventLog != "conversations.jsonl" {
		t.Errorf("Unset fields should keep defaults, got event log %q", cfg.EventLog)
	}
	if time.Duration(cfg.Timeouts.Turn) != 30*time.Second {
		t.Errorf("Expected 30s turn timeout, got %v", time.Duration(cfg.Timeouts.Turn))
	}
	if time.Duration(cfg.Timeouts.Pacing) != 2*time.Second {
		t.Errorf("Plain numbers are seconds, got %v", time.Duration(cfg.Timeouts.Pacing))
	}
	if time.Duration(cfg.Timeouts.Greeting) != 60*time.Second {
		t.Errorf("Expected default greeting timeout, got %v", time.Duration(cfg.Timeouts.Greeting))
	}
	if cfg.Markers.Intermediate != "ONE MOMENT" || cfg.Markers.Timeout != "TIMEOUT/ERROR" {
		t.Errorf("Unexpected markers: %+v", cfg.Markers)
	}
	if cfg.Selectors.Text != "payload.body" || cfg.Selectors.Role != "role" {
		t.Errorf("Selectors should merge over defaults: %+v", cfg.Selectors)
	}
	if cfg.Auth == nil || !cfg.Auth.Enabled() {
		t.Errorf("Expected auth to be enabled: %+v", cfg.Auth)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoad_JSONC(t *testing.T) {
	path := writeFile(t, "chatstress.jsonc", `{
  // local rehearsal against the mock
  "target": "ws://localhost:9000/chat",
  "timeouts": {"turn": "5s", "poll": 0.05},
  "capture_ui_timestamps": false,
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Target != "ws://localhost:9000/chat" {
		t.Errorf("Unexpected target %q", cfg.Target)
	}
	if time.Duration(cfg.Timeouts.Turn) != 5*time.Second || time.Duration(cfg.Timeouts.Poll) != 50*time.Millisecond {
		t.Errorf("Unexpected timeouts %+v", cfg.Timeouts)
	}
	if cfg.CaptureUITimestamps {
		t.Error("Expected UI timestamp capture to be disabled")
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(writeFile(t, "c.toml", "x = 1")); err == nil {
		t.Error("Expected error for unsupported extension")
	}
	if _, err := Load(writeFile(t, "c.yaml", "timeouts:\n  turn: soon\n")); err == nil {
		t.Error("Expected error for invalid duration")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvTarget:   "ws://override/chat",
		EnvEventLog: "/tmp/run.jsonl",
		EnvLogLevel: "debug",
		EnvDatabase: "",
	}
	cfg := Default()
	cfg.Database = "keep.db"
	cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	if cfg.Target != "ws://override/chat" || cfg.EventLog != "/tmp/run.jsonl" {
		t.Errorf("Env overrides not applied: %+v", cfg)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level override, got %q", cfg.Log.Level)
	}
	if cfg.Database != "keep.db" {
		t.Errorf("Empty env values must not override, got %q", cfg.Database)
	}
	if cfg.ScriptDir != "scripts" {
		t.Errorf("Unset env must not override, got %q", cfg.ScriptDir)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "CHATSTRESS_TEST_ONLY_VALUE=from-file\n")
	t.Setenv("CHATSTRESS_TEST_ONLY_VALUE", "")
	os.Unsetenv("CHATSTRESS_TEST_ONLY_VALUE")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}
	if got := os.Getenv("CHATSTRESS_TEST_ONLY_VALUE"); got != "from-file" {
		t.Errorf("Expected value from env file, got %q", got)
	}
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("Expected error for missing env file")
	}
	if err := LoadEnvFile(""); err != nil {
		t.Errorf("Empty path should be a no-op, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty target", func(c *Config) { c.Target = "" }},
		{"empty script dir", func(c *Config) { c.ScriptDir = " " }},
		{"empty event log", func(c *Config) { c.EventLog = "" }},
		{"zero turn timeout", func(c *Config) { c.Timeouts.Turn = 0 }},
		{"empty intermediate marker", func(c *Config) { c.Markers.Intermediate = "" }},
		{"negative concurrency", func(c *Config) { c.MaxConcurrent = -2 }},
		{"missing required field", func(c *Config) { c.RequiredFields = []string{"center_id"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestStressConfig(t *testing.T) {
	c := Default()
	c.SetupFields["center_id"] = "204"
	c.RequiredFields = []string{"center_id"}
	c.Timeouts.Turn = Duration(10 * time.Second)
	c.MaxConcurrent = 3

	sc := c.StressConfig()
	if sc.TurnTimeout != 10*time.Second || sc.MaxConcurrent != 3 {
		t.Errorf("Unexpected stress config: %+v", sc)
	}
	if sc.SetupFields["center_id"] != "204" {
		t.Errorf("Setup fields not copied: %v", sc.SetupFields)
	}
	sc.SetupFields["center_id"] = "changed"
	if c.SetupFields["center_id"] != "204" {
		t.Error("Stress config must not alias the file config's map")
	}
	if err := sc.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestDriverOptions(t *testing.T) {
	c := Default()
	c.Headers = map[string]string{"X-Test": "1"}
	opts := c.DriverOptions(context.Background())
	if opts.URL != c.Target || opts.Headers["X-Test"] != "1" {
		t.Errorf("Unexpected driver options: %+v", opts)
	}
	if opts.TokenSource != nil {
		t.Error("No token source expected without auth")
	}

	c.Auth = &uidriverAuth
	if c.DriverOptions(context.Background()).TokenSource == nil {
		t.Error("Expected a token source when auth is configured")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.json"} {
		path := filepath.Join(t.TempDir(), name)
		c := Default()
		c.Timeouts.Turn = Duration(12 * time.Second)
		if err := c.Save(path); err != nil {
			t.Fatalf("Save(%s) failed: %v", name, err)
		}
		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) failed: %v", name, err)
		}
		if time.Duration(loaded.Timeouts.Turn) != 12*time.Second {
			t.Errorf("%s: turn timeout changed to %v", name, time.Duration(loaded.Timeouts.Turn))
		}
	}
}

func TestDuration_JSON(t *testing.T) {
	data, err := json.Marshal(Duration(1500 * time.Millisecond))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `"1.5s"` {
		t.Errorf("Expected \"1.5s\", got %s", data)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Warn("identity degraded", "conversation", "script1")

	if strings.Contains(stderr.String(), "hidden") || strings.Contains(file.String(), "hidden") {
		t.Error("Debug records should be filtered at INFO")
	}
	if !strings.Contains(stderr.String(), "conversation=script1") {
		t.Errorf("Expected text output on stderr, got %q", stderr.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(file.Bytes(), &rec); err != nil {
		t.Fatalf("Expected JSON in the file handler: %v", err)
	}
	if rec["msg"] != "identity degraded" || rec["conversation"] != "script1" {
		t.Errorf("Unexpected JSON record %v", rec)
	}
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chatstress.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("hello")
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("Unexpected log content %q", data)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitializeIn(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".chatstress")
	if err := initializeIn(dir); err != nil {
		t.Fatalf("initializeIn failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Expected config dir to exist: %v", err)
	}
	if DatabasePath != filepath.Join(dir, "chatstress.db") {
		t.Errorf("Unexpected database path %q", DatabasePath)
	}
}

var uidriverAuth = uidriver.OAuth2Options{
	TokenURL:     "https://auth.example.com/token",
	ClientID:     "stress",
	ClientSecret: "secret",
}
