package stresstest

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultSetupTimeout    = 15 * time.Second
	DefaultGreetingTimeout = 60 * time.Second
	DefaultTurnTimeout     = 45 * time.Second
	DefaultPacingDelay     = 1 * time.Second
	DefaultEmptyBackoff    = 500 * time.Millisecond
	DefaultPollInterval    = 200 * time.Millisecond

	DefaultIntermediateMarker = "PLEASE WAIT"
	DefaultTimeoutMarker      = "TIMEOUT/ERROR"
	DefaultStripPrefix        = "AI:"
	// DefaultClockPattern matches a rendered clock label such as "3:40:45 PM"
	// trailing the message text
	DefaultClockPattern = `\d{1,2}:\d{2}:\d{2}\s*[AaPp][Mm]\s*$`
)

// Config parameterizes every conversation of a run
type Config struct {
	Name string

	// SetupFields are the values submitted when configuring a session
	SetupFields map[string]string
	// RequiredFields must be present and non-empty in SetupFields
	RequiredFields []string

	SetupTimeout    time.Duration
	GreetingTimeout time.Duration
	TurnTimeout     time.Duration
	PacingDelay     time.Duration
	EmptyBackoff    time.Duration
	PollInterval    time.Duration

	IntermediateMarker string
	TimeoutMarker      string
	StripPrefix        string
	ClockPattern       string

	CaptureUITimestamps bool

	// MaxConcurrent caps how many conversations run at once; 0 runs all
	MaxConcurrent int

	clockRe *regexp.Regexp
}

// DefaultConfig returns a configuration with the standard bounds and markers
func DefaultConfig() *Config {
	return &Config{
		Name:                "conversation stress test",
		SetupFields:         map[string]string{},
		SetupTimeout:        DefaultSetupTimeout,
		GreetingTimeout:     DefaultGreetingTimeout,
		TurnTimeout:         DefaultTurnTimeout,
		PacingDelay:         DefaultPacingDelay,
		EmptyBackoff:        DefaultEmptyBackoff,
		PollInterval:        DefaultPollInterval,
		IntermediateMarker:  DefaultIntermediateMarker,
		TimeoutMarker:       DefaultTimeoutMarker,
		StripPrefix:         DefaultStripPrefix,
		ClockPattern:        DefaultClockPattern,
		CaptureUITimestamps: true,
	}
}

// Validate checks the configuration and compiles the clock pattern
func (c *Config) Validate() error {
	for _, field := range c.RequiredFields {
		if strings.TrimSpace(c.SetupFields[field]) == "" {
			return fmt.Errorf("required setup field %q has no value", field)
		}
	}
	bounds := []struct {
		name  string
		value time.Duration
	}{
		{"setup timeout", c.SetupTimeout},
		{"greeting timeout", c.GreetingTimeout},
		{"turn timeout", c.TurnTimeout},
		{"poll interval", c.PollInterval},
	}
	for _, b := range bounds {
		if b.value <= 0 {
			return fmt.Errorf("%s must be greater than 0", b.name)
		}
	}
	if c.PacingDelay < 0 {
		return fmt.Errorf("pacing delay cannot be negative")
	}
	if c.EmptyBackoff < 0 {
		return fmt.Errorf("empty-message backoff cannot be negative")
	}
	if strings.TrimSpace(c.IntermediateMarker) == "" {
		return fmt.Errorf("intermediate marker is required")
	}
	if c.TimeoutMarker == "" {
		return fmt.Errorf("timeout marker is required")
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max concurrent cannot be negative")
	}

	c.clockRe = nil
	if c.ClockPattern != "" {
		re, err := regexp.Compile(c.ClockPattern)
		if err != nil {
			return fmt.Errorf("invalid clock pattern: %w", err)
		}
		c.clockRe = re
	}
	return nil
}

// CleanText strips the interface's presentation decoration from a message:
// the role prefix and a trailing clock label. The label is returned
// separately so it can be recorded as the message's UI timestamp.
func (c *Config) CleanText(raw string) (text, clock string) {
	text = strings.TrimSpace(raw)
	if c.StripPrefix != "" && strings.HasPrefix(text, c.StripPrefix) {
		text = strings.TrimSpace(text[len(c.StripPrefix):])
	}
	if c.clockRe != nil {
		if loc := c.clockRe.FindStringIndex(text); loc != nil {
			clock = strings.TrimSpace(text[loc[0]:])
			text = strings.TrimSpace(text[:loc[0]])
		}
	}
	return text, clock
}

// IsIntermediate reports whether text is a "please wait"-class message
func (c *Config) IsIntermediate(text string) bool {
	return strings.Contains(text, c.IntermediateMarker)
}
