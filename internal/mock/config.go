package mock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// LoadScenario loads a mock scenario from a YAML or JSON (comments allowed) file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &scenario); err != nil {
			return nil, fmt.Errorf("failed to parse YAML scenario: %w", err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &scenario); err != nil {
			return nil, fmt.Errorf("failed to parse JSON scenario: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported scenario file format: %s (use .yaml, .yml, .json or .jsonc)", ext)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario validates the mock scenario
func validateScenario(scenario *Scenario) error {
	if strings.TrimSpace(scenario.Greeting) == "" {
		return fmt.Errorf("greeting is required")
	}
	switch scenario.TimeLabels {
	case TimeLabelNone, TimeLabelField, TimeLabelInline:
	default:
		return fmt.Errorf("timeLabels must be 'field' or 'inline'")
	}

	for i, rule := range scenario.Rules {
		if rule.Match == "" {
			return fmt.Errorf("rule %d: match is required", i)
		}
		switch rule.MatchType {
		case "", MatchExact, MatchPrefix, MatchContains:
		case MatchRegex:
			if _, err := regexp.Compile(rule.Match); err != nil {
				return fmt.Errorf("rule %d: invalid regex: %w", i, err)
			}
		default:
			return fmt.Errorf("rule %d: matchType must be 'exact', 'prefix', 'contains', or 'regex'", i)
		}
		if !rule.Silent && len(rule.Replies) == 0 {
			return fmt.Errorf("rule %d: replies are required unless the rule is silent", i)
		}
		for j, reply := range rule.Replies {
			if reply.Delay < 0 {
				return fmt.Errorf("rule %d reply %d: delay cannot be negative", i, j)
			}
		}
	}

	return nil
}

// SaveScenario saves a mock scenario to a file
func SaveScenario(scenario *Scenario, path string) error {
	var data []byte
	var err error

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(scenario)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
	case ".json", ".jsonc":
		data, err = json.MarshalIndent(scenario, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
	default:
		return fmt.Errorf("unsupported scenario file format: %s (use .yaml, .yml, .json or .jsonc)", ext)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write scenario file: %w", err)
	}

	return nil
}

// DefaultScenario returns a small scenario exercising every reply kind
func DefaultScenario() *Scenario {
	return &Scenario{
		Host:           "localhost",
		Port:           DefaultPort,
		Path:           DefaultPath,
		Greeting:       "Hello! How can I help you today?",
		RequiredFields: []string{"center_id"},
		TimeLabels:     TimeLabelField,
		Logging:        true,
		Rules: []Rule{
			{
				Name:      "slow lookup",
				Match:     "order",
				MatchType: MatchContains,
				Replies: []Reply{
					{Text: "PLEASE WAIT while I look that up", Delay: 300},
					{Text: "", Delay: 200},
					{Text: "Your order shipped yesterday.", Delay: 1500},
				},
			},
			{
				Name:      "no answer",
				Match:     "hang",
				MatchType: MatchPrefix,
				Silent:    true,
			},
		},
		Default: []Reply{{Text: "You said: {input}", Delay: 500}},
	}
}
