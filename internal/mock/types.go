package mock

import "time"

// Match types for reply rules
const (
	MatchExact    = "exact"
	MatchPrefix   = "prefix"
	MatchContains = "contains"
	MatchRegex    = "regex"
)

// Time label modes
const (
	TimeLabelNone   = ""
	TimeLabelField  = "field"  // sent in the frame's time field
	TimeLabelInline = "inline" // appended to the message text
)

// Scenario describes how the mock chat interface behaves
type Scenario struct {
	Host string `json:"host" yaml:"host"` // Server host (default: localhost)
	Port int    `json:"port" yaml:"port"` // Server port (0 picks a free port)
	Path string `json:"path" yaml:"path"` // WebSocket endpoint (default: /chat)

	Greeting       string   `json:"greeting" yaml:"greeting"`
	RequiredFields []string `json:"requiredFields,omitempty" yaml:"requiredFields,omitempty"`
	// NoConversationID withholds the conversation id, forcing clients onto a fallback identity
	NoConversationID bool   `json:"noConversationId,omitempty" yaml:"noConversationId,omitempty"`
	TimeLabels       string `json:"timeLabels,omitempty" yaml:"timeLabels,omitempty"`

	Rules   []Rule  `json:"rules" yaml:"rules"`
	Default []Reply `json:"default,omitempty" yaml:"default,omitempty"` // Used when no rule matches
	Logging bool    `json:"logging" yaml:"logging"`
}

// Rule answers user messages that match it
type Rule struct {
	Name        string  `json:"name,omitempty" yaml:"name,omitempty"`
	Match       string  `json:"match" yaml:"match"`
	MatchType   string  `json:"matchType,omitempty" yaml:"matchType,omitempty"` // exact, prefix, contains, regex (default: contains)
	Replies     []Reply `json:"replies,omitempty" yaml:"replies,omitempty"`
	Silent      bool    `json:"silent,omitempty" yaml:"silent,omitempty"` // Never answer
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Reply is one bot message. {input} in Text is replaced by the user message.
type Reply struct {
	Text  string `json:"text" yaml:"text"`
	Delay int    `json:"delay,omitempty" yaml:"delay,omitempty"` // Milliseconds after the previous reply
}

// Exchange is one logged message through the mock
type Exchange struct {
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversationId"`
	Direction      string    `json:"direction"` // in or out
	Text           string    `json:"text"`
	MatchedRule    string    `json:"matchedRule,omitempty"`
}
