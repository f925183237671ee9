package uidriver

import (
	"fmt"
	"strconv"

	"github.com/jmespath/go-jmespath"
)

// Selectors locate message attributes inside a server frame using JMESPath
type Selectors struct {
	Role           string `yaml:"role" json:"role"`
	Text           string `yaml:"text" json:"text"`
	Time           string `yaml:"time" json:"time"`
	ConversationID string `yaml:"conversation_id" json:"conversation_id"`
	// AIRole is the role value that marks a message as AI-originated
	AIRole string `yaml:"ai_role" json:"ai_role"`
	// UserRole is the role value of echoed user messages
	UserRole string `yaml:"user_role" json:"user_role"`
}

// DefaultSelectors matches the frames produced by the bundled mock server
func DefaultSelectors() Selectors {
	return Selectors{
		Role:           "role",
		Text:           "text",
		Time:           "time",
		ConversationID: "conversation_id",
		AIRole:         "bot",
		UserRole:       "user",
	}
}

type compiledSelectors struct {
	role     *jmespath.JMESPath
	text     *jmespath.JMESPath
	time     *jmespath.JMESPath
	convID   *jmespath.JMESPath
	aiRole   string
	userRole string
}

func compileSelectors(s Selectors) (*compiledSelectors, error) {
	def := DefaultSelectors()
	pick := func(v, fallback string) string {
		if v == "" {
			return fallback
		}
		return v
	}

	c := &compiledSelectors{
		aiRole:   pick(s.AIRole, def.AIRole),
		userRole: pick(s.UserRole, def.UserRole),
	}
	exprs := []struct {
		name string
		expr string
		dst  **jmespath.JMESPath
	}{
		{"role", pick(s.Role, def.Role), &c.role},
		{"text", pick(s.Text, def.Text), &c.text},
		{"time", pick(s.Time, def.Time), &c.time},
		{"conversation_id", pick(s.ConversationID, def.ConversationID), &c.convID},
	}
	for _, e := range exprs {
		jp, err := jmespath.Compile(e.expr)
		if err != nil {
			return nil, fmt.Errorf("invalid JMESPath selector for %s '%s': %w", e.name, e.expr, err)
		}
		*e.dst = jp
	}
	return c, nil
}

// lookup evaluates jp against a decoded frame and renders the result as text
func lookup(jp *jmespath.JMESPath, frame any) string {
	result, err := jp.Search(frame)
	if err != nil || result == nil {
		return ""
	}
	switch v := result.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
