package uidriver

import (
	"context"
	"errors"
)

// ErrMessageIndex is returned when reading a message that has not arrived
var ErrMessageIndex = errors.New("message index out of range")

// Message is one AI-originated message as rendered by the interface
type Message struct {
	Text string
	// UITimestamp is the time label the interface rendered next to the
	// message, empty when the interface shows none.
	UITimestamp string
}

// Surface is the interaction surface of a single conversation.
// A Surface is used by exactly one goroutine.
type Surface interface {
	// Setup configures and submits a new session. It returns once the
	// interface accepted the configuration or ctx is done.
	Setup(ctx context.Context, fields map[string]string) error
	// Submit sends one user message
	Submit(ctx context.Context, text string) error
	// AIMessageCount returns how many AI-originated messages have arrived
	AIMessageCount(ctx context.Context) (int, error)
	// AIMessage returns the AI message at index in arrival order
	AIMessage(ctx context.Context, index int) (Message, error)
	// LastUserTimestamp returns the time label rendered for the most recent
	// user message, empty if none
	LastUserTimestamp(ctx context.Context) (string, error)
	// ConversationID returns the identifier the remote interface assigned,
	// empty when it is not available
	ConversationID(ctx context.Context) (string, error)
}

// Browser is the shared automation context from which isolated surfaces
// are opened
type Browser interface {
	NewSurface(ctx context.Context) (Surface, error)
	Close() error
}
