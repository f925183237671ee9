package stresstest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/studiowebux/chatstress/internal/eventlog"
	"github.com/studiowebux/chatstress/internal/uidriver"
)

// fakeSurface is an in-memory chat surface. reply decides what happens
// after each submitted message.
type fakeSurface struct {
	mu        sync.Mutex
	ai        []uidriver.Message
	submitted []string
	lastUser  string

	greeting string
	convID   string
	setupErr error
	reply    func(s *fakeSurface, text string)
}

func (s *fakeSurface) push(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ai = append(s.ai, uidriver.Message{Text: text})
}

// pushLater appends text after d on a separate goroutine
func (s *fakeSurface) pushLater(d time.Duration, text string) {
	go func() {
		time.Sleep(d)
		s.push(text)
	}()
}

func (s *fakeSurface) Setup(ctx context.Context, fields map[string]string) error {
	if s.setupErr != nil {
		return s.setupErr
	}
	if s.greeting != "" {
		s.push(s.greeting)
	}
	return nil
}

func (s *fakeSurface) Submit(ctx context.Context, text string) error {
	s.mu.Lock()
	s.submitted = append(s.submitted, text)
	s.lastUser = "10:00:00 AM"
	s.mu.Unlock()
	if s.reply != nil {
		s.reply(s, text)
	}
	return nil
}

func (s *fakeSurface) AIMessageCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ai), nil
}

func (s *fakeSurface) AIMessage(ctx context.Context, index int) (uidriver.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.ai) {
		return uidriver.Message{}, fmt.Errorf("%w: %d", uidriver.ErrMessageIndex, index)
	}
	return s.ai[index], nil
}

func (s *fakeSurface) LastUserTimestamp(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUser, nil
}

func (s *fakeSurface) ConversationID(ctx context.Context) (string, error) {
	return s.convID, nil
}

// fakeBrowser hands out surfaces built by factory
type fakeBrowser struct {
	mu       sync.Mutex
	opened   int
	factory  func(n int) *fakeSurface
	surfaces []*fakeSurface
}

func (b *fakeBrowser) NewSurface(ctx context.Context) (uidriver.Surface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened++
	s := b.factory(b.opened)
	if s == nil {
		return nil, errors.New("browser refused to open a surface")
	}
	b.surfaces = append(b.surfaces, s)
	return s, nil
}

func (b *fakeBrowser) Close() error { return nil }

// memLog collects appended events
type memLog struct {
	mu     sync.Mutex
	events []eventlog.Event
}

func (m *memLog) Append(ev eventlog.Event) error {
	if err := eventlog.Validate(ev); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memLog) forConversation(id string) []eventlog.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []eventlog.Event
	for _, ev := range m.events {
		if ev.ConversationID == id {
			out = append(out, ev)
		}
	}
	return out
}

func echo(s *fakeSurface, text string) {
	s.push("AI: echo " + text + " 3:40:45 PM")
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SetupTimeout = 200 * time.Millisecond
	cfg.GreetingTimeout = 200 * time.Millisecond
	cfg.TurnTimeout = 300 * time.Millisecond
	cfg.PacingDelay = 0
	cfg.EmptyBackoff = 5 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Failed to validate test config: %v", err)
	}
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
