package stresstest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/studiowebux/chatstress/internal/eventlog"
	"github.com/studiowebux/chatstress/internal/script"
	"github.com/studiowebux/chatstress/internal/uidriver"
)

var (
	// ErrSetupFailed marks a conversation whose session could not be configured
	ErrSetupFailed = errors.New("session setup failed")
	// ErrGreetingTimeout marks a conversation that never received its greeting
	ErrGreetingTimeout = errors.New("timed out waiting for greeting")
)

// Appender is the write side of the event log
type Appender interface {
	Append(ev eventlog.Event) error
}

// SessionState is the terminal state of a conversation
type SessionState string

const (
	SessionRunning   SessionState = "running"
	SessionCompleted SessionState = "completed"
	SessionFailed    SessionState = "failed"
)

// Session is one running instance of a script against the interface
type Session struct {
	ScriptID       string
	ConversationID string
	IDSource       eventlog.IDSource
	// IdentityDegraded is set when the interface did not report an id and
	// the script id was used instead
	IdentityDegraded bool
	CreatedAt        time.Time
	FinishedAt       time.Time
	TotalTurns       int
	TurnsCompleted   int
	Timeouts         int
	Intermediates    int
	Turns            []TurnSummary
	State            SessionState
	Err              error

	// surface stays open after the run for operator inspection
	surface uidriver.Surface
}

// TurnSummary is the per-turn outcome kept on a session for statistics
type TurnSummary struct {
	Index         int
	Latency       time.Duration
	Outcome       eventlog.Outcome
	Intermediates int
}

// Label returns the best identifier for narration
func (s *Session) Label() string {
	if s.ConversationID != "" {
		return s.ConversationID
	}
	return s.ScriptID
}

// Conversation drives one script through its full lifecycle
type Conversation struct {
	script  *script.Script
	turns   []string
	browser uidriver.Browser
	events  Appender
	cfg     *Config
	logger  *slog.Logger
	now     func() time.Time

	onProgress func(Progress)
	claimID    func(id string, source eventlog.IDSource, scriptID string)

	mu     sync.Mutex
	lastTS time.Time
}

// NewConversation creates a driver for s. cfg must already be validated.
func NewConversation(s *script.Script, browser uidriver.Browser, events Appender, cfg *Config, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{
		script:  s,
		turns:   s.Turns(),
		browser: browser,
		events:  events,
		cfg:     cfg,
		logger:  logger.With("script", s.ID),
		now:     time.Now,
	}
}

// stamp returns a capture timestamp that never goes backwards for this
// conversation, even if the wall clock does
func (c *Conversation) stamp() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC()
	if t.Before(c.lastTS) {
		t = c.lastTS
	}
	c.lastTS = t
	return eventlog.FormatTimestamp(t)
}

func (c *Conversation) progress(p Progress) {
	if c.onProgress != nil {
		p.ScriptID = c.script.ID
		c.onProgress(p)
	}
}

func (c *Conversation) fail(sess *Session, err error) *Session {
	sess.State = SessionFailed
	sess.Err = err
	sess.FinishedAt = c.now()
	logger := c.logger
	if sess.ConversationID == "" {
		logger = logger.With("conversation", sess.Label())
	}
	logger.Error("conversation failed",
		"turns_completed", sess.TurnsCompleted,
		"error", err)
	c.progress(Progress{Kind: ProgressFailed, ConversationID: sess.ConversationID, TurnIndex: sess.TurnsCompleted, TotalTurns: sess.TotalTurns, Err: err})
	return sess
}

// Run executes the conversation and returns its terminal session. Errors
// are contained in the returned session; Run never panics on a surface
// failure and never closes the surface.
func (c *Conversation) Run(ctx context.Context) *Session {
	sess := &Session{
		ScriptID:   c.script.ID,
		CreatedAt:  c.now(),
		TotalTurns: c.script.Len(),
		State:      SessionRunning,
	}
	c.logger.Info("starting conversation", "turns", sess.TotalTurns)
	c.progress(Progress{Kind: ProgressStarted, TotalTurns: sess.TotalTurns})

	surface, err := c.browser.NewSurface(ctx)
	if err != nil {
		return c.fail(sess, fmt.Errorf("%w: %v", ErrSetupFailed, err))
	}
	sess.surface = surface

	setupCtx, cancel := context.WithTimeout(ctx, c.cfg.SetupTimeout)
	err = surface.Setup(setupCtx, c.cfg.SetupFields)
	cancel()
	if err != nil {
		return c.fail(sess, fmt.Errorf("%w: %v", ErrSetupFailed, err))
	}
	c.logger.Info("chat interface loaded")

	if err := c.greet(ctx, sess); err != nil {
		return c.fail(sess, err)
	}

	waiter := NewWaiter(surface, c.cfg)
	waiter.now = c.now
	waiter.OnIntermediate = func(im Intermediate) error {
		return c.recordIntermediate(sess, im)
	}
	waiter.OnTransition = func(turn int, from, to TurnState) {
		if to == StateEmptyRetry {
			c.logger.Debug("blank message, waiting for next", "turn", turn)
		}
	}

	for i, text := range c.turns {
		if err := ctx.Err(); err != nil {
			return c.fail(sess, fmt.Errorf("cancelled before turn %d: %w", i, err))
		}
		c.logger.Info("sending", "turn", i, "message", text)

		result, err := waiter.RunTurn(ctx, i, text)
		if err != nil {
			return c.fail(sess, fmt.Errorf("turn %d: %w", i, err))
		}
		if err := c.recordTurn(sess, result); err != nil {
			return c.fail(sess, err)
		}

		if i < sess.TotalTurns-1 {
			if err := sleepContext(ctx, c.cfg.PacingDelay); err != nil {
				return c.fail(sess, fmt.Errorf("cancelled after turn %d: %w", i, err))
			}
		}
	}

	sess.State = SessionCompleted
	sess.FinishedAt = c.now()
	c.logger.Info("conversation complete, surface left open for inspection",
		"turns", sess.TurnsCompleted,
		"timeouts", sess.Timeouts)
	c.progress(Progress{Kind: ProgressCompleted, ConversationID: sess.ConversationID, TurnIndex: sess.TurnsCompleted, TotalTurns: sess.TotalTurns})
	return sess
}

// greet waits for the first AI message, resolves the conversation id and
// records the greeting event
func (c *Conversation) greet(ctx context.Context, sess *Session) error {
	c.logger.Info("waiting for initial greeting")
	count, arrived, err := awaitMessages(ctx, sess.surface, 0, c.cfg.GreetingTimeout, c.cfg.PollInterval)
	if err != nil {
		return fmt.Errorf("waiting for greeting: %w", err)
	}
	if !arrived {
		return fmt.Errorf("%w after %s", ErrGreetingTimeout, c.cfg.GreetingTimeout)
	}

	id, err := sess.surface.ConversationID(ctx)
	if err != nil || id == "" {
		sess.ConversationID = c.script.ID
		sess.IDSource = eventlog.IDSourceFile
		sess.IdentityDegraded = true
		c.logger.Warn("conversation id unavailable, using script id; server-side correlation is lost",
			"conversation", sess.ConversationID, "error", err)
	} else {
		sess.ConversationID = id
		sess.IDSource = eventlog.IDSourceUI
		c.logger.Info("captured conversation id", "conversation", id)
	}
	c.logger = c.logger.With("conversation", sess.ConversationID)
	if c.claimID != nil {
		c.claimID(sess.ConversationID, sess.IDSource, c.script.ID)
	}

	msg, err := sess.surface.AIMessage(ctx, count-1)
	if err != nil {
		return fmt.Errorf("reading greeting: %w", err)
	}
	text, clock := c.cfg.CleanText(msg.Text)
	uiTime := msg.UITimestamp
	if uiTime == "" {
		uiTime = clock
	}
	if !c.cfg.CaptureUITimestamps {
		uiTime = ""
	}

	ev := eventlog.Event{
		ConversationID: sess.ConversationID,
		Timestamp:      c.stamp(),
		AIResponse:     text,
		AIUITimestamp:  eventlog.Optional(uiTime),
		LatencyMs:      0,
		Kind:           eventlog.KindGreeting,
		IDSource:       sess.IDSource,
	}
	if err := c.events.Append(ev); err != nil {
		return fmt.Errorf("recording greeting: %w", err)
	}
	c.logger.Info("initial greeting received")
	c.progress(Progress{Kind: ProgressGreeting, ConversationID: sess.ConversationID, TotalTurns: sess.TotalTurns})
	return nil
}

func (c *Conversation) recordIntermediate(sess *Session, im Intermediate) error {
	ev := eventlog.Event{
		ConversationID: sess.ConversationID,
		Timestamp:      c.stamp(),
		AIResponse:     im.Text,
		LatencyMs:      eventlog.LatencyMs(im.Elapsed),
		Kind:           eventlog.KindIntermediate,
		TurnIndex:      intPtr(im.TurnIndex),
		IDSource:       sess.IDSource,
	}
	if im.First {
		user := c.turns[im.TurnIndex]
		ev.UserMessage = &user
	}
	if c.cfg.CaptureUITimestamps {
		ev.AIUITimestamp = eventlog.Optional(im.UITimestamp)
	}
	if err := c.events.Append(ev); err != nil {
		return fmt.Errorf("recording intermediate response: %w", err)
	}
	sess.Intermediates++
	c.logger.Info("interim response, waiting for next message", "turn", im.TurnIndex, "elapsed_ms", ev.LatencyMs)
	c.progress(Progress{Kind: ProgressIntermediate, ConversationID: sess.ConversationID, TurnIndex: im.TurnIndex, TotalTurns: sess.TotalTurns, Latency: im.Elapsed})
	return nil
}

func (c *Conversation) recordTurn(sess *Session, r *TurnResult) error {
	user := r.UserMessage
	ev := eventlog.Event{
		ConversationID:  sess.ConversationID,
		Timestamp:       c.stamp(),
		UserMessage:     &user,
		UserUITimestamp: eventlog.Optional(r.UserUITimestamp),
		AIResponse:      r.Response,
		AIUITimestamp:   eventlog.Optional(r.AIUITimestamp),
		LatencyMs:       eventlog.LatencyMs(r.Latency),
		Kind:            eventlog.KindTurn,
		TurnIndex:       intPtr(r.Index),
		Outcome:         r.Outcome,
		IDSource:        sess.IDSource,
	}
	if err := c.events.Append(ev); err != nil {
		return fmt.Errorf("recording turn %d: %w", r.Index, err)
	}

	sess.TurnsCompleted++
	sess.Turns = append(sess.Turns, TurnSummary{
		Index:         r.Index,
		Latency:       r.Latency,
		Outcome:       r.Outcome,
		Intermediates: r.Intermediates,
	})
	if r.Outcome == eventlog.OutcomeTimeout {
		sess.Timeouts++
		c.logger.Warn("timed out waiting for response", "turn", r.Index, "message", r.UserMessage, "bound", c.cfg.TurnTimeout)
	} else {
		c.logger.Info("received", "turn", r.Index, "response", preview(r.Response, 50), "latency_ms", ev.LatencyMs)
	}
	c.progress(Progress{Kind: ProgressTurn, ConversationID: sess.ConversationID, TurnIndex: r.Index, TotalTurns: sess.TotalTurns, Latency: r.Latency, Outcome: r.Outcome})
	return nil
}

func intPtr(v int) *int {
	return &v
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
