package stresstest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/studiowebux/chatstress/internal/eventlog"
	"github.com/studiowebux/chatstress/internal/script"
	"github.com/studiowebux/chatstress/internal/uidriver"
)

// Run status values
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// IDCollision records two scripts that ended up with the same conversation id
type IDCollision struct {
	ID           string
	FirstScript  string
	FirstSource  eventlog.IDSource
	SecondScript string
	SecondSource eventlog.IDSource
}

// Summary is the advisory aggregate of a run
type Summary struct {
	RunID       string
	Name        string
	StartedAt   time.Time
	CompletedAt time.Time
	Completed   int
	Failed      int
	Sessions    []*Session
	Stats       *Stats
	Collisions  []IDCollision
}

// Status condenses the completed/failed counts into one word
func (s *Summary) Status() string {
	switch {
	case s.Failed == 0:
		return StatusCompleted
	case s.Completed == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Duration returns the wall-clock length of the run
func (s *Summary) Duration() time.Duration {
	return s.CompletedAt.Sub(s.StartedAt)
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithLogger sets the narration logger
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithProgress registers a progress callback. Calls are serialized.
func WithProgress(fn func(Progress)) ExecutorOption {
	return func(e *Executor) { e.onProgress = fn }
}

// WithClock overrides the time source (tests)
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// Executor runs one conversation per script concurrently against a shared
// browser. Conversations share nothing but the event log; a failure in one
// never cancels another.
type Executor struct {
	config  *Config
	browser uidriver.Browser
	events  Appender
	logger  *slog.Logger
	now     func() time.Time

	onProgress func(Progress)
	progressMu sync.Mutex

	idMu       sync.Mutex
	claims     map[string]claim
	collisions []IDCollision
}

type claim struct {
	scriptID string
	source   eventlog.IDSource
}

// NewExecutor validates config and creates an executor
func NewExecutor(config *Config, browser uidriver.Browser, events Appender, opts ...ExecutorOption) (*Executor, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if browser == nil {
		return nil, fmt.Errorf("browser is required")
	}
	if events == nil {
		return nil, fmt.Errorf("event log is required")
	}

	e := &Executor{
		config:  config,
		browser: browser,
		events:  events,
		logger:  slog.Default(),
		now:     time.Now,
		claims:  make(map[string]claim),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes every script and waits until all conversations are terminal
func (e *Executor) Run(ctx context.Context, scripts []*script.Script) *Summary {
	summary := &Summary{
		RunID:     uuid.NewString(),
		Name:      e.config.Name,
		StartedAt: e.now(),
		Stats:     NewStats(),
	}
	e.logger.Info("starting conversations", "run", summary.RunID, "count", len(scripts), "max_concurrent", e.config.MaxConcurrent)

	sessions := make([]*Session, len(scripts))
	var g errgroup.Group
	if e.config.MaxConcurrent > 0 {
		g.SetLimit(e.config.MaxConcurrent)
	}
	for i, s := range scripts {
		g.Go(func() error {
			sessions[i] = e.runOne(ctx, s)
			return nil
		})
	}
	g.Wait()

	summary.CompletedAt = e.now()
	summary.Sessions = sessions
	for _, sess := range sessions {
		if sess.State == SessionCompleted {
			summary.Completed++
		} else {
			summary.Failed++
		}
		summary.Stats.AddSession(sess)
	}
	e.idMu.Lock()
	summary.Collisions = append([]IDCollision(nil), e.collisions...)
	e.idMu.Unlock()

	e.logger.Info("all conversations finished",
		"run", summary.RunID,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"duration", summary.Duration().Round(time.Millisecond))
	return summary
}

// runOne drives a single script, converting a panic into a failed session
func (e *Executor) runOne(ctx context.Context, s *script.Script) (sess *Session) {
	conv := NewConversation(s, e.browser, e.events, e.config, e.logger)
	conv.now = e.now
	conv.onProgress = e.progress
	conv.claimID = e.claimID

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("conversation panicked: %v", r)
			e.logger.Error("conversation panicked", "script", s.ID, "error", err)
			if sess == nil {
				sess = &Session{ScriptID: s.ID, TotalTurns: s.Len(), CreatedAt: e.now()}
			}
			sess.State = SessionFailed
			sess.Err = err
			sess.FinishedAt = e.now()
		}
	}()
	return conv.Run(ctx)
}

func (e *Executor) progress(p Progress) {
	if e.onProgress == nil {
		return
	}
	e.progressMu.Lock()
	defer e.progressMu.Unlock()
	e.onProgress(p)
}

// claimID registers a conversation id. Identifiers from the interface and
// script-derived fallbacks are distinct namespaces; a clash is reported but
// never merged or rewritten.
func (e *Executor) claimID(id string, source eventlog.IDSource, scriptID string) {
	e.idMu.Lock()
	defer e.idMu.Unlock()
	prev, ok := e.claims[id]
	if !ok {
		e.claims[id] = claim{scriptID: scriptID, source: source}
		return
	}
	e.collisions = append(e.collisions, IDCollision{
		ID:           id,
		FirstScript:  prev.scriptID,
		FirstSource:  prev.source,
		SecondScript: scriptID,
		SecondSource: source,
	})
	e.logger.Warn("conversation id collision, events of both scripts share one id",
		"conversation", id,
		"first_script", prev.scriptID,
		"first_source", prev.source,
		"second_script", scriptID,
		"second_source", source)
}
