package stresstest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/studiowebux/chatstress/internal/eventlog"
	"github.com/studiowebux/chatstress/internal/uidriver"
)

// TurnState is a state of the response-wait state machine
type TurnState int

const (
	StateSent TurnState = iota
	StateAwaitingMessage
	StateEmptyRetry
	StateIntermediateRetry
	StateResolved
	StateTimedOut
)

func (s TurnState) String() string {
	switch s {
	case StateSent:
		return "SENT"
	case StateAwaitingMessage:
		return "AWAITING_MESSAGE"
	case StateEmptyRetry:
		return "EMPTY_RETRY"
	case StateIntermediateRetry:
		return "INTERMEDIATE_RETRY"
	case StateResolved:
		return "RESOLVED"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return fmt.Sprintf("TurnState(%d)", int(s))
	}
}

// Intermediate is an interim message received while awaiting a turn's answer
type Intermediate struct {
	TurnIndex   int
	Text        string
	UITimestamp string
	// Elapsed is measured from the original send, not from the previous retry
	Elapsed time.Duration
	// First is true only for the first intermediate of a turn
	First bool
}

// TurnResult is the resolution of one user turn
type TurnResult struct {
	Index           int
	UserMessage     string
	UserUITimestamp string
	Response        string
	AIUITimestamp   string
	Latency         time.Duration
	Outcome         eventlog.Outcome
	Intermediates   int
	EmptyRetries    int
}

// Waiter runs the response-wait protocol for one surface.
// It is not safe for concurrent use; each conversation owns its own.
type Waiter struct {
	surface uidriver.Surface
	cfg     *Config
	now     func() time.Time

	// OnIntermediate is invoked for every intermediate message. An error
	// aborts the turn.
	OnIntermediate func(Intermediate) error
	// OnTransition observes state changes
	OnTransition func(turn int, from, to TurnState)
}

// NewWaiter creates a waiter bound to surface
func NewWaiter(surface uidriver.Surface, cfg *Config) *Waiter {
	return &Waiter{
		surface: surface,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (w *Waiter) transition(turn int, from, to TurnState) TurnState {
	if w.OnTransition != nil {
		w.OnTransition(turn, from, to)
	}
	return to
}

// RunTurn submits text and waits until the turn resolves or times out.
// A timeout is reported as an outcome, not an error; errors are reserved for
// surface failures and context cancellation.
func (w *Waiter) RunTurn(ctx context.Context, index int, text string) (*TurnResult, error) {
	baseline, err := w.surface.AIMessageCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages before send: %w", err)
	}
	if err := w.surface.Submit(ctx, text); err != nil {
		return nil, fmt.Errorf("failed to submit turn %d: %w", index, err)
	}
	start := w.now()
	state := StateSent

	result := &TurnResult{
		Index:       index,
		UserMessage: text,
	}

	for {
		state = w.transition(index, state, StateAwaitingMessage)
		count, arrived, err := awaitMessages(ctx, w.surface, baseline, w.cfg.TurnTimeout, w.cfg.PollInterval)
		if err != nil {
			return nil, err
		}
		if !arrived {
			w.transition(index, state, StateTimedOut)
			result.Response = w.cfg.TimeoutMarker
			result.Latency = w.now().Sub(start)
			result.Outcome = eventlog.OutcomeTimeout
			break
		}

		// Classify every message that arrived since the baseline in order;
		// the baseline only moves past messages already classified
		resolved := false
		for i := baseline; i < count && !resolved; i++ {
			msg, err := w.surface.AIMessage(ctx, i)
			if err != nil {
				return nil, fmt.Errorf("failed to read message %d: %w", i, err)
			}
			baseline = i + 1
			cleaned, clock := w.cfg.CleanText(msg.Text)
			uiTime := msg.UITimestamp
			if uiTime == "" {
				uiTime = clock
			}

			switch {
			case strings.TrimSpace(cleaned) == "":
				state = w.transition(index, state, StateEmptyRetry)
				result.EmptyRetries++
				if err := sleepContext(ctx, w.cfg.EmptyBackoff); err != nil {
					return nil, err
				}

			case w.cfg.IsIntermediate(cleaned):
				state = w.transition(index, state, StateIntermediateRetry)
				result.Intermediates++
				if w.OnIntermediate != nil {
					err := w.OnIntermediate(Intermediate{
						TurnIndex:   index,
						Text:        cleaned,
						UITimestamp: uiTime,
						Elapsed:     w.now().Sub(start),
						First:       result.Intermediates == 1,
					})
					if err != nil {
						return nil, err
					}
				}

			default:
				w.transition(index, state, StateResolved)
				result.Response = cleaned
				result.AIUITimestamp = uiTime
				result.Latency = w.now().Sub(start)
				result.Outcome = eventlog.OutcomeFinal
				resolved = true
			}
		}
		if resolved {
			break
		}
	}

	if w.cfg.CaptureUITimestamps {
		if ts, err := w.surface.LastUserTimestamp(ctx); err == nil {
			result.UserUITimestamp = ts
		}
	} else {
		result.AIUITimestamp = ""
	}
	return result, nil
}

// awaitMessages polls the surface until its AI message count exceeds
// baseline or bound elapses. arrived is false on timeout.
func awaitMessages(ctx context.Context, surface uidriver.Surface, baseline int, bound, poll time.Duration) (count int, arrived bool, err error) {
	waitCtx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		n, err := surface.AIMessageCount(waitCtx)
		if err != nil {
			return n, false, fmt.Errorf("failed to count messages: %w", err)
		}
		if n > baseline {
			return n, true, nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return n, false, ctx.Err()
			}
			return n, false, nil
		case <-ticker.C:
		}
	}
}

// sleepContext waits for d unless ctx ends first
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
