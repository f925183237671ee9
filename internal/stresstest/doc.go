/*
Package stresstest drives scripted conversations against a chat interface
and records every response to an append-only event log.

# Overview

One Conversation runs per script, each on its own surface opened from a
shared browser. The Executor starts them all at once (optionally capped by
MaxConcurrent), waits until every one is terminal and returns an advisory
Summary. A failed conversation never cancels another.

# Components

 1. Config (config.go): bounds, markers and text cleaning
 2. Waiter (waiter.go): the per-turn response-wait state machine
 3. Conversation (conversation.go): setup, greeting and the turn loop
 4. Executor (executor.go): concurrent fan-out and id registry
 5. Manager (manager.go): SQLite persistence of run summaries

# Response-Wait State Machine

	SENT -> AWAITING_MESSAGE -> RESOLVED
	                         -> TIMED_OUT
	                         -> EMPTY_RETRY -> AWAITING_MESSAGE
	                         -> INTERMEDIATE_RETRY -> AWAITING_MESSAGE

The baseline is the AI message count captured before the user message is
submitted. A blank message or a "please wait"-class message moves the
baseline forward; latency is always measured from the original send.

A timed-out turn is logged with the TimeoutMarker response and the
conversation moves on to its next line.

# Example Usage

	cfg := stresstest.DefaultConfig()
	cfg.SetupFields = map[string]string{"model": "support"}

	log, err := eventlog.Open("conversations.jsonl")
	if err != nil {
		return err
	}
	defer log.Close()

	executor, err := stresstest.NewExecutor(cfg, browser, log)
	if err != nil {
		return err
	}
	summary := executor.Run(ctx, scripts)
	fmt.Printf("%d completed, %d failed\n", summary.Completed, summary.Failed)
*/
package stresstest
