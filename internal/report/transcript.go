// Package report renders the event log as a human-readable transcript.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/studiowebux/chatstress/internal/eventlog"
)

// Separator ends every conversation block
var Separator = strings.Repeat("-", 20)

// WriteTranscript writes one block per conversation: the greeting, then
// each user line followed by the AI messages it produced with their latency
func WriteTranscript(w io.Writer, events []eventlog.Event) error {
	for _, conv := range eventlog.GroupByConversation(events) {
		if _, err := fmt.Fprintf(w, "Conversation ID: %s\n", conv.ID); err != nil {
			return err
		}

		lastTurn := -1
		lastUser := ""
		for _, ev := range conv.Events {
			if ev.Kind == eventlog.KindGreeting || (ev.UserMessage == nil && ev.TurnIndex == nil) {
				if ev.AIResponse != "" {
					fmt.Fprintf(w, "AI: %s\n", ev.AIResponse)
				}
				continue
			}

			if ev.UserMessage != nil && newTurn(ev, lastTurn, lastUser) {
				fmt.Fprintf(w, "User: %s\n", *ev.UserMessage)
				lastUser = *ev.UserMessage
			}
			if ev.TurnIndex != nil {
				lastTurn = *ev.TurnIndex
			}
			fmt.Fprintf(w, "AI: %s (Latency: %sms)\n", ev.AIResponse, formatLatency(ev.LatencyMs))
		}

		if _, err := fmt.Fprintln(w, Separator); err != nil {
			return err
		}
	}
	return nil
}

// newTurn reports whether ev starts a user line not yet printed. Events
// without a turn index fall back to comparing the text.
func newTurn(ev eventlog.Event, lastTurn int, lastUser string) bool {
	if ev.TurnIndex != nil {
		return *ev.TurnIndex != lastTurn
	}
	return *ev.UserMessage != lastUser
}

func formatLatency(ms float64) string {
	return strconv.FormatFloat(ms, 'f', -1, 64)
}

// Render returns the transcript of events as a string
func Render(events []eventlog.Event) (string, error) {
	var sb strings.Builder
	if err := WriteTranscript(&sb, events); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// GenerateFile reads the event log at logPath and writes its transcript to
// outPath. It returns the transcript text.
func GenerateFile(logPath, outPath string) (string, error) {
	events, err := eventlog.ReadFile(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to read event log: %w", err)
	}
	text, err := Render(events)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, eventlog.DirPermissions); err != nil {
			return "", fmt.Errorf("failed to create transcript directory: %w", err)
		}
	}
	if err := os.WriteFile(outPath, []byte(text), eventlog.FilePermissions); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return text, nil
}

// CopyToClipboard puts the transcript on the system clipboard
func CopyToClipboard(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard is not available on this system")
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to copy transcript: %w", err)
	}
	return nil
}
