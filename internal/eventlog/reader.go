package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ReadFile loads every record of an event log. A final line without a
// trailing newline that does not parse is treated as an interrupted write
// and dropped; a malformed line anywhere else is an error.
func ReadFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	return Parse(data)
}

// Parse decodes NDJSON event records from data
func Parse(data []byte) ([]Event, error) {
	lines := bytes.Split(data, []byte("\n"))
	events := make([]Event, 0, len(lines))
	for i, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			if i == len(lines)-1 {
				break
			}
			return nil, fmt.Errorf("failed to parse event line %d: %w", i+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Conversation is the ordered event trail of one conversation id
type Conversation struct {
	ID     string
	Events []Event
}

// GroupByConversation splits events per conversation id, keeping the order
// in which ids first appear, and re-sorts each trail by capture timestamp.
func GroupByConversation(events []Event) []Conversation {
	index := make(map[string]int)
	var out []Conversation
	for _, ev := range events {
		i, ok := index[ev.ConversationID]
		if !ok {
			i = len(out)
			index[ev.ConversationID] = i
			out = append(out, Conversation{ID: ev.ConversationID})
		}
		out[i].Events = append(out[i].Events, ev)
	}
	for i := range out {
		trail := out[i].Events
		sort.SliceStable(trail, func(a, b int) bool {
			return trail[a].Timestamp < trail[b].Timestamp
		})
	}
	return out
}
