package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// FilePermissions is the mode used when the event log is created
	FilePermissions = 0644
	// DirPermissions is the mode used for the event log's parent directory
	DirPermissions = 0755
)

// ErrClosed is returned by Append after Close
var ErrClosed = errors.New("event log is closed")

// Logger appends events to an append-only NDJSON file. Each record is
// written with a single write call on an O_APPEND descriptor, so concurrent
// appends interleave at record granularity.
type Logger struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	sync   bool
	closed bool
}

// Option configures a Logger
type Option func(*Logger)

// WithSync makes every append fsync the file before returning
func WithSync() Option {
	return func(l *Logger) { l.sync = true }
}

// Reset discards the log left behind by a previous run
func Reset(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove previous event log: %w", err)
	}
	return nil
}

// Open opens (or creates) the event log at path for appending
func Open(path string, opts ...Option) (*Logger, error) {
	if path == "" {
		return nil, fmt.Errorf("event log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, FilePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	l := &Logger{path: path, file: f}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the file the logger writes to
func (l *Logger) Path() string {
	return l.path
}

// Append validates ev and writes it as one complete line
func (l *Logger) Append(ev Event) error {
	if err := Validate(ev); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	if l.sync {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync event log: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the file. Calling Close twice is a no-op.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("failed to sync event log: %w", err)
	}
	return l.file.Close()
}
