// Package script loads the scripted conversations that drive a stress run.
package script

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtension is the file extension of conversation scripts
const DefaultExtension = ".txt"

// maxLineSize bounds a single scripted user turn
const maxLineSize = 1024 * 1024

// Script is an immutable, ordered list of user turns read from one file
type Script struct {
	// ID is the file name without extension; it doubles as the fallback
	// conversation identifier.
	ID    string
	Path  string
	turns []string
}

// New builds a script from in-memory lines, dropping blank ones
func New(id string, lines []string) *Script {
	s := &Script{ID: id}
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			s.turns = append(s.turns, trimmed)
		}
	}
	return s
}

// Turns returns a copy of the script's user turns
func (s *Script) Turns() []string {
	out := make([]string, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns
func (s *Script) Len() int {
	return len(s.turns)
}

// Load reads a single script file
func Load(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}

	base := filepath.Base(path)
	s := New(strings.TrimSuffix(base, filepath.Ext(base)), lines)
	s.Path = path
	return s, nil
}

// Discover loads every script with the given extension in dir, sorted by
// file name. An empty ext means DefaultExtension.
func Discover(dir, ext string) ([]*Script, error) {
	if ext == "" {
		ext = DefaultExtension
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read script directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	scripts := make([]*Script, 0, len(names))
	for _, name := range names {
		s, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}
