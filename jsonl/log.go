// Package jsonl persists relay records as JSON lines.
package jsonl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fwojciec/relay"
)

// Default file names for the two relay logs.
const (
	TranscriptFile = "transcript.jsonl"
	UsageFile      = "token_usage.jsonl"
)

type cursorState int

const (
	noneSelected cursorState = iota
	selected
)

// cursor remembers which candidate accepted the last write.
type cursor struct {
	state cursorState
	path  string
}

// Log appends JSON lines to the first writable path of an ordered candidate
// list. The path that accepted a write is remembered and used until a write
// to it fails; the list is then walked again from the start.
type Log struct {
	candidates []string

	mu  sync.Mutex
	cur cursor
}

// NewLog creates a Log over the given candidate paths, in preference order.
func NewLog(candidates ...string) *Log {
	return &Log{candidates: candidates}
}

// Candidates returns the candidate paths in preference order.
func (l *Log) Candidates() []string {
	return append([]string(nil), l.candidates...)
}

// Selected returns the remembered path, if any.
func (l *Log) Selected() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur.path, l.cur.state == selected
}

// Append writes v as one JSON line. When no candidate accepts the write the
// error wraps relay.ErrPersistence.
func (l *Log) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return l.AppendLine(append(data, '\n'))
}

// AppendLine writes an already encoded line.
func (l *Log) AppendLine(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.cur.state == selected {
		err := appendFile(l.cur.path, line)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
		l.cur = cursor{}
	}
	for _, path := range l.candidates {
		if err := appendFile(path, line); err != nil {
			errs = append(errs, err)
			continue
		}
		l.cur = cursor{state: selected, path: path}
		return nil
	}
	errs = append(errs, relay.ErrPersistence)
	return fmt.Errorf("no writable log path among %d candidates: %w", len(l.candidates), errors.Join(errs...))
}

func appendFile(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// Candidates builds the candidate list for a log file: the override first
// when set, then ./logs/<name>, the user state directory and the system
// temp directory. Duplicates are dropped.
func Candidates(override, name string) []string {
	var paths []string
	if override != "" {
		paths = append(paths, override)
	}
	paths = append(paths, filepath.Join("logs", name))
	if dir, ok := stateDir(); ok {
		paths = append(paths, filepath.Join(dir, "relay", name))
	}
	paths = append(paths, filepath.Join(os.TempDir(), "relay", name))

	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		key := filepath.Clean(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

func stateDir() (string, bool) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return dir, true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, ".local", "state"), true
}
