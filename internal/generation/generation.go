// Package generation implements the append-only deploy history: a
// newline-delimited JSON journal written under a mutex with an explicit
// fsync on every append, and never rewritten once a line lands.
package generation

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"github.com/hometree/hometree/internal/herror"
)

// FileName is the generation journal's name under the state directory.
const FileName = "generations.jsonl"

// Entry is one immutable deploy record. Once written, it is never rewritten.
type Entry struct {
	Timestamp    int64   `json:"timestamp"`
	Rev          string  `json:"rev"`
	Message      *string `json:"message"`
	Host         string  `json:"host"`
	User         string  `json:"user"`
	ConfigHash   *string `json:"config_hash,omitempty"`
}

// Log appends Entry records to a single newline-delimited JSON file.
type Log struct {
	path string
	mu   sync.Mutex
}

// Open returns a Log backed by path. The file is created on first Append
// if it does not already exist.
func Open(path string) *Log {
	return &Log{path: path}
}

// Append writes entry as one JSON line and fsyncs the file, so the append
// is durable before the call returns.
func (l *Log) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return herror.Wrap(herror.IO, err, "failed to open generation log")
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return herror.Wrap(herror.IO, err, "failed to marshal generation entry")
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return herror.Wrap(herror.IO, err, "failed to write generation entry")
	}

	return f.Sync()
}

// ReadAll returns every entry in file order. A missing file reads as an
// empty, non-error sequence.
func (l *Log) ReadAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, herror.Wrap(herror.IO, err, "failed to open generation log")
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, herror.Wrap(herror.IO, err, "failed to parse generation log line")
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, herror.Wrap(herror.IO, err, "failed to read generation log")
	}

	return entries, nil
}
