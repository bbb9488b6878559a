// Package audit appends structured records for credential and sync
// events to an append-only log file.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/multigit-dev/multigit/pkg/redact"
)

// Event types recorded by the audit log.
const (
	EventCredentialStore    = "credential_store"
	EventCredentialRetrieve = "credential_retrieve"
	EventCredentialDelete   = "credential_delete"
	EventSyncStart          = "sync_start"
	EventSyncEnd            = "sync_end"
)

// Entry is one audit record.
type Entry struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Event   string    `json:"event"`
	Subject string    `json:"subject"`
	Success bool      `json:"success"`
}

// Logger appends entries to a JSON-lines file. Safe for concurrent use.
type Logger struct {
	mu   sync.Mutex
	path string
}

// New creates an audit logger writing to path.
func New(path string) *Logger {
	return &Logger{path: path}
}

// Record appends one entry. Failures to write are silently dropped: the
// audit log must never fail the operation it describes.
func (l *Logger) Record(event, subject string, success bool) {
	if l == nil {
		return
	}
	entry := Entry{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Event:   event,
		Subject: subject,
		Success: success,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	// Subjects are provider:host:username tuples, never secrets, but the
	// redactor runs on every line as the last line of defense.
	line := redact.String(string(data)) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = f.WriteString(line)
}

// Read returns all entries currently in the log.
func (l *Logger) Read() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range splitLines(data) {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
