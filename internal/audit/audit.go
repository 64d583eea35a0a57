// Package audit appends approval-gate decisions to a JSONL trail.
// Every gate resolution is recorded whether approved or denied, so the
// outcome of a system-modifying request is always observable after the fact.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basket/go-governor/internal/shared"
)

type entry struct {
	Timestamp string `json:"timestamp"`
	Decision  string `json:"decision"` // "approve" or "deny"
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	Command   string `json:"command,omitempty"`
	Source    string `json:"source"` // "prompt" or "remembered"
}

// Log is an append-only decision trail.
type Log struct {
	mu        sync.Mutex
	file      *os.File
	denyCount atomic.Int64
}

// Open creates (or appends to) logs/approvals.jsonl under homeDir.
func Open(homeDir string) (*Log, error) {
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "approvals.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Log{file: f}, nil
}

// Close flushes and closes the trail file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// DenyCount returns the number of deny decisions recorded since Open.
func (l *Log) DenyCount() int64 {
	if l == nil {
		return 0
	}
	return l.denyCount.Load()
}

// Record appends one decision. A nil Log is a no-op so callers need not
// branch when auditing is disabled.
func (l *Log) Record(decision, action, reason, command, source string) {
	if l == nil {
		return
	}
	if decision == "deny" {
		l.denyCount.Add(1)
	}

	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Decision:  decision,
		Action:    action,
		Reason:    shared.Redact(reason),
		Command:   shared.Redact(command),
		Source:    source,
	}
	line, err := json.Marshal(e)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	_, _ = l.file.Write(append(line, '\n'))
}
