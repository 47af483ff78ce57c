package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventLog is the append-only diagnostic record of inbound events. It is
// not authoritative; callers log write failures and carry on.
type EventLog struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

// NewEventLog returns a log writing to path. The parent directory is
// created on first append.
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path, now: time.Now}
}

func (l *EventLog) Path() string { return l.path }

// Append writes a UTC timestamp line followed by the raw payload.
func (l *EventLog) Append(raw []byte) error {
	buf := make([]byte, 0, len(raw)+40)
	buf = append(buf, l.now().UTC().Format("2006-01-02 15:04:05.000000")...)
	buf = append(buf, '\n')
	buf = append(buf, raw...)
	buf = append(buf, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create event log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
