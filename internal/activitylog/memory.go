package activitylog

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Memory is the optional markdown session log: newline-delimited rows of
// injected user text and notable backend lines, append-only and best-effort.
type Memory struct {
	mu sync.Mutex
	f  *os.File
}

// OpenMemory appends to the markdown log at path, writing a session header.
// Errors disable the log silently; it carries no hard invariants.
func OpenMemory(path string) *Memory {
	if path == "" {
		return &Memory{}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &Memory{}
	}
	fmt.Fprintf(f, "\n## Session %s\n\n", time.Now().Format("2006-01-02 15:04"))
	return &Memory{f: f}
}

// User records one injected user utterance.
func (m *Memory) User(text string) { m.row("user", text) }

// Assistant records one backend line worth keeping.
func (m *Memory) Assistant(text string) { m.row("assistant", text) }

func (m *Memory) row(role, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return
	}
	fmt.Fprintf(m.f, "- **%s**: %s\n", role, strings.ReplaceAll(text, "\n", " "))
}

// Close closes the underlying file.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f != nil {
		m.f.Close()
		m.f = nil
	}
}
