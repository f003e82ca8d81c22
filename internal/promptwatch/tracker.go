// Package promptwatch watches ANSI-stripped backend output for the input
// prompt. The prompt is either matched by a configured regex or learned from
// the last line on screen after the backend's first idle period.
package promptwatch

import (
	"regexp"
	"strings"
	"time"

	"github.com/jguida941/voiceterm-sub001/internal/ansi"
)

// EventKind is a tracker output consumed by the event loop.
type EventKind int

const (
	// PromptReady fires when the prompt line is detected at the bottom of
	// the output. The transcript queue flushes on it.
	PromptReady EventKind = iota
	// IdleReady fires when no prompt is configured or learned and the
	// backend has produced no output for the idle window.
	IdleReady
	// ApprovalPrompt fires on a high-confidence permission prompt; the HUD
	// suppresses reserved rows until it clears.
	ApprovalPrompt
	// ApprovalCleared fires when output follows an approval prompt.
	ApprovalCleared
)

// Event is one tracker notification.
type Event struct {
	Kind EventKind
	Line string
}

// Tracker strips ANSI from PTY output and tracks line state. It is owned by
// the event loop; no locking.
type Tracker struct {
	stripper ansi.Stripper

	current   []byte // line being built, stripped
	last      string // last completed line
	pendingCR bool   // saw \r, waiting to see whether \n follows

	regex    *regexp.Regexp
	learned  string
	idle     time.Duration
	approval []*regexp.Regexp

	lastOutput     time.Time
	sawOutput      bool
	readySignaled  bool
	approvalActive bool
}

// New builds a tracker. re may be nil (auto-learn); approval may be empty.
func New(re *regexp.Regexp, idle time.Duration, approval []*regexp.Regexp) *Tracker {
	return &Tracker{regex: re, idle: idle, approval: approval}
}

// Feed processes one PTY output chunk and returns any events it produced.
// Behavior is deterministic regardless of how the stream is chunked.
func (t *Tracker) Feed(chunk []byte, now time.Time) []Event {
	text := t.stripper.Feed(chunk)
	if len(text) == 0 && len(chunk) > 0 {
		// Escape-only chunk still counts as backend activity.
		t.lastOutput = now
		t.sawOutput = true
		return nil
	}
	if len(text) == 0 {
		return nil
	}
	t.lastOutput = now
	t.sawOutput = true

	for _, b := range text {
		// A bare \r resets the line (spinner redraws), but \r\n is a
		// single terminator: the decision is deferred one byte, across
		// chunk boundaries, so CRLF output promotes the full line.
		if t.pendingCR {
			t.pendingCR = false
			if b == '\n' {
				t.last = string(t.current)
				t.current = t.current[:0]
				continue
			}
			t.current = t.current[:0]
		}
		switch b {
		case '\n':
			t.last = string(t.current)
			t.current = t.current[:0]
		case '\r':
			t.pendingCR = true
		case '\t':
			t.current = append(t.current, ' ')
		default:
			t.current = append(t.current, b)
		}
	}

	var events []Event

	if t.approvalActive && !t.matchApproval() {
		t.approvalActive = false
		events = append(events, Event{Kind: ApprovalCleared})
	} else if !t.approvalActive && t.matchApproval() {
		t.approvalActive = true
		events = append(events, Event{Kind: ApprovalPrompt, Line: t.candidate()})
	}

	if t.matchPrompt() {
		if !t.readySignaled {
			t.readySignaled = true
			events = append(events, Event{Kind: PromptReady, Line: t.candidate()})
		}
	} else {
		t.readySignaled = false
	}
	return events
}

// CheckIdle is called from the periodic tick. After the first idle window it
// learns the prompt when nothing is configured; with nothing to learn it
// reports IdleReady.
func (t *Tracker) CheckIdle(now time.Time) []Event {
	if !t.sawOutput || now.Sub(t.lastOutput) < t.idle {
		return nil
	}

	if t.regex == nil && t.learned == "" {
		line := strings.TrimLeft(t.candidate(), " \t")
		if line != "" {
			t.learned = line
			if !t.readySignaled {
				t.readySignaled = true
				return []Event{{Kind: PromptReady, Line: t.candidate()}}
			}
			return nil
		}
		return []Event{{Kind: IdleReady}}
	}

	if !t.matchPrompt() {
		return nil
	}
	if !t.readySignaled {
		t.readySignaled = true
		return []Event{{Kind: PromptReady, Line: t.candidate()}}
	}
	return nil
}

// candidate is the line prompt detection runs against: the partial line
// being built if non-empty (prompts rarely end in a newline), else the last
// completed line.
func (t *Tracker) candidate() string {
	if len(t.current) > 0 {
		return string(t.current)
	}
	return t.last
}

func (t *Tracker) matchPrompt() bool {
	line := t.candidate()
	if line == "" {
		return false
	}
	if t.regex != nil {
		return t.regex.MatchString(line)
	}
	if t.learned != "" {
		return strings.TrimLeft(line, " \t") == t.learned
	}
	return false
}

func (t *Tracker) matchApproval() bool {
	line := t.candidate()
	for _, re := range t.approval {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Learned returns the learned prompt string, if any.
func (t *Tracker) Learned() string { return t.learned }

// AtPrompt reports whether the backend currently shows a known ready prompt.
func (t *Tracker) AtPrompt() bool { return t.readySignaled }

// LastOutput returns the time of the most recent backend output.
func (t *Tracker) LastOutput() (time.Time, bool) { return t.lastOutput, t.sawOutput }

// CurrentLine returns the stripped line being built (for tests and the HUD).
func (t *Tracker) CurrentLine() string { return string(t.current) }

// LastLine returns the last completed stripped line.
func (t *Tracker) LastLine() string { return t.last }
