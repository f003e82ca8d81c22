package promptwatch

import (
	"regexp"
	"testing"
	"time"
)

var start = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestLineTracking(t *testing.T) {
	tr := New(nil, 600*time.Millisecond, nil)
	tr.Feed([]byte("Welcome\n> "), start)
	if got := tr.LastLine(); got != "Welcome" {
		t.Errorf("LastLine = %q, want %q", got, "Welcome")
	}
	if got := tr.CurrentLine(); got != "> " {
		t.Errorf("CurrentLine = %q, want %q", got, "> ")
	}
}

func TestCRLFPromotesLine(t *testing.T) {
	tr := New(nil, time.Second, nil)
	tr.Feed([]byte("one\r\ntwo"), start)
	if got := tr.LastLine(); got != "one" {
		t.Errorf("LastLine = %q, want %q", got, "one")
	}
}

func TestCRLFSplitAcrossChunks(t *testing.T) {
	tr := New(nil, time.Second, nil)
	tr.Feed([]byte("one\r"), start)
	tr.Feed([]byte("\ntwo"), start)
	if got := tr.LastLine(); got != "one" {
		t.Errorf("LastLine = %q, want %q", got, "one")
	}
	if got := tr.CurrentLine(); got != "two" {
		t.Errorf("CurrentLine = %q, want %q", got, "two")
	}
}

func TestCarriageReturnResetsCurrentLine(t *testing.T) {
	tr := New(nil, time.Second, nil)
	tr.Feed([]byte("spinner-frame-1\rready> "), start)
	if got := tr.CurrentLine(); got != "ready> " {
		t.Errorf("CurrentLine = %q, want %q", got, "ready> ")
	}
}

// Scenario: backend emits "Welcome\n> ", goes idle, the prompt is learned,
// and a later identical line fires prompt-ready.
func TestPromptLearnAfterIdle(t *testing.T) {
	tr := New(nil, 600*time.Millisecond, nil)
	tr.Feed([]byte("Welcome\n> "), start)

	events := tr.CheckIdle(start.Add(700 * time.Millisecond))
	if len(events) != 1 || events[0].Kind != PromptReady {
		t.Fatalf("events = %+v, want one PromptReady", events)
	}
	if got := tr.Learned(); got != "> " {
		t.Errorf("Learned = %q, want %q", got, "> ")
	}

	// Backend works, produces output, then returns to the prompt.
	tr.Feed([]byte("working...\nsome output\n"), start.Add(time.Second))
	if tr.AtPrompt() {
		t.Fatal("AtPrompt should be false mid-output")
	}
	events = tr.Feed([]byte("> "), start.Add(2*time.Second))
	if len(events) != 1 || events[0].Kind != PromptReady {
		t.Fatalf("events = %+v, want PromptReady on learned match", events)
	}
}

func TestPromptRegexMatch(t *testing.T) {
	tr := New(regexp.MustCompile(`^\$ $`), time.Second, nil)
	events := tr.Feed([]byte("output\n$ "), start)
	if len(events) != 1 || events[0].Kind != PromptReady {
		t.Fatalf("events = %+v, want PromptReady", events)
	}
	// No duplicate event while the prompt line is unchanged.
	if events := tr.Feed([]byte(""), start); len(events) != 0 {
		t.Errorf("duplicate events = %+v", events)
	}
}

func TestIdleFallbackWithoutPrompt(t *testing.T) {
	tr := New(nil, 500*time.Millisecond, nil)
	// Output ends in a newline, so there is no candidate prompt line.
	tr.Feed([]byte("all output ends in newline\n"), start)
	tr.last = "" // nothing learnable

	events := tr.CheckIdle(start.Add(time.Second))
	if len(events) != 1 || events[0].Kind != IdleReady {
		t.Fatalf("events = %+v, want IdleReady", events)
	}
}

func TestLearnTrimsLeadingWhitespace(t *testing.T) {
	tr := New(nil, 100*time.Millisecond, nil)
	tr.Feed([]byte("   >> "), start)
	tr.CheckIdle(start.Add(200 * time.Millisecond))
	if got := tr.Learned(); got != ">> " {
		t.Errorf("Learned = %q, want %q", got, ">> ")
	}
}

func TestStripBeforeTracking(t *testing.T) {
	tr := New(nil, time.Second, nil)
	tr.Feed([]byte("\x1b[32mdone\x1b[0m\n\x1b[1m> \x1b[0m"), start)
	if got := tr.LastLine(); got != "done" {
		t.Errorf("LastLine = %q, want %q", got, "done")
	}
	if got := tr.CurrentLine(); got != "> " {
		t.Errorf("CurrentLine = %q, want %q", got, "> ")
	}
}

// The tracker must behave identically however the stream is chunked,
// including splits inside escape sequences.
func TestChunkBoundaryDeterminism(t *testing.T) {
	stream := []byte("Welcome\x1b[0m\r\nline two\x1b[1;31m!\x1b[0m\r\n> ")

	ref := New(nil, time.Second, nil)
	ref.Feed(stream, start)
	wantLast, wantCur := ref.LastLine(), ref.CurrentLine()

	for split := 1; split < len(stream); split++ {
		tr := New(nil, time.Second, nil)
		tr.Feed(stream[:split], start)
		tr.Feed(stream[split:], start)
		if tr.LastLine() != wantLast || tr.CurrentLine() != wantCur {
			t.Fatalf("split %d: last=%q cur=%q, want %q/%q",
				split, tr.LastLine(), tr.CurrentLine(), wantLast, wantCur)
		}
	}
}

func TestApprovalPromptEvents(t *testing.T) {
	approval := []*regexp.Regexp{regexp.MustCompile(`(?i)do you want to proceed\?`)}
	tr := New(nil, time.Second, approval)

	events := tr.Feed([]byte("Do you want to proceed? "), start)
	if len(events) != 1 || events[0].Kind != ApprovalPrompt {
		t.Fatalf("events = %+v, want ApprovalPrompt", events)
	}

	events = tr.Feed([]byte("\nok, running\n"), start.Add(time.Second))
	found := false
	for _, ev := range events {
		if ev.Kind == ApprovalCleared {
			found = true
		}
	}
	if !found {
		t.Fatalf("events = %+v, want ApprovalCleared", events)
	}
}

func TestEscapeOnlyChunkCountsAsActivity(t *testing.T) {
	tr := New(nil, 500*time.Millisecond, nil)
	tr.Feed([]byte("> "), start)
	tr.Feed([]byte("\x1b[?25h"), start.Add(400*time.Millisecond))
	if events := tr.CheckIdle(start.Add(700 * time.Millisecond)); len(events) != 0 {
		t.Errorf("idle fired despite recent escape activity: %+v", events)
	}
}
