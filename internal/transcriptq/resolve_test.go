package transcriptq

import (
	"testing"

	"github.com/jguida941/voiceterm-sub001/internal/config"
)

var testMacros = []config.Macro{
	{Trigger: "run tests", Command: "go test ./..."},
	{Trigger: "ask", Command: "please {TRANSCRIPT}", SendMode: "insert"},
	{Trigger: "scroll up", Command: "git log"}, // collides with a built-in
}

func TestResolvePlainInjection(t *testing.T) {
	r := Resolve("  hello world  ", nil, false)
	if r.Kind != ActionInject || r.Text != "hello world" {
		t.Errorf("Resolve = %+v", r)
	}
}

func TestResolveBuiltins(t *testing.T) {
	tests := []struct {
		in   string
		want ActionKind
	}{
		{"scroll up", ActionScrollUp},
		{"Scroll Down", ActionScrollDown},
		{"show last error", ActionShowLastError},
		{"copy last error", ActionCopyLastError},
		{"explain last error", ActionExplainLastError},
	}
	for _, tt := range tests {
		if r := Resolve(tt.in, nil, false); r.Kind != tt.want {
			t.Errorf("Resolve(%q).Kind = %v, want %v", tt.in, r.Kind, tt.want)
		}
	}
}

func TestMacroExpansion(t *testing.T) {
	r := Resolve("run tests", testMacros, true)
	if r.Kind != ActionInject || r.Text != "go test ./..." {
		t.Errorf("Resolve = %+v", r)
	}
}

func TestMacroTranscriptSubstitution(t *testing.T) {
	r := Resolve("ask what does this do", testMacros, true)
	if r.Text != "please what does this do" {
		t.Errorf("Text = %q", r.Text)
	}
	if r.ModeOverride != config.SendInsert {
		t.Errorf("ModeOverride = %q, want insert", r.ModeOverride)
	}
}

// Macro match wins over a built-in with the same phrase.
func TestMacroBeatsBuiltinOnTie(t *testing.T) {
	r := Resolve("scroll up", testMacros, true)
	if r.Kind != ActionInject || r.Text != "git log" {
		t.Errorf("Resolve = %+v, want macro expansion", r)
	}
}

// The explicit "voice" prefix forces built-in resolution even when a macro
// shadows the phrase.
func TestVoicePrefixForcesBuiltin(t *testing.T) {
	r := Resolve("voice scroll up", testMacros, true)
	if r.Kind != ActionScrollUp {
		t.Errorf("Resolve = %+v, want ActionScrollUp", r)
	}
}

func TestVoicePrefixUnknownCommandInjects(t *testing.T) {
	r := Resolve("voice do something weird", nil, false)
	if r.Kind != ActionInject || r.Text != "voice do something weird" {
		t.Errorf("Resolve = %+v", r)
	}
}

func TestMacrosOffSkipsExpansion(t *testing.T) {
	r := Resolve("run tests", testMacros, false)
	if r.Text != "run tests" {
		t.Errorf("Text = %q, want untouched transcript", r.Text)
	}
}

func TestLongestTriggerWins(t *testing.T) {
	macros := []config.Macro{
		{Trigger: "run", Command: "short"},
		{Trigger: "run tests", Command: "long"},
	}
	r := Resolve("run tests", macros, true)
	if r.Text != "long" {
		t.Errorf("Text = %q, want %q", r.Text, "long")
	}
}
