package transcriptq

import (
	"strings"

	"github.com/jguida941/voiceterm-sub001/internal/config"
)

// ActionKind is what a transcript resolves to after macro expansion and
// built-in command matching.
type ActionKind int

const (
	ActionInject ActionKind = iota
	ActionScrollUp
	ActionScrollDown
	ActionShowLastError
	ActionCopyLastError
	ActionExplainLastError
)

// Resolved is the outcome of resolving one transcript.
type Resolved struct {
	Kind         ActionKind
	Text         string          // ActionInject: the text to queue or inject
	ModeOverride config.SendMode // from macro expansion, "" = none
}

// builtins maps spoken navigation phrases to actions. The list is explicit
// rather than fuzzy-matched.
var builtins = map[string]ActionKind{
	"scroll up":          ActionScrollUp,
	"scroll down":        ActionScrollDown,
	"show last error":    ActionShowLastError,
	"copy last error":    ActionCopyLastError,
	"explain last error": ActionExplainLastError,
}

// Resolve expands a transcript against macros and built-in voice-navigation
// commands. A macro match wins on tie with a built-in; an explicit
// "voice <command>" prefix forces built-in resolution.
func Resolve(text string, macros []config.Macro, macrosOn bool) Resolved {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	// "voice scroll up" bypasses macros entirely.
	if rest, ok := strings.CutPrefix(lower, "voice "); ok {
		if kind, ok := builtins[strings.TrimSpace(rest)]; ok {
			return Resolved{Kind: kind}
		}
		// Unknown built-in: inject the original text untouched.
		return Resolved{Kind: ActionInject, Text: trimmed}
	}

	if macrosOn {
		if r, ok := expandMacro(trimmed, lower, macros); ok {
			return r
		}
	}

	if kind, ok := builtins[lower]; ok {
		return Resolved{Kind: kind}
	}
	return Resolved{Kind: ActionInject, Text: trimmed}
}

// expandMacro finds the longest trigger that prefixes the utterance and
// substitutes the remainder into the command template.
func expandMacro(trimmed, lower string, macros []config.Macro) (Resolved, bool) {
	best := -1
	bestLen := 0
	for i, m := range macros {
		trigger := strings.ToLower(strings.TrimSpace(m.Trigger))
		if lower == trigger || strings.HasPrefix(lower, trigger+" ") {
			if len(trigger) > bestLen {
				best = i
				bestLen = len(trigger)
			}
		}
	}
	if best < 0 {
		return Resolved{}, false
	}

	m := macros[best]
	remainder := strings.TrimSpace(trimmed[bestLen:])
	text := strings.ReplaceAll(m.Command, "{TRANSCRIPT}", remainder)
	return Resolved{
		Kind:         ActionInject,
		Text:         text,
		ModeOverride: config.SendMode(m.SendMode),
	}, true
}
