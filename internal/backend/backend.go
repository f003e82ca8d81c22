// Package backend resolves the wrapped AI CLI. A backend is described by the
// capability set {spawn command, approval-prompt patterns, auth command};
// presets exist for codex and claude, and any other string is treated as a
// literal command line.
package backend

import (
	"fmt"
	"regexp"

	"github.com/google/shlex"
)

// Backend describes how to spawn and recognize one wrapped CLI.
type Backend struct {
	Name    string
	Command string
	Args    []string

	// ApprovalPatterns match high-confidence permission prompts; the HUD
	// suppresses reserved rows while one is on screen.
	ApprovalPatterns []*regexp.Regexp

	// AuthArgs, when non-nil, is the argv (after Command) for the backend's
	// own login flow, run attached to the real terminal before the session.
	AuthArgs []string

	// ProcessNames are the executable names the session guard's orphan sweep
	// recognizes as belonging to this backend family.
	ProcessNames []string
}

var codexApproval = []*regexp.Regexp{
	regexp.MustCompile(`(?i)allow command\?`),
	regexp.MustCompile(`(?i)approve this (?:command|action)`),
	regexp.MustCompile(`\[y/n\]\s*$`),
}

var claudeApproval = []*regexp.Regexp{
	regexp.MustCompile(`(?i)do you want to proceed\?`),
	regexp.MustCompile(`(?i)grant permission`),
	regexp.MustCompile(`❯\s*1\. yes`),
}

var presets = map[string]Backend{
	"codex": {
		Name:             "codex",
		Command:          "codex",
		ApprovalPatterns: codexApproval,
		AuthArgs:         []string{"login"},
		ProcessNames:     []string{"codex"},
	},
	"claude": {
		Name:             "claude",
		Command:          "claude",
		ApprovalPatterns: claudeApproval,
		AuthArgs:         []string{"/login"},
		ProcessNames:     []string{"claude", "claude-code"},
	},
}

// Resolve maps a --backend value to a Backend. Known preset names resolve to
// their preset; anything else is parsed as a quoted-argument-aware command
// line.
func Resolve(arg string) (Backend, error) {
	if arg == "" {
		return Backend{}, fmt.Errorf("empty backend")
	}
	if preset, ok := presets[arg]; ok {
		return preset, nil
	}

	argv, err := shlex.Split(arg)
	if err != nil {
		return Backend{}, fmt.Errorf("parse backend command %q: %w", arg, err)
	}
	if len(argv) == 0 {
		return Backend{}, fmt.Errorf("empty backend command %q", arg)
	}
	return Backend{
		Name:         argv[0],
		Command:      argv[0],
		Args:         argv[1:],
		ProcessNames: []string{argv[0]},
	}, nil
}

// KnownProcessNames returns the union of all preset process names, used by
// the session guard's orphan sweep.
func KnownProcessNames() []string {
	var names []string
	for _, p := range presets {
		names = append(names, p.ProcessNames...)
	}
	return names
}
