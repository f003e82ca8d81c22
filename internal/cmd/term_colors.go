package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/jguida941/voiceterm-sub001/internal/config"
)

type terminalColorHints struct {
	OscFg     string `json:"osc_fg,omitempty"`
	OscBg     string `json:"osc_bg,omitempty"`
	ColorFGBG string `json:"colorfgbg,omitempty"`
	Term      string `json:"term,omitempty"`
	ColorTerm string `json:"colorterm,omitempty"`
}

// detectTerminalColorHints captures current terminal colors for OSC 10/11
// responses, a COLORFGBG hint for fallback palette selection, and
// TERM/COLORTERM for capability detection. Detection must run before raw
// mode; the result is cached on disk for non-TTY starts.
func detectTerminalColorHints() terminalColorHints {
	var hints terminalColorHints

	if term.IsTerminal(int(os.Stdout.Fd())) {
		output := termenv.NewOutput(os.Stdout)
		if fg := output.ForegroundColor(); fg != nil {
			hints.OscFg = colorToX11(fg)
		}
		if bg := output.BackgroundColor(); bg != nil {
			hints.OscBg = colorToX11(bg)
		}

		hints.ColorFGBG = os.Getenv("COLORFGBG")
		if hints.ColorFGBG == "" {
			if output.HasDarkBackground() {
				hints.ColorFGBG = "15;0"
			} else {
				hints.ColorFGBG = "0;15"
			}
		}

		hints.Term = os.Getenv("TERM")
		hints.ColorTerm = os.Getenv("COLORTERM")

		_ = persistTerminalColorHints(hints)
	} else if cached, ok := loadTerminalColorHints(); ok {
		hints = cached
	}

	return hints
}

// refreshTerminalColorHintsCache updates hints on disk when this process
// has a TTY. Non-TTY invocations are a no-op.
func refreshTerminalColorHintsCache() {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		detectTerminalColorHints()
	}
}

// colorToX11 renders a termenv color as the rgb:rrrr/gggg/bbbb form OSC
// 10/11 replies use.
func colorToX11(c termenv.Color) string {
	hex := fmt.Sprintf("%v", c)
	col, err := colorful.Hex(hex)
	if err != nil {
		return ""
	}
	r, g, b := col.RGB255()
	return fmt.Sprintf("rgb:%02x%02x/%02x%02x/%02x%02x", r, r, g, g, b, b)
}

func terminalColorHintsPath() string {
	return filepath.Join(config.StateDir(), "terminal-colors.json")
}

func persistTerminalColorHints(h terminalColorHints) error {
	path := terminalColorHintsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func loadTerminalColorHints() (terminalColorHints, bool) {
	data, err := os.ReadFile(terminalColorHintsPath())
	if err != nil {
		return terminalColorHints{}, false
	}
	var h terminalColorHints
	if err := json.Unmarshal(data, &h); err != nil {
		return terminalColorHints{}, false
	}
	return h, true
}
