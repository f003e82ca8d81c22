package hud

import (
	"github.com/muesli/termenv"

	"github.com/jguida941/voiceterm-sub001/internal/termcap"
)

// Theme holds the styled color handles the writer renders with. Styles are
// pre-resolved against the session's terminal profile so drawing is just
// string concatenation.
type Theme struct {
	Name string

	Bar     termenv.Style // mode/status bar base
	Accent  termenv.Style // mode label
	Meter   termenv.Style // level meter cells
	Info    termenv.Style
	Warn    termenv.Style
	Error   termenv.Style
	Muted   termenv.Style // secondary badges
	Overlay termenv.Style // overlay panel borders
}

var themeNames = []string{"slate", "amber", "mono"}

// Load resolves a named theme against the terminal profile. Unknown names
// fall back to slate.
func Load(name string, caps termcap.Matrix) Theme {
	p := caps.Profile
	if caps.Color == termcap.ColorNone {
		name = "mono"
	}
	base := func() termenv.Style { return p.String() }

	switch name {
	case "amber":
		return Theme{
			Name:    "amber",
			Bar:     base().Reverse(),
			Accent:  base().Foreground(p.Color("#ffb000")).Bold(),
			Meter:   base().Foreground(p.Color("#ffd75f")),
			Info:    base().Foreground(p.Color("#d0d0d0")),
			Warn:    base().Foreground(p.Color("#ffaf00")),
			Error:   base().Foreground(p.Color("#ff5f5f")).Bold(),
			Muted:   base().Faint(),
			Overlay: base().Foreground(p.Color("#ffb000")),
		}
	case "mono":
		return Theme{
			Name:    "mono",
			Bar:     base().Reverse(),
			Accent:  base().Bold(),
			Meter:   base(),
			Info:    base(),
			Warn:    base().Bold(),
			Error:   base().Reverse(),
			Muted:   base().Faint(),
			Overlay: base(),
		}
	default:
		return Theme{
			Name:    "slate",
			Bar:     base().Reverse(),
			Accent:  base().Foreground(p.Color("#5fd7ff")).Bold(),
			Meter:   base().Foreground(p.Color("#5fff87")),
			Info:    base().Foreground(p.Color("#d0d0d0")),
			Warn:    base().Foreground(p.Color("#ffd700")),
			Error:   base().Foreground(p.Color("#ff5f87")).Bold(),
			Muted:   base().Faint(),
			Overlay: base().Foreground(p.Color("#5fd7ff")),
		}
	}
}

// NextTheme cycles to the next theme name (quick theme cycle hotkey).
func NextTheme(current string) string {
	for i, n := range themeNames {
		if n == current {
			return themeNames[(i+1)%len(themeNames)]
		}
	}
	return themeNames[0]
}
