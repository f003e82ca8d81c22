// Package termcap detects terminal capabilities once at startup. The result
// is immutable for the session and consumed by the HUD color mode and the
// writer's redraw policy.
package termcap

import (
	"os"
	"strings"

	"github.com/muesli/termenv"
)

// ColorMode is the color depth the HUD renders with.
type ColorMode int

const (
	ColorNone ColorMode = iota
	ColorANSI16
	Color256
	ColorTrue
)

// Matrix holds the detected capabilities for one session.
type Matrix struct {
	Color       ColorMode
	Profile     termenv.Profile
	JetBrains   bool // IDE terminal: throttle meter redraws, skip splash
	AsciiBoxes  bool // fall back to ASCII borders for overlay panels
	Term        string
	TermProgram string
}

// Detect builds the capability matrix from environment hints. Precedence for
// color: NO_COLOR > noColor flag > COLORTERM > TERM family > IDE markers.
func Detect(noColor bool) Matrix {
	m := Matrix{
		Term:        os.Getenv("TERM"),
		TermProgram: os.Getenv("TERM_PROGRAM"),
	}
	m.JetBrains = isJetBrains()

	switch {
	case os.Getenv("NO_COLOR") != "" || noColor:
		m.Color = ColorNone
	case strings.Contains(strings.ToLower(os.Getenv("COLORTERM")), "truecolor"),
		strings.Contains(strings.ToLower(os.Getenv("COLORTERM")), "24bit"):
		m.Color = ColorTrue
	case strings.Contains(m.Term, "256color"):
		m.Color = Color256
	case m.Term == "dumb":
		m.Color = ColorNone
	case m.Term != "":
		m.Color = ColorANSI16
	default:
		m.Color = ColorANSI16
	}

	// JetBrains PTYs support truecolor even when TERM says xterm-256color.
	if m.JetBrains && m.Color == Color256 {
		m.Color = ColorTrue
	}

	switch m.Color {
	case ColorTrue:
		m.Profile = termenv.TrueColor
	case Color256:
		m.Profile = termenv.ANSI256
	case ColorANSI16:
		m.Profile = termenv.ANSI
	default:
		m.Profile = termenv.Ascii
	}

	// Console-class terminals lack the box-drawing glyphs the overlay borders use.
	m.AsciiBoxes = m.Term == "dumb" || m.Term == "linux"
	return m
}

// isJetBrains reports whether we are running inside a JetBrains IDE terminal.
func isJetBrains() bool {
	if os.Getenv("TERMINAL_EMULATOR") == "JetBrains-JediTerm" {
		return true
	}
	return strings.Contains(strings.ToLower(os.Getenv("TERM_PROGRAM")), "jetbrains")
}
