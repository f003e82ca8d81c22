package writer

import (
	"bytes"
	"fmt"

	"github.com/jguida941/voiceterm-sub001/internal/ansi"
)

// OverlayKind identifies which panel is open. Only one overlay is active at
// a time; opening another closes the previous.
type OverlayKind int

const (
	OverlayHelp OverlayKind = iota
	OverlaySettings
	OverlayThemePicker
	OverlayThemeStudio
	OverlayTranscripts
	OverlayToasts
	OverlayNotifications
)

// Overlay is a rendered panel model: the event loop builds the lines, the
// writer only places and borders them.
type Overlay struct {
	Kind  OverlayKind
	Title string
	Lines []string
}

type borderSet struct {
	tl, tr, bl, br, h, v string
}

var unicodeBorder = borderSet{"┌", "┐", "└", "┘", "─", "│"}
var asciiBorder = borderSet{"+", "+", "+", "+", "-", "|"}

// drawOverlay paints the active panel anchored just above the reserved rows.
// Panel width clamps to the terminal; rows beyond the available space clip.
func (w *Writer) drawOverlay() {
	o := w.overlay
	if o == nil {
		return
	}
	b := unicodeBorder
	if w.caps.AsciiBoxes {
		b = asciiBorder
	}
	t := w.snap.Theme

	inner := 0
	for _, line := range o.Lines {
		if n := ansi.DisplayWidth(line); n > inner {
			inner = n
		}
	}
	if n := ansi.DisplayWidth(o.Title) + 2; n > inner {
		inner = n
	}
	if inner > w.cols-4 {
		inner = w.cols - 4
	}
	if inner < 1 {
		return
	}

	avail := w.rows - w.reserved - 2 // space for content between borders
	lines := o.Lines
	if len(lines) > avail {
		lines = lines[:avail]
	}
	if avail < 1 {
		return
	}

	bottom := w.rows - w.reserved
	top := bottom - len(lines) - 1

	var buf bytes.Buffer
	w.saveCursor(&buf)

	title := ansi.TruncateToWidth(o.Title, inner-2)
	head := b.tl + b.h + title + repeat(b.h, inner-ansi.DisplayWidth(title)-1) + b.tr
	fmt.Fprintf(&buf, "\x1b[%d;1H", top)
	buf.WriteString(t.Overlay.Styled(head))
	buf.WriteString("\x1b[K")

	for i, line := range lines {
		fmt.Fprintf(&buf, "\x1b[%d;1H", top+1+i)
		buf.WriteString(t.Overlay.Styled(b.v))
		buf.WriteString(ansi.PadToWidth(line, inner))
		buf.WriteString(t.Overlay.Styled(b.v))
		buf.WriteString("\x1b[K")
	}

	fmt.Fprintf(&buf, "\x1b[%d;1H", bottom)
	buf.WriteString(t.Overlay.Styled(b.bl + repeat(b.h, inner) + b.br))
	buf.WriteString("\x1b[K")

	w.restoreCursor(&buf)
	w.write(buf.Bytes())

	w.overlayTop = top
	w.overlayBottom = bottom
}

// clearOverlay erases the rows the panel occupied. The backend repaints its
// own content on its next frame.
func (w *Writer) clearOverlay() {
	if w.overlayBottom == 0 {
		return
	}
	var buf bytes.Buffer
	w.saveCursor(&buf)
	for r := w.overlayTop; r <= w.overlayBottom; r++ {
		fmt.Fprintf(&buf, "\x1b[%d;1H\x1b[2K", r)
	}
	w.restoreCursor(&buf)
	w.write(buf.Bytes())
	w.overlayTop = 0
	w.overlayBottom = 0
}

func repeat(s string, n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
