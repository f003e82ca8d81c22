package writer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/muesli/termenv"

	"github.com/jguida941/voiceterm-sub001/internal/ansi"
	"github.com/jguida941/voiceterm-sub001/internal/config"
	"github.com/jguida941/voiceterm-sub001/internal/hud"
)

// part is one styled segment of a HUD row. Widths are measured on the plain
// text so clipping never splits an escape sequence.
type part struct {
	text  string
	style termenv.Style
}

// renderParts styles and concatenates parts, clipping the plain text to
// maxCols and padding the remainder with the pad style.
func renderParts(parts []part, maxCols int, pad termenv.Style) string {
	if maxCols <= 0 {
		return ""
	}
	var out strings.Builder
	used := 0
	for _, p := range parts {
		if used >= maxCols {
			break
		}
		text := ansi.TruncateToWidth(p.text, maxCols-used)
		if text == "" {
			continue
		}
		used += ansi.DisplayWidth(text)
		out.WriteString(p.style.Styled(text))
	}
	if used < maxCols {
		out.WriteString(pad.Styled(strings.Repeat(" ", maxCols-used)))
	}
	return out.String()
}

// drawHUD paints the reserved rows from the current snapshot.
func (w *Writer) drawHUD() {
	reserved := w.snap.ReservedRows()
	if reserved == 0 {
		if len(w.drawnRows) > 0 {
			w.reservedChanged(0)
		}
		return
	}

	// Full HUD keeps a one-column right gutter so the final cell never
	// triggers autowrap.
	width := w.cols
	if w.snap.Style == config.HudFull && reserved >= 2 {
		width = w.cols - 1
	}

	styleRows := reserved
	if w.snap.DebugKeys {
		styleRows--
	}
	var rows []string
	switch {
	case styleRows >= 2:
		rows = []string{w.meterRow(width), w.statusRow(width)}
	case styleRows == 1:
		rows = []string{w.compactRow(width)}
	}
	if w.snap.DebugKeys {
		rows = append(rows, w.debugRow(width))
	}

	var buf bytes.Buffer
	w.saveCursor(&buf)
	w.drawnRows = w.drawnRows[:0]
	start := w.rows - reserved + 1
	for i, line := range rows {
		row := start + i
		fmt.Fprintf(&buf, "\x1b[%d;1H", row)
		buf.WriteString(line)
		buf.WriteString("\x1b[0m\x1b[K")
		w.drawnRows = append(w.drawnRows, row)
	}
	w.restoreCursor(&buf)
	w.write(buf.Bytes())

	if w.overlay != nil {
		w.drawOverlay()
	}
}

// meterRow is the first full-HUD row: mode, activity, level meter, queue and
// latency badges, wake status.
func (w *Writer) meterRow(width int) string {
	s := &w.snap
	t := s.Theme

	parts := []part{
		{" " + s.Mode.String() + " ", t.Accent},
		{"| ", t.Muted},
	}

	if s.Activity == hud.ActivityProcessing || s.Activity == hud.ActivityResponding {
		parts = append(parts, part{s.Spinner() + " ", t.Accent})
	}
	parts = append(parts, part{s.Activity.String() + " ", t.Info})

	if s.Activity == hud.ActivityRecording {
		parts = append(parts,
			part{meterBar(s.Meter) + " ", t.Meter},
			part{fmt.Sprintf("%+.0fdB ", s.Meter.Last()), t.Muted},
		)
	}

	if s.QueueDepth > 0 {
		parts = append(parts, part{fmt.Sprintf("| q:%d ", s.QueueDepth), t.Warn})
	}
	if s.QueueDropped > 0 || s.FramesDropped > 0 {
		parts = append(parts, part{fmt.Sprintf("| drop:%d ", s.QueueDropped+s.FramesDropped), t.Warn})
	}
	if s.LastSttMs > 0 {
		parts = append(parts, part{fmt.Sprintf("| %dms ", s.LastSttMs), t.Muted})
	}
	if s.WakeEnabled {
		if s.WakeErr {
			parts = append(parts, part{"| Wake: ERR ", t.Error})
		} else {
			parts = append(parts, part{"| Wake: ON ", t.Muted})
		}
	}
	parts = append(parts, part{"| " + string(s.SendMode) + " ", t.Muted})
	if s.MacrosOn {
		parts = append(parts, part{"| macros ", t.Muted})
	}
	return renderParts(parts, width, t.Bar)
}

// statusRow is the second full-HUD row: transient status or the help hint.
func (w *Writer) statusRow(width int) string {
	s := &w.snap
	t := s.Theme

	if s.BackendExited {
		return renderParts([]part{
			{" backend exited | [Enter] relaunch · [q] quit ", t.Error},
		}, width, t.Bar)
	}

	if s.Status.Text != "" {
		style := t.Info
		switch s.Status.Severity {
		case hud.SeverityWarn:
			style = t.Warn
		case hud.SeverityError:
			style = t.Error
		}
		return renderParts([]part{{" " + s.Status.Text + " ", style}}, width, t.Bar)
	}

	return renderParts([]part{
		{" ^R voice  ^E send  ^V mode  ^T cycle  ? help ", t.Muted},
	}, width, t.Bar)
}

// compactRow is the single-row HUD for minimal (and hidden-while-recording)
// styles.
func (w *Writer) compactRow(width int) string {
	s := &w.snap
	t := s.Theme

	parts := []part{{" " + s.Mode.String() + " ", t.Accent}}
	if s.Activity == hud.ActivityRecording {
		parts = append(parts, part{meterBar(s.Meter) + " ", t.Meter})
	} else {
		parts = append(parts, part{s.Activity.String() + " ", t.Info})
	}
	if s.QueueDepth > 0 {
		parts = append(parts, part{fmt.Sprintf("q:%d ", s.QueueDepth), t.Warn})
	}
	if s.Status.Text != "" {
		parts = append(parts, part{"| " + s.Status.Text + " ", t.Info})
	}
	return renderParts(parts, width, t.Bar)
}

// debugRow shows the most recent keystrokes, trimmed from the left so the
// newest keys stay visible.
func (w *Writer) debugRow(width int) string {
	t := w.snap.Theme
	line := " debug keystrokes: " + strings.Join(w.snap.DebugKeyBuf, " ")
	if ansi.DisplayWidth(line) > width {
		line = ansi.TrimLeftToWidth(line, width)
	}
	return renderParts([]part{{line, t.Muted}}, width, t.Bar)
}

var meterGlyphs = []rune("▁▂▃▄▅▆▇█")

// meterBar maps the recent level history to a short block-glyph bar.
func meterBar(m *hud.MeterRing) string {
	vals := m.Values()
	const cells = 8
	if len(vals) > cells {
		vals = vals[len(vals)-cells:]
	}
	var b strings.Builder
	for _, db := range vals {
		// -60 dB..0 dB maps across the glyph ramp.
		idx := int((db + 60) / 60 * float64(len(meterGlyphs)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(meterGlyphs) {
			idx = len(meterGlyphs) - 1
		}
		b.WriteRune(meterGlyphs[idx])
	}
	return b.String()
}
