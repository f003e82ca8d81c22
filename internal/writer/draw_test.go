package writer

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/muesli/termenv"

	"github.com/jguida941/voiceterm-sub001/internal/ansi"
	"github.com/jguida941/voiceterm-sub001/internal/config"
	"github.com/jguida941/voiceterm-sub001/internal/hud"
	"github.com/jguida941/voiceterm-sub001/internal/termcap"
)

// stripWidth measures the display width of a rendered row after removing
// the styling escapes.
func stripWidth(s string) int {
	return ansi.DisplayWidth(string(ansi.Strip([]byte(s))))
}

func plainStyle() termenv.Style {
	return termenv.Ascii.String()
}

func TestRenderPartsPadsToWidth(t *testing.T) {
	got := renderParts([]part{{"ab", plainStyle()}}, 5, plainStyle())
	if w := stripWidth(got); w != 5 {
		t.Errorf("width = %d, want 5 (%q)", w, got)
	}
}

func TestRenderPartsClipsToWidth(t *testing.T) {
	got := renderParts([]part{{"abcdefgh", plainStyle()}, {"xyz", plainStyle()}}, 4, plainStyle())
	if w := stripWidth(got); w != 4 {
		t.Errorf("width = %d, want 4 (%q)", w, got)
	}
	if !strings.HasPrefix(string(ansi.Strip([]byte(got))), "abcd") {
		t.Errorf("clip lost prefix: %q", got)
	}
}

func TestRenderPartsZeroWidth(t *testing.T) {
	if got := renderParts([]part{{"abc", plainStyle()}}, 0, plainStyle()); got != "" {
		t.Errorf("zero width = %q", got)
	}
}

// Writer width invariant: for any theme strings, meter values, and terminal
// widths, a rendered HUD row never exceeds the width budget.
func TestHudRowWidthProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	caps := termcap.Detect(true)
	theme := hud.Load("mono", caps)

	for trial := 0; trial < 300; trial++ {
		cols := rng.Intn(120) + 1
		settings := config.Defaults()
		st := hud.NewState(settings, theme)
		st.Activity = hud.Activity(rng.Intn(4))
		st.Mode = hud.Mode(rng.Intn(3))
		st.QueueDepth = rng.Intn(20)
		st.LastSttMs = rng.Intn(5000)
		st.WakeEnabled = rng.Intn(2) == 0
		st.WakeErr = rng.Intn(2) == 0
		for i := 0; i < rng.Intn(16); i++ {
			st.Meter.Push(-96 + rng.Float64()*96)
		}
		if rng.Intn(2) == 0 {
			st.Status = hud.Status{Text: randomText(rng, 80), Severity: hud.Severity(rng.Intn(3))}
		}
		st.DebugKeys = true
		for i := 0; i < rng.Intn(12); i++ {
			st.DebugKeyBuf = append(st.DebugKeyBuf, "^R")
		}

		w := &Writer{caps: caps, rows: 24, cols: cols, snap: st.Snapshot(), haveSnap: true}

		maxWidth := cols
		if st.Style == config.HudFull {
			maxWidth = cols - 1
		}
		if maxWidth < 1 {
			continue
		}
		for _, row := range []string{w.meterRow(maxWidth), w.statusRow(maxWidth), w.compactRow(maxWidth), w.debugRow(maxWidth)} {
			if got := stripWidth(row); got > maxWidth {
				t.Fatalf("cols=%d: row width %d exceeds maxWidth %d: %q", cols, got, maxWidth, row)
			}
		}
	}
}

func randomText(rng *rand.Rand, max int) string {
	alphabet := []rune("abc देवनागरी 日本語 xyz ()[]|")
	n := rng.Intn(max)
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteRune(alphabet[rng.Intn(len(alphabet))])
	}
	return b.String()
}

func TestDebugRowKeepsNewestKeys(t *testing.T) {
	st := hud.NewState(config.Defaults(), hud.Load("mono", termcap.Matrix{}))
	st.DebugKeys = true
	for i := 0; i < 10; i++ {
		st.DebugKeyBuf = append(st.DebugKeyBuf, "OLD")
	}
	st.DebugKeyBuf = append(st.DebugKeyBuf, "NEW")

	w := &Writer{rows: 24, cols: 20, snap: st.Snapshot(), haveSnap: true}
	row := string(ansi.Strip([]byte(w.debugRow(20))))
	if !strings.Contains(row, "NEW") {
		t.Errorf("debug row lost newest key: %q", row)
	}
	if got := stripWidth(w.debugRow(20)); got != 20 {
		t.Errorf("debug row width = %d, want 20", got)
	}
}

func TestMeterBarBounded(t *testing.T) {
	r := hud.NewMeterRing(32)
	for i := 0; i < 32; i++ {
		r.Push(-96 + float64(i)*3)
	}
	bar := meterBar(r)
	if n := len([]rune(bar)); n > 8 {
		t.Errorf("meter bar %d cells, want <= 8", n)
	}
}

func TestMeterBarExtremes(t *testing.T) {
	r := hud.NewMeterRing(4)
	r.Push(-200) // below floor
	r.Push(50)   // above ceiling
	bar := []rune(meterBar(r))
	if bar[0] != meterGlyphs[0] {
		t.Errorf("floor glyph = %q", bar[0])
	}
	if bar[1] != meterGlyphs[len(meterGlyphs)-1] {
		t.Errorf("ceiling glyph = %q", bar[1])
	}
}

func TestOverlayRepeat(t *testing.T) {
	if got := repeat("─", 3); got != "───" {
		t.Errorf("repeat = %q", got)
	}
	if got := repeat("x", 0); got != "" {
		t.Errorf("repeat(0) = %q", got)
	}
}
