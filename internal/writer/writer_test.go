package writer

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jguida941/voiceterm-sub001/internal/config"
	"github.com/jguida941/voiceterm-sub001/internal/hud"
	"github.com/jguida941/voiceterm-sub001/internal/termcap"
)

// startWriter runs a writer against an os.Pipe and returns a function that
// shuts it down and yields everything it wrote.
func startWriter(t *testing.T, rows, cols int) (*Writer, func() string) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}

	wr := New(w, termcap.Matrix{}, rows, cols)
	go wr.Run()

	collected := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(r)
		collected <- string(data)
	}()

	return wr, func() string {
		wr.Send(Message{Kind: MsgShutdown})
		select {
		case <-wr.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("writer did not shut down")
		}
		w.Close()
		out := <-collected
		r.Close()
		return out
	}
}

func fullSnap() hud.State {
	st := hud.NewState(config.Defaults(), hud.Load("mono", termcap.Matrix{}))
	return st.Snapshot()
}

func TestWriterSetsScrollRegionForHud(t *testing.T) {
	wr, finish := startWriter(t, 24, 80)
	wr.Send(Message{Kind: MsgStatus, Snap: fullSnap()})

	out := finish()
	// Full HUD reserves 2 rows: scroll region rows 1-22.
	if !strings.Contains(out, "\x1b[1;22r") {
		t.Errorf("output missing scroll region, got %q", out)
	}
	// HUD rows drawn at 23 and 24.
	if !strings.Contains(out, "\x1b[23;1H") || !strings.Contains(out, "\x1b[24;1H") {
		t.Errorf("output missing HUD row moves: %q", out)
	}
}

func TestWriterPassesPtyBytesThrough(t *testing.T) {
	wr, finish := startWriter(t, 24, 80)
	payload := "raw \x1b[31mansi\x1b[0m bytes"
	wr.Send(Message{Kind: MsgPty, Data: []byte(payload)})

	if out := finish(); !strings.Contains(out, payload) {
		t.Errorf("pty bytes not passed through unchanged: %q", out)
	}
}

func TestWriterSaveRestoreAroundHudDraw(t *testing.T) {
	wr, finish := startWriter(t, 24, 80)
	wr.Send(Message{Kind: MsgStatus, Snap: fullSnap()})

	out := finish()
	if !strings.Contains(out, "\x1b7\x1b[s") {
		t.Errorf("missing cursor save: %q", out)
	}
	if !strings.Contains(out, "\x1b[u\x1b8") {
		t.Errorf("missing cursor restore: %q", out)
	}
}

// Resize shrinking the terminal clears the rows the HUD used to occupy and
// reissues the scroll region.
func TestWriterResizeShrinkClearsOldRows(t *testing.T) {
	wr, finish := startWriter(t, 40, 80)
	wr.Send(Message{Kind: MsgStatus, Snap: fullSnap()})
	time.Sleep(50 * time.Millisecond) // let the first draw land at rows 39/40

	wr.Send(Message{Kind: MsgResize, Rows: 10, Cols: 80})
	out := finish()

	if !strings.Contains(out, "\x1b[39;1H\x1b[2K") || !strings.Contains(out, "\x1b[40;1H\x1b[2K") {
		t.Errorf("old HUD rows not cleared: %q", out)
	}
	if !strings.Contains(out, "\x1b[1;8r") {
		t.Errorf("scroll region not recomputed for 10 rows: %q", out)
	}
}

func TestWriterShutdownRestoresTerminal(t *testing.T) {
	wr, finish := startWriter(t, 24, 80)
	wr.Send(Message{Kind: MsgStatus, Snap: fullSnap()})
	out := finish()

	if !strings.Contains(out, "\x1b[r") {
		t.Errorf("shutdown did not reset scroll region: %q", out)
	}
	if !strings.Contains(out, "\x1b[?25h") {
		t.Errorf("shutdown did not show cursor: %q", out)
	}
}

func TestWriterMouseMode(t *testing.T) {
	wr, finish := startWriter(t, 24, 80)
	wr.Send(Message{Kind: MsgMouseMode, MouseOn: true})
	wr.Send(Message{Kind: MsgMouseMode, MouseOn: false})
	out := finish()
	if !strings.Contains(out, "\x1b[?1000h\x1b[?1006h") {
		t.Errorf("mouse enable missing: %q", out)
	}
	if !strings.Contains(out, "\x1b[?1006l\x1b[?1000l") {
		t.Errorf("mouse disable missing: %q", out)
	}
}

func TestWriterOverlayDrawAndClear(t *testing.T) {
	wr, finish := startWriter(t, 24, 80)
	wr.Send(Message{Kind: MsgStatus, Snap: fullSnap()})
	wr.Send(Message{Kind: MsgOverlayOpen, Overlay: &Overlay{
		Kind:  OverlayHelp,
		Title: "Help",
		Lines: []string{"line one", "line two"},
	}})
	wr.Send(Message{Kind: MsgOverlayClose})
	out := finish()

	if !strings.Contains(out, "line one") || !strings.Contains(out, "line two") {
		t.Errorf("overlay content missing: %q", out)
	}
	if !strings.Contains(out, "Help") {
		t.Errorf("overlay title missing: %q", out)
	}
}
