// Package writer is the sole owner of terminal stdout. It interleaves PTY
// passthrough with HUD redraws, keeps the backend inside a scroll region
// above the reserved rows, and coalesces HUD repaints under load.
package writer

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jguida941/voiceterm-sub001/internal/hud"
	"github.com/jguida941/voiceterm-sub001/internal/termcap"
)

// MsgKind tags a writer message.
type MsgKind int

const (
	MsgPty MsgKind = iota
	MsgStatus
	MsgOverlayOpen
	MsgOverlayClose
	MsgResize
	MsgMouseMode
	MsgShutdown
)

// Message is one unit of work for the writer thread.
type Message struct {
	Kind    MsgKind
	Data    []byte    // MsgPty
	Snap    hud.State // MsgStatus
	Overlay *Overlay  // MsgOverlayOpen
	Rows    int       // MsgResize
	Cols    int
	MouseOn bool // MsgMouseMode
}

const (
	quietWindow         = 8 * time.Millisecond
	drawDeadline        = 16 * time.Millisecond
	jetbrainsMeterFloor = 120 * time.Millisecond
)

// Writer serializes all stdout output. Run owns every field below; other
// threads interact only through the message channel.
type Writer struct {
	ch   chan Message
	done chan struct{}

	out  *os.File
	caps termcap.Matrix

	rows, cols int
	reserved   int

	snap          hud.State
	haveSnap      bool
	overlay       *Overlay
	redrawPending bool
	lastPtyOut    time.Time
	lastMeterDraw time.Time

	drawnRows []int // absolute rows the HUD occupied on the last draw

	overlayTop    int
	overlayBottom int

	pending []byte // stdout tail not yet accepted by the terminal

	saveDepth int
}

// New builds a writer for the given terminal size. Call Run on its own
// goroutine.
func New(out *os.File, caps termcap.Matrix, rows, cols int) *Writer {
	return &Writer{
		ch:   make(chan Message, 128),
		done: make(chan struct{}),
		out:  out,
		caps: caps,
		rows: rows,
		cols: cols,
	}
}

// TrySend enqueues a message without blocking. The event loop defers and
// retries PTY batches when this reports a full channel.
func (w *Writer) TrySend(m Message) bool {
	select {
	case w.ch <- m:
		return true
	default:
		return false
	}
}

// Send enqueues a message, blocking until accepted. Used for shutdown and
// resize, which must not be dropped.
func (w *Writer) Send(m Message) {
	w.ch <- m
}

// Done is closed when the writer has drained and restored the terminal.
func (w *Writer) Done() <-chan struct{} { return w.done }

// Run is the writer thread. It drains message batches, then redraws the HUD
// when a change is pending and the PTY stream has gone quiet.
func (w *Writer) Run() {
	defer close(w.done)

	w.setNonblock(true)
	defer w.setNonblock(false)

	w.applyScrollRegion()

	for {
		var m Message
		select {
		case m = <-w.ch:
		case <-time.After(drawDeadline):
			w.flushPending()
			w.maybeDraw(time.Now())
			continue
		}

		if !w.handle(m) {
			return
		}

		// Drain whatever else is queued before considering a redraw.
	drain:
		for {
			select {
			case next := <-w.ch:
				if !w.handle(next) {
					return
				}
			default:
				break drain
			}
		}

		w.flushPending()
		w.maybeDraw(time.Now())
	}
}

// handle applies one message to writer state. Returns false on shutdown.
func (w *Writer) handle(m Message) bool {
	switch m.Kind {
	case MsgPty:
		w.write(m.Data)
		w.lastPtyOut = time.Now()

	case MsgStatus:
		if newReserved := m.Snap.ReservedRows(); !w.haveSnap || w.reserved != newReserved {
			w.reservedChanged(newReserved)
		}
		w.snap = m.Snap
		w.haveSnap = true
		w.redrawPending = true

	case MsgOverlayOpen:
		// Opening a new overlay replaces the previous one.
		if w.overlay != nil {
			w.clearOverlay()
		}
		w.overlay = m.Overlay
		w.drawOverlay()
		w.redrawPending = true

	case MsgOverlayClose:
		if w.overlay != nil {
			w.clearOverlay()
			w.overlay = nil
			w.redrawPending = true
		}

	case MsgResize:
		w.resize(m.Rows, m.Cols)

	case MsgMouseMode:
		if m.MouseOn {
			w.write([]byte("\x1b[?1000h\x1b[?1006h"))
		} else {
			w.write([]byte("\x1b[?1006l\x1b[?1000l"))
		}

	case MsgShutdown:
		w.shutdown()
		return false
	}
	return true
}

// maybeDraw redraws the HUD if a change is pending and the PTY stream has
// been quiet long enough. Meter-only churn is throttled further inside
// JetBrains terminals.
func (w *Writer) maybeDraw(now time.Time) {
	if !w.redrawPending || !w.haveSnap {
		return
	}
	if now.Sub(w.lastPtyOut) < quietWindow {
		return
	}
	if w.caps.JetBrains && w.snap.Activity == hud.ActivityRecording &&
		now.Sub(w.lastMeterDraw) < jetbrainsMeterFloor {
		return
	}
	w.drawHUD()
	w.lastMeterDraw = now
	w.redrawPending = false
}

// resize recomputes geometry, reissues the scroll region, and clears rows
// the HUD no longer occupies.
func (w *Writer) resize(rows, cols int) {
	oldDrawn := w.drawnRows
	w.rows = rows
	w.cols = cols
	w.drawnRows = nil

	// Clear every row the HUD occupied before; on shrink the terminal
	// clamps the move, which still lands inside the new HUD area.
	var buf bytes.Buffer
	w.saveCursor(&buf)
	for _, r := range oldDrawn {
		fmt.Fprintf(&buf, "\x1b[%d;1H\x1b[2K", r)
	}
	w.restoreCursor(&buf)
	w.write(buf.Bytes())

	w.applyScrollRegion()
	w.redrawPending = true
}

// reservedChanged handles HUD style transitions (and approval suppression)
// that change the reserved-row count mid-session.
func (w *Writer) reservedChanged(newReserved int) {
	var buf bytes.Buffer
	w.saveCursor(&buf)
	for _, r := range w.drawnRows {
		fmt.Fprintf(&buf, "\x1b[%d;1H\x1b[2K", r)
	}
	w.restoreCursor(&buf)
	w.write(buf.Bytes())
	w.drawnRows = nil
	w.reserved = newReserved
	w.applyScrollRegionFor(newReserved)
}

// applyScrollRegion confines backend scrolling to the rows above the HUD.
func (w *Writer) applyScrollRegion() {
	reserved := w.reserved
	if w.haveSnap {
		reserved = w.snap.ReservedRows()
	}
	w.applyScrollRegionFor(reserved)
}

func (w *Writer) applyScrollRegionFor(reserved int) {
	w.reserved = reserved
	bottom := w.rows - reserved
	if bottom < 1 {
		bottom = 1
	}
	var buf bytes.Buffer
	// DECSTBM moves the cursor home; save and restore around it.
	w.saveCursor(&buf)
	fmt.Fprintf(&buf, "\x1b[1;%dr", bottom)
	w.restoreCursor(&buf)
	w.write(buf.Bytes())
}

// saveCursor emits both ANSI (ESC 7) and DEC (CSI s) saves so either flavor
// of terminal restores correctly.
func (w *Writer) saveCursor(buf *bytes.Buffer) {
	buf.WriteString("\x1b7\x1b[s")
	w.saveDepth++
}

func (w *Writer) restoreCursor(buf *bytes.Buffer) {
	buf.WriteString("\x1b[u\x1b8")
	if w.saveDepth > 0 {
		w.saveDepth--
	}
}

// shutdown restores the terminal: full scroll region, cleared HUD rows,
// cursor shown.
func (w *Writer) shutdown() {
	var buf bytes.Buffer
	buf.WriteString("\x1b[r") // reset scroll region
	for _, r := range w.drawnRows {
		fmt.Fprintf(&buf, "\x1b[%d;1H\x1b[2K", r)
	}
	fmt.Fprintf(&buf, "\x1b[%d;1H", w.rows)
	buf.WriteString("\x1b[?25h\x1b[0m")
	w.write(buf.Bytes())
	w.flushBlocking()
}

// write queues bytes for stdout and attempts an immediate flush. A stalled
// terminal leaves the tail in pending rather than blocking HUD work.
func (w *Writer) write(p []byte) {
	w.pending = append(w.pending, p...)
	w.flushPending()
}

// flushPending writes as much of the buffered output as the terminal will
// take without blocking.
func (w *Writer) flushPending() {
	if len(w.pending) == 0 {
		return
	}
	raw, err := w.out.SyscallConn()
	if err != nil {
		// Fall back to a blocking write.
		w.out.Write(w.pending)
		w.pending = w.pending[:0]
		return
	}
	n := 0
	raw.Control(func(fd uintptr) {
		for n < len(w.pending) {
			m, e := unix.Write(int(fd), w.pending[n:])
			if m > 0 {
				n += m
			}
			if e != nil {
				if e == unix.EINTR {
					continue
				}
				return // EAGAIN or real error: keep the tail
			}
		}
	})
	w.pending = w.pending[n:]
	if len(w.pending) == 0 {
		w.pending = nil
	}
}

// flushBlocking drains everything; used only at shutdown.
func (w *Writer) flushBlocking() {
	w.setNonblock(false)
	if len(w.pending) > 0 {
		w.out.Write(w.pending)
		w.pending = nil
	}
}

func (w *Writer) setNonblock(on bool) {
	if raw, err := w.out.SyscallConn(); err == nil {
		raw.Control(func(fd uintptr) { _ = unix.SetNonblock(int(fd), on) })
	}
}
