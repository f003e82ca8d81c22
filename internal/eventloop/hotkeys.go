package eventloop

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/jguida941/voiceterm-sub001/internal/config"
	"github.com/jguida941/voiceterm-sub001/internal/hud"
	"github.com/jguida941/voiceterm-sub001/internal/input"
	"github.com/jguida941/voiceterm-sub001/internal/voice"
	"github.com/jguida941/voiceterm-sub001/internal/writer"
)

func termSize() (cols, rows int, err error) {
	return term.GetSize(int(os.Stdin.Fd()))
}

func base64Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// handleInputBatch processes decoded stdin events.
func (l *Loop) handleInputBatch(events []input.Event) {
	if l.state.DebugKeys {
		l.recordDebugKeys(events)
	}
	for _, ev := range events {
		switch ev.Kind {
		case input.EvBytes:
			if l.state.BackendExited {
				l.handleExitedKeys(ev.Bytes)
				continue
			}
			if l.hasOverlay {
				if l.handleOverlayKeys(ev.Bytes) {
					continue
				}
			}
			l.ptyPending = append(l.ptyPending, ev.Bytes...)

		case input.EvHotkey:
			l.handleHotkey(ev.Hotkey)

		case input.EvMouse:
			// Click events only; the parser drops wheel and motion.
			if ev.Mouse.Press && l.hasOverlay {
				l.closeOverlay()
			}

		case input.EvFocusGain, input.EvFocusLoss:
			// Focus notifications are not forwarded; the backend did not
			// request them from us.
		}
	}
	l.flushPtyPending()
}

// recordDebugKeys feeds the debug keystroke row (VOICETERM_DEBUG_KEYS).
func (l *Loop) recordDebugKeys(events []input.Event) {
	var keys []string
	for _, ev := range events {
		switch ev.Kind {
		case input.EvBytes, input.EvHotkey:
			for _, b := range ev.Bytes {
				keys = append(keys, input.FormatDebugKey(b))
			}
		case input.EvMouse:
			keys = append(keys, "(mouse)")
		}
	}
	l.state.AppendDebugKeys(keys)
}

// handleExitedKeys implements the backend-exited prompt: Enter relaunches,
// q quits.
func (l *Loop) handleExitedKeys(data []byte) {
	for _, b := range data {
		switch b {
		case '\r', '\n':
			l.relaunch()
			return
		case 'q', 'Q':
			l.exitReason = "exit"
			l.quit = true
			return
		}
	}
}

// relaunch spawns a fresh backend in a new PTY after an exit.
func (l *Loop) relaunch() {
	rows, cols := l.opts.Rows, l.opts.Cols
	childRows := rows - l.state.ReservedRows()
	if childRows < 1 {
		childRows = 1
	}
	sess, err := spawnBackend(l.opts.Backend, l.opts.Env, childRows, cols)
	if err != nil {
		l.state.SetStatus("relaunch failed: "+err.Error(), hud.SeverityError, 5*time.Second)
		return
	}
	l.session = sess
	l.opts.Session = sess
	l.session.StartLifelineWatchdog()
	l.state.BackendExited = false
	l.state.RedrawPending = true
	l.sawPtyOutput = false
	l.parser.SetSuppressArrows(true)
	go l.readPty(sess)
	l.opts.Log.SessionStart("relaunch " + l.opts.Backend.Command)
}

// handleOverlayKeys consumes keys while an overlay is open. Esc or q closes;
// the settings overlay also takes +/- for the VAD threshold. Returns true
// when the bytes were consumed.
func (l *Loop) handleOverlayKeys(data []byte) bool {
	for _, b := range data {
		switch b {
		case 0x1B, 'q':
			l.closeOverlay()
		case '+', '=':
			if l.overlayOpen == writer.OverlaySettings {
				l.adjustThreshold(+2)
			}
		case '-', '_':
			if l.overlayOpen == writer.OverlaySettings {
				l.adjustThreshold(-2)
			}
		}
	}
	return true
}

func (l *Loop) adjustThreshold(delta float64) {
	l.settings.VadThresholdDb += delta
	l.state.VadThresholdDb = l.settings.VadThresholdDb
	l.opts.Worker.SetThreshold(l.settings.VadThresholdDb)
	l.openOverlay(writer.OverlaySettings, "Settings", l.settingsLines())
	l.state.SetStatus(fmt.Sprintf("VAD threshold %.0f dB", l.settings.VadThresholdDb), hud.SeverityInfo, 2*time.Second)
}

// handleHotkey dispatches one intercepted control key.
func (l *Loop) handleHotkey(hk input.Hotkey) {
	switch hk {
	case input.HotkeyVoiceToggle:
		l.toggleVoice()

	case input.HotkeySendNow:
		if l.voiceActive {
			l.state.SetStatus("Finalizing capture...", hud.SeverityInfo, 0)
			l.opts.Worker.Finish()
		} else {
			l.flushQueue()
		}

	case input.HotkeySendMode:
		if l.settings.SendMode == config.SendAuto {
			l.settings.SendMode = config.SendInsert
		} else {
			l.settings.SendMode = config.SendAuto
		}
		l.state.SendMode = l.settings.SendMode
		l.state.SetStatus("send mode: "+string(l.settings.SendMode), hud.SeverityInfo, 2*time.Second)

	case input.HotkeyModeCycle:
		if l.state.Mode == hud.ModeAuto {
			l.state.Mode = hud.ModeIdle
			if l.voiceActive {
				// Auto-voice toggled off cancels the in-flight capture.
				l.opts.Worker.Cancel()
			}
			l.state.SetStatus("auto-voice off", hud.SeverityInfo, 2*time.Second)
		} else {
			l.state.Mode = hud.ModeAuto
			l.state.SetStatus("auto-voice on", hud.SeverityInfo, 2*time.Second)
			l.maybeAutoVoice()
		}
		l.state.RedrawPending = true

	case input.HotkeyHudStyle:
		l.state.Style = nextHudStyle(l.state.Style)
		l.state.SetStatus("hud: "+string(l.state.Style), hud.SeverityInfo, 2*time.Second)
		l.applyReservedRows()

	case input.HotkeyThemeCycle:
		l.cycleTheme()

	case input.HotkeyThemeStudio:
		l.openOverlay(writer.OverlayThemeStudio, "Theme studio", l.themeStudioLines())

	case input.HotkeySettings:
		l.openOverlay(writer.OverlaySettings, "Settings", l.settingsLines())

	case input.HotkeyTranscripts:
		l.openOverlay(writer.OverlayTranscripts, "Transcripts", l.transcriptLines())

	case input.HotkeyNotifications:
		l.openOverlay(writer.OverlayNotifications, "Notifications", l.notificationLines())

	case input.HotkeyDevPanel:
		if l.devPanel {
			l.openOverlay(writer.OverlayToasts, "Dev", l.devLines())
		}

	case input.HotkeyHelp:
		l.openOverlay(writer.OverlayHelp, "Help", helpLines)
	}
}

// toggleVoice is Ctrl+R: start a manual capture, or stop the active one.
func (l *Loop) toggleVoice() {
	if l.state.BackendExited {
		return
	}
	if l.voiceActive {
		l.opts.Worker.Finish()
		return
	}
	l.startVoice(voice.OriginManual)
}

// applyReservedRows resizes the child when the reserved-row count changes.
func (l *Loop) applyReservedRows() {
	rows, cols := l.opts.Rows, l.opts.Cols
	childRows := rows - l.state.ReservedRows()
	if childRows < 1 {
		childRows = 1
	}
	if err := l.session.Resize(childRows, cols); err != nil {
		l.opts.Log.Error("resize", err.Error())
	}
	l.state.RedrawPending = true
}

func nextHudStyle(s config.HudStyle) config.HudStyle {
	switch s {
	case config.HudFull:
		return config.HudMinimal
	case config.HudMinimal:
		return config.HudHidden
	default:
		return config.HudFull
	}
}

func (l *Loop) cycleTheme() {
	name := hud.NextTheme(l.state.Theme.Name)
	l.state.Theme = hud.Load(name, l.capsMatrix())
	l.state.SetStatus("theme: "+name, hud.SeverityInfo, 2*time.Second)
}

func (l *Loop) openOverlay(kind writer.OverlayKind, title string, lines []string) {
	l.overlayOpen = kind
	l.hasOverlay = true
	l.opts.Writer.Send(writer.Message{Kind: writer.MsgOverlayOpen, Overlay: &writer.Overlay{
		Kind:  kind,
		Title: title,
		Lines: lines,
	}})
}

func (l *Loop) closeOverlay() {
	if !l.hasOverlay {
		return
	}
	l.hasOverlay = false
	l.opts.Writer.Send(writer.Message{Kind: writer.MsgOverlayClose})
}

var helpLines = []string{
	"Ctrl+R  start/stop voice capture",
	"Ctrl+E  send now / flush queue",
	"Ctrl+V  toggle send mode (auto/insert)",
	"Ctrl+T  toggle auto-voice",
	"Ctrl+U  cycle HUD style",
	"Ctrl+G  cycle theme",
	"Ctrl+O  settings",
	"Ctrl+H  transcript history",
	"Ctrl+N  notifications",
	"voice scroll up / scroll down",
	"voice show last error / explain last error",
	"Esc or q closes this panel",
}

func (l *Loop) settingsLines() []string {
	return []string{
		fmt.Sprintf("backend:          %s", l.opts.Backend.Name),
		fmt.Sprintf("send mode:        %s", l.settings.SendMode),
		fmt.Sprintf("vad threshold:    %.0f dB   (+/- adjusts)", l.settings.VadThresholdDb),
		fmt.Sprintf("silence tail:     %d ms", l.settings.SilenceTailMs),
		fmt.Sprintf("max capture:      %d ms", l.settings.MaxCaptureMs),
		fmt.Sprintf("lookback:         %d ms", l.settings.LookbackMs),
		fmt.Sprintf("macros:           %v", l.settings.MacrosEnabled),
		fmt.Sprintf("hud style:        %s", l.state.Style),
	}
}

func (l *Loop) themeStudioLines() []string {
	return []string{
		"active theme: " + l.state.Theme.Name,
		"Ctrl+G cycles: slate, amber, mono",
	}
}

func (l *Loop) transcriptLines() []string {
	if len(l.transcripts) == 0 {
		return []string{"(no transcripts yet)"}
	}
	start := len(l.transcripts) - 10
	if start < 0 {
		start = 0
	}
	return append([]string(nil), l.transcripts[start:]...)
}

func (l *Loop) notificationLines() []string {
	if len(l.notifications) == 0 {
		return []string{"(no notifications)"}
	}
	start := len(l.notifications) - 10
	if start < 0 {
		start = 0
	}
	return append([]string(nil), l.notifications[start:]...)
}

func (l *Loop) devLines() []string {
	return []string{
		fmt.Sprintf("queue: %d (dropped %d)", l.queue.Len(), l.queue.Dropped()),
		fmt.Sprintf("meter drops: %d", l.opts.Worker.DroppedMeters()),
		fmt.Sprintf("pty pending: %d bytes", len(l.ptyPending)),
		fmt.Sprintf("deferred writer batches: %d", len(l.deferred)),
		fmt.Sprintf("learned prompt: %q", l.tracker.Learned()),
	}
}
