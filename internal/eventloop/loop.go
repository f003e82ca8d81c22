// Package eventloop runs the single-threaded select loop that owns all core
// state. Helper threads (input reader, PTY reader, writer, voice worker,
// wake listener) communicate with it exclusively over bounded channels.
package eventloop

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/jguida941/voiceterm-sub001/internal/activitylog"
	"github.com/jguida941/voiceterm-sub001/internal/ansi"
	"github.com/jguida941/voiceterm-sub001/internal/backend"
	"github.com/jguida941/voiceterm-sub001/internal/config"
	"github.com/jguida941/voiceterm-sub001/internal/hud"
	"github.com/jguida941/voiceterm-sub001/internal/input"
	"github.com/jguida941/voiceterm-sub001/internal/promptwatch"
	"github.com/jguida941/voiceterm-sub001/internal/ptysession"
	"github.com/jguida941/voiceterm-sub001/internal/termcap"
	"github.com/jguida941/voiceterm-sub001/internal/transcriptq"
	"github.com/jguida941/voiceterm-sub001/internal/voice"
	"github.com/jguida941/voiceterm-sub001/internal/wake"
	"github.com/jguida941/voiceterm-sub001/internal/writer"
)

const (
	tickInterval    = 50 * time.Millisecond
	voiceCancelWait = 200 * time.Millisecond
	writerDrainWait = time.Second
	errorLineMax    = 32
)

// Options wires the loop's collaborators together.
type Options struct {
	Settings config.Settings
	Backend  backend.Backend
	Env      []string
	Macros   []config.Macro

	Session *ptysession.Session
	Writer  *writer.Writer
	Worker  *voice.Worker
	Wake    *wake.Listener // nil when wake is disabled

	Log    *activitylog.Logger
	Memory *activitylog.Memory

	State *hud.State
	Caps  termcap.Matrix

	OscFg, OscBg string // cached X11 colors for OSC 10/11 replies

	Rows, Cols int
}

// ptyChunk is one batch from the PTY reader. A nil Data marks EOF.
type ptyChunk struct {
	Data []byte
}

// Loop is the event loop. Construct with New, drive with Run.
type Loop struct {
	opts Options

	settings config.Settings
	state    *hud.State
	tracker  *promptwatch.Tracker
	queue    *transcriptq.Queue

	session *ptysession.Session
	scanner ansi.QueryScanner

	inputCh chan []input.Event
	ptyCh   chan ptyChunk
	winchCh chan os.Signal

	parser *input.Parser

	// ptyPending holds injection bytes the PTY refused (WouldBlock).
	ptyPending []byte

	// deferred holds a writer batch that did not fit the writer channel.
	deferred [][]byte

	lastWinch    [2]int
	sawPtyOutput bool
	voiceActive  bool
	overlayOpen  writer.OverlayKind
	hasOverlay   bool
	devPanel     bool

	errorLines    []string // recent stripped lines matching error patterns
	transcripts   []string // history for the Ctrl+H overlay
	notifications []string // history for the Ctrl+N overlay

	autoRearmAt  time.Time
	promptLogged bool

	quit       bool
	exitReason string
}

var errLineRe = regexp.MustCompile(`(?i)\b(error|panic|exception|failed|traceback)\b`)

// New builds a loop from options.
func New(opts Options) *Loop {
	var re *regexp.Regexp
	if opts.Settings.PromptRegex != "" {
		re = regexp.MustCompile(opts.Settings.PromptRegex)
	}
	idle := time.Duration(opts.Settings.TranscriptIdleMs) * time.Millisecond
	l := &Loop{
		opts:     opts,
		settings: opts.Settings,
		state:    opts.State,
		tracker:  promptwatch.New(re, idle, opts.Backend.ApprovalPatterns),
		queue:    transcriptq.New(transcriptq.DefaultCapacity, opts.Settings.MergeSeparator),
		session:  opts.Session,
		inputCh:  make(chan []input.Event, 64),
		ptyCh:    make(chan ptyChunk, 64),
		winchCh:  make(chan os.Signal, 1),
		parser:   input.NewParser(),
	}
	l.devPanel = os.Getenv("VOICETERM_DEV") != ""
	return l
}

// Run starts the helper threads and processes events until shutdown. The
// returned reason is "exit" or "interrupt".
func (l *Loop) Run() string {
	go l.readInput()
	go l.readPty(l.session)

	signal.Notify(l.winchCh, syscall.SIGWINCH)
	defer signal.Stop(l.winchCh)

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt)
	defer signal.Stop(sigint)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	wakeCh := make(chan wake.Detection)
	wakeFail := make(chan struct{})
	if l.opts.Wake != nil {
		wakeCh = l.opts.Wake.Detections
		wakeFail = l.opts.Wake.Failed
	}

	l.pushStatus()

	for !l.quit {
		select {
		case events := <-l.inputCh:
			l.handleInputBatch(events)
		case msg := <-l.opts.Worker.Events:
			l.handleVoice(msg)
		case det := <-wakeCh:
			l.handleWake(det)
		case <-wakeFail:
			l.state.WakeErr = true
			l.state.SetStatus("wake listener failed", hud.SeverityWarn, 5*time.Second)
			l.notify("wake listener failed")
			wakeFail = make(chan struct{}) // fire once
		case chunk := <-l.ptyCh:
			l.handlePty(chunk)
		case <-l.winchCh:
			l.handleResize()
		case <-sigint:
			l.exitReason = "interrupt"
			l.quit = true
		case now := <-ticker.C:
			l.handleTick(now)
		}

		// Drain remaining queued work in the documented order before the
		// next blocking select: input, voice, wake, pty.
		l.drain(wakeCh)

		l.flushPtyPending()
		l.retryDeferred()
		l.pushStatus()
	}

	l.shutdown()
	return l.exitReason
}

func (l *Loop) drain(wakeCh chan wake.Detection) {
	for {
		select {
		case events := <-l.inputCh:
			l.handleInputBatch(events)
			continue
		default:
		}
		select {
		case msg := <-l.opts.Worker.Events:
			l.handleVoice(msg)
			continue
		default:
		}
		select {
		case det := <-wakeCh:
			l.handleWake(det)
			continue
		default:
		}
		select {
		case chunk := <-l.ptyCh:
			l.handlePty(chunk)
			continue
		default:
		}
		return
	}
}

// readInput is the stdin reader thread.
func (l *Loop) readInput() {
	buf := make([]byte, 1024)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			events := l.parser.Feed(buf[:n])
			if len(events) > 0 {
				l.inputCh <- events
			}
		}
		if err != nil {
			return
		}
	}
}

// readPty is the PTY reader thread. Chunks are coalesced by the large read
// buffer; EOF is signaled with a nil chunk.
func (l *Loop) readPty(s *ptysession.Session) {
	buf := make([]byte, 8192)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			l.ptyCh <- ptyChunk{Data: append([]byte(nil), buf[:n]...)}
		}
		if err != nil || n == 0 {
			l.ptyCh <- ptyChunk{}
			return
		}
	}
}

// handlePty forwards backend output to the writer, answers terminal
// queries, and feeds the prompt tracker.
func (l *Loop) handlePty(chunk ptyChunk) {
	if chunk.Data == nil {
		l.state.BackendExited = true
		l.state.Activity = hud.ActivityReady
		l.state.RedrawPending = true
		return
	}

	if !l.sawPtyOutput {
		l.sawPtyOutput = true
		l.parser.SetSuppressArrows(false)
	}

	// Terminal queries are answered before the bytes reach the writer so
	// the child sees consistent state even while we intercept input.
	for _, q := range l.scanner.Scan(chunk.Data) {
		switch q {
		case ansi.QueryCursorPos:
			rows, _ := l.session.Size()
			l.session.ReplyCursorPos(rows, 1)
		case ansi.QueryDeviceAttrs:
			l.session.ReplyDeviceAttrs()
		case ansi.QueryOSCFg:
			l.session.ReplyOSCColor(10, l.opts.OscFg)
		case ansi.QueryOSCBg:
			l.session.ReplyOSCColor(11, l.opts.OscBg)
		}
	}

	if !l.opts.Writer.TrySend(writer.Message{Kind: writer.MsgPty, Data: chunk.Data}) {
		l.deferred = append(l.deferred, chunk.Data)
	}

	now := time.Now()
	for _, ev := range l.tracker.Feed(chunk.Data, now) {
		l.handleTrackerEvent(ev)
	}
	l.recordErrorLines()

	if l.state.Activity == hud.ActivityReady && !l.tracker.AtPrompt() {
		l.state.Activity = hud.ActivityResponding
		l.state.RedrawPending = true
	}
}

// recordErrorLines keeps a short ring of recent error-looking output lines
// for the voice-navigation commands.
func (l *Loop) recordErrorLines() {
	line := l.tracker.LastLine()
	if line == "" || !errLineRe.MatchString(line) {
		return
	}
	if n := len(l.errorLines); n > 0 && l.errorLines[n-1] == line {
		return
	}
	l.errorLines = append(l.errorLines, line)
	if len(l.errorLines) > errorLineMax {
		l.errorLines = l.errorLines[len(l.errorLines)-errorLineMax:]
	}
}

func (l *Loop) handleTrackerEvent(ev promptwatch.Event) {
	switch ev.Kind {
	case promptwatch.PromptReady, promptwatch.IdleReady:
		if l.state.Activity == hud.ActivityResponding {
			l.state.Activity = hud.ActivityReady
			l.state.RedrawPending = true
		}
		if learned := l.tracker.Learned(); learned != "" && !l.promptLogged {
			l.promptLogged = true
			l.opts.Log.PromptLearned(learned)
		}
		l.flushQueue()
		l.maybeAutoVoice()
		if l.opts.Memory != nil && ev.Kind == promptwatch.PromptReady {
			l.opts.Memory.Assistant(l.tracker.LastLine())
		}

	case promptwatch.ApprovalPrompt:
		l.state.ApprovalSuppressed = true
		l.state.RedrawPending = true

	case promptwatch.ApprovalCleared:
		l.state.ApprovalSuppressed = false
		l.state.RedrawPending = true
	}
}

// flushQueue merges all pending transcripts into one injection.
func (l *Loop) flushQueue() {
	text, ok := l.queue.Flush(l.settings.SendMode)
	if !ok {
		return
	}
	l.inject(text, "queue")
	l.state.QueueDepth = 0
	l.state.RedrawPending = true
}

// inject writes text into the PTY, surviving WouldBlock by queueing the
// tail for the next tick.
func (l *Loop) inject(text, origin string) {
	l.opts.Log.Inject(origin, text)
	if l.opts.Memory != nil {
		l.opts.Memory.User(strings.TrimRight(text, "\n"))
	}
	l.ptyPending = append(l.ptyPending, text...)
	l.flushPtyPending()
}

func (l *Loop) flushPtyPending() {
	if len(l.ptyPending) == 0 {
		return
	}
	n, err := l.session.Write(l.ptyPending)
	l.ptyPending = l.ptyPending[n:]
	if len(l.ptyPending) == 0 {
		l.ptyPending = nil
	}
	if err != nil && err != ptysession.ErrWouldBlock {
		// Broken-pipe family at exit time is benign.
		l.opts.Log.Error("pty-write", err.Error())
		l.ptyPending = nil
	}
}

func (l *Loop) retryDeferred() {
	for len(l.deferred) > 0 {
		if !l.opts.Writer.TrySend(writer.Message{Kind: writer.MsgPty, Data: l.deferred[0]}) {
			return
		}
		l.deferred = l.deferred[1:]
	}
}

// handleResize propagates a SIGWINCH. Exact duplicates of the last seen
// size are skipped; everything else always propagates.
func (l *Loop) handleResize() {
	cols, rows, err := termSize()
	if err != nil {
		return
	}
	if l.lastWinch == [2]int{rows, cols} {
		return
	}
	l.lastWinch = [2]int{rows, cols}
	l.opts.Rows, l.opts.Cols = rows, cols

	childRows := rows - l.state.ReservedRows()
	if childRows < 1 {
		childRows = 1
	}
	if err := l.session.Resize(childRows, cols); err != nil {
		l.opts.Log.Error("resize", err.Error())
	}
	l.opts.Writer.Send(writer.Message{Kind: writer.MsgResize, Rows: rows, Cols: cols})
	l.state.RedrawPending = true
}

// handleTick drives animation, status expiry, idle detection, and the
// transcript idle-flush.
func (l *Loop) handleTick(now time.Time) {
	if l.state.Activity == hud.ActivityProcessing || l.state.Activity == hud.ActivityResponding {
		l.state.NextSpinner()
		l.state.RedrawPending = true
	}
	l.state.ExpireStatus(now)

	for _, ev := range l.tracker.CheckIdle(now) {
		l.handleTrackerEvent(ev)
	}

	// Transcript idle-fallback: a quiet backend flushes the queue even
	// without a recognized prompt.
	if l.queue.Len() > 0 {
		if last, ok := l.tracker.LastOutput(); ok {
			idle := time.Duration(l.settings.TranscriptIdleMs) * time.Millisecond
			if now.Sub(last) >= idle {
				l.flushQueue()
			}
		}
	}

	l.maybeAutoVoice()

	l.state.FramesDropped = l.opts.Worker.DroppedFrames()
	l.state.QueueDropped = l.queue.Dropped()
}

// maybeAutoVoice re-arms capture in auto mode once the backend is ready.
func (l *Loop) maybeAutoVoice() {
	if l.state.Mode != hud.ModeAuto || l.voiceActive || l.state.BackendExited {
		return
	}
	if !l.tracker.AtPrompt() {
		return
	}
	if time.Now().Before(l.autoRearmAt) {
		return
	}
	l.startVoice(voice.OriginAuto)
}

func (l *Loop) voiceConfig() voice.Config {
	return voice.Config{
		ThresholdDb: l.settings.VadThresholdDb,
		SilenceTail: time.Duration(l.settings.SilenceTailMs) * time.Millisecond,
		MinSpeech:   time.Duration(l.settings.MinSpeechMs) * time.Millisecond,
		MaxCapture:  time.Duration(l.settings.MaxCaptureMs) * time.Millisecond,
		LookbackMs:  l.settings.LookbackMs,
	}
}

func (l *Loop) startVoice(origin voice.Origin) {
	l.voiceActive = true
	l.opts.Worker.Start(origin, l.voiceConfig())
}

// handleVoice applies one voice-worker lifecycle message.
func (l *Loop) handleVoice(msg voice.Message) {
	switch msg.Kind {
	case voice.MsgStarted:
		l.state.Activity = hud.ActivityRecording
		if msg.Origin == voice.OriginManual {
			l.state.Mode = hud.ModePTT
		}
		l.state.RedrawPending = true

	case voice.MsgMeter:
		l.state.Meter.Push(msg.Level)
		l.state.RedrawPending = true

	case voice.MsgPartial:
		l.state.Activity = hud.ActivityProcessing
		l.state.SetStatus(msg.Stage, hud.SeverityInfo, 0)

	case voice.MsgTranscript:
		l.voiceActive = false
		l.state.Activity = hud.ActivityReady
		l.state.Latency.Push(msg.Transcript.SttMs)
		l.state.LastSttMs = msg.Transcript.SttMs
		l.transcripts = append(l.transcripts, msg.Transcript.Text)
		l.state.SetStatus("Ready", hud.SeverityInfo, 2*time.Second)
		l.opts.Log.Transcript(msg.Origin.String(), msg.Transcript.SttMs)
		l.dispatchTranscript(msg.Transcript)
		l.afterVoice(msg.Origin)

	case voice.MsgEmpty:
		l.voiceActive = false
		l.state.Activity = hud.ActivityReady
		l.state.SetStatus("no speech detected", hud.SeverityWarn, 3*time.Second)
		l.afterVoice(msg.Origin)

	case voice.MsgError:
		l.voiceActive = false
		l.state.Activity = hud.ActivityReady
		l.surfaceVoiceError(msg)
		l.afterVoice(msg.Origin)

	case voice.MsgCancelled:
		l.voiceActive = false
		l.state.Activity = hud.ActivityReady
		l.state.SetStatus("capture cancelled", hud.SeverityInfo, 2*time.Second)
	}
	if l.state.Mode == hud.ModePTT && !l.voiceActive {
		l.state.Mode = hud.ModeIdle
	}
}

// afterVoice schedules the auto-voice rearm window.
func (l *Loop) afterVoice(origin voice.Origin) {
	if origin == voice.OriginAuto {
		l.autoRearmAt = time.Now().Add(time.Duration(l.settings.AutoVoiceIdleMs) * time.Millisecond)
	}
}

func (l *Loop) surfaceVoiceError(msg voice.Message) {
	label := map[voice.ErrKind]string{
		voice.ErrDeviceLost:       "audio device lost",
		voice.ErrModelLoad:        "model load failed",
		voice.ErrInferenceTimeout: "transcription timed out",
		voice.ErrRuntime:          "transcription failed",
	}[msg.ErrKind]
	if l.opts.Log.Enabled() {
		label = fmt.Sprintf("%s (log: %s)", label, l.opts.Log.Path())
	}
	l.state.SetStatus(label, hud.SeverityError, 6*time.Second)
	l.notify(label)
	l.opts.Log.Error("voice", msg.Err.Error())
}

// notify appends to the Ctrl+N notification history.
func (l *Loop) notify(text string) {
	l.notifications = append(l.notifications, time.Now().Format("15:04:05 ")+text)
	if len(l.notifications) > errorLineMax {
		l.notifications = l.notifications[len(l.notifications)-errorLineMax:]
	}
}

// capsMatrix returns the session's capability matrix for theme reloads.
func (l *Loop) capsMatrix() termcap.Matrix { return l.opts.Caps }

// spawnBackend starts the backend in a fresh PTY.
func spawnBackend(b backend.Backend, env []string, childRows, cols int) (*ptysession.Session, error) {
	return ptysession.Spawn(b.Command, b.Args, env, childRows, cols)
}

// dispatchTranscript resolves macros and built-ins, then injects or queues.
func (l *Loop) dispatchTranscript(t voice.Transcript) {
	r := transcriptq.Resolve(t.Text, l.opts.Macros, l.settings.MacrosEnabled)
	switch r.Kind {
	case transcriptq.ActionScrollUp:
		l.ptyPending = append(l.ptyPending, "\x1b[5~"...) // Page Up
	case transcriptq.ActionScrollDown:
		l.ptyPending = append(l.ptyPending, "\x1b[6~"...) // Page Down
	case transcriptq.ActionShowLastError:
		l.openOverlay(writer.OverlayToasts, "Last error", l.lastErrors(8))
	case transcriptq.ActionCopyLastError:
		l.copyLastError()
	case transcriptq.ActionExplainLastError:
		if line := l.lastError(); line != "" {
			t2 := t
			t2.Text = "explain this error: " + line
			l.queueOrInject(t2, r.ModeOverride)
		}
	default:
		t.Text = r.Text
		l.queueOrInject(t, r.ModeOverride)
	}
	l.flushPtyPending()
}

// queueOrInject injects immediately at a known ready prompt with an empty
// queue; otherwise it enqueues for the next flush point.
func (l *Loop) queueOrInject(t voice.Transcript, override config.SendMode) {
	if t.Text == "" {
		return
	}
	if l.tracker.AtPrompt() && l.queue.Len() == 0 {
		l.inject(transcriptq.Render(t, override, l.settings.SendMode), t.Origin.String())
		return
	}
	l.queue.Push(transcriptq.Item{Transcript: t, ModeOverride: override})
	l.state.QueueDepth = l.queue.Len()
	l.state.RedrawPending = true
}

func (l *Loop) lastError() string {
	if len(l.errorLines) == 0 {
		return ""
	}
	return l.errorLines[len(l.errorLines)-1]
}

func (l *Loop) lastErrors(n int) []string {
	if len(l.errorLines) == 0 {
		return []string{"(no errors seen)"}
	}
	start := len(l.errorLines) - n
	if start < 0 {
		start = 0
	}
	return append([]string(nil), l.errorLines[start:]...)
}

// copyLastError places the last error line on the clipboard via OSC 52.
func (l *Loop) copyLastError() {
	line := l.lastError()
	if line == "" {
		l.state.SetStatus("no error to copy", hud.SeverityWarn, 2*time.Second)
		return
	}
	seq := "\x1b]52;c;" + base64Encode(line) + "\x07"
	l.opts.Writer.Send(writer.Message{Kind: writer.MsgPty, Data: []byte(seq)})
	l.state.SetStatus("copied last error", hud.SeverityInfo, 2*time.Second)
}

// handleWake starts a voice job on a wake-phrase detection.
func (l *Loop) handleWake(det wake.Detection) {
	if l.voiceActive || l.state.BackendExited {
		return
	}
	l.state.SetStatus("wake: "+det.Phrase, hud.SeverityInfo, 2*time.Second)
	l.startVoice(voice.OriginWake)
}

// pushStatus forwards a snapshot to the writer when a redraw is pending and
// the channel has room. Redundant drops are fine: the next change re-sends.
func (l *Loop) pushStatus() {
	if !l.state.RedrawPending {
		return
	}
	if l.opts.Writer.TrySend(writer.Message{Kind: writer.MsgStatus, Snap: l.state.Snapshot()}) {
		l.state.RedrawPending = false
	}
}

// shutdown tears everything down in order: voice job, writer, PTY session.
func (l *Loop) shutdown() {
	if l.voiceActive {
		l.opts.Worker.Cancel()
		deadline := time.After(voiceCancelWait)
	waitCancel:
		for {
			select {
			case msg := <-l.opts.Worker.Events:
				switch msg.Kind {
				case voice.MsgCancelled, voice.MsgEmpty, voice.MsgError, voice.MsgTranscript:
					break waitCancel
				}
			case <-deadline:
				l.opts.Log.Error("voice", "cancel not acknowledged in time")
				break waitCancel
			}
		}
	}

	l.opts.Writer.Send(writer.Message{Kind: writer.MsgShutdown})
	select {
	case <-l.opts.Writer.Done():
	case <-time.After(writerDrainWait):
	}

	if err := l.session.Close(); err != nil {
		l.opts.Log.Error("pty-close", err.Error())
	}
	l.opts.Log.SessionEnd(l.exitReason)
}
