// Package hud models the heads-up display state the writer renders. The
// event loop is the sole mutator; the writer receives cheap snapshots.
package hud

import (
	"time"

	"github.com/jguida941/voiceterm-sub001/internal/config"
)

// Mode is the voice mode shown in the HUD.
type Mode int

const (
	ModeIdle Mode = iota
	ModePTT       // push-to-talk capture in progress
	ModeAuto      // auto-voice armed
)

func (m Mode) String() string {
	switch m {
	case ModePTT:
		return "PTT"
	case ModeAuto:
		return "AUTO"
	default:
		return "IDLE"
	}
}

// Activity is the pipeline state shown in the HUD.
type Activity int

const (
	ActivityReady Activity = iota
	ActivityRecording
	ActivityProcessing
	ActivityResponding
)

func (a Activity) String() string {
	switch a {
	case ActivityRecording:
		return "Recording"
	case ActivityProcessing:
		return "Processing"
	case ActivityResponding:
		return "Responding"
	default:
		return "Ready"
	}
}

// Severity colors a status message.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

// Status is a transient status-line message.
type Status struct {
	Text     string
	Severity Severity
	Expires  time.Time // zero = sticky
}

// State is the full HUD model.
type State struct {
	Mode     Mode
	Activity Activity
	Style    config.HudStyle
	SendMode config.SendMode

	Meter   *MeterRing
	Latency *LatencyRing

	QueueDepth    int
	QueueDropped  uint64
	FramesDropped uint64

	WakeEnabled bool
	WakeErr     bool

	Status Status

	MacrosOn       bool
	VadThresholdDb float64
	LastSttMs      int

	// ApprovalSuppressed collapses reserved rows to zero while the backend
	// shows a permission prompt.
	ApprovalSuppressed bool

	BackendExited bool
	BackendName   string

	// DebugKeys adds a bottom row showing recent keystrokes
	// (VOICETERM_DEBUG_KEYS).
	DebugKeys   bool
	DebugKeyBuf []string

	SpinnerFrame int

	Theme Theme

	// RedrawPending is the explicit gate: the loop forwards a snapshot to
	// the writer only when something actually changed.
	RedrawPending bool
}

// NewState builds the initial HUD state from settings.
func NewState(s config.Settings, theme Theme) *State {
	st := &State{
		Style:          s.HudStyle,
		SendMode:       s.SendMode,
		VadThresholdDb: s.VadThresholdDb,
		MacrosOn:       s.MacrosEnabled,
		Meter:          NewMeterRing(32),
		Latency:        NewLatencyRing(16),
		Theme:          theme,
		RedrawPending:  true,
	}
	if s.AutoVoice {
		st.Mode = ModeAuto
	}
	return st
}

// ReservedRows returns how many bottom rows the current style claims.
// Approval suppression wins over everything; the debug key view adds one.
func (s *State) ReservedRows() int {
	if s.ApprovalSuppressed {
		return 0
	}
	var r int
	switch s.Style {
	case config.HudFull:
		r = 2
	case config.HudMinimal:
		r = 1
	default: // hidden: one row only while recording
		if s.Activity == ActivityRecording {
			r = 1
		}
	}
	if s.DebugKeys {
		r++
	}
	return r
}

// maxDebugKeys bounds the keystroke history shown in the debug row.
const maxDebugKeys = 10

// AppendDebugKeys records formatted keystrokes for the debug row.
func (s *State) AppendDebugKeys(keys []string) {
	if !s.DebugKeys || len(keys) == 0 {
		return
	}
	s.DebugKeyBuf = append(s.DebugKeyBuf, keys...)
	if len(s.DebugKeyBuf) > maxDebugKeys {
		s.DebugKeyBuf = s.DebugKeyBuf[len(s.DebugKeyBuf)-maxDebugKeys:]
	}
	s.RedrawPending = true
}

// SetStatus replaces the status message with an expiry.
func (s *State) SetStatus(text string, sev Severity, ttl time.Duration) {
	st := Status{Text: text, Severity: sev}
	if ttl > 0 {
		st.Expires = time.Now().Add(ttl)
	}
	s.Status = st
	s.RedrawPending = true
}

// ExpireStatus clears a stale status message; returns true if it changed.
func (s *State) ExpireStatus(now time.Time) bool {
	if s.Status.Text != "" && !s.Status.Expires.IsZero() && now.After(s.Status.Expires) {
		s.Status = Status{}
		s.RedrawPending = true
		return true
	}
	return false
}

// Snapshot returns a copy for the writer: small struct plus copied rings.
func (s *State) Snapshot() State {
	cp := *s
	cp.Meter = s.Meter.Clone()
	cp.Latency = s.Latency.Clone()
	cp.DebugKeyBuf = append([]string(nil), s.DebugKeyBuf...)
	return cp
}

// NextSpinner advances the spinner animation.
func (s *State) NextSpinner() {
	s.SpinnerFrame = (s.SpinnerFrame + 1) % len(spinnerFrames)
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner returns the current animation glyph.
func (s *State) Spinner() string { return spinnerFrames[s.SpinnerFrame] }
