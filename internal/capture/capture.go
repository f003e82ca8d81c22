// Package capture turns a stream of VAD-classified audio frames into one
// utterance buffer per voice job.
package capture

import (
	"time"

	"github.com/jguida941/voiceterm-sub001/internal/audio"
)

// State is the capture machine's current phase.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateSpeaking
	StateTrailing
	StateDone
	StateEmpty
)

// ManualGrace is the extra silence tail granted in manual (push-to-talk)
// mode so a brief pause does not cut the capture short.
const ManualGrace = 400 * time.Millisecond

// Config bounds one capture.
type Config struct {
	SilenceTail time.Duration // trailing silence that ends the capture
	MinSpeech   time.Duration // minimum cumulative speech to transcribe
	MaxCapture  time.Duration // hard ceiling on buffer duration
}

// Machine consumes frames and accumulates one utterance. Time is measured in
// audio samples, not wall clock, so behavior is deterministic under test.
type Machine struct {
	cfg Config

	state    State
	buf      []int16
	speech   int // cumulative speech samples
	trailing int // consecutive silence samples since speech
}

// New returns a machine in the Armed state, pre-rolled with the lookback
// ring's retained audio.
func New(cfg Config, lookback *audio.LookbackRing) *Machine {
	m := &Machine{cfg: cfg, state: StateArmed}
	if lookback != nil {
		m.buf = lookback.Drain()
	}
	return m
}

// State returns the current phase.
func (m *Machine) State() State { return m.state }

// Feed processes one frame with its VAD decision. It returns true once the
// machine has reached a terminal state (Done or Empty).
func (m *Machine) Feed(f audio.Frame, speech bool) bool {
	if m.state == StateDone || m.state == StateEmpty {
		return true
	}

	m.buf = append(m.buf, f.Samples...)

	if speech {
		m.speech += len(f.Samples)
		m.trailing = 0
		switch m.state {
		case StateArmed, StateTrailing:
			m.state = StateSpeaking
		}
	} else if m.state == StateSpeaking || m.state == StateTrailing {
		m.state = StateTrailing
		m.trailing += len(f.Samples)
		if audio.DurationOf(m.trailing) >= m.cfg.SilenceTail {
			if m.speechDuration() >= m.cfg.MinSpeech {
				m.state = StateDone
				return true
			}
			// Too little speech to transcribe: rearm and keep listening
			// until more speech arrives or the capture ceiling is hit.
			m.state = StateArmed
			m.trailing = 0
		}
	}

	if audio.DurationOf(len(m.buf)) >= m.cfg.MaxCapture {
		m.finish()
		return true
	}
	return false
}

// FinishManual ends the capture immediately (stop hotkey or send-now). The
// buffer keeps whatever was captured; with no speech at all the result is
// Empty.
func (m *Machine) FinishManual() {
	if m.state == StateDone || m.state == StateEmpty {
		return
	}
	m.finish()
}

func (m *Machine) finish() {
	if m.speech == 0 {
		m.state = StateEmpty
		return
	}
	m.state = StateDone
}

// Buffer returns the accumulated PCM. Valid once a terminal state is reached.
func (m *Machine) Buffer() []int16 { return m.buf }

// TooShort reports whether the capture ended Done but below the speech
// minimum, in which case the job reports Empty instead of running STT.
func (m *Machine) TooShort() bool {
	return m.speechDuration() < m.cfg.MinSpeech
}

// CaptureDuration returns the total buffered audio time.
func (m *Machine) CaptureDuration() time.Duration {
	return audio.DurationOf(len(m.buf))
}

func (m *Machine) speechDuration() time.Duration {
	return audio.DurationOf(m.speech)
}
