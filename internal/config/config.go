package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// SendMode controls whether injected transcripts are submitted immediately.
type SendMode string

const (
	SendAuto   SendMode = "auto"   // append \n so the backend submits
	SendInsert SendMode = "insert" // inject without \n; user presses Enter
)

// HudStyle selects how many bottom rows the HUD reserves.
type HudStyle string

const (
	HudFull    HudStyle = "full"
	HudMinimal HudStyle = "minimal"
	HudHidden  HudStyle = "hidden"
)

// Settings is the resolved runtime configuration, built from CLI flags and
// environment. The event loop owns the mutable copy; hotkeys adjust VAD
// threshold, send mode, and HUD style at runtime.
type Settings struct {
	Backend          string // preset name or literal command string
	PromptRegex      string // overrides prompt auto-learn when set
	AutoVoice        bool
	AutoVoiceIdleMs  int
	TranscriptIdleMs int
	SendMode         SendMode
	VadThresholdDb   float64
	SilenceTailMs    int
	MaxCaptureMs     int
	LookbackMs       int
	MinSpeechMs      int
	WhisperModel     string // path to local GGML model
	HudStyle         HudStyle
	NoPythonFallback bool
	Login            bool
	NoColor          bool
	MacrosEnabled    bool
	MergeSeparator   string // queue merge separator, single space for parity
	LogFile          string
	MemoryFile       string // markdown session memory log, empty = disabled
}

// Defaults returns a Settings with the documented default values.
func Defaults() Settings {
	return Settings{
		Backend:          "claude",
		AutoVoiceIdleMs:  1200,
		TranscriptIdleMs: 600,
		SendMode:         SendAuto,
		VadThresholdDb:   -40,
		SilenceTailMs:    700,
		MaxCaptureMs:     30000,
		LookbackMs:       200,
		MinSpeechMs:      300,
		HudStyle:         HudFull,
		MergeSeparator:   " ",
	}
}

// Validate checks flag-derived settings before any resources are opened.
// Failures here are fatal at startup.
func (s *Settings) Validate() error {
	switch s.SendMode {
	case SendAuto, SendInsert:
	default:
		return fmt.Errorf("invalid send mode %q (want auto or insert)", s.SendMode)
	}
	switch s.HudStyle {
	case HudFull, HudMinimal, HudHidden:
	default:
		return fmt.Errorf("invalid HUD style %q (want full, minimal, or hidden)", s.HudStyle)
	}
	if s.PromptRegex != "" {
		if _, err := regexp.Compile(s.PromptRegex); err != nil {
			return fmt.Errorf("invalid prompt regex: %w", err)
		}
	}
	if s.MaxCaptureMs <= 0 || s.MaxCaptureMs > 60000 {
		return fmt.Errorf("voice-max-capture-ms must be in (0, 60000], got %d", s.MaxCaptureMs)
	}
	if s.LookbackMs < 0 {
		return fmt.Errorf("voice-lookback-ms must be >= 0, got %d", s.LookbackMs)
	}
	// A missing model is fatal only when the external STT fallback is
	// disabled; otherwise voice jobs surface the error at capture time.
	if s.WhisperModel == "" {
		if s.NoPythonFallback {
			return fmt.Errorf("whisper-model-path is required with --no-python-fallback")
		}
	} else {
		path, err := filepath.Abs(s.WhisperModel)
		if err != nil {
			return fmt.Errorf("whisper-model-path: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			path = resolved
		}
		if _, err := os.Stat(path); err != nil {
			if s.NoPythonFallback {
				return fmt.Errorf("whisper model not found: %s", path)
			}
			s.WhisperModel = ""
		} else {
			s.WhisperModel = path
		}
	}
	if s.MergeSeparator == "" {
		s.MergeSeparator = " "
	}
	return nil
}

// IsTruthyEnv reports whether the named environment variable is set to
// anything other than "", "0", "false", or "no".
func IsTruthyEnv(name string) bool {
	switch os.Getenv(name) {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}

// StateDir returns the voiceterm state directory (~/.voiceterm/).
func StateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".voiceterm")
	}
	return filepath.Join(home, ".voiceterm")
}

// LeaseDir returns the directory holding session lease records.
func LeaseDir() string {
	return filepath.Join(StateDir(), "sessions")
}
