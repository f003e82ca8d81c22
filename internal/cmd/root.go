// Package cmd is the voiceterm CLI surface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jguida941/voiceterm-sub001/internal/config"
)

// Exit codes.
const (
	ExitOK             = 0
	ExitFatal          = 1 // spawn or config error
	ExitRestoreFailure = 2 // terminal could not be restored
	ExitInterrupt      = 130
)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	settings := config.Defaults()
	var wakeEnabled bool
	var theme string

	cmd := &cobra.Command{
		Use:   "voiceterm [flags] [-- command args...]",
		Short: "Voice-controlled overlay for interactive AI CLIs",
		Long: `voiceterm wraps an interactive AI CLI (codex, claude, or any command) in a
PTY, passes its output through unchanged, and adds a bottom-row HUD plus a
local voice pipeline that types your transcribed speech into the backend.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			refreshTerminalColorHintsCache()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				settings.Backend = shellJoin(args)
			}
			code := run(settings, wakeEnabled, theme)
			if code != ExitOK {
				os.Exit(code)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&settings.Backend, "backend", settings.Backend, "backend preset (codex, claude) or a literal command string")
	f.StringVar(&settings.PromptRegex, "prompt-regex", "", "prompt regex, overrides auto-learn")
	f.BoolVar(&settings.AutoVoice, "auto-voice", false, "start in auto-voice mode")
	f.IntVar(&settings.AutoVoiceIdleMs, "auto-voice-idle-ms", settings.AutoVoiceIdleMs, "idle threshold before auto-voice rearms")
	f.IntVar(&settings.TranscriptIdleMs, "transcript-idle-ms", settings.TranscriptIdleMs, "idle threshold for queued-transcript flush")
	f.StringVar((*string)(&settings.SendMode), "voice-send-mode", string(settings.SendMode), "send mode: auto or insert")
	f.Float64Var(&settings.VadThresholdDb, "voice-vad-threshold-db", settings.VadThresholdDb, "VAD energy threshold in dBFS")
	f.IntVar(&settings.SilenceTailMs, "voice-silence-tail-ms", settings.SilenceTailMs, "trailing silence that ends a capture")
	f.IntVar(&settings.MaxCaptureMs, "voice-max-capture-ms", settings.MaxCaptureMs, "per-capture ceiling in ms (max 60000)")
	f.IntVar(&settings.LookbackMs, "voice-lookback-ms", settings.LookbackMs, "pre-speech audio retained in ms")
	f.StringVar(&settings.WhisperModel, "whisper-model-path", "", "path to a local GGML whisper model")
	f.StringVar((*string)(&settings.HudStyle), "hud-style", string(settings.HudStyle), "initial HUD style: full, minimal, or hidden")
	f.BoolVar(&settings.NoPythonFallback, "no-python-fallback", false, "disable the external STT fallback; surface errors directly")
	f.BoolVar(&settings.Login, "login", false, "run the backend's auth flow before starting")
	f.BoolVar(&settings.NoColor, "no-color", false, "force monochrome HUD")
	f.BoolVar(&settings.MacrosEnabled, "macros", false, "enable voice macro expansion")
	f.StringVar(&settings.LogFile, "log-file", "", "append JSONL activity log to this path")
	f.StringVar(&settings.MemoryFile, "session-memory", "", "append a markdown session log to this path")
	f.BoolVar(&wakeEnabled, "wake", false, "enable the wake-phrase listener")
	f.StringVar(&theme, "theme", "slate", "HUD theme: slate, amber, or mono")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "voiceterm:", err)
		return ExitFatal
	}
	return ExitOK
}

// shellJoin rebuilds a command string from already-split args, quoting the
// ones containing spaces.
func shellJoin(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		if len(a) == 0 || containsSpace(a) {
			out += "\"" + a + "\""
		} else {
			out += a
		}
	}
	return out
}

func containsSpace(s string) bool {
	for _, r := range s {
		if r == ' ' || r == '\t' {
			return true
		}
	}
	return false
}
