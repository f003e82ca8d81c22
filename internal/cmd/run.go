package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/jguida941/voiceterm-sub001/internal/activitylog"
	"github.com/jguida941/voiceterm-sub001/internal/audio"
	"github.com/jguida941/voiceterm-sub001/internal/backend"
	"github.com/jguida941/voiceterm-sub001/internal/config"
	"github.com/jguida941/voiceterm-sub001/internal/eventloop"
	"github.com/jguida941/voiceterm-sub001/internal/hud"
	"github.com/jguida941/voiceterm-sub001/internal/lease"
	"github.com/jguida941/voiceterm-sub001/internal/ptysession"
	"github.com/jguida941/voiceterm-sub001/internal/stt"
	"github.com/jguida941/voiceterm-sub001/internal/termcap"
	"github.com/jguida941/voiceterm-sub001/internal/voice"
	"github.com/jguida941/voiceterm-sub001/internal/wake"
	"github.com/jguida941/voiceterm-sub001/internal/writer"
)

// run owns the whole session lifecycle and returns a process exit code.
func run(settings config.Settings, wakeEnabled bool, themeName string) int {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(os.Stderr, "voiceterm: stdout is not a terminal")
		return ExitFatal
	}
	if err := settings.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "voiceterm:", err)
		return ExitFatal
	}

	be, err := backend.Resolve(settings.Backend)
	if err != nil {
		fmt.Fprintln(os.Stderr, "voiceterm:", err)
		return ExitFatal
	}

	if settings.Login {
		if err := runLogin(be); err != nil {
			fmt.Fprintln(os.Stderr, "voiceterm: login:", err)
			return ExitFatal
		}
	}

	hints := detectTerminalColorHints()
	caps := termcap.Detect(settings.NoColor)
	theme := hud.Load(themeName, caps)
	state := hud.NewState(settings, theme)
	state.DebugKeys = config.IsTruthyEnv("VOICETERM_DEBUG_KEYS")

	sessionID := uuid.NewString()
	logger := activitylog.New(settings.LogFile != "", settings.LogFile, "voiceterm", sessionID)
	defer logger.Close()

	var memory *activitylog.Memory
	if settings.MemoryFile != "" {
		memory = activitylog.OpenMemory(settings.MemoryFile)
		defer memory.Close()
	}

	macros, err := config.LoadMacros(filepath.Join(".", "voiceterm-macros.yaml"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "voiceterm:", err)
		return ExitFatal
	}

	// Reap stale leases and orphaned backends from crashed prior sessions
	// before spawning our own.
	guard := &lease.Guard{Dir: config.LeaseDir(), BackendNames: backend.KnownProcessNames()}
	if n, err := guard.Reap(); err != nil {
		logger.Error("guard", err.Error())
	} else if n > 0 {
		logger.Error("guard", fmt.Sprintf("reaped %d orphaned process group(s)", n))
	}

	fd := int(os.Stdin.Fd())
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "voiceterm: get terminal size:", err)
		return ExitFatal
	}
	childRows := rows - state.ReservedRows()
	if childRows < 1 {
		childRows = 1
	}

	env := append(os.Environ(), "COLORFGBG="+hints.ColorFGBG)
	session, err := ptysession.Spawn(be.Command, be.Args, env, childRows, cols)
	if err != nil {
		fmt.Fprintln(os.Stderr, "voiceterm: spawn backend:", err)
		return ExitFatal
	}
	session.StartLifelineWatchdog()

	if _, err := lease.Write(config.LeaseDir(), session.Pgid()); err != nil {
		logger.Error("lease", err.Error())
	}
	defer lease.Remove(config.LeaseDir(), os.Getpid())

	// Voice pipeline. A missing model leaves the transcriber nil; captures
	// then surface a model error in the HUD instead of failing startup.
	var transcriber *stt.Transcriber
	if settings.WhisperModel != "" {
		transcriber, err = stt.New(settings.WhisperModel, stt.Params{Timeout: 30 * time.Second})
		if err != nil && settings.NoPythonFallback {
			session.Close()
			fmt.Fprintln(os.Stderr, "voiceterm:", err)
			return ExitFatal
		}
		if err != nil {
			logger.Error("stt", err.Error())
		} else {
			defer transcriber.Close()
		}
	}

	recorder, err := audio.NewRecorder(audio.DefaultChannelFrames, audio.QualityHigh)
	if err != nil {
		session.Close()
		fmt.Fprintln(os.Stderr, "voiceterm:", err)
		return ExitFatal
	}
	defer recorder.Close()

	worker := voice.NewWorker(recorder, transcriber)
	go worker.Run()
	defer worker.Shutdown()

	var wakeListener *wake.Listener
	if wakeEnabled && transcriber != nil {
		wakeListener, err = wake.NewListener(transcriber, settings.VadThresholdDb)
		if err != nil {
			logger.Error("wake", err.Error())
			state.WakeErr = true
		} else {
			state.WakeEnabled = true
			go wakeListener.Run()
			defer wakeListener.Stop()
		}
	}

	// Raw mode last: everything after this must restore the terminal.
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		session.Close()
		fmt.Fprintln(os.Stderr, "voiceterm: set raw mode:", err)
		return ExitFatal
	}

	restored := false
	restore := func() int {
		if restored {
			return ExitOK
		}
		restored = true
		if err := term.Restore(fd, oldState); err != nil {
			fmt.Fprintln(os.Stderr, "voiceterm: restore terminal:", err)
			return ExitRestoreFailure
		}
		os.Stdout.WriteString("\x1b[r\x1b[?25h\x1b[0m\r\n")
		return ExitOK
	}

	// The panic hook guarantees terminal restoration and leaves a minimal
	// metadata crash log.
	defer func() {
		if r := recover(); r != nil {
			restore()
			crashPath := filepath.Join(config.StateDir(), "crash.log")
			f, err := os.OpenFile(crashPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				fmt.Fprintf(f, "%s panic session=%s: %v\n", time.Now().Format(time.RFC3339), sessionID, r)
				f.Close()
			}
			fmt.Fprintf(os.Stderr, "voiceterm: crashed (log: %s)\n", crashPath)
			os.Exit(ExitFatal)
		}
	}()

	w := writer.New(os.Stdout, caps, rows, cols)
	go w.Run()

	logger.SessionStart(settings.Backend)

	loop := eventloop.New(eventloop.Options{
		Settings: settings,
		Backend:  be,
		Env:      env,
		Macros:   macros,
		Session:  session,
		Writer:   w,
		Worker:   worker,
		Wake:     wakeListener,
		Log:      logger,
		Memory:   memory,
		State:    state,
		Caps:     caps,
		OscFg:    hints.OscFg,
		OscBg:    hints.OscBg,
		Rows:     rows,
		Cols:     cols,
	})
	reason := loop.Run()

	if code := restore(); code != ExitOK {
		return code
	}
	if reason == "interrupt" {
		return ExitInterrupt
	}
	return ExitOK
}

// runLogin invokes the backend's own auth flow attached to the real
// terminal before the wrapped session starts.
func runLogin(be backend.Backend) error {
	if len(be.AuthArgs) == 0 {
		return fmt.Errorf("backend %q has no auth command", be.Name)
	}
	cmd := exec.Command(be.Command, be.AuthArgs...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
