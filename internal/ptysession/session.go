// Package ptysession spawns the backend inside a controlling PTY and owns
// the raw byte interface to it: non-blocking writes, resize propagation,
// terminal-query replies, and a drop sequence that reliably reaps the
// child's whole process group.
package ptysession

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// SpawnErrorKind classifies fatal spawn failures.
type SpawnErrorKind int

const (
	SpawnFork SpawnErrorKind = iota
	SpawnOpenPty
	SpawnExec
	SpawnInitialSize
)

// SpawnError is a fatal startup failure.
type SpawnError struct {
	Kind SpawnErrorKind
	Err  error
}

func (e *SpawnError) Error() string { return e.Err.Error() }
func (e *SpawnError) Unwrap() error { return e.Err }

// ErrWouldBlock is returned by Write when the PTY cannot accept more bytes;
// the caller queues the unwritten tail and retries on the next loop tick.
var ErrWouldBlock = errors.New("pty write would block")

const dropStepTimeout = 500 * time.Millisecond

// Session owns the PTY master and the child process group.
type Session struct {
	ptm  *os.File
	cmd  *exec.Cmd
	pid  int
	pgid int

	mu   sync.Mutex
	rows int
	cols int

	waitOnce sync.Once
	waitErr  error
	exited   chan struct{}

	watchdogStop chan struct{}
}

// Spawn starts the backend in a new PTY sized rows x cols. The child becomes
// its own session and process-group leader with the PTY slave as its
// controlling terminal. rows should already exclude HUD-reserved rows so the
// backend never draws over them on its first frame.
func Spawn(command string, args []string, env []string, rows, cols int) (*Session, error) {
	ptm, pts, err := pty.Open()
	if err != nil {
		return nil, &SpawnError{Kind: SpawnOpenPty, Err: fmt.Errorf("open pty: %w", err)}
	}

	if err := pty.Setsize(ptm, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		ptm.Close()
		pts.Close()
		return nil, &SpawnError{Kind: SpawnInitialSize, Err: fmt.Errorf("set initial size: %w", err)}
	}

	cmd := exec.Command(command, args...)
	cmd.Stdin = pts
	cmd.Stdout = pts
	cmd.Stderr = pts
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		ptm.Close()
		pts.Close()
		kind := SpawnExec
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOMEM) {
			kind = SpawnFork
		}
		return nil, &SpawnError{Kind: kind, Err: fmt.Errorf("start %s: %w", command, err)}
	}
	pts.Close()

	// Writes must report WouldBlock instead of stalling the event loop.
	if raw, err := ptm.SyscallConn(); err == nil {
		raw.Control(func(fd uintptr) { _ = unix.SetNonblock(int(fd), true) })
	}

	s := &Session{
		ptm:    ptm,
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		pgid:   cmd.Process.Pid, // setsid makes the child its own group leader
		rows:   rows,
		cols:   cols,
		exited: make(chan struct{}),
	}
	go s.reapOnExit()
	return s, nil
}

// Pid returns the child PID.
func (s *Session) Pid() int { return s.pid }

// Pgid returns the child process-group id.
func (s *Session) Pgid() int { return s.pgid }

// Size returns the current PTY size.
func (s *Session) Size() (rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, s.cols
}

// Read blocks until child output is available. A zero count with io.EOF
// semantics (child exited) is reported as n == 0 and a nil error from the
// caller's point of view; Linux reports EIO on the master once the last
// slave fd closes, which is normalized to EOF here.
func (s *Session) Read(buf []byte) (int, error) {
	n, err := s.ptm.Read(buf)
	if err != nil && isEOFErr(err) {
		return n, nil // n == 0 signals EOF to the reader loop
	}
	return n, err
}

// Write performs a non-blocking write. When the PTY buffer is full it
// returns the count written and ErrWouldBlock; the caller keeps the tail.
func (s *Session) Write(p []byte) (int, error) {
	raw, err := s.ptm.SyscallConn()
	if err != nil {
		return 0, err
	}
	var (
		n    int
		werr error
	)
	ctrlErr := raw.Control(func(fd uintptr) {
		for n < len(p) {
			m, e := unix.Write(int(fd), p[n:])
			if m > 0 {
				n += m
			}
			if e != nil {
				if e == unix.EAGAIN {
					werr = ErrWouldBlock
				} else if e != unix.EINTR {
					werr = e
				}
				if e != unix.EINTR {
					return
				}
			}
		}
	})
	if ctrlErr != nil {
		return n, ctrlErr
	}
	return n, werr
}

// Resize applies a new window size and forwards SIGWINCH to the child group
// (direct-PID fallback when the group is gone).
func (s *Session) Resize(rows, cols int) error {
	s.mu.Lock()
	s.rows = rows
	s.cols = cols
	s.mu.Unlock()

	if err := pty.Setsize(s.ptm, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	if err := unix.Kill(-s.pgid, unix.SIGWINCH); err == unix.ESRCH {
		_ = unix.Kill(s.pid, unix.SIGWINCH)
	}
	return nil
}

// ReplyCursorPos answers a DSR (CSI 6 n) query on behalf of the overlay.
func (s *Session) ReplyCursorPos(row, col int) {
	fmt.Fprintf(s.ptm, "\x1b[%d;%dR", row, col)
}

// ReplyDeviceAttrs answers a primary DA (CSI c) query with a VT100-class
// identifier with advanced video option.
func (s *Session) ReplyDeviceAttrs() {
	s.ptm.Write([]byte("\x1b[?1;2c"))
}

// ReplyOSCColor answers an OSC 10/11 color query with a cached X11 color.
func (s *Session) ReplyOSCColor(code int, color string) {
	if color != "" {
		fmt.Fprintf(s.ptm, "\x1b]%d;%s\x1b\\", code, color)
	}
}

// Exited is closed once the child has been reaped.
func (s *Session) Exited() <-chan struct{} { return s.exited }

// reapOnExit waits for the child so it never lingers as a zombie.
func (s *Session) reapOnExit() {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		close(s.exited)
	})
}

// Close tears the session down: polite exit, then SIGTERM and SIGKILL to the
// process group, a direct-PID fallback if group signaling reports ESRCH, and
// a bounded reap loop. Success means no process in the group remains.
func (s *Session) Close() error {
	if s.watchdogStop != nil {
		close(s.watchdogStop)
		s.watchdogStop = nil
	}

	// Step 1: ask politely. Write errors here are benign (child may already
	// be gone and the PTY broken).
	_, _ = s.Write([]byte("exit\n"))
	if s.waitExited(dropStepTimeout) {
		// The leader is gone; no group member may outlive it.
		_ = unix.Kill(-s.pgid, unix.SIGKILL)
		s.ptm.Close()
		return nil
	}

	// Steps 2-3: escalate signals to the group, with direct-PID fallback.
	for _, sig := range []unix.Signal{unix.SIGTERM, unix.SIGKILL} {
		if err := unix.Kill(-s.pgid, sig); err == unix.ESRCH {
			_ = unix.Kill(s.pid, sig)
		}
		if s.waitExited(dropStepTimeout) {
			break
		}
	}
	_ = unix.Kill(-s.pgid, unix.SIGKILL)

	s.ptm.Close()

	// Final reap loop: cmd.Wait in reapOnExit does the waitpid; poll for it.
	if !s.waitExited(dropStepTimeout) {
		return fmt.Errorf("child %d not reaped", s.pid)
	}
	return nil
}

func (s *Session) waitExited(d time.Duration) bool {
	select {
	case <-s.exited:
		return true
	case <-time.After(d):
		return false
	}
}

// StartLifelineWatchdog polls parent liveness; if the invoking shell dies
// (PPID becomes 1) the child group is escalated SIGTERM then SIGKILL so no
// orphaned backend keeps running under init.
func (s *Session) StartLifelineWatchdog() {
	stop := make(chan struct{})
	s.watchdogStop = stop
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-s.exited:
				return
			case <-ticker.C:
				if os.Getppid() == 1 {
					_ = unix.Kill(-s.pgid, unix.SIGTERM)
					time.Sleep(dropStepTimeout)
					_ = unix.Kill(-s.pgid, unix.SIGKILL)
					return
				}
			}
		}
	}()
}

// isEOFErr reports PTY-read errors that mean the child is gone.
func isEOFErr(err error) bool {
	return errors.Is(err, unix.EIO) || errors.Is(err, os.ErrClosed)
}
