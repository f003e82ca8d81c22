package lease

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

// orphanAge is how old a detached backend process must be before the sweep
// will touch it, so freshly spawned sessions are never collateral.
const orphanAge = 30 * time.Second

var shellNames = map[string]bool{
	"bash": true, "zsh": true, "sh": true, "fish": true, "dash": true, "ksh": true,
}

// Guard reaps stale state before a new session spawns. All lease-directory
// mutation is serialized through a flock so concurrent startups do not reap
// each other.
type Guard struct {
	Dir          string
	BackendNames []string // executable names the orphan sweep recognizes
	ProcRoot     string   // "" = /proc; overridable for tests
}

// Reap removes stale leases (dead owners), terminating their backend process
// groups, then sweeps orphaned detached backend processes. It returns the
// number of process groups terminated.
func (g *Guard) Reap() (int, error) {
	if err := os.MkdirAll(g.Dir, 0o700); err != nil {
		return 0, fmt.Errorf("create lease dir: %w", err)
	}
	lock := flock.New(filepath.Join(g.Dir, ".lock"))
	if err := lock.Lock(); err != nil {
		return 0, fmt.Errorf("lock lease dir: %w", err)
	}
	defer lock.Unlock()

	reaped := 0
	live := make(map[int]bool) // backend pids under a live owner

	for _, rec := range List(g.Dir) {
		if pidAlive(rec.OwnerPID) {
			live[rec.BackendPID] = true
			continue
		}
		// Owner is gone: the backend group is orphaned.
		if killGroup(rec.BackendPID) {
			reaped++
		}
		_ = Remove(g.Dir, rec.OwnerPID)
	}

	reaped += g.sweepOrphans(live)
	return reaped, nil
}

// sweepOrphans terminates detached backend processes that no live lease
// claims: named like a backend, reparented to init, older than the safety
// threshold, and not sharing a controlling TTY with any live shell.
func (g *Guard) sweepOrphans(leased map[int]bool) int {
	procs := g.snapshot()

	// Controlling TTYs that still host a live shell are off limits.
	shellTTYs := make(map[uint64]bool)
	for _, p := range procs {
		if shellNames[p.comm] && p.tty != 0 {
			shellTTYs[p.tty] = true
		}
	}

	swept := 0
	for _, p := range procs {
		if !g.isBackendName(p.comm) {
			continue
		}
		if p.ppid != 1 || leased[p.pid] || leased[p.pgid] {
			continue
		}
		if time.Since(p.started) < orphanAge {
			continue
		}
		if p.tty != 0 && shellTTYs[p.tty] {
			continue
		}
		if killGroup(p.pgid) {
			swept++
		}
	}
	return swept
}

func (g *Guard) isBackendName(comm string) bool {
	for _, name := range g.BackendNames {
		if comm == name {
			return true
		}
	}
	return false
}

type procInfo struct {
	pid     int
	ppid    int
	pgid    int
	tty     uint64
	comm    string
	started time.Time
}

// snapshot enumerates processes from /proc.
func (g *Guard) snapshot() []procInfo {
	root := g.ProcRoot
	if root == "" {
		root = "/proc"
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var procs []procInfo
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		info, ok := readStat(filepath.Join(root, e.Name(), "stat"))
		if !ok {
			continue
		}
		info.pid = pid
		procs = append(procs, info)
	}
	return procs
}

// readStat parses the fields of /proc/<pid>/stat this package needs. The
// comm field is parenthesized and may itself contain parens, so fields are
// split after the last ')'.
func readStat(path string) (procInfo, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return procInfo{}, false
	}
	s := string(data)
	open := strings.IndexByte(s, '(')
	end := strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return procInfo{}, false
	}
	info := procInfo{comm: s[open+1 : end]}

	// Fields after comm: state ppid pgrp session tty_nr ...
	fields := strings.Fields(s[end+1:])
	if len(fields) < 5 {
		return procInfo{}, false
	}
	info.ppid, _ = strconv.Atoi(fields[1])
	info.pgid, _ = strconv.Atoi(fields[2])
	tty, _ := strconv.ParseUint(fields[4], 10, 64)
	info.tty = tty

	if fi, err := os.Stat(filepath.Dir(path)); err == nil {
		info.started = fi.ModTime()
	}
	return info, true
}

// pidAlive reports whether a process exists (signal 0 probe).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// killGroup escalates SIGTERM then SIGKILL to a process group. Returns true
// if any signal was delivered.
func killGroup(pgid int) bool {
	if pgid <= 1 {
		return false
	}
	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil {
		return false
	}
	time.Sleep(200 * time.Millisecond)
	_ = unix.Kill(-pgid, unix.SIGKILL)
	return true
}
