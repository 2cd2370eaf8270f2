package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	pidFilePermissions = 0o644
	pidDirPermissions  = 0o755
)

// pidLock is a PID file held under an exclusive flock for the lifetime of
// the daemon. A second daemon on the same file fails to start.
type pidLock struct {
	path string
	f    *os.File
}

// acquirePIDLock creates path (and its parent directories), locks it, and
// writes the current PID into it.
func acquirePIDLock(path string) (*pidLock, error) {
	if path == "" {
		return nil, errors.New("pid file: path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), pidDirPermissions); err != nil {
		return nil, fmt.Errorf("pid file: creating directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("pid file: opening %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another sentry-paths daemon is already running (%s is locked)", path)
	}

	if err := writePID(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("pid file: %w", err)
	}

	return &pidLock{path: path, f: f}, nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}

	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return err
	}

	return f.Sync()
}

// Release removes the PID file and drops the lock.
func (l *pidLock) Release() {
	os.Remove(l.path)
	l.f.Close()
}

// writePIDFile acquires the PID lock and returns its release function.
func writePIDFile(path string) (release func(), err error) {
	l, err := acquirePIDLock(path)
	if err != nil {
		return nil, err
	}

	return l.Release, nil
}

// readPIDFile returns the PID recorded in path.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in %s: %q", path, strings.TrimSpace(string(data)))
	}

	return pid, nil
}

// signalDaemon sends sig to the daemon recorded in pidPath. A PID file whose
// process is gone is removed.
func signalDaemon(pidPath string, sig syscall.Signal) error {
	pid, err := readPIDFile(pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no running daemon found (no PID file at %s)", pidPath)
	}

	if err != nil {
		return err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidPath)
		return fmt.Errorf("daemon (PID %d) is not running, removed stale PID file", pid)
	}

	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signaling daemon (PID %d): %w", pid, err)
	}

	return nil
}

// sendSIGHUP asks the running daemon to force a full-image resync.
func sendSIGHUP(pidPath string) error {
	return signalDaemon(pidPath, syscall.SIGHUP)
}
