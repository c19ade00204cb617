package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrLockHeld is the sentinel wrapped by *LockHeldError.
var ErrLockHeld = errors.New("project lock held by another instance")

// LockHeldError reports which process holds the project lock.
type LockHeldError struct {
	HolderPID int
	LockPath  string
}

func (e *LockHeldError) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("another osss-compose instance is operating on this project (PID %d)", e.HolderPID)
	}
	return fmt.Sprintf("another osss-compose instance is operating on this project (check: lsof %s)", e.LockPath)
}

// Unwrap lets errors.Is match ErrLockHeld.
func (e *LockHeldError) Unwrap() error {
	return ErrLockHeld
}

// Lock is an exclusive, non-blocking per-project lock backed by flock(2).
// A PID file beside the lock file names the holder for error messages.
//
// Mutating commands (up, down, recreate, rebuild, cleanup) take the lock so
// two copies of the tool never reconcile the same project at once.
type Lock struct {
	lockPath string
	pidPath  string
	file     *os.File
}

// NewLock creates a lock for the given compose project in dir. An empty dir
// means os.TempDir().
func NewLock(dir, project string) *Lock {
	if dir == "" {
		dir = os.TempDir()
	}
	base := "osss-compose-" + project
	return &Lock{
		lockPath: filepath.Join(dir, base+".lock"),
		pidPath:  filepath.Join(dir, base+".pid"),
	}
}

// Acquire takes the lock or returns *LockHeldError.
func (l *Lock) Acquire() error {
	if l.file != nil {
		return nil
	}

	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create lock file %s: %w", l.lockPath, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return &LockHeldError{HolderPID: l.HolderPID(), LockPath: l.lockPath}
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.file = f
	// The PID file is informational; the flock is what excludes.
	_ = os.WriteFile(l.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
	return nil
}

// Release drops the lock. Safe to call when not held.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	_ = os.Remove(l.pidPath)

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// HolderPID reads the PID file. Returns 0 if unknown.
func (l *Lock) HolderPID() int {
	data, err := os.ReadFile(l.pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.lockPath
}
