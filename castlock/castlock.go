// Package castlock implements the advisory, file-based exclusive lock
// that guards every mutating vault operation (spec §5): one lock file
// per vault, a bounded acquisition timeout, and stale-holder detection
// so a crashed process never wedges a vault forever.
package castlock

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/castsync/cast/casterr"
)

// DefaultTimeout is spec §5's "bounded timeout (default 30s)".
const DefaultTimeout = 30 * time.Second

const pollInterval = 50 * time.Millisecond

// Lock is a held exclusive lock on one vault's .cast/.lock file.
type Lock struct {
	path string
	file *os.File
}

// Acquire blocks (polling, not spinning) until it holds path's lock or
// timeout elapses, detecting and clearing a stale lock left by a
// process that is no longer live.
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		lock, err := tryAcquire(path)
		if err == nil {
			return lock, nil
		}
		if !os.IsExist(err) {
			return nil, casterr.LockTimeout(path, err)
		}

		if cleared, clearErr := clearIfStale(path); clearErr == nil && cleared {
			continue // retry immediately, no need to wait out the poll interval
		}

		if time.Now().After(deadline) {
			return nil, casterr.LockTimeout(path, fmt.Errorf("lock held by a live process"))
		}
		time.Sleep(pollInterval)
	}
}

func tryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	// Flock is belt-and-suspenders: if this process crashes without
	// calling Release, the kernel drops the flock the moment its file
	// descriptor table is torn down, even though the marker file itself
	// survives for the PID-staleness check below to clean up.
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	return &Lock{path: path, file: f}, nil
}

// clearIfStale removes path if it records a PID for a process that is
// no longer alive, reporting whether it did so.
func clearIfStale(path string) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	pid, err := strconv.Atoi(string(raw))
	if err != nil {
		return false, nil // not our format; leave it for the operator
	}
	if pid == os.Getpid() {
		return false, nil
	}
	if err := syscall.Kill(pid, 0); err == syscall.ESRCH {
		_ = os.Remove(path)
		return true, nil
	}
	return false, nil
}

// Release drops the lock and removes the marker file. Safe to call at
// most once per successful Acquire.
func (l *Lock) Release() error {
	defer l.file.Close()
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return err
	}
	return os.Remove(l.path)
}
