// Package flock provides a typed advisory file lock with a bounded
// acquisition timeout. It is the only cross-process synchronization
// primitive the trading core uses.
package flock

import (
	"errors"
	"os"
	"syscall"
	"time"
)

// ErrTimeout is returned when the lock cannot be acquired in time.
// Callers treat it as fatal rather than retrying indefinitely.
var ErrTimeout = errors.New("flock: acquisition timed out")

const pollInterval = 10 * time.Millisecond

// Lock holds an acquired exclusive advisory lock.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes an exclusive lock on path, creating the file if needed.
// It polls non-blocking flock until success or the timeout elapses.
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return &Lock{path: path, file: f}, nil
		}
		if err != syscall.EWOULDBLOCK && err != syscall.EAGAIN {
			_ = f.Close()
			return nil, err
		}
		if !time.Now().Before(deadline) {
			_ = f.Close()
			return nil, ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock and closes the file. Safe on nil.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
