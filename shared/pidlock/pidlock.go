// Package pidlock implements the exclusive PID lock file that keeps a
// second daemon instance from starting.
package pidlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLockTimeout is returned when the lock is still held by another
// process after the timeout.
var ErrLockTimeout = errors.New("timed out waiting for lock file")

const retryDelay = 100 * time.Millisecond

// Lock is a held lock file. The file contains the PID of the holder once
// WritePID has been called.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes an exclusive lock on path, retrying until timeout expires.
// The lock belongs to the open file returned by File, so a child process
// that inherits that descriptor keeps holding it.
func Acquire(ctx context.Context, path string, timeout time.Duration) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(retryDelay)
	defer ticker.Stop()

	for {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &Lock{path: path, file: file}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			file.Close()
			return nil, fmt.Errorf("acquire lock %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			file.Close()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, lockTimeout(path, timeout)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
}

func lockTimeout(path string, timeout time.Duration) error {
	if pid, err := ReadPID(path); err == nil {
		return fmt.Errorf("%w: %s held by pid %d after %s", ErrLockTimeout, path, pid, timeout)
	}
	return fmt.Errorf("%w: %s after %s", ErrLockTimeout, path, timeout)
}

// Adopt takes over a lock whose descriptor was inherited from the parent
// process, such as after detaching.
func Adopt(path string, fd uintptr) (*Lock, error) {
	file := os.NewFile(fd, path)
	if file == nil {
		return nil, fmt.Errorf("invalid lock descriptor %d", fd)
	}

	// Succeeds only if this descriptor already holds the lock or the lock
	// is free.
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		return nil, fmt.Errorf("adopt lock %s: %w", path, err)
	}

	return &Lock{path: path, file: file}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// File returns the descriptor that holds the lock, for passing to a child
// process.
func (l *Lock) File() *os.File {
	return l.file
}

// WritePID replaces the content of the lock file with pid.
func (l *Lock) WritePID(pid int) error {
	if err := os.WriteFile(l.path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the lock file and drops the lock.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}

	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return l.file.Close()
}

// ReadPID returns the PID stored in a lock file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	return pid, nil
}
