// Package daemonize detaches the daemon from its controlling terminal by
// re-executing the binary in a new session.
package daemonize

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// Environment passed to the detached child
const (
	EnvDetached = "GANETI_EVENTD_DETACHED"
	EnvLockFD   = "GANETI_EVENTD_LOCK_FD"
)

// firstExtraFD is the descriptor number of the first entry in
// exec.Cmd.ExtraFiles.
const firstExtraFD = 3

// Options describes the detached child
type Options struct {
	// Path of the binary, defaults to the running executable
	Path string
	// Args excluding argv[0]
	Args []string
	// Output receives the child's stdout and stderr
	Output *os.File
	// LockFile is inherited by the child as descriptor 3
	LockFile *os.File
	// Env defaults to the current environment
	Env []string
}

// IsChild reports whether this process is a detached child.
func IsChild() bool {
	return os.Getenv(EnvDetached) == "1"
}

// InheritedLockFD returns the lock descriptor passed by the parent.
func InheritedLockFD() (uintptr, bool) {
	v := os.Getenv(EnvLockFD)
	if v == "" {
		return 0, false
	}
	fd, err := strconv.Atoi(v)
	if err != nil || fd < 0 {
		return 0, false
	}
	return uintptr(fd), true
}

// Detach starts the child in a new session and returns its pid without
// waiting for it.
func Detach(opts Options) (int, error) {
	path := opts.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("failed to resolve executable: %w", err)
		}
		path = exe
	}

	env := opts.Env
	if env == nil {
		env = os.Environ()
	}
	env = append(env, EnvDetached+"=1")

	cmd := exec.Command(path, opts.Args...)
	cmd.Stdin = nil
	if opts.Output != nil {
		cmd.Stdout = opts.Output
		cmd.Stderr = opts.Output
	}
	if opts.LockFile != nil {
		cmd.ExtraFiles = []*os.File{opts.LockFile}
		env = append(env, EnvLockFD+"="+strconv.Itoa(firstExtraFD))
	}
	cmd.Env = env

	// Setsid alone: the child is not a group leader yet, so it may start a
	// session. Adding Setpgid would make it one and setsid would fail.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start detached process: %w", err)
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("process started but failed to release: %w", err)
	}

	return pid, nil
}

// Setup finishes detaching inside the child.
func Setup() error {
	unix.Umask(0o022)

	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("failed to change directory: %w", err)
	}
	return nil
}
