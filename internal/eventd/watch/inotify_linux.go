//go:build linux

package watch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

const inotifyMask = unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO

// inotifySource watches with inotify(7) directly so that only
// IN_CLOSE_WRITE and IN_MOVED_TO are reported.
type inotifySource struct {
	fd      int
	dir     string
	matcher *Matcher
	logger  *slog.Logger

	events chan Event
	errs   chan error
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newInotifySource(dir string, matcher *Matcher, logger *slog.Logger) (Source, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, registrationError(dir, fmt.Errorf("inotify_init1: %w", err))
	}

	if _, err := unix.InotifyAddWatch(fd, dir, inotifyMask); err != nil {
		unix.Close(fd)
		return nil, registrationError(dir, fmt.Errorf("inotify_add_watch: %w", err))
	}

	s := &inotifySource{
		fd:      fd,
		dir:     dir,
		matcher: matcher,
		logger:  logger,
		events:  make(chan Event),
		errs:    make(chan error, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.readLoop()

	return s, nil
}

func (s *inotifySource) Events() <-chan Event { return s.events }

func (s *inotifySource) Errors() <-chan error { return s.errs }

// Close stops the read loop and releases the inotify descriptor. It is
// safe to call more than once.
func (s *inotifySource) Close() error {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
	return nil
}

func (s *inotifySource) readLoop() {
	defer close(s.done)
	defer close(s.events)
	defer unix.Close(s.fd)

	buffer := make([]byte, 64*1024)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		pollDescriptors := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
		count, err := unix.Poll(pollDescriptors, 100)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			s.report(fmt.Errorf("poll: %w", err))
			return
		}
		if count == 0 {
			continue
		}

		bytesRead, err := unix.Read(s.fd, buffer)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			s.report(fmt.Errorf("read: %w", err))
			return
		}

		if !s.dispatch(buffer[:bytesRead]) {
			return
		}
	}
}

// dispatch parses a buffer of raw inotify events. It returns false when the
// loop must exit.
//
//	struct inotify_event {
//	    int32_t  wd;     // offset 0
//	    uint32_t mask;   // offset 4
//	    uint32_t cookie; // offset 8
//	    uint32_t len;    // offset 12
//	    char     name[]; // offset 16, NUL padded
//	};
func (s *inotifySource) dispatch(buffer []byte) bool {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		mask := binary.NativeEndian.Uint32(buffer[offset+4 : offset+8])
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		eventSize := unix.SizeofInotifyEvent + nameLength
		if offset+eventSize > len(buffer) {
			break
		}
		name := nullTerminatedString(buffer[offset+unix.SizeofInotifyEvent : offset+eventSize])
		offset += eventSize

		switch {
		case mask&unix.IN_Q_OVERFLOW != 0:
			s.report(ErrOverflow)
			continue
		case mask&unix.IN_IGNORED != 0:
			s.report(fmt.Errorf("watch on %s was removed", s.dir))
			return false
		case mask&unix.IN_ISDIR != 0 || name == "":
			continue
		}

		if !s.matcher.Match(name) {
			s.logger.Debug("Ignoring non-job file", slog.String("file", name))
			continue
		}

		op := OpCloseWrite
		if mask&unix.IN_MOVED_TO != 0 {
			op = OpMovedTo
		}

		select {
		case s.events <- Event{Name: name, Path: filepath.Join(s.dir, name), Op: op}:
		case <-s.stop:
			return false
		}
	}
	return true
}

// report delivers err without blocking; a pending error is kept.
func (s *inotifySource) report(err error) {
	select {
	case s.errs <- err:
	default:
		s.logger.Warn("Dropping watch error", slog.Any("error", err))
	}
}

func nullTerminatedString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}
