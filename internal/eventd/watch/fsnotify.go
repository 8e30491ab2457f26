package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fsnotifySource is the portable backend. fsnotify has no close-after-write
// event, so Create and Write are reported instead; a file written in several
// chunks may be reported more than once.
type fsnotifySource struct {
	dir     string
	matcher *Matcher
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	events chan Event
	errs   chan error
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newFsnotifySource(dir string, matcher *Matcher, logger *slog.Logger) (Source, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, registrationError(dir, fmt.Errorf("failed to create fsnotify watcher: %w", err))
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		fsw.Close()
		return nil, registrationError(dir, err)
	}

	if err := fsw.Add(absDir); err != nil {
		fsw.Close()
		return nil, registrationError(dir, err)
	}

	s := &fsnotifySource{
		dir:     absDir,
		matcher: matcher,
		watcher: fsw,
		logger:  logger,
		events:  make(chan Event),
		errs:    make(chan error, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.eventLoop()

	return s, nil
}

func (s *fsnotifySource) Events() <-chan Event { return s.events }

func (s *fsnotifySource) Errors() <-chan error { return s.errs }

func (s *fsnotifySource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		err = s.watcher.Close()
	})
	return err
}

func (s *fsnotifySource) eventLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		select {
		case <-s.stop:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				s.logger.Warn("fsnotify event channel closed")
				return
			}
			if !s.handleEvent(event) {
				return
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				s.logger.Warn("fsnotify error channel closed")
				return
			}
			if err == fsnotify.ErrEventOverflow {
				err = ErrOverflow
			}
			select {
			case s.errs <- err:
			default:
				s.logger.Warn("Dropping watch error", slog.Any("error", err))
			}
		}
	}
}

func (s *fsnotifySource) handleEvent(event fsnotify.Event) bool {
	var op Op
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpWrite
	default:
		return true
	}

	name := filepath.Base(event.Name)
	if !s.matcher.Match(name) {
		s.logger.Debug("Ignoring non-job file", slog.String("file", name))
		return true
	}

	select {
	case s.events <- Event{Name: name, Path: filepath.Join(s.dir, name), Op: op}:
		return true
	case <-s.stop:
		return false
	}
}
