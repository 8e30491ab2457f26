// Package watch reports job files that were finalized in the queue
// directory: closed after writing, or moved into the directory.
package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Backend names
const (
	BackendInotify  = "inotify"
	BackendFsnotify = "fsnotify"
)

// DefaultPattern matches Ganeti job files.
const DefaultPattern = "job-*"

var (
	// ErrWatchRegistration is returned when the directory cannot be watched
	ErrWatchRegistration = errors.New("failed to register directory watch")

	// ErrOverflow is reported when the kernel event queue overflowed and
	// events were lost
	ErrOverflow = errors.New("watch event queue overflow")
)

// Op describes what happened to a file.
type Op uint8

const (
	OpCloseWrite Op = iota + 1
	OpMovedTo
	OpCreate
	OpWrite
)

func (o Op) String() string {
	switch o {
	case OpCloseWrite:
		return "close_write"
	case OpMovedTo:
		return "moved_to"
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Event is a finalized file in the watched directory.
type Event struct {
	Name string
	Path string
	Op   Op
}

// Source delivers events for one directory. Events is closed when the
// source stops. A Source cannot be restarted after Close.
type Source interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// Config configures a Source
type Config struct {
	Dir     string
	Pattern string
	Exclude []string
	Backend string
	Logger  *slog.Logger
}

// Open registers a watch on cfg.Dir. Registration errors wrap
// ErrWatchRegistration.
func Open(cfg Config) (Source, error) {
	matcher, err := NewMatcher(cfg.Pattern, cfg.Exclude)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("dir", cfg.Dir), slog.String("backend", cfg.Backend))

	switch cfg.Backend {
	case BackendInotify, "":
		return newInotifySource(cfg.Dir, matcher, logger)
	case BackendFsnotify:
		return newFsnotifySource(cfg.Dir, matcher, logger)
	default:
		return nil, fmt.Errorf("unknown watch backend %q", cfg.Backend)
	}
}

// Matcher decides which filenames are job files.
type Matcher struct {
	include string
	exclude []string
}

// NewMatcher validates the glob patterns. An empty include selects
// DefaultPattern.
func NewMatcher(include string, exclude []string) (*Matcher, error) {
	if include == "" {
		include = DefaultPattern
	}
	if !doublestar.ValidatePattern(include) {
		return nil, fmt.Errorf("invalid job file pattern %q", include)
	}
	for _, p := range exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return &Matcher{include: include, exclude: exclude}, nil
}

// Match reports whether name, a base filename, is a job file.
func (m *Matcher) Match(name string) bool {
	name = filepath.Base(name)
	if ok, _ := doublestar.Match(m.include, name); !ok {
		return false
	}
	for _, p := range m.exclude {
		if ok, _ := doublestar.Match(p, name); ok {
			return false
		}
	}
	return true
}

func registrationError(dir string, err error) error {
	return fmt.Errorf("%w on %s: %w", ErrWatchRegistration, dir, err)
}
