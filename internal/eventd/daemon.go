// Package eventd runs the job queue event loop: it receives finalized job
// files from a watch source, translates their operations into notification
// events and publishes them.
package eventd

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/ganeti-eventd/internal/eventd/domain"
	"github.com/cuongbtq/ganeti-eventd/internal/eventd/watch"
)

var (
	// ErrStopped is returned by Run on a daemon that was already stopped
	ErrStopped = errors.New("event daemon stopped")

	// ErrWatchClosed is returned when the watch source stops delivering
	// events while the daemon is running
	ErrWatchClosed = errors.New("watch source closed unexpectedly")
)

// EventPublisher delivers notification events.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.NotificationEvent) error
}

// Config holds daemon dependencies and settings
type Config struct {
	Logger              *slog.Logger
	Source              watch.Source
	Publisher           EventPublisher
	QueueDir            string
	UnknownStatusPolicy UnknownStatusPolicy
}

// Daemon is the single-threaded event loop
type Daemon struct {
	logger    *slog.Logger
	source    watch.Source
	publisher EventPublisher
	queueDir  string
	policy    UnknownStatusPolicy

	state    atomic.Int32
	stopOnce sync.Once
	stats    counters
}

type counters struct {
	filesProcessed  atomic.Uint64
	filesSkipped    atomic.Uint64
	filesAborted    atomic.Uint64
	eventsPublished atomic.Uint64
	unknownStatuses atomic.Uint64
	watchErrors     atomic.Uint64
	startedAt       atomic.Int64
	lastEventAt     atomic.Int64
}

// NewDaemon creates a daemon in the STARTING state
func NewDaemon(cfg *Config) (*Daemon, error) {
	if cfg == nil || cfg.Source == nil || cfg.Publisher == nil {
		return nil, errors.New("event daemon requires a watch source and a publisher")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy := cfg.UnknownStatusPolicy
	if policy == "" {
		policy = PolicyAbortFile
	}
	if !policy.Valid() {
		return nil, errors.New("invalid unknown status policy: " + string(policy))
	}

	d := &Daemon{
		logger:    logger,
		source:    cfg.Source,
		publisher: cfg.Publisher,
		queueDir:  cfg.QueueDir,
		policy:    policy,
	}
	d.setState(StateStarting)

	return d, nil
}

// State returns the current lifecycle state
func (d *Daemon) State() State {
	return State(d.state.Load())
}

func (d *Daemon) setState(s State) {
	d.state.Store(int32(s))
	recordState(s)
}

// Run processes events until ctx is canceled, Stop is called or a fatal
// error occurs. Cancellation returns nil; fatal errors are returned.
// The watch source is released before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		return ErrStopped
	}
	recordState(StateRunning)
	d.stats.startedAt.Store(time.Now().UnixNano())
	defer d.Stop()

	d.logger.Info("Now watching", slog.String("dir", d.queueDir))

	for {
		batch, err := d.receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.logger.Info("Caught shutdown request, exiting",
					slog.Any("cause", context.Cause(ctx)),
				)
				return nil
			}
			if errors.Is(err, ErrStopped) {
				return nil
			}
			d.logger.Error("Event loop failed", slog.Any("error", err))
			return err
		}

		if err := d.processBatch(ctx, batch); err != nil {
			d.logger.Error("Fatal error while processing job files", slog.Any("error", err))
			return err
		}
	}
}

// Stop releases the watch source. The daemon cannot be restarted.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.setState(StateStopping)
		d.logger.Info("Stopping event daemon")

		if err := d.source.Close(); err != nil {
			d.logger.Warn("Failed to close watch source", slog.Any("error", err))
		}

		d.setState(StateStopped)
		d.logger.Info("Event daemon stopped")
	})
}

// receive blocks until at least one event is ready, then drains every event
// that is immediately available. A watch error yields an empty batch.
func (d *Daemon) receive(ctx context.Context) ([]watch.Event, error) {
	events := d.source.Events()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case err := <-d.source.Errors():
		d.stats.watchErrors.Add(1)
		recordWatchError()
		d.logger.Warn("Watch reported an error", slog.Any("error", err))
		return nil, nil

	case ev, ok := <-events:
		if !ok {
			return nil, d.closedErr()
		}

		batch := []watch.Event{ev}
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return batch, nil
				}
				batch = append(batch, ev)
			default:
				return batch, nil
			}
		}
	}
}

func (d *Daemon) closedErr() error {
	if s := d.State(); s == StateStopping || s == StateStopped {
		return ErrStopped
	}
	return ErrWatchClosed
}

// Status is a point-in-time view of the daemon for the status endpoint
type Status struct {
	State           string     `json:"state"`
	QueueDir        string     `json:"queue_dir"`
	StartedAt       *time.Time `json:"started_at"`
	LastEventAt     *time.Time `json:"last_event_at"`
	FilesProcessed  uint64     `json:"files_processed"`
	FilesSkipped    uint64     `json:"files_skipped"`
	FilesAborted    uint64     `json:"files_aborted"`
	EventsPublished uint64     `json:"events_published"`
	UnknownStatuses uint64     `json:"unknown_statuses"`
	WatchErrors     uint64     `json:"watch_errors"`
}

// Status returns the current counters
func (d *Daemon) Status() Status {
	return Status{
		State:           d.State().String(),
		QueueDir:        d.queueDir,
		StartedAt:       unixNanoTime(d.stats.startedAt.Load()),
		LastEventAt:     unixNanoTime(d.stats.lastEventAt.Load()),
		FilesProcessed:  d.stats.filesProcessed.Load(),
		FilesSkipped:    d.stats.filesSkipped.Load(),
		FilesAborted:    d.stats.filesAborted.Load(),
		EventsPublished: d.stats.eventsPublished.Load(),
		UnknownStatuses: d.stats.unknownStatuses.Load(),
		WatchErrors:     d.stats.watchErrors.Load(),
	}
}

func unixNanoTime(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
