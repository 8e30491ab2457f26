package eventd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/ganeti-eventd/internal/eventd/codec"
	"github.com/cuongbtq/ganeti-eventd/internal/eventd/domain"
	"github.com/cuongbtq/ganeti-eventd/internal/eventd/translator"
	"github.com/cuongbtq/ganeti-eventd/internal/eventd/watch"
)

// processBatch handles every event of a batch in order. Cancellation of
// ctx is not observed until the batch is done.
func (d *Daemon) processBatch(ctx context.Context, batch []watch.Event) error {
	publishCtx := context.WithoutCancel(ctx)

	for _, ev := range batch {
		d.logger.Debug("Job file finalized",
			slog.String("file", ev.Name),
			slog.String("op", ev.Op.String()),
		)

		if err := d.processFile(publishCtx, ev.Path); err != nil {
			return err
		}
	}
	return nil
}

// processFile reads one job file and publishes an event per operation.
// Only fatal errors are returned.
func (d *Daemon) processFile(ctx context.Context, path string) error {
	decoded, err := codec.ReadFile(path)
	if err != nil {
		var readErr *domain.TransientReadError
		var decodeErr *domain.DecodeError

		switch {
		case errors.As(err, &readErr):
			d.logger.Debug("Job file is gone, skipping",
				slog.String("file", path),
				slog.Any("error", readErr.Err),
			)
			d.stats.filesSkipped.Add(1)
			recordFile(resultSkippedRead)
			return nil
		case errors.As(err, &decodeErr):
			d.logger.Warn("Failed to decode job file, skipping",
				slog.String("file", path),
				slog.Any("error", decodeErr.Err),
			)
			d.stats.filesSkipped.Add(1)
			recordFile(resultSkippedDecode)
			return nil
		default:
			return err
		}
	}

	job := decoded.Job
	recordDecoded(decoded.Schema.String())

	logger := d.logger.With(
		slog.Int64("job_id", job.ID),
		slog.String("file", path),
	)
	logger.Debug("Decoded job file",
		slog.String("schema", decoded.Schema.String()),
		slog.Int("ops", len(job.Ops)),
	)

	for _, outcome := range translator.Translate(job) {
		if outcome.Err != nil {
			var statusErr *domain.UnknownStatusError
			if !errors.As(outcome.Err, &statusErr) {
				return outcome.Err
			}

			logger.Error("Unknown operation status",
				slog.Int("op_index", statusErr.OpIndex),
				slog.String("operation", job.Ops[outcome.Index].Input.OpID),
				slog.String("status", string(statusErr.Status)),
				slog.String("policy", string(d.policy)),
			)
			d.stats.unknownStatuses.Add(1)
			recordUnknownStatus()

			if d.policy == PolicySkipOperation {
				continue
			}
			d.stats.filesAborted.Add(1)
			recordFile(resultAborted)
			return nil
		}

		ev := outcome.Event
		if err := d.publisher.Publish(ctx, ev); err != nil {
			logger.Error("Failed to publish event",
				slog.String("operation", ev.Operation),
				slog.String("status", string(ev.Status)),
				slog.Any("error", err),
			)
			return err
		}

		d.stats.eventsPublished.Add(1)
		d.stats.lastEventAt.Store(time.Now().UnixNano())
		recordPublished(string(ev.Status))
	}

	d.stats.filesProcessed.Add(1)
	recordFile(resultProcessed)
	return nil
}
