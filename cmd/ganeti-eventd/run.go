package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/ganeti-eventd/internal/api"
	"github.com/cuongbtq/ganeti-eventd/internal/api/handler"
	"github.com/cuongbtq/ganeti-eventd/internal/config"
	"github.com/cuongbtq/ganeti-eventd/internal/eventd"
	"github.com/cuongbtq/ganeti-eventd/internal/eventd/publisher"
	"github.com/cuongbtq/ganeti-eventd/internal/eventd/watch"
	"github.com/cuongbtq/ganeti-eventd/shared/daemonize"
	"github.com/cuongbtq/ganeti-eventd/shared/logger"
	"github.com/cuongbtq/ganeti-eventd/shared/pidlock"
	"github.com/cuongbtq/ganeti-eventd/shared/rabbitmq"
)

// errSignal is the cancellation cause recorded when SIGINT or SIGTERM
// arrives.
var errSignal = errors.New("caught signal")

func runDaemon(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stopSignals := handleSignals(cancel)
	defer stopSignals()

	lock, detached, err := becomeDaemon(ctx, cfg)
	if err != nil {
		if interrupted(ctx) {
			fmt.Fprintln(os.Stderr, context.Cause(ctx))
			return nil
		}
		return err
	}
	if detached {
		// The child owns the lock now.
		return nil
	}
	defer func() {
		if err := lock.Release(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to release pid file: %v\n", err)
		}
	}()

	if err := lock.WritePID(os.Getpid()); err != nil {
		return err
	}

	appLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	if daemonize.IsChild() {
		appLogger.Info("Became a daemon", slog.Int("pid", os.Getpid()))
	}
	appLogger.Info("Starting event daemon",
		slog.String("app", cfg.App.Name),
		slog.String("version", version),
		slog.String("environment", cfg.App.Environment),
	)

	err = serve(ctx, cfg, appLogger.Logger)
	if interrupted(ctx) {
		appLogger.Info("Caught fatal signal", slog.Any("cause", context.Cause(ctx)))
	}
	if err != nil && !errors.Is(err, errSignal) {
		appLogger.Error("Event daemon failed", slog.Any("error", err))
		return err
	}

	appLogger.Info("Event daemon shutdown complete")
	return nil
}

// becomeDaemon takes the PID lock and, unless running in the foreground,
// hands it to a detached copy of this process. detached reports that the
// caller is the parent and must exit.
func becomeDaemon(ctx context.Context, cfg *config.Config) (lock *pidlock.Lock, detached bool, err error) {
	if daemonize.IsChild() {
		fd, ok := daemonize.InheritedLockFD()
		if !ok {
			return nil, false, errors.New("detached process started without a lock descriptor")
		}

		lock, err := pidlock.Adopt(cfg.Daemon.PIDFile, fd)
		if err != nil {
			return nil, false, err
		}

		if err := daemonize.Setup(); err != nil {
			lock.Release()
			return nil, false, err
		}
		return lock, false, nil
	}

	lock, err = pidlock.Acquire(ctx, cfg.Daemon.PIDFile, cfg.Daemon.LockTimeout)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire pid file: %w", err)
	}

	if cfg.Daemon.Foreground {
		return lock, false, nil
	}

	// Report watch failures on the terminal, before detaching.
	src, err := openWatch(cfg, nil)
	if err != nil {
		lock.Release()
		return nil, false, err
	}
	src.Close()

	out, err := logger.OpenFile(cfg.Daemon.LogFile)
	if err != nil {
		lock.Release()
		return nil, false, err
	}
	defer out.Close()

	if _, err := daemonize.Detach(daemonize.Options{
		Args:     os.Args[1:],
		Output:   out,
		LockFile: lock.File(),
	}); err != nil {
		lock.Release()
		return nil, false, err
	}

	return nil, true, nil
}

// handleSignals cancels with errSignal on SIGINT or SIGTERM until the
// returned function is called.
func handleSignals(cancel context.CancelCauseFunc) (stop func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-quit:
			cancel(fmt.Errorf("%w %s", errSignal, sig))
		case <-done:
		}
	}()

	return func() {
		signal.Stop(quit)
		close(done)
	}
}

// interrupted reports whether ctx was canceled by a signal.
func interrupted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), errSignal)
}

// serve runs the event loop until ctx is canceled or a fatal error occurs.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	src, err := openWatch(cfg, log)
	if err != nil {
		return err
	}

	rabbitClient, err := initRabbitMQ(ctx, &cfg.RabbitMQ, log)
	if err != nil {
		src.Close()
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	daemon, err := eventd.NewDaemon(&eventd.Config{
		Logger:              log,
		Source:              src,
		Publisher:           publisher.New(rabbitClient, cfg.RabbitMQ.RoutingPrefix, log),
		QueueDir:            cfg.Watch.QueueDir,
		UnknownStatusPolicy: eventd.UnknownStatusPolicy(cfg.Daemon.OnUnknownStatus),
	})
	if err != nil {
		src.Close()
		return err
	}

	if cfg.Status.Listen != "" {
		statusServer, err := api.NewServer(cfg.Status.Listen, cfg.App.Environment, &handler.Dependencies{
			Logger:      log,
			Daemon:      daemon,
			ServiceName: cfg.App.Name,
			Version:     version,
		})
		if err != nil {
			daemon.Stop()
			return err
		}
		statusServer.Start()
		defer func() {
			if err := statusServer.Shutdown(cfg.Status.ShutdownTimeout); err != nil {
				log.Error("Status server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	return daemon.Run(ctx)
}

func openWatch(cfg *config.Config, log *slog.Logger) (watch.Source, error) {
	return watch.Open(watch.Config{
		Dir:     cfg.Watch.QueueDir,
		Pattern: cfg.Watch.Pattern,
		Exclude: cfg.Watch.Exclude,
		Backend: cfg.Watch.Backend,
		Logger:  log,
	})
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Daemon.LogFile,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
		Component:    "eventd",
	})
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(ctx context.Context, cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(ctx, &rabbitmq.Config{
		URL:                cfg.URL,
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		DeclareExchange:    cfg.Exchange.Declare,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}, logger)
}
