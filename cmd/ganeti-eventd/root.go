package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/ganeti-eventd/internal/config"
)

type rootOptions struct {
	configPath string
	logFile    string
	pidFile    string
	debug      bool
	foreground bool
}

func newRootCommand() *cobra.Command {
	return buildRootCommand(&rootOptions{})
}

func buildRootCommand(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ganeti-eventd",
		Short: "Publish Ganeti job status changes to RabbitMQ",
		Long: `ganeti-eventd watches the Ganeti job queue directory and publishes a
notification for every operation of each job file that Ganeti writes.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.BoolVarP(&opts.debug, "debug", "d", false, "Enable debug mode")
	flags.StringVarP(&opts.logFile, "log", "l", config.DefaultLogFile, "Log file")
	flags.StringVarP(&opts.pidFile, "pid-file", "p", config.DefaultPIDFile, "PID file")
	flags.BoolVarP(&opts.foreground, "foreground", "f", false, "Do not detach from the terminal")
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newInspectCommand(opts))

	return rootCmd
}

// configPath picks the file to load: the flag, then the environment, then
// the default path when it exists. An empty result means built-in defaults.
func configPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv(config.EnvConfigPath); v != "" {
		return v, nil
	}
	if _, err := os.Stat(config.DefaultConfigPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to stat %s: %w", config.DefaultConfigPath, err)
	}
	return config.DefaultConfigPath, nil
}

// loadConfig layers file, environment and command line flags, in that order.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	path, err := configPath(opts.configPath)
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("log") {
		cfg.Daemon.LogFile = opts.logFile
	}
	if flags.Changed("pid-file") {
		cfg.Daemon.PIDFile = opts.pidFile
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}
	if opts.foreground {
		cfg.Daemon.Foreground = true
	}

	if err := cfg.AbsolutePaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
