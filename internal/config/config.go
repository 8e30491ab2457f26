package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Environment variables that override file values
const (
	EnvConfigPath       = "GANETI_EVENTD_CONFIG_PATH"
	EnvRabbitMQURL      = "GANETI_EVENTD_RABBITMQ_URL"
	EnvRabbitMQPassword = "GANETI_EVENTD_RABBITMQ_PASSWORD"
	EnvQueueDir         = "GANETI_EVENTD_QUEUE_DIR"
)

// Defaults
const (
	DefaultConfigPath  = "/etc/synnefo/ganeti-eventd.yaml"
	DefaultQueueDir    = "/var/lib/ganeti/queue"
	DefaultLogFile     = "/var/log/snf-ganeti-eventd.log"
	DefaultPIDFile     = "/var/run/snf-ganeti-eventd.pid"
	DefaultLockTimeout = 10 * time.Second
)

// Config represents the complete daemon configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Watch    WatchConfig    `yaml:"watch"`
	Daemon   DaemonConfig   `yaml:"daemon"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	Status   StatusConfig   `yaml:"status"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WatchConfig holds the job queue watch settings
type WatchConfig struct {
	QueueDir string   `yaml:"queue_dir"`
	Pattern  string   `yaml:"pattern"`
	Exclude  []string `yaml:"exclude"`
	Backend  string   `yaml:"backend"`
}

// DaemonConfig holds process lifecycle settings
type DaemonConfig struct {
	LogFile         string        `yaml:"log_file"`
	PIDFile         string        `yaml:"pid_file"`
	LockTimeout     time.Duration `yaml:"lock_timeout"`
	OnUnknownStatus string        `yaml:"on_unknown_status"`
	Foreground      bool          `yaml:"foreground"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration
type RabbitMQConfig struct {
	URL           string           `yaml:"url"`
	Host          string           `yaml:"host"`
	Port          int              `yaml:"port"`
	User          string           `yaml:"user"`
	Password      string           `yaml:"password"`
	VHost         string           `yaml:"vhost"`
	Exchange      ExchangeConfig   `yaml:"exchange"`
	RoutingPrefix string           `yaml:"routing_prefix"`
	Connection    ConnectionConfig `yaml:"connection"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Declare    bool   `yaml:"declare"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// LoggingConfig holds logging configuration. Records go to
// Daemon.LogFile.
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// StatusConfig holds the optional status HTTP server settings
type StatusConfig struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "ganeti-eventd",
			Environment: "production",
		},
		Watch: WatchConfig{
			QueueDir: DefaultQueueDir,
			Pattern:  "job-*",
			Backend:  "inotify",
		},
		Daemon: DaemonConfig{
			LogFile:         DefaultLogFile,
			PIDFile:         DefaultPIDFile,
			LockTimeout:     DefaultLockTimeout,
			OnUnknownStatus: "abort_file",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			User:     "guest",
			Password: "guest",
			VHost:    "/",
			Exchange: ExchangeConfig{
				Name:    "ganeti",
				Type:    "topic",
				Durable: true,
				Declare: true,
			},
			RoutingPrefix: "ganeti",
			Connection: ConnectionConfig{
				RetryAttempts:     1,
				RetryInterval:     2 * time.Second,
				Heartbeat:         10 * time.Second,
				ConnectionTimeout: 30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Status: StatusConfig{
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// Load reads the configuration file on top of the defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides file values from the environment
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvRabbitMQURL); ok && v != "" {
		c.RabbitMQ.URL = v
	}
	if v, ok := os.LookupEnv(EnvRabbitMQPassword); ok {
		c.RabbitMQ.Password = v
	}
	if v, ok := os.LookupEnv(EnvQueueDir); ok && v != "" {
		c.Watch.QueueDir = v
	}
}

// AbsolutePaths makes every filesystem path absolute so the configuration
// stays valid after the process changes its working directory.
func (c *Config) AbsolutePaths() error {
	for _, p := range []*string{&c.Watch.QueueDir, &c.Daemon.LogFile, &c.Daemon.PIDFile} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Watch.QueueDir == "" {
		return fmt.Errorf("watch queue_dir is required")
	}

	switch c.Watch.Backend {
	case "inotify", "fsnotify":
	default:
		return fmt.Errorf("invalid watch backend: %q (must be inotify or fsnotify)", c.Watch.Backend)
	}

	if c.Daemon.LogFile == "" {
		return fmt.Errorf("daemon log_file is required")
	}

	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("daemon pid_file is required")
	}

	if c.Daemon.LockTimeout <= 0 {
		return fmt.Errorf("daemon lock_timeout must be greater than 0")
	}

	switch c.Daemon.OnUnknownStatus {
	case "abort_file", "skip_operation":
	default:
		return fmt.Errorf("invalid daemon on_unknown_status: %q (must be abort_file or skip_operation)", c.Daemon.OnUnknownStatus)
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging format: %q (must be console or json)", c.Logging.Format)
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.URL == "" {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}

		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	switch c.RabbitMQ.Exchange.Type {
	case "direct", "fanout", "topic", "headers":
	default:
		return fmt.Errorf("invalid rabbitmq exchange type: %q", c.RabbitMQ.Exchange.Type)
	}

	if c.RabbitMQ.RoutingPrefix == "" {
		return fmt.Errorf("rabbitmq routing_prefix is required")
	}

	if c.RabbitMQ.Connection.RetryAttempts < 1 {
		return fmt.Errorf("rabbitmq connection retry_attempts must be at least 1")
	}

	return nil
}
