package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/ganeti-eventd/internal/config"
)

const (
	legacyJob  = "../../internal/eventd/codec/testdata/job-legacy.json"
	currentJob = "../../internal/eventd/codec/testdata/job-current.json"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func parseRoot(t *testing.T, args ...string) (*cobra.Command, *rootOptions) {
	t.Helper()

	opts := &rootOptions{}
	cmd := buildRootCommand(opts)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, opts
}

func TestLoadConfig(t *testing.T) {
	queueDir := t.TempDir()
	path := writeConfig(t, `
watch:
  queue_dir: `+queueDir+`
daemon:
  log_file: /tmp/from-file.log
rabbitmq:
  routing_prefix: cyclades
`)

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "file values without flags",
			args: []string{"--config", path},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, queueDir, cfg.Watch.QueueDir)
				assert.Equal(t, "/tmp/from-file.log", cfg.Daemon.LogFile)
				assert.Equal(t, config.DefaultPIDFile, cfg.Daemon.PIDFile)
				assert.Equal(t, "cyclades", cfg.RabbitMQ.RoutingPrefix)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.False(t, cfg.Daemon.Foreground)
			},
		},
		{
			name: "flags override file",
			args: []string{"--config", path, "--debug", "--foreground", "--log", "/tmp/eventd.log", "--pid-file", "/tmp/eventd.pid"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "/tmp/eventd.log", cfg.Daemon.LogFile)
				assert.Equal(t, "/tmp/eventd.pid", cfg.Daemon.PIDFile)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.True(t, cfg.Daemon.Foreground)
			},
		},
		{
			name: "relative paths become absolute",
			args: []string{"--config", path, "--log", "eventd.log"},
			check: func(t *testing.T, cfg *config.Config) {
				assert.True(t, filepath.IsAbs(cfg.Daemon.LogFile))
				assert.Equal(t, "eventd.log", filepath.Base(cfg.Daemon.LogFile))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(config.EnvConfigPath, "")

			cmd, opts := parseRoot(t, tt.args...)
			cfg, err := loadConfig(cmd, opts)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfig_EnvPath(t *testing.T) {
	path := writeConfig(t, "rabbitmq:\n  routing_prefix: snf\n")
	t.Setenv(config.EnvConfigPath, path)

	cmd, opts := parseRoot(t)
	cfg, err := loadConfig(cmd, opts)
	require.NoError(t, err)
	assert.Equal(t, "snf", cfg.RabbitMQ.RoutingPrefix)
}

func TestLoadConfig_Errors(t *testing.T) {
	invalid := writeConfig(t, "daemon:\n  on_unknown_status: ignore\n")

	tests := []struct {
		name      string
		args      []string
		errString string
	}{
		{name: "invalid value", args: []string{"--config", invalid}, errString: "invalid config"},
		{name: "missing file", args: []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}, errString: "failed to load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(config.EnvConfigPath, "")

			cmd, opts := parseRoot(t, tt.args...)
			_, err := loadConfig(cmd, opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestRootCommand_Defaults(t *testing.T) {
	cmd := newRootCommand()

	log := cmd.Flags().Lookup("log")
	require.NotNil(t, log)
	assert.Equal(t, "/var/log/snf-ganeti-eventd.log", log.DefValue)

	pid := cmd.Flags().Lookup("pid-file")
	require.NotNil(t, pid)
	assert.Equal(t, "/var/run/snf-ganeti-eventd.pid", pid.DefValue)

	for _, name := range []string{"debug", "foreground"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}

	// Inherited by inspect, so it lives on the persistent set.
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.Nil(t, cmd.Flags().Lookup("config"))
}

func TestInspectFiles_Table(t *testing.T) {
	var out, errOut bytes.Buffer

	err := inspectFiles(&out, &errOut, "ganeti", []string{legacyJob, currentJob}, false)
	require.NoError(t, err)
	assert.Empty(t, errOut.String())

	table := out.String()
	assert.Contains(t, table, "ROUTING KEY")
	assert.Contains(t, table, "ganeti.db.event.op")
	assert.Contains(t, table, "OP_INSTANCE_STARTUP")
	assert.Contains(t, table, "1337")
	assert.Contains(t, table, "vm-3 vm-4")
	assert.Contains(t, table, "WAITLOCK")
}

func TestInspectFiles_JSON(t *testing.T) {
	var out, errOut bytes.Buffer

	err := inspectFiles(&out, &errOut, "ganeti", []string{legacyJob}, true)
	require.NoError(t, err)

	var messages []struct {
		File       string          `json:"file"`
		Op         int             `json:"op"`
		RoutingKey string          `json:"routing_key"`
		Body       json.RawMessage `json:"body"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &messages))
	require.Len(t, messages, 1)

	assert.Equal(t, legacyJob, messages[0].File)
	assert.Equal(t, 0, messages[0].Op)
	assert.Equal(t, "ganeti.db.event.op", messages[0].RoutingKey)
	assert.JSONEq(t,
		`{"event_time":1000,"type":"ganeti-op-status","instance":"db-7","operation":"OP_INSTANCE_STARTUP","jobId":42,"status":"RUNNING","logmsg":"done"}`,
		string(messages[0].Body),
	)
}

func TestInspectFiles_DecodeFailure(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "job-9")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o644))

	var out, errOut bytes.Buffer
	err := inspectFiles(&out, &errOut, "ganeti", []string{bad, legacyJob}, true)

	require.ErrorIs(t, err, errInspectFailed)
	assert.Contains(t, errOut.String(), bad)
	assert.Contains(t, out.String(), "ganeti.db.event.op")
}

func TestInspectFiles_UnknownStatusRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job-77")
	require.NoError(t, os.WriteFile(path, []byte(`{"id": 77, "ops": [{"status": "exploded", "input": {"OP_ID": "OP_NOOP"}}]}`), 0o644))

	var out, errOut bytes.Buffer
	require.NoError(t, inspectFiles(&out, &errOut, "ganeti", []string{path}, false))

	var row string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.Contains(line, "unknown status") {
			row = line
		}
	}
	require.NotEmpty(t, row)
	assert.Contains(t, row, "77")

	out.Reset()
	require.NoError(t, inspectFiles(&out, &errOut, "ganeti", []string{path}, true))

	var messages []inspectedMessage
	require.NoError(t, json.Unmarshal(out.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, int64(77), messages[0].JobID)
	assert.Contains(t, messages[0].Error, "unknown status")
}

func TestInspectCommand(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	path := writeConfig(t, "rabbitmq:\n  routing_prefix: snf\n")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"inspect", "--config", path, "--json", legacyJob})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"routing_key": "snf.db.event.op"`)
}

func TestInspectCommand_RequiresFiles(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"inspect"})

	assert.Error(t, cmd.Execute())
}
