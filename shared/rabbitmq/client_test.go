package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfig_URI(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantErr   bool
		wantHost  string
		wantPort  int
		wantUser  string
		wantPass  string
		wantVHost string
	}{
		{
			name:      "fields with default vhost",
			config:    Config{Host: "mq.example.org", Port: 5672, User: "eventd", Password: "s3cr3t"},
			wantHost:  "mq.example.org",
			wantPort:  5672,
			wantUser:  "eventd",
			wantPass:  "s3cr3t",
			wantVHost: "/",
		},
		{
			name:      "custom vhost and port",
			config:    Config{Host: "10.0.0.5", Port: 5673, User: "guest", Password: "guest", VHost: "synnefo"},
			wantHost:  "10.0.0.5",
			wantPort:  5673,
			wantUser:  "guest",
			wantPass:  "guest",
			wantVHost: "synnefo",
		},
		{
			name:      "url overrides fields",
			config:    Config{URL: "amqp://alice:pw@broker:5680/ganeti", Host: "ignored"},
			wantHost:  "broker",
			wantPort:  5680,
			wantUser:  "alice",
			wantPass:  "pw",
			wantVHost: "ganeti",
		},
		{
			name:    "invalid url",
			config:  Config{URL: "http://broker"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri, err := tt.config.URI()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			parsed, err := amqp.ParseURI(uri)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, parsed.Host)
			assert.Equal(t, tt.wantPort, parsed.Port)
			assert.Equal(t, tt.wantUser, parsed.Username)
			assert.Equal(t, tt.wantPass, parsed.Password)
			assert.Equal(t, tt.wantVHost, parsed.Vhost)
		})
	}
}

func TestNewClient_ConnectFailure(t *testing.T) {
	client, err := NewClient(context.Background(), &Config{
		Host:              "127.0.0.1",
		Port:              1,
		User:              "guest",
		Password:          "guest",
		RetryAttempts:     2,
		RetryInterval:     10 * time.Millisecond,
		ConnectionTimeout: time.Second,
	}, discardLogger())

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestNewClient_CanceledDuringRetry(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	signal := errors.New("caught signal terminated")
	time.AfterFunc(50*time.Millisecond, func() { cancel(signal) })

	start := time.Now()
	client, err := NewClient(ctx, &Config{
		Host:              "127.0.0.1",
		Port:              1,
		RetryAttempts:     5,
		RetryInterval:     10 * time.Second,
		ConnectionTimeout: time.Second,
	}, discardLogger())

	require.Error(t, err)
	assert.Nil(t, client)
	assert.ErrorIs(t, err, signal)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_PublishWhenDisconnected(t *testing.T) {
	client := &Client{config: &Config{ExchangeName: "ganeti"}, logger: discardLogger()}

	assert.False(t, client.IsConnected())
	err := client.Publish(context.Background(), "ganeti.vm.event.op", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, client.Close())
}
