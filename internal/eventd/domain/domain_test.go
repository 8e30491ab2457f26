package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{in: "queued", want: StatusQueued},
		{in: "QUEUED", want: StatusQueued},
		{in: "waitlock", want: StatusWaitLock},
		{in: "waiting", want: StatusWaitLock},
		{in: "canceling", want: StatusCanceling},
		{in: "running", want: StatusRunning},
		{in: "success", want: StatusSuccess},
		{in: "canceled", want: StatusCanceled},
		{in: "error", want: StatusError},
		{in: "exploded", want: Status("exploded")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.in))
		})
	}
}

func TestStatus_KnownAndFinalized(t *testing.T) {
	finalized := map[Status]bool{
		StatusQueued:    false,
		StatusWaitLock:  false,
		StatusCanceling: false,
		StatusRunning:   false,
		StatusSuccess:   true,
		StatusCanceled:  true,
		StatusError:     true,
	}
	for status, want := range finalized {
		assert.True(t, status.Known(), status)
		assert.Equal(t, want, status.Finalized(), status)
	}

	assert.False(t, Status("BOGUS").Known())
	assert.False(t, Status("BOGUS").Finalized())
}

func TestTimestamp_String(t *testing.T) {
	tests := []struct {
		name string
		ts   Timestamp
		want string
	}{
		{name: "absent", ts: Timestamp{}, want: "null"},
		{name: "whole seconds", ts: NewTimestamp(1000, 0), want: "1000"},
		{name: "half second", ts: NewTimestamp(1000, 500000), want: "1000.5"},
		{name: "one microsecond", ts: NewTimestamp(1000, 1), want: "1000.000001"},
		{name: "usec overflow normalized", ts: NewTimestamp(1, 1500000), want: "2.5"},
		{name: "negative", ts: FromMicros(-1500000), want: "-1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ts.String())
		})
	}
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		in      string
		want    Timestamp
		wantErr bool
	}{
		{in: "1000", want: NewTimestamp(1000, 0)},
		{in: "1000.5", want: NewTimestamp(1000, 500000)},
		{in: "1291125154.123456", want: NewTimestamp(1291125154, 123456)},
		{in: "1.5e3", want: NewTimestamp(1500, 0)},
		{in: "1000.0000009", want: NewTimestamp(1000, 0)},
		{in: `"1000"`, wantErr: true},
		{in: "true", wantErr: true},
		{in: "[1000, 0]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeconds(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimestamp_JSON(t *testing.T) {
	var holder struct {
		At Timestamp `json:"at"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"at":1291125154.25}`), &holder))
	assert.Equal(t, NewTimestamp(1291125154, 250000), holder.At)

	out, err := json.Marshal(holder)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":1291125154.25}`, string(out))

	holder.At = NewTimestamp(5, 0)
	require.NoError(t, json.Unmarshal([]byte(`{"at":null}`), &holder))
	assert.False(t, holder.At.Valid)
}

func TestTimestamp_Time(t *testing.T) {
	assert.True(t, Timestamp{}.Time().IsZero())
	assert.Equal(t, time.Unix(1000, 500000000), NewTimestamp(1000, 500000).Time())
}

func TestNotificationEvent_JSON(t *testing.T) {
	msg := "done"
	ev := NotificationEvent{
		EventTime:  NewTimestamp(1000, 0),
		Type:       EventType,
		Instance:   "db-7",
		Operation:  "OP_INSTANCE_STARTUP",
		JobID:      42,
		Status:     StatusRunning,
		LogMessage: &msg,
	}

	out, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Equal(t,
		`{"event_time":1000,"type":"ganeti-op-status","instance":"db-7","operation":"OP_INSTANCE_STARTUP","jobId":42,"status":"RUNNING","logmsg":"done"}`,
		string(out))

	var decoded NotificationEvent
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, ev, decoded)
	assert.Equal(t, "done", decoded.LogMessageText())
}

func TestNotificationEvent_JSONAbsentFields(t *testing.T) {
	ev := NotificationEvent{
		Type:      EventType,
		Operation: "OP_CLUSTER_VERIFY",
		JobID:     7,
		Status:    StatusQueued,
	}

	out, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"event_time":null,"type":"ganeti-op-status","instance":"","operation":"OP_CLUSTER_VERIFY","jobId":7,"status":"QUEUED","logmsg":null}`,
		string(out))

	var decoded NotificationEvent
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, ev, decoded)
	assert.Equal(t, "", decoded.LogMessageText())
}

func TestErrors(t *testing.T) {
	decodeErr := NewDecodeError("/queue/job-1", ErrUnsupportedSchema)
	assert.ErrorIs(t, decodeErr, ErrUnsupportedSchema)
	assert.Contains(t, decodeErr.Error(), "/queue/job-1")
	assert.True(t, IsSkippable(decodeErr))

	readErr := fmt.Errorf("process: %w", &TransientReadError{Path: "/queue/job-2", Err: fs.ErrNotExist})
	assert.ErrorIs(t, readErr, fs.ErrNotExist)
	assert.True(t, IsSkippable(readErr))

	statusErr := &UnknownStatusError{Status: "BOGUS", JobID: 9, OpIndex: 1}
	assert.Equal(t, `unknown status "BOGUS" for job 9 operation 1`, statusErr.Error())
	assert.False(t, IsSkippable(statusErr))

	publishErr := &PublishError{RoutingKey: "ganeti.vm.event.op", Err: errors.New("channel closed")}
	assert.Contains(t, publishErr.Error(), "ganeti.vm.event.op")
	assert.False(t, IsSkippable(publishErr))
}
