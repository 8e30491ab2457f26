package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cuongbtq/ganeti-eventd/internal/eventd/domain"
)

// Schema identifies which job file layout a record was decoded from.
type Schema int

const (
	// SchemaCurrent has [sec, usec] pair timestamps and a string or numeric id.
	SchemaCurrent Schema = iota + 1
	// SchemaLegacy has fractional-second number timestamps and a numeric id.
	SchemaLegacy
)

func (s Schema) String() string {
	switch s {
	case SchemaCurrent:
		return "current"
	case SchemaLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// timestampDecoder parses one timestamp in the layout of a schema.
type timestampDecoder func(raw json.RawMessage) (domain.Timestamp, error)

// jobFile is the envelope common to both schemas. Timestamps are kept raw
// so each schema can apply its own rules.
type jobFile struct {
	ID                json.RawMessage `json:"id"`
	Ops               []opFile        `json:"ops"`
	ReceivedTimestamp json.RawMessage `json:"received_timestamp"`
}

type opFile struct {
	Status         string            `json:"status"`
	Input          inputFile         `json:"input"`
	StartTimestamp json.RawMessage   `json:"start_timestamp"`
	ExecTimestamp  json.RawMessage   `json:"exec_timestamp"`
	EndTimestamp   json.RawMessage   `json:"end_timestamp"`
	Log            []json.RawMessage `json:"log"`
}

type inputFile struct {
	OpID         string   `json:"OP_ID"`
	InstanceName *string  `json:"instance_name"`
	Instances    []string `json:"instances"`
}

type schemaDecoder struct {
	schema    Schema
	stringID  bool
	timestamp timestampDecoder
}

var schemas = []schemaDecoder{
	{schema: SchemaCurrent, stringID: true, timestamp: pairTimestamp},
	{schema: SchemaLegacy, stringID: false, timestamp: numberTimestamp},
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// pairTimestamp decodes a [seconds, microseconds] pair.
func pairTimestamp(raw json.RawMessage) (domain.Timestamp, error) {
	if isNull(raw) {
		return domain.Timestamp{}, nil
	}

	var pair []json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&pair); err != nil {
		return domain.Timestamp{}, fmt.Errorf("timestamp is not a [sec, usec] pair: %w", err)
	}
	if len(pair) != 2 {
		return domain.Timestamp{}, fmt.Errorf("timestamp pair has %d elements", len(pair))
	}

	sec, err := pair[0].Int64()
	if err != nil {
		return domain.Timestamp{}, fmt.Errorf("timestamp seconds: %w", err)
	}
	usec, err := pair[1].Int64()
	if err != nil {
		return domain.Timestamp{}, fmt.Errorf("timestamp microseconds: %w", err)
	}

	return domain.NewTimestamp(sec, usec), nil
}

// numberTimestamp decodes a JSON number of (possibly fractional) seconds.
// A missing or null field is an absent timestamp.
func numberTimestamp(raw json.RawMessage) (domain.Timestamp, error) {
	if isNull(raw) {
		return domain.Timestamp{}, nil
	}

	var ts domain.Timestamp
	if err := ts.UnmarshalJSON(raw); err != nil {
		return domain.Timestamp{}, err
	}
	return ts, nil
}

func (d schemaDecoder) decode(f *jobFile) (*domain.JobRecord, error) {
	id, err := d.jobID(f.ID)
	if err != nil {
		return nil, err
	}

	received, err := d.timestamp(f.ReceivedTimestamp)
	if err != nil {
		return nil, fmt.Errorf("received_timestamp: %w", err)
	}

	job := &domain.JobRecord{
		ID:                id,
		ReceivedTimestamp: received,
		Ops:               make([]domain.Operation, 0, len(f.Ops)),
	}

	for i := range f.Ops {
		op, err := d.operation(&f.Ops[i])
		if err != nil {
			return nil, fmt.Errorf("ops[%d]: %w", i, err)
		}
		job.Ops = append(job.Ops, op)
	}

	return job, nil
}

func (d schemaDecoder) jobID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return 0, errors.New("missing job id")
	}

	if raw[0] != '"' {
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return 0, fmt.Errorf("job id %s is not a number", raw)
		}
		id, err := num.Int64()
		if err != nil {
			return 0, fmt.Errorf("job id %s is not an integer", raw)
		}
		return id, nil
	}

	if !d.stringID {
		return 0, fmt.Errorf("job id %s is not a number", raw)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, fmt.Errorf("job id %s is not a string", raw)
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("job id %q is not an integer", text)
	}
	return id, nil
}

func (d schemaDecoder) operation(f *opFile) (domain.Operation, error) {
	var (
		op  domain.Operation
		err error
	)

	op.Status = domain.ParseStatus(f.Status)
	op.Input = domain.OpInput{
		OpID:      f.Input.OpID,
		Instances: f.Input.Instances,
	}
	if f.Input.InstanceName != nil {
		op.Input.InstanceName = *f.Input.InstanceName
	}

	if op.StartTimestamp, err = d.timestamp(f.StartTimestamp); err != nil {
		return op, fmt.Errorf("start_timestamp: %w", err)
	}
	if op.ExecTimestamp, err = d.timestamp(f.ExecTimestamp); err != nil {
		return op, fmt.Errorf("exec_timestamp: %w", err)
	}
	if op.EndTimestamp, err = d.timestamp(f.EndTimestamp); err != nil {
		return op, fmt.Errorf("end_timestamp: %w", err)
	}

	op.Log = make([]domain.LogEntry, 0, len(f.Log))
	for i, raw := range f.Log {
		entry, err := d.logEntry(raw)
		if err != nil {
			return op, fmt.Errorf("log[%d]: %w", i, err)
		}
		op.Log = append(op.Log, entry)
	}

	return op, nil
}

// logEntry decodes a log tuple. Every tuple must end in a message; the
// serial, timestamp and type are only read from full four-field entries.
func (d schemaDecoder) logEntry(raw json.RawMessage) (domain.LogEntry, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.LogEntry{}, fmt.Errorf("log entry is not a list: %w", err)
	}
	if len(fields) == 0 {
		return domain.LogEntry{}, errors.New("empty log entry")
	}

	entry := domain.LogEntry{Message: messageText(fields[len(fields)-1])}
	if len(fields) != 4 {
		return entry, nil
	}

	if err := json.Unmarshal(fields[0], &entry.Serial); err != nil {
		return domain.LogEntry{}, fmt.Errorf("log serial: %w", err)
	}
	ts, err := d.timestamp(fields[1])
	if err != nil {
		return domain.LogEntry{}, fmt.Errorf("log timestamp: %w", err)
	}
	entry.Timestamp = ts
	if err := json.Unmarshal(fields[2], &entry.Type); err != nil {
		return domain.LogEntry{}, fmt.Errorf("log type: %w", err)
	}

	return entry, nil
}

// messageText returns string messages unquoted and any other JSON value
// as its compact text.
func messageText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
