package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEnvelope is returned when a job file is not a JSON object
	ErrMalformedEnvelope = errors.New("job file is not a JSON object")

	// ErrUnsupportedSchema is returned when no known job schema matches
	ErrUnsupportedSchema = errors.New("unsupported job file schema")
)

// DecodeError means a job file could not be turned into a JobRecord.
// The file is skipped.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return "decode job file: " + e.Err.Error()
	}
	return fmt.Sprintf("decode job file %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TransientReadError means the job file disappeared or could not be read
// between the filesystem event and the read.
type TransientReadError struct {
	Path string
	Err  error
}

func (e *TransientReadError) Error() string {
	return fmt.Sprintf("read job file %s: %v", e.Path, e.Err)
}

func (e *TransientReadError) Unwrap() error {
	return e.Err
}

// UnknownStatusError is returned when an operation carries a status that
// has no timestamp mapping.
type UnknownStatusError struct {
	Status  Status
	JobID   int64
	OpIndex int
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown status %q for job %d operation %d", string(e.Status), e.JobID, e.OpIndex)
}

// PublishError wraps a broker failure. It is fatal to the daemon.
type PublishError struct {
	RoutingKey string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// NewDecodeError creates a new decode error
func NewDecodeError(path string, err error) error {
	return &DecodeError{Path: path, Err: err}
}

// IsSkippable reports whether err only affects the file being processed.
func IsSkippable(err error) bool {
	var decodeErr *DecodeError
	var readErr *TransientReadError
	return errors.As(err, &decodeErr) || errors.As(err, &readErr)
}
