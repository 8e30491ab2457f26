// Package codec turns Ganeti job files into domain.JobRecord values.
//
// Job files have been written in two layouts over time. Decode tries the
// current layout first and falls back to the legacy one; the result records
// which layout matched.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/cuongbtq/ganeti-eventd/internal/eventd/domain"
)

// Decoded is a job record tagged with the schema it was decoded from.
type Decoded struct {
	Schema Schema
	Job    *domain.JobRecord
}

// Decode parses raw job file content. Failures are *domain.DecodeError.
func Decode(raw []byte) (Decoded, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Decoded{}, domain.NewDecodeError("", domain.ErrMalformedEnvelope)
	}

	var f jobFile
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return Decoded{}, domain.NewDecodeError("", fmt.Errorf("%w: %v", domain.ErrMalformedEnvelope, err))
	}

	var errs []error
	for _, s := range schemas {
		job, err := s.decode(&f)
		if err == nil {
			return Decoded{Schema: s.schema, Job: job}, nil
		}
		errs = append(errs, fmt.Errorf("%s schema: %w", s.schema, err))
	}

	return Decoded{}, domain.NewDecodeError("", fmt.Errorf("%w: %w", domain.ErrUnsupportedSchema, errors.Join(errs...)))
}

// ReadFile reads and decodes the job file at path. A file that cannot be
// read yields *domain.TransientReadError.
func ReadFile(path string) (Decoded, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Decoded{}, &domain.TransientReadError{Path: path, Err: err}
	}

	decoded, err := Decode(raw)
	if err != nil {
		var decodeErr *domain.DecodeError
		if errors.As(err, &decodeErr) {
			decodeErr.Path = path
		}
		return Decoded{}, err
	}

	return decoded, nil
}
