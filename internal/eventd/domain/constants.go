package domain

import "strings"

// EventType is the "type" field of every notification message.
const EventType = "ganeti-op-status"

// JobFilePrefix is the filename prefix of job files in the queue directory.
const JobFilePrefix = "job-"

// Status is the status of a single job operation.
type Status string

// Operation status constants
const (
	StatusQueued    Status = "QUEUED"
	StatusWaitLock  Status = "WAITLOCK"
	StatusCanceling Status = "CANCELING"
	StatusRunning   Status = "RUNNING"
	StatusSuccess   Status = "SUCCESS"
	StatusCanceled  Status = "CANCELED"
	StatusError     Status = "ERROR"
)

// ParseStatus normalizes a status string read from a job file. Matching is
// case-insensitive and "waiting" is accepted as an alias of WAITLOCK.
// Unrecognized values are returned verbatim.
func ParseStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "QUEUED":
		return StatusQueued
	case "WAITLOCK", "WAITING":
		return StatusWaitLock
	case "CANCELING":
		return StatusCanceling
	case "RUNNING":
		return StatusRunning
	case "SUCCESS":
		return StatusSuccess
	case "CANCELED":
		return StatusCanceled
	case "ERROR":
		return StatusError
	default:
		return Status(s)
	}
}

// Known reports whether s is one of the recognized statuses.
func (s Status) Known() bool {
	switch s {
	case StatusQueued, StatusWaitLock, StatusCanceling, StatusRunning,
		StatusSuccess, StatusCanceled, StatusError:
		return true
	}
	return false
}

// Finalized reports whether s is a terminal status.
func (s Status) Finalized() bool {
	return s == StatusSuccess || s == StatusCanceled || s == StatusError
}
