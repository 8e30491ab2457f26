package eventd

// State is the lifecycle state of a Daemon.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// UnknownStatusPolicy decides what happens to the rest of a job file after
// an operation with an unknown status.
type UnknownStatusPolicy string

const (
	// PolicyAbortFile skips the remaining operations of the file.
	PolicyAbortFile UnknownStatusPolicy = "abort_file"
	// PolicySkipOperation skips only the offending operation.
	PolicySkipOperation UnknownStatusPolicy = "skip_operation"
)

// Valid reports whether p is a known policy.
func (p UnknownStatusPolicy) Valid() bool {
	return p == PolicyAbortFile || p == PolicySkipOperation
}
