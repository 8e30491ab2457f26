package domain

// JobRecord is a snapshot of a job file at read time
type JobRecord struct {
	ID                int64
	Ops               []Operation
	ReceivedTimestamp Timestamp
}

// Operation is one opcode of a job with its execution state
type Operation struct {
	Status         Status
	Input          OpInput
	StartTimestamp Timestamp
	ExecTimestamp  Timestamp
	EndTimestamp   Timestamp
	Log            []LogEntry
}

// OpInput holds the fields of the opcode input the daemon cares about.
// Instances takes priority over InstanceName when both are present.
type OpInput struct {
	OpID         string
	InstanceName string
	Instances    []string
}

// LogEntry is one entry of an operation log. Only Message is guaranteed;
// the other fields are filled when the entry has the full four-field shape.
type LogEntry struct {
	Serial    int64
	Timestamp Timestamp
	Type      string
	Message   string
}
