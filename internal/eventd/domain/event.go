package domain

// NotificationEvent is the message published for one operation of a job.
// Field order matches the wire format.
type NotificationEvent struct {
	EventTime  Timestamp `json:"event_time"`
	Type       string    `json:"type"`
	Instance   string    `json:"instance"`
	Operation  string    `json:"operation"`
	JobID      int64     `json:"jobId"`
	Status     Status    `json:"status"`
	LogMessage *string   `json:"logmsg"`
}

// LogMessageText returns the log message or "" when absent.
func (e NotificationEvent) LogMessageText() string {
	if e.LogMessage == nil {
		return ""
	}
	return *e.LogMessage
}
