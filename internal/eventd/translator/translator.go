// Package translator maps job operations to notification events.
package translator

import (
	"strings"

	"github.com/cuongbtq/ganeti-eventd/internal/eventd/domain"
)

// Outcome is the translation result of one operation. Exactly one of
// Event and Err is meaningful.
type Outcome struct {
	Index int
	Event domain.NotificationEvent
	Err   error
}

// EventTime selects the timestamp that is authoritative for the status of op.
func EventTime(job *domain.JobRecord, op *domain.Operation, index int) (domain.Timestamp, error) {
	switch op.Status {
	case domain.StatusQueued:
		return job.ReceivedTimestamp, nil
	case domain.StatusWaitLock, domain.StatusCanceling:
		return op.StartTimestamp, nil
	case domain.StatusRunning:
		return op.ExecTimestamp, nil
	case domain.StatusSuccess, domain.StatusCanceled, domain.StatusError:
		return op.EndTimestamp, nil
	default:
		return domain.Timestamp{}, &domain.UnknownStatusError{
			Status:  op.Status,
			JobID:   job.ID,
			OpIndex: index,
		}
	}
}

// InstanceName derives the instance an operation acts on. A non-empty
// instances list wins over instance_name.
func InstanceName(input domain.OpInput) string {
	if len(input.Instances) > 0 {
		return strings.Join(input.Instances, " ")
	}
	return input.InstanceName
}

// LogMessage returns the message of the last log entry, or nil for an
// empty log.
func LogMessage(op *domain.Operation) *string {
	if len(op.Log) == 0 {
		return nil
	}
	msg := op.Log[len(op.Log)-1].Message
	return &msg
}

// TranslateOperation builds the event for the operation at index.
func TranslateOperation(job *domain.JobRecord, index int) (domain.NotificationEvent, error) {
	op := &job.Ops[index]

	eventTime, err := EventTime(job, op, index)
	if err != nil {
		return domain.NotificationEvent{}, err
	}

	return domain.NotificationEvent{
		EventTime:  eventTime,
		Type:       domain.EventType,
		Instance:   InstanceName(op.Input),
		Operation:  op.Input.OpID,
		JobID:      job.ID,
		Status:     op.Status,
		LogMessage: LogMessage(op),
	}, nil
}

// Translate returns one outcome per operation, in operation order. A failed
// operation does not stop the others from being translated.
func Translate(job *domain.JobRecord) []Outcome {
	outcomes := make([]Outcome, 0, len(job.Ops))
	for i := range job.Ops {
		ev, err := TranslateOperation(job, i)
		outcomes = append(outcomes, Outcome{Index: i, Event: ev, Err: err})
	}
	return outcomes
}
