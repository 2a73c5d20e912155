package entity

import "time"

type OutcomeStatus int16

const (
	OutcomeStatusUnknown OutcomeStatus = 0
	OutcomeStatusSent    OutcomeStatus = 1
	OutcomeStatusSkipped OutcomeStatus = 2
	OutcomeStatusFailed  OutcomeStatus = 3
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeStatusSent:
		return "sent"
	case OutcomeStatusSkipped:
		return "skipped"
	case OutcomeStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DispatchOutcome is the result of one recipient's send. Row is 1-based.
type DispatchOutcome struct {
	Row       int
	Recipient string
	Status    OutcomeStatus
	Reason    string
}

// BatchSummary aggregates the outcomes of one batch. It is written by a single
// aggregator and never changed after it is returned.
type BatchSummary struct {
	BatchID   string
	Attempted int
	Sent      int
	Skipped   int
	Failed    int
	Success   bool
	Message   string
	StartedAt time.Time
	Duration  time.Duration
	Failures  []DispatchOutcome
}

// Record counts o exactly once.
func (b *BatchSummary) Record(o DispatchOutcome) {
	b.Attempted++
	switch o.Status {
	case OutcomeStatusSent:
		b.Sent++
	case OutcomeStatusSkipped:
		b.Skipped++
		b.Failures = append(b.Failures, o)
	default:
		b.Failed++
		b.Failures = append(b.Failures, o)
	}
}
