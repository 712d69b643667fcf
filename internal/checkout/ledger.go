package checkout

import (
	"context"
	"errors"
)

// Recorder appends audit rows. There is no update or delete.
type Recorder interface {
	Append(ctx context.Context, row LedgerRow) error
}

type OutcomeKind string

const (
	OutcomeRecorded  OutcomeKind = "recorded"
	OutcomeDuplicate OutcomeKind = "duplicate"
	OutcomeSkipped   OutcomeKind = "skipped"
	OutcomeFailed    OutcomeKind = "failed"
)

// RecordOutcome is the result of a best-effort ledger append. The
// orchestrator logs it and discards it; it never changes a Verdict.
type RecordOutcome struct {
	Kind OutcomeKind
	Err  error
}

func outcomeOf(err error) RecordOutcome {
	switch {
	case err == nil:
		return RecordOutcome{Kind: OutcomeRecorded}
	case errors.Is(err, ErrLedgerDuplicate):
		return RecordOutcome{Kind: OutcomeDuplicate, Err: err}
	case errors.Is(err, ErrLedgerUnconfigured):
		return RecordOutcome{Kind: OutcomeSkipped, Err: err}
	default:
		return RecordOutcome{Kind: OutcomeFailed, Err: err}
	}
}

// Written reports whether the row exists in the ledger after the attempt.
func (o RecordOutcome) Written() bool {
	return o.Kind == OutcomeRecorded || o.Kind == OutcomeDuplicate
}
