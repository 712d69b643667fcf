package checkout

import (
	"fmt"
	"log/slog"
)

type State string

const (
	StateStart                State = "START"
	StateOrderRequested       State = "ORDER_REQUESTED"
	StateOrderCreated         State = "ORDER_CREATED"
	StateConfirmationReceived State = "CONFIRMATION_RECEIVED"
	StateVerifying            State = "VERIFYING"
	StateVerified             State = "VERIFIED"
	StateRejected             State = "REJECTED"
	StateRecording            State = "RECORDING"
	StateRecorded             State = "RECORDED"
	StateRecordSkipped        State = "RECORD_SKIPPED"
	StateSuccess              State = "SUCCESS"
	StateFailure              State = "FAILURE"
)

var validNext = map[State]map[State]bool{
	StateStart:                {StateOrderRequested: true, StateConfirmationReceived: true},
	StateOrderRequested:       {StateOrderCreated: true, StateFailure: true},
	StateOrderCreated:         {},
	StateConfirmationReceived: {StateVerifying: true},
	StateVerifying:            {StateVerified: true, StateRejected: true},
	StateVerified:             {StateRecording: true},
	StateRejected:             {StateFailure: true},
	StateRecording:            {StateRecorded: true, StateRecordSkipped: true},
	StateRecorded:             {StateSuccess: true},
	StateRecordSkipped:        {StateSuccess: true},
	StateSuccess:              {},
	StateFailure:              {},
}

func CanTransition(from, to State) bool {
	return validNext[from][to]
}

// flow tracks one request through the state machine. It lives for a single
// call and is never shared.
type flow struct {
	state  State
	logger *slog.Logger
}

func newFlow(logger *slog.Logger, attrs ...any) *flow {
	return &flow{state: StateStart, logger: logger.With(attrs...)}
}

// advance panics on an illegal transition: that is a programming error, and
// the one that matters (recording an unverified payment) must never pass silently.
func (f *flow) advance(to State) {
	if !CanTransition(f.state, to) {
		panic(fmt.Sprintf("checkout: illegal transition %s -> %s", f.state, to))
	}
	f.logger.Debug("checkout transition", "from", f.state, "to", to)
	f.state = to
}

func (f *flow) State() State { return f.state }
