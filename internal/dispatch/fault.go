package dispatch

import (
	"errors"
	"fmt"

	"github.com/roach88/strata/internal/model"
)

// RuntimeFault represents a failure detected during dispatch.
//
// Runtime faults are few by design - a validated model rules almost
// everything out statically. What remains:
//   - Queue overflow under the "error" or "assert" policy
//   - Completion-chain overflow: more than the allowed number of chained
//     completions without an intervening external event (always fatal,
//     signals a final-state cycle in the model)
type RuntimeFault struct {
	// Code identifies the fault category.
	Code RuntimeFaultCode

	// Message is a human-readable description.
	Message string

	// Fatal marks the instance as halted: every later call returns this
	// fault unchanged.
	Fatal bool

	// Event identifies the event being processed, when applicable.
	Event model.EventID

	// Details contains additional context.
	Details map[string]string
}

// RuntimeFaultCode categorizes runtime faults.
type RuntimeFaultCode string

const (
	// CodeQueueOverflow indicates an enqueue hit a full queue under the
	// "error" or "assert" policy.
	CodeQueueOverflow RuntimeFaultCode = "QUEUE_OVERFLOW"

	// CodeCompletionOverflow indicates the completion chain exceeded its
	// bound without an intervening external event.
	CodeCompletionOverflow RuntimeFaultCode = "COMPLETION_OVERFLOW"

	// CodeHalted indicates a call on an instance already stopped by a
	// fatal fault.
	CodeHalted RuntimeFaultCode = "HALTED"

	// CodeStuckPseudostate indicates a choice or junction was reached with
	// no enabled outgoing segment. Always fatal: the configuration cannot
	// rest in a pseudostate.
	CodeStuckPseudostate RuntimeFaultCode = "STUCK_PSEUDOSTATE"

	// CodeSendFailed indicates a cross-machine send could not be delivered.
	// Never fatal for the sender.
	CodeSendFailed RuntimeFaultCode = "SEND_FAILED"
)

// Error implements the error interface.
func (f *RuntimeFault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// IsQueueOverflow returns true if the error is a queue overflow fault.
// Uses errors.As to handle wrapped errors.
func IsQueueOverflow(err error) bool {
	var rf *RuntimeFault
	if errors.As(err, &rf) {
		return rf.Code == CodeQueueOverflow
	}
	return false
}

// IsCompletionOverflow returns true if the error is a completion-chain
// overflow fault. Uses errors.As to handle wrapped errors.
func IsCompletionOverflow(err error) bool {
	var rf *RuntimeFault
	if errors.As(err, &rf) {
		return rf.Code == CodeCompletionOverflow
	}
	return false
}

// newQueueOverflow builds the overflow fault; fatal under the assert policy.
func newQueueOverflow(capacity int, fatal bool) *RuntimeFault {
	return &RuntimeFault{
		Code:    CodeQueueOverflow,
		Message: fmt.Sprintf("event queue full at capacity %d", capacity),
		Fatal:   fatal,
		Event:   model.EventNone,
		Details: map[string]string{"capacity": fmt.Sprintf("%d", capacity)},
	}
}

// newStuckPseudostate builds the fatal no-enabled-branch fault.
func newStuckPseudostate(name string) *RuntimeFault {
	return &RuntimeFault{
		Code:    CodeStuckPseudostate,
		Message: fmt.Sprintf("no enabled outgoing segment at pseudostate %s", name),
		Fatal:   true,
		Event:   model.EventNone,
	}
}

// newCompletionOverflow builds the always-fatal chain fault.
func newCompletionOverflow(limit int) *RuntimeFault {
	return &RuntimeFault{
		Code:    CodeCompletionOverflow,
		Message: fmt.Sprintf("more than %d chained completions without an external event; the model has a final-state cycle", limit),
		Fatal:   true,
		Event:   model.EventNone,
		Details: map[string]string{"limit": fmt.Sprintf("%d", limit)},
	}
}
