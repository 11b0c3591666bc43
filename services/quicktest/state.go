package quicktest

import (
	"errors"
	"fmt"

	"logicflow/pkg/apperr"
)

// Sentinel errors for programmatic error checking via errors.Is().
var (
	// ErrInvalidTransition indicates a move the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTerminalState indicates a transition out of a terminal state.
	ErrTerminalState = errors.New("quick test already finished")
)

// transitions lists the allowed moves out of each non-terminal state.
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
}

// TransitionError reports a rejected status change. It wraps ErrTerminalState
// when From is terminal, otherwise ErrInvalidTransition; both are conflicts.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("%s: cannot move from %s to %s", ErrTerminalState.Error(), e.From, e.To)
	}
	return fmt.Sprintf("%s: %s to %s", ErrInvalidTransition.Error(), e.From, e.To)
}

func (e *TransitionError) Unwrap() []error {
	if e.From.Terminal() {
		return []error{ErrTerminalState, apperr.ErrConflict}
	}
	return []error{ErrInvalidTransition, apperr.ErrConflict}
}

// Transition checks whether a quick test may move from one status to another.
func Transition(from, to Status) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}
