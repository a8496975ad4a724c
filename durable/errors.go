package durable

import (
	"errors"
	"fmt"
)

// ErrNonDeterministic marks a replay whose call differs from the one that
// was journaled under the same activity ID.
var ErrNonDeterministic = errors.New("non-deterministic replay")

// Error reports a journal failure.
type Error struct {
	Op         string // encode, decode, load, save, replay
	ActivityID string
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("durable %s", e.Op)
	if e.ActivityID != "" {
		msg += fmt.Sprintf(" (activity %s)", e.ActivityID)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }
