package agentloop

import (
	"context"
	"iter"

	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// Stepper drives a run one iteration at a time. It is finite and cannot be
// restarted: after a terminal outcome Next reports false. A Stepper is not
// safe for concurrent use.
type Stepper struct {
	state *state
}

// Next performs one iteration. It returns false once the run has ended.
func (st *Stepper) Next(ctx context.Context) (TurnOutcome, bool) {
	if st.state.done {
		return nil, false
	}
	return st.state.advance(ctx), true
}

// Outcomes ranges over the remaining iterations.
func (st *Stepper) Outcomes(ctx context.Context) iter.Seq[TurnOutcome] {
	return func(yield func(TurnOutcome) bool) {
		for {
			out, ok := st.Next(ctx)
			if !ok || !yield(out) {
				return
			}
		}
	}
}

// Done reports whether the run has ended.
func (st *Stepper) Done() bool { return st.state.done }

// InjectMessage appends msg to history before the next iteration.
func (st *Stepper) InjectMessage(msg unifiedllm.Message) {
	st.state.messages = append(st.state.messages, msg)
}

// Messages returns a copy of the current history.
func (st *Stepper) Messages() []unifiedllm.Message { return st.state.history() }

// Usage returns the totals so far.
func (st *Stepper) Usage() unifiedllm.Usage { return st.state.acc.usage }

// TurnCount returns the number of completed model calls.
func (st *Stepper) TurnCount() int { return st.state.turns }

// RunID returns the ID hooks see for this run.
func (st *Stepper) RunID() string { return st.state.runID }
