package agentloop

import (
	"context"
	"errors"
	"fmt"

	"github.com/SecBear/neuron-sub003/tool"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// DefaultSubAgentTurns caps a delegated run when the caller sets no limit.
const DefaultSubAgentTurns = 50

type depthKey struct{}

func agentDepth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// SubAgentInput is what the model sends to a delegation tool.
type SubAgentInput struct {
	Task     string `json:"task" jsonschema:"description=Natural language task for the subagent."`
	MaxTurns int    `json:"max_turns,omitempty" jsonschema:"description=Turn limit for the subagent. Default: 50."`
}

// SubAgentOption configures NewSubAgentTool.
type SubAgentOption func(*subAgent)

type subAgent struct {
	maxDepth int
}

// WithMaxDepth bounds how deeply delegation tools may nest. The default is 1:
// a subagent cannot delegate further.
func WithMaxDepth(n int) SubAgentOption {
	return func(s *subAgent) {
		s.maxDepth = n
	}
}

// NewSubAgentTool exposes child as a tool. Each call runs the task as a
// fresh run of child, synchronously, and returns its final text. The
// child's token usage is reported as the tool's usage, so it counts toward
// the parent's totals and limits. A child run that fails or hits a limit
// becomes an error-flagged result the parent model can react to; parent
// cancellation propagates to the child.
func NewSubAgentTool(child *Engine, name, description string, opts ...SubAgentOption) tool.Tool {
	cfg := subAgent{maxDepth: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	return tool.NewTyped(name, description, func(ctx context.Context, in SubAgentInput, tc *tool.ToolContext) (*tool.Output, error) {
		if in.Task == "" {
			return nil, tool.ModelRetry(name, "task is required")
		}
		depth := agentDepth(ctx)
		if depth >= cfg.maxDepth {
			return tool.ErrorText(fmt.Sprintf("maximum subagent depth (%d) reached", cfg.maxDepth)), nil
		}

		childCfg := child.config
		switch {
		case in.MaxTurns > 0:
			childCfg.MaxTurns = in.MaxTurns
		case childCfg.MaxTurns == 0:
			childCfg.MaxTurns = DefaultSubAgentTurns
		}
		e := *child
		e.config = childCfg

		childTC := &tool.ToolContext{Cancel: tool.NewCancelSignal()}
		if tc != nil {
			childTC.Cwd = tc.Cwd
			childTC.SessionID = tc.SessionID
			childTC.Environment = tc.Environment
			childTC.Progress = tc.Progress
			finished := make(chan struct{})
			defer close(finished)
			go func() {
				select {
				case <-tc.Cancel.Done():
					childTC.Cancel.Cancel()
				case <-finished:
				}
			}()
		}

		st := e.Step(unifiedllm.UserMessage(in.Task), childTC)
		var last TurnOutcome
		for out := range st.Outcomes(context.WithValue(ctx, depthKey{}, depth+1)) {
			last = out
		}
		usage := st.Usage()

		final, err := outcomeResult(last)
		if err != nil {
			var le *LoopError
			if errors.As(err, &le) && le.Kind == KindCancelled {
				return nil, tool.Cancelled(name)
			}
			out := tool.ErrorText(fmt.Sprintf("Subagent failed after %d turns: %v", st.TurnCount(), err))
			out.Usage = &usage
			return out, nil
		}
		out := tool.Text(final.Text)
		out.Usage = &usage
		return out, nil
	})
}
