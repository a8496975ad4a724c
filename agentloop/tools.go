package agentloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/SecBear/neuron-sub003/hooks"
	"github.com/SecBear/neuron-sub003/tool"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// callResult is what happened to one requested call.
type callResult struct {
	out     *tool.Output
	err     error
	skipped string // skip reason, empty when the call ran
}

// executeTools runs one batch of tool calls and folds the results into
// history as a single tool message, in request order. Pre-execution hooks
// run first, in request order; calls that were not skipped then execute,
// concurrently when enabled and more than one remains; post-execution hooks
// run after the join, again in request order.
func (s *state) executeTools(ctx context.Context, turn int, requested []unifiedllm.ToolCallData) TurnOutcome {
	calls := make([]tool.Call, len(requested))
	for i, tc := range requested {
		calls[i] = tool.CallFrom(tc)
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call-%d-%d", turn, i)
		}
		s.send(StreamEvent{Kind: StreamToolCall, Turn: turn, ToolCall: &calls[i]})
	}

	results := make([]callResult, len(calls))
	var pending []int
	for i := range calls {
		a := s.dispatch(ctx, hooks.Event{Point: hooks.PointPreToolExecution, Turn: turn, ToolCall: &calls[i]})
		switch a.Kind {
		case hooks.ActionTerminate:
			return &ErrorOutcome{Err: hookTerminated(a.Reason)}
		case hooks.ActionSkip:
			results[i].skipped = a.Reason
			s.e.logger.Debug("tool call skipped", "run_id", s.runID, "tool", calls[i].Name, "call_id", calls[i].ID, "reason", a.Reason)
		default:
			pending = append(pending, i)
		}
	}

	if s.e.config.ParallelToolExecution && s.emit == nil && len(pending) > 1 {
		var wg sync.WaitGroup
		for _, i := range pending {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = s.executeOne(ctx, calls[i])
			}(i)
		}
		wg.Wait()
	} else {
		for _, i := range pending {
			results[i] = s.executeOne(ctx, calls[i])
		}
	}

	var (
		terminate string
		fatal     error
		usage     unifiedllm.Usage
	)
	folded := make([]ToolResult, len(calls))
	parts := make([]unifiedllm.ContentPart, len(calls))
	for i, call := range calls {
		r := results[i]
		if r.skipped == "" {
			ev := hooks.Event{Point: hooks.PointPostToolExecution, Turn: turn, ToolCall: &calls[i], ToolOutput: r.out, Err: r.err}
			if a := s.dispatch(ctx, ev); a.Kind == hooks.ActionTerminate && terminate == "" {
				terminate = a.Reason
			}
		}
		res, err := fold(call, r)
		if err != nil {
			if fatal == nil {
				fatal = err
			}
			continue
		}
		folded[i] = res
		parts[i] = unifiedllm.ToolResultPart(call.ID, res.Content, res.IsError)
		parts[i].ToolResult.Structured = res.Structured
		usage = usage.Add(res.Usage)
	}

	s.acc.addTools(len(calls), usage)
	if terminate != "" {
		return &ErrorOutcome{Err: hookTerminated(terminate)}
	}
	if fatal != nil {
		return &ErrorOutcome{Err: toolCallError(fatal)}
	}

	s.messages = append(s.messages, unifiedllm.Message{Role: unifiedllm.RoleTool, Content: parts})
	for i := range folded {
		s.send(StreamEvent{Kind: StreamToolResult, Turn: turn, ToolCall: &calls[i], ToolResult: &folded[i]})
	}
	if !usage.IsZero() {
		s.send(StreamEvent{Kind: StreamUsage, Turn: turn, Usage: usagePtr(s.acc.usage)})
	}
	if lr := s.acc.checkTokens(s.e.config.Limits); lr != nil {
		lr.TurnCount = s.turns
		return lr
	}
	return &ToolsExecuted{Turn: turn, Calls: calls, Results: folded}
}

func (s *state) executeOne(ctx context.Context, call tool.Call) callResult {
	opts := s.e.config.toolActivityOptions(call.ID)
	out, err := s.e.router.ExecuteTool(ctx, s.e.tools, call, s.tc, opts)
	return callResult{out: out, err: err}
}

// fold turns a call result into what the model sees. Recoverable tool
// failures become error-flagged results carrying their message; anything
// else is returned as an error that ends the run.
func fold(call tool.Call, r callResult) (ToolResult, error) {
	res := ToolResult{CallID: call.ID, Name: call.Name}
	switch {
	case r.skipped != "":
		res.Content = "Tool call skipped: " + r.skipped
		res.IsError = true
		res.Skipped = true
	case r.err != nil:
		te, ok := tool.AsError(r.err)
		if !ok || !te.Recoverable() {
			return res, r.err
		}
		res.Content = te.Message
		if res.Content == "" {
			res.Content = te.Error()
		}
		res.IsError = true
	case r.out != nil:
		res.Content = r.out.Content
		res.Structured = r.out.Structured
		res.IsError = r.out.IsError
		if r.out.Usage != nil {
			res.Usage = *r.out.Usage
		}
	}
	return res, nil
}
