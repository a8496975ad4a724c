package agentloop

import (
	"context"
	"fmt"

	"github.com/SecBear/neuron-sub003/durable"
	"github.com/SecBear/neuron-sub003/hooks"
	"github.com/SecBear/neuron-sub003/tool"
	"github.com/SecBear/neuron-sub003/unifiedllm"
)

// state is one run: the history it owns, its counters, and whether it has
// ended. Run, Step and RunStreaming all drive it through advance.
type state struct {
	e         *Engine
	runID     string
	tc        *tool.ToolContext
	messages  []unifiedllm.Message
	acc       accumulator
	turns     int
	compacted bool // the previous iteration compacted; skip the check once
	last      *unifiedllm.Response
	done      bool
	emit      func(StreamEvent) // set only when streaming
}

// advance performs one iteration. After a terminal outcome it returns nil.
func (s *state) advance(ctx context.Context) TurnOutcome {
	if s.done {
		return nil
	}
	out := s.turn(ctx)
	if out.Terminal() {
		s.done = true
		out = s.finish(ctx, out)
	}
	return out
}

func (s *state) turn(ctx context.Context) TurnOutcome {
	cfg := s.e.config
	if s.cancelled(ctx) {
		return &ErrorOutcome{Err: cancelledError(ctx.Err())}
	}
	if cfg.MaxTurns > 0 && s.turns >= cfg.MaxTurns {
		return &LimitReached{
			Limit:     LimitTurns,
			Message:   fmt.Sprintf("turn limit of %d reached", cfg.MaxTurns),
			Usage:     s.acc.usage,
			TurnCount: s.turns,
		}
	}
	if lr := s.acc.checkRequest(cfg.Limits); lr != nil {
		lr.TurnCount = s.turns
		return lr
	}

	turn := s.turns + 1
	if a := s.dispatch(ctx, hooks.Event{Point: hooks.PointLoopIteration, Turn: turn}); a.Kind == hooks.ActionTerminate {
		return &ErrorOutcome{Err: hookTerminated(a.Reason)}
	}
	if out := s.maybeCompact(ctx, turn); out != nil {
		return out
	}

	req := s.request()
	if a := s.dispatch(ctx, hooks.Event{Point: hooks.PointPreModelCall, Turn: turn, Request: &req}); a.Kind == hooks.ActionTerminate {
		return &ErrorOutcome{Err: hookTerminated(a.Reason)}
	}

	resp, err := s.callModel(ctx, req, turn)
	if err != nil {
		return &ErrorOutcome{Err: modelCallError(ctx, err)}
	}
	s.turns++
	s.acc.addResponse(resp.Usage)
	s.last = resp
	s.messages = append(s.messages, resp.Message)
	s.e.logger.Debug("model responded",
		"run_id", s.runID,
		"turn", turn,
		"stop_reason", string(resp.StopReason),
		"tool_calls", len(resp.ToolCalls()),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	s.send(StreamEvent{Kind: StreamUsage, Turn: turn, Usage: usagePtr(s.acc.usage)})

	if a := s.dispatch(ctx, hooks.Event{Point: hooks.PointPostModelCall, Turn: turn, Request: &req, Response: resp}); a.Kind == hooks.ActionTerminate {
		return &ErrorOutcome{Err: hookTerminated(a.Reason)}
	}
	if lr := s.acc.checkTokens(cfg.Limits); lr != nil {
		lr.TurnCount = s.turns
		return lr
	}

	if resp.StopReason == unifiedllm.StopCompaction {
		return s.serverCompaction(ctx, turn)
	}

	calls := resp.ToolCalls()
	if len(calls) == 0 {
		return &FinalResponse{
			Text:       resp.Text(),
			Messages:   s.history(),
			Usage:      s.acc.usage,
			TurnCount:  s.turns,
			StopReason: resp.StopReason,
		}
	}

	if s.cancelled(ctx) {
		return &ErrorOutcome{Err: cancelledError(ctx.Err())}
	}
	if lr := s.acc.checkToolCalls(cfg.Limits, len(calls)); lr != nil {
		lr.TurnCount = s.turns
		return lr
	}
	return s.executeTools(ctx, turn, calls)
}

// maybeCompact runs the context strategy. It returns nil when nothing was
// compacted.
func (s *state) maybeCompact(ctx context.Context, turn int) TurnOutcome {
	if s.compacted {
		s.compacted = false
		return nil
	}
	strategy := s.e.strategy
	before := strategy.TokenEstimate(s.messages)
	if !strategy.ShouldCompact(s.messages, before) {
		return nil
	}
	compacted, err := strategy.Compact(ctx, s.messages)
	if err != nil {
		return &ErrorOutcome{Err: contextError(err)}
	}
	after := strategy.TokenEstimate(compacted)
	s.messages = compacted
	s.compacted = true
	s.e.logger.Debug("history compacted",
		"run_id", s.runID,
		"turn", turn,
		"tokens_before", before,
		"tokens_after", after,
		"messages", len(compacted),
	)

	out := &CompactionOccurred{BeforeTokens: before, AfterTokens: after}
	s.send(StreamEvent{Kind: StreamCompaction, Turn: turn, Outcome: out})
	ev := hooks.Event{Point: hooks.PointContextCompaction, Turn: turn, TokensBefore: before, TokensAfter: after}
	if a := s.dispatch(ctx, ev); a.Kind == hooks.ActionTerminate {
		return &ErrorOutcome{Err: hookTerminated(a.Reason)}
	}
	return out
}

// serverCompaction handles a backend that paused to compact server-side.
// The summary is already in history; the loop continues with the next
// turn.
func (s *state) serverCompaction(ctx context.Context, turn int) TurnOutcome {
	after := s.e.strategy.TokenEstimate(s.messages)
	before := after
	if n := len(s.messages); n > 0 {
		before = s.e.strategy.TokenEstimate(s.messages[:n-1])
	}
	out := &CompactionOccurred{BeforeTokens: before, AfterTokens: after, Server: true}
	s.send(StreamEvent{Kind: StreamCompaction, Turn: turn, Outcome: out})
	ev := hooks.Event{Point: hooks.PointContextCompaction, Turn: turn, TokensBefore: before, TokensAfter: after}
	if a := s.dispatch(ctx, ev); a.Kind == hooks.ActionTerminate {
		return &ErrorOutcome{Err: hookTerminated(a.Reason)}
	}
	return out
}

// finish fires loop_exit and reports the terminal outcome. Terminate at
// this point only overrides a final response.
func (s *state) finish(ctx context.Context, out TurnOutcome) TurnOutcome {
	ev := hooks.Event{Point: hooks.PointLoopExit, Turn: s.turns, Usage: s.acc.usage}
	switch v := out.(type) {
	case *FinalResponse:
		ev.Response = s.last
	case *LimitReached:
		ev.Err = v.Err()
	case *ErrorOutcome:
		ev.Err = v.Err
	}
	if a := s.dispatch(ctx, ev); a.Kind == hooks.ActionTerminate {
		if _, ok := out.(*FinalResponse); ok {
			out = &ErrorOutcome{Err: hookTerminated(a.Reason)}
		}
	}

	attrs := []any{"run_id", s.runID, "outcome", string(out.Kind()), "turns", s.turns, "total_tokens", s.acc.usage.TotalTokens}
	switch v := out.(type) {
	case *FinalResponse:
		s.e.logger.Debug("run finished", attrs...)
		s.send(StreamEvent{Kind: StreamFinal, Turn: s.turns, Outcome: v, Usage: usagePtr(s.acc.usage)})
	case *LimitReached:
		s.e.logger.Debug("run finished", append(attrs, "limit", v.Limit)...)
		s.send(StreamEvent{Kind: StreamError, Turn: s.turns, Outcome: v, Err: v.Err()})
	case *ErrorOutcome:
		s.e.logger.Debug("run finished", append(attrs, "error", v.Err)...)
		s.send(StreamEvent{Kind: StreamError, Turn: s.turns, Outcome: v, Err: v.Err})
	}
	return out
}

func (s *state) request() unifiedllm.Request {
	cfg := s.e.config
	return unifiedllm.Request{
		Model:           cfg.Model,
		System:          cfg.SystemPrompt,
		Messages:        s.history(),
		Provider:        cfg.Provider,
		Tools:           s.e.tools.LLMDefinitions(),
		MaxTokens:       cfg.MaxTokens,
		Temperature:     cfg.Temperature,
		ReasoningEffort: cfg.ReasoningEffort,
	}
}

// callModel routes one model call. While streaming, deltas are forwarded
// as they arrive; a router that cannot stream has its complete response
// replayed as events.
func (s *state) callModel(ctx context.Context, req unifiedllm.Request, turn int) (*unifiedllm.Response, error) {
	opts := s.e.config.activityOptions(fmt.Sprintf("model-%d", s.acc.requests+1))
	s.e.logger.Debug("model call",
		"run_id", s.runID,
		"turn", turn,
		"activity_id", opts.ID,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)
	if s.emit == nil {
		return s.e.router.ExecuteModelCall(ctx, s.e.backend, req, opts)
	}

	var events <-chan unifiedllm.StreamEvent
	if st, ok := s.e.router.(durable.Streamer); ok {
		ch, err := st.StreamModelCall(ctx, s.e.backend, req, opts)
		if err != nil {
			return nil, err
		}
		events = ch
	} else {
		resp, err := s.e.router.ExecuteModelCall(ctx, s.e.backend, req, opts)
		if err != nil {
			return nil, err
		}
		events = unifiedllm.ResponseEvents(resp)
	}
	return unifiedllm.Collect(ctx, events, func(ev unifiedllm.StreamEvent) {
		s.forward(turn, ev)
	})
}

func (s *state) dispatch(ctx context.Context, ev hooks.Event) hooks.Action {
	ev.RunID = s.runID
	return s.e.hooks.Dispatch(ctx, ev)
}

func (s *state) cancelled(ctx context.Context) bool {
	return s.tc.Cancelled() || ctx.Err() != nil
}

// history returns a copy of the messages so callers never alias the run's
// own slice.
func (s *state) history() []unifiedllm.Message {
	out := make([]unifiedllm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func usagePtr(u unifiedllm.Usage) *unifiedllm.Usage {
	return &u
}
